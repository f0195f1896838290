package dispatch

import (
	"encoding/binary"
	"math"

	"github.com/opendax/daxd/internal/wire"
)

// handleModReg implements both halves of the MOD_REG handshake. A SYNC
// registration carries u32 timeout, u32 flags, then the module's name and
// assigns a fresh module id; an EVENT registration carries an
// already-assigned u32 module-id, u32 flags and attaches req.conn as that
// module's async channel.
//
// The sync response's endian/float-layout test values are a declaration of
// this server's byte order and float representation (section 9's redesign
// note): clients compare them against their own native layout and byte-swap
// on their side as needed, rather than the server attempting to detect and
// correct a foreign client's layout itself.
func (s *Server) handleModReg(req *request, payload []byte) ([]byte, error) {
	if err := needLen(payload, 8); err != nil {
		return nil, err
	}
	first := getU32(payload, 0)
	second := getU32(payload, 4)

	flags := regFlags(second)
	if flags == flagEvent {
		moduleID := first
		if err := s.attachAsync(moduleID, req.conn); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// SYNC registration: u32 timeout, u32 flags, name (rest, NUL-terminated
	// or running to end of payload).
	timeoutMs := first
	name, _ := readCString(payload[8:])

	m, err := s.registerSync(name, timeoutFromMillis(timeoutMs), req.conn)
	if err != nil {
		return nil, err
	}

	resp := make([]byte, 4+2+4+8+4+8)
	putU32(resp, 0, m.ID)
	binary.NativeEndian.PutUint16(resp[4:6], 0x1234)
	putU32(resp, 6, 0x12345678)
	binary.NativeEndian.PutUint64(resp[10:18], 0x123456789ABCDEF0)
	binary.NativeEndian.PutUint32(resp[18:22], math.Float32bits(3.14))
	binary.NativeEndian.PutUint64(resp[22:30], math.Float64bits(3.14159265358979))
	return resp, nil
}

// handleModSet updates a registered module's request timeout: u32
// timeout-ms.
func (s *Server) handleModSet(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 4); err != nil {
		return nil, err
	}
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, wire.New(wire.ErrNotFound, "no such module")
	}
	m.Timeout = timeoutFromMillis(getU32(payload, 0))
	return nil, nil
}

// handleModGet returns the calling module's own id and timeout: u32 id, u32
// timeout-ms.
func (s *Server) handleModGet(moduleID uint32) ([]byte, error) {
	m, ok := s.modules[moduleID]
	if !ok {
		return nil, wire.New(wire.ErrNotFound, "no such module")
	}
	resp := make([]byte, 8)
	putU32(resp, 0, m.ID)
	putU32(resp, 4, uint32(m.Timeout/1_000_000))
	return resp, nil
}
