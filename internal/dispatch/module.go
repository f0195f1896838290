package dispatch

import (
	"net"
	"time"

	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
)

// regFlags mirrors MOD_REG's flags field: a registering connection is
// either the module's synchronous command channel or its asynchronous
// event-delivery channel.
type regFlags uint32

const (
	flagSync  regFlags = 1
	flagEvent regFlags = 2
)

// Module is one registered client: its identity, its synchronous command
// connection, and (once registered) its asynchronous event connection.
type Module struct {
	ID    uint32
	Name  string
	Seq   uint32 // disambiguates repeated registrations under the same name

	SyncConn  net.Conn
	AsyncConn net.Conn

	Timeout      time.Duration
	RegisteredAt time.Time

	StatusTag uint32 // index of this module's _m<name><seq> status tag
}

// registerSync assigns a new module id, creates its status tag and records
// it in the registry. It is called from the core loop only.
func (s *Server) registerSync(name string, timeout time.Duration, conn net.Conn) (*Module, error) {
	s.moduleSeq[name]++
	seq := s.moduleSeq[name]

	id := s.nextModID()
	m := &Module{
		ID:           id,
		Name:         name,
		Seq:          seq,
		SyncConn:     conn,
		Timeout:      timeout,
		RegisteredAt: time.Now(),
	}

	statusName := statusTagName(name, seq)
	idx, err := s.Store.Add(id, statusName, s.sys.statusCDT, 1, tagstore.AttrOwned)
	if err != nil {
		return nil, err
	}
	m.StatusTag = idx
	s.writeModuleStatus(m, true, false, "running")

	s.modules[id] = m
	s.recordLastModule(id)
	return m, nil
}

// attachAsync binds the async connection for an already-registered module.
func (s *Server) attachAsync(id uint32, conn net.Conn) error {
	m, ok := s.modules[id]
	if !ok {
		return wire.New(wire.ErrNotFound, "no such module")
	}
	m.AsyncConn = conn
	return nil
}

// unregister tears a module down on EOF from either of its two sockets
// (section 5): its groups are dropped, its status tag freed, and both
// sockets closed, since losing one half of the pair leaves the other half
// attached to a module that no longer exists.
func (s *Server) unregister(id uint32) {
	m, ok := s.modules[id]
	if !ok {
		return
	}
	s.Groups.DeleteModule(id)
	if m.StatusTag != 0 {
		_ = s.Store.Del(m.StatusTag)
	}
	if m.SyncConn != nil {
		m.SyncConn.Close()
	}
	if m.AsyncConn != nil {
		m.AsyncConn.Close()
	}
	delete(s.modules, id)
}

func statusTagName(name string, seq uint32) string {
	// "_m" + name, truncated so the whole name fits MaxNameLen along with a
	// decimal sequence suffix.
	const prefix = "_m"
	budget := tagstore.MaxNameLen - len(prefix) - len(seqSuffix(seq))
	if budget < 1 {
		budget = 1
	}
	if len(name) > budget {
		name = name[:budget]
	}
	return prefix + name + seqSuffix(seq)
}

func seqSuffix(seq uint32) string {
	if seq <= 1 {
		return ""
	}
	return itoa(seq)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// writeModuleStatus updates the boolean running/faulted fields and the
// status string of m's status tag. Offsets follow statusCDTSpec's
// declaration order: starttime(TIME,4) id(DINT,4) running(BOOL) faulted(BOOL)
// status(CHAR,64) run/stop/reload/kill(BOOL each). BOOL members accumulate
// bit position without byte-aligning (section 4.1), so running and faulted
// share the byte at offset 8, status starts at byte 9, and the four command
// bools share byte 73, which this function does not write.
func (s *Server) writeModuleStatus(m *Module, running, faulted bool, status string) {
	var boolByte byte
	if running {
		boolByte |= 1 << 0
	}
	if faulted {
		boolByte |= 1 << 1
	}

	_ = s.Store.Write(m.ID, m.StatusTag, 0, uint32Bytes(uint32(m.RegisteredAt.Unix())))
	_ = s.Store.Write(m.ID, m.StatusTag, 4, int32Bytes(int32(m.ID)))
	_ = s.Store.Write(m.ID, m.StatusTag, 8, []byte{boolByte})

	buf := make([]byte, 64)
	copy(buf, status)
	_ = s.Store.Write(m.ID, m.StatusTag, 9, buf)
}

func int32Bytes(v int32) []byte { return uint32Bytes(uint32(v)) }
