package dispatch

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/wire"
)

// request is one decoded frame waiting to run on the core loop, plus
// whatever the connection goroutine needs to finish the registration
// handshake when cmd is ModReg.
type request struct {
	module uint32 // 0 until the connection has registered
	frame  wire.Frame
	conn   net.Conn // set only for a ModReg request, so the handler can attach it
	reply  chan wire.Frame

	disconnect bool                 // true: module has gone away, clean up and ignore frame
	notify     *events.Notification // non-nil: deliver to notify.Module's async socket
}

// handle runs exactly one request to completion on the core loop goroutine.
// Routing disconnects and notifications through the same channel as client
// frames keeps the single-writer guarantee of section 5: only this
// goroutine ever touches s.modules or writes to a module's async socket.
func (s *Server) handle(req *request) {
	if req.disconnect {
		s.unregister(req.module)
		return
	}
	if req.notify != nil {
		s.deliverNotification(*req.notify)
		return
	}

	cmd := req.frame.BaseCommand()
	payload := req.frame.Payload

	var resp []byte
	var err error

	switch cmd {
	case wire.ModReg:
		resp, err = s.handleModReg(req, payload)
	case wire.ModSet:
		resp, err = s.handleModSet(req.module, payload)
	case wire.ModGet:
		resp, err = s.handleModGet(req.module)
	case wire.TagAdd:
		resp, err = s.handleTagAdd(req.module, payload)
	case wire.TagDel:
		resp, err = s.handleTagDel(payload)
	case wire.TagGet:
		resp, err = s.handleTagGet(payload)
	case wire.TagList:
		resp, err = s.handleTagList()
	case wire.TagRead:
		resp, err = s.handleTagRead(req.module, payload)
	case wire.TagWrite:
		resp, err = s.handleTagWrite(req.module, payload)
	case wire.TagMWrite:
		resp, err = s.handleTagMWrite(req.module, payload)
	case wire.EvntAdd:
		resp, err = s.handleEvntAdd(req.module, payload)
	case wire.EvntDel:
		resp, err = s.handleEvntDel(req.module, payload)
	case wire.EvntGet:
		resp, err = s.handleEvntGet(payload)
	case wire.EvntOpt:
		resp, err = s.handleEvntOpt(payload)
	case wire.CdtCreate:
		resp, err = s.handleCdtCreate(payload)
	case wire.CdtGet:
		resp, err = s.handleCdtGet(payload)
	case wire.MapAdd:
		resp, err = s.handleMapAdd(payload)
	case wire.MapDel:
		resp, err = s.handleMapDel(payload)
	case wire.MapGet:
		resp, err = s.handleMapGet(payload)
	case wire.GrpAdd:
		resp, err = s.handleGrpAdd(req.module, payload)
	case wire.GrpDel:
		resp, err = s.handleGrpDel(req.module, payload)
	case wire.GrpRead:
		resp, err = s.handleGrpRead(req.module, payload)
	case wire.GrpWrite:
		resp, err = s.handleGrpWrite(req.module, payload)
	case wire.GrpMWrite:
		resp, err = s.handleGrpMWrite(req.module, payload)
	case wire.AtomicOp:
		resp, err = s.handleAtomicOp(req.module, payload)
	case wire.AddOvrd:
		resp, err = s.handleAddOvrd(payload)
	case wire.DelOvrd:
		resp, err = s.handleDelOvrd(payload)
	case wire.GetOvrd:
		resp, err = s.handleGetOvrd(payload)
	case wire.SetOvrd:
		resp, err = s.handleSetOvrd(payload)
	default:
		err = wire.New(wire.ErrNotImplemented, "unknown command")
	}

	var out wire.Frame
	if err != nil {
		out = errorFrame(cmd, err)
	} else {
		out = wire.Response(cmd, resp)
	}
	if req.reply != nil {
		req.reply <- out
	}
}

// errorFrame maps err to a wire error response, preserving its Code when
// err is a *wire.Error and falling back to ARG otherwise.
func errorFrame(cmd wire.Command, err error) wire.Frame {
	if we, ok := err.(*wire.Error); ok {
		return wire.ErrorResponse(cmd, we.Code)
	}
	return wire.ErrorResponse(cmd, wire.ErrArg)
}

// --- shared payload codec helpers, all host-native byte order (section 6) ---

func getU32(buf []byte, off int) uint32 {
	return binary.NativeEndian.Uint32(buf[off : off+4])
}

func putU32(buf []byte, off int, v uint32) {
	binary.NativeEndian.PutUint32(buf[off:off+4], v)
}

func getU16(buf []byte, off int) uint16 {
	return binary.NativeEndian.Uint16(buf[off : off+2])
}

func putU16(buf []byte, off int, v uint16) {
	binary.NativeEndian.PutUint16(buf[off:off+2], v)
}

// readCString splits buf at the first NUL byte, returning the string before
// it and the remainder of buf after the NUL.
func readCString(buf []byte) (string, []byte) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), buf[i+1:]
		}
	}
	return string(buf), nil
}

func needLen(buf []byte, n int) error {
	if len(buf) < n {
		return wire.New(wire.ErrArg, "short payload")
	}
	return nil
}

func timeoutFromMillis(ms uint32) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
