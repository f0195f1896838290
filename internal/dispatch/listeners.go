package dispatch

import (
	"fmt"
	"net"
	"os"

	"github.com/opendax/daxd/internal/wire"
	"github.com/opendax/daxd/pkg/daxlog"
)

// Listeners owns the two accept loops daxd serves modules on: a Unix
// domain socket for local clients and a TCP listener for remote ones
// (section 6). Both feed the same Server core loop.
type Listeners struct {
	unix net.Listener
	tcp  net.Listener
}

// Listen opens both sockets named by cfg without yet accepting connections.
func (s *Server) Listen() (*Listeners, error) {
	if fi, err := os.Stat(s.Cfg.SocketName); err == nil && fi.Mode()&os.ModeSocket != 0 {
		os.Remove(s.Cfg.SocketName)
	}
	unixLn, err := net.Listen("unix", s.Cfg.SocketName)
	if err != nil {
		return nil, fmt.Errorf("dispatch: listening on unix socket %s: %w", s.Cfg.SocketName, err)
	}
	addr := fmt.Sprintf("%s:%d", s.Cfg.ServerIP, s.Cfg.ServerPort)
	tcpLn, err := net.Listen("tcp", addr)
	if err != nil {
		unixLn.Close()
		return nil, fmt.Errorf("dispatch: listening on tcp %s: %w", addr, err)
	}
	return &Listeners{unix: unixLn, tcp: tcpLn}, nil
}

func (l *Listeners) Close() {
	l.unix.Close()
	l.tcp.Close()
}

// Serve runs both accept loops until their listeners are closed. It
// returns once both loops have exited.
func (s *Server) Serve(l *Listeners) {
	done := make(chan struct{}, 2)
	go func() { s.acceptLoop(l.unix); done <- struct{}{} }()
	go func() { s.acceptLoop(l.tcp); done <- struct{}{} }()
	<-done
	<-done
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			daxlog.Infof("dispatch: accept loop on %s exiting: %v", ln.Addr(), err)
			return
		}
		go s.handleConn(conn)
	}
}

// handleConn drives one connection from its first frame (which must be a
// MOD_REG) through either the synchronous command loop or, for an
// asynchronous registration, a single blocking read used only to detect
// disconnection (section 5: one reader goroutine per connection, the core
// loop does all the mutation).
func (s *Server) handleConn(conn net.Conn) {
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return
	}
	if frame.BaseCommand() != wire.ModReg {
		wire.WriteFrame(conn, wire.ErrorResponse(frame.Command, wire.ErrIllegal))
		conn.Close()
		return
	}

	reply := make(chan wire.Frame, 1)
	s.submit(&request{frame: frame, conn: conn, reply: reply})
	resp, ok := <-reply
	if !ok {
		conn.Close()
		return
	}
	if err := wire.WriteFrame(conn, resp); err != nil || resp.IsError() {
		conn.Close()
		return
	}

	flags, moduleID := decodeRegAck(frame.Payload, resp.Payload)
	if flags == flagEvent {
		// The async channel is written to by the event bus relay, never
		// read from by the core loop; a single blocking read is enough to
		// notice the peer going away.
		var buf [1]byte
		conn.Read(buf[:])
		s.submit(&request{module: moduleID, disconnect: true})
		conn.Close()
		return
	}

	s.syncLoop(conn, moduleID)
}

// decodeRegAck recovers the flags the client asked for and the module id
// now associated with conn: for an EVENT registration the id was already in
// the request; for a SYNC registration it is the first field of the
// response.
func decodeRegAck(reqPayload, respPayload []byte) (regFlags, uint32) {
	if len(reqPayload) >= 8 {
		flags := regFlags(getU32(reqPayload, 4))
		if flags == flagEvent {
			return flags, getU32(reqPayload, 0)
		}
	}
	if len(respPayload) >= 4 {
		return flagSync, getU32(respPayload, 0)
	}
	return flagSync, 0
}

func (s *Server) syncLoop(conn net.Conn, moduleID uint32) {
	defer conn.Close()
	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			s.submit(&request{module: moduleID, disconnect: true})
			return
		}

		reply := make(chan wire.Frame, 1)
		s.submit(&request{module: moduleID, frame: frame, reply: reply})
		resp, ok := <-reply
		if !ok {
			return
		}
		if err := wire.WriteFrame(conn, resp); err != nil {
			s.submit(&request{module: moduleID, disconnect: true})
			return
		}
	}
}
