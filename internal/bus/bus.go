// Package bus is daxd's internal notification transport: it decouples the
// event engine (the producer of fired-event notifications) from the
// dispatcher's per-module async-socket writers (the consumer), grounded on
// the teacher's pkg/nats client wrapper. Unlike the teacher, which connects
// to an external broker, daxd embeds a private nats-server instance so a
// single binary needs no external dependency to run.
package bus

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/pkg/daxlog"
)

// eventSubject is the NATS subject every fired event notification is
// published under; subscribers receive every notification and the module id
// travels inside the payload.
const eventSubject = "daxd.events"

// Bus embeds a private NATS server and a client connection to it, and
// implements events.Publisher by marshaling Notification onto eventSubject.
type Bus struct {
	srv  *server.Server
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Start launches an embedded, loopback-only NATS server on port (0 picks a
// free port) and connects a client to it.
func Start(port int) (*Bus, error) {
	if port == 0 {
		port = server.RANDOM_PORT
	}
	opts := &server.Options{
		Host:           "127.0.0.1",
		Port:           port,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 4096,
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("bus: creating embedded nats-server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("bus: embedded nats-server did not become ready")
	}

	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("bus: connecting client: %w", err)
	}

	daxlog.Infof("bus: embedded NATS ready at %s", srv.ClientURL())
	return &Bus{srv: srv, conn: conn}, nil
}

func (b *Bus) Close() {
	b.mu.Lock()
	for _, s := range b.subs {
		s.Unsubscribe()
	}
	b.mu.Unlock()
	b.conn.Close()
	b.srv.Shutdown()
}

// Publish implements events.Publisher: it marshals n onto eventSubject. A
// publish failure is logged but never propagated to the caller (the dispatch
// core loop cannot block or fail a tag write because a notification could
// not be queued).
func (b *Bus) Publish(n events.Notification) {
	payload := marshalNotification(n)
	if err := b.conn.Publish(eventSubject, payload); err != nil {
		daxlog.Warnf("bus: publish failed: %v", err)
	}
}

// Handler receives a decoded notification off the bus.
type Handler func(events.Notification)

// Subscribe registers h for every notification published via Publish. The
// dispatcher subscribes once (Server.WireBus) and hands each notification
// back to its core loop, which writes it to the subscriber module's async
// socket.
func (b *Bus) Subscribe(h Handler) error {
	sub, err := b.conn.Subscribe(eventSubject, func(msg *nats.Msg) {
		n, err := unmarshalNotification(msg.Data)
		if err != nil {
			daxlog.Warnf("bus: dropping malformed notification: %v", err)
			return
		}
		h(n)
	})
	if err != nil {
		return fmt.Errorf("bus: subscribe: %w", err)
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// marshalNotification encodes a Notification as module(4)/tag(4)/event(4)/
// datalen(4)/data, all host-order, matching the wire payload convention used
// elsewhere for internal (non-client-facing) binary encodings.
func marshalNotification(n events.Notification) []byte {
	buf := make([]byte, 16+len(n.Data))
	binary.NativeEndian.PutUint32(buf[0:4], n.Module)
	binary.NativeEndian.PutUint32(buf[4:8], n.TagID)
	binary.NativeEndian.PutUint32(buf[8:12], n.EventID)
	binary.NativeEndian.PutUint32(buf[12:16], uint32(len(n.Data)))
	copy(buf[16:], n.Data)
	return buf
}

func unmarshalNotification(buf []byte) (events.Notification, error) {
	if len(buf) < 16 {
		return events.Notification{}, fmt.Errorf("bus: short notification payload")
	}
	n := events.Notification{
		Module:  binary.NativeEndian.Uint32(buf[0:4]),
		TagID:   binary.NativeEndian.Uint32(buf[4:8]),
		EventID: binary.NativeEndian.Uint32(buf[8:12]),
	}
	dataLen := binary.NativeEndian.Uint32(buf[12:16])
	if uint32(len(buf)-16) < dataLen {
		return events.Notification{}, fmt.Errorf("bus: truncated notification payload")
	}
	if dataLen > 0 {
		n.Data = append([]byte(nil), buf[16:16+dataLen]...)
	}
	return n, nil
}
