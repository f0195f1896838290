// Package dispatch owns the single core-loop goroutine that is daxd's only
// writer of server state: the tag store, the event, mapping, group and
// retention engines, and the module registry. Every other goroutine (one per
// connection) only decodes frames and enqueues a request, then blocks for a
// reply; this applies a single-writer discipline to the whole server rather
// than one subsystem.
package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opendax/daxd/internal/bus"
	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/config"
	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/groups"
	"github.com/opendax/daxd/internal/mapping"
	"github.com/opendax/daxd/internal/retention"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
	"github.com/opendax/daxd/pkg/daxlog"
)

// Publisher is the subset of bus.Bus the dispatcher needs; kept as an
// interface so tests can substitute an in-memory stand-in instead of
// spinning up an embedded NATS server.
type Publisher interface {
	Publish(n events.Notification)
}

// Server is the whole running daxd instance. Its exported fields are safe
// to read from the same goroutine that calls Run; nothing here is safe for
// concurrent use by more than one goroutine (section 5's single-writer
// model).
type Server struct {
	Cfg config.Config

	CDTs      *cdt.Registry
	Store     *tagstore.Store
	Events    *events.Engine
	Mapping   *mapping.Engine
	Groups    *groups.Engine
	Retention *retention.Engine
	Bus       Publisher

	PromReg   *prometheus.Registry
	StartedAt time.Time

	modules      map[uint32]*Module
	moduleSeq    map[string]uint32
	nextModuleID uint32

	sys systemTagSet

	reqCh chan *request
	quit  chan struct{}
}

// New builds a Server with a fresh, empty tag space. Callers run Bootstrap
// once, then Retention.Restore if prior state should be reloaded, before the
// first Run.
func New(cfg config.Config, bus Publisher, ret *retention.Engine, promReg *prometheus.Registry) *Server {
	reg := cdt.NewRegistry()
	store := tagstore.NewStore(reg)
	store.SetMetrics(tagstore.NewMetrics(promReg, store))

	s := &Server{
		Cfg:       cfg,
		CDTs:      reg,
		Store:     store,
		Bus:       bus,
		Retention: ret,
		PromReg:   promReg,
		StartedAt: time.Now(),
		modules:   make(map[uint32]*Module),
		moduleSeq: make(map[string]uint32),
		reqCh:     make(chan *request, 64),
		quit:      make(chan struct{}),
	}
	s.Events = events.NewEngine(store, s)
	s.Mapping = mapping.NewEngine(store, s.Events)
	s.Groups = groups.NewEngine(store)
	return s
}

// Publish forwards a fired event notification onto the bus, implementing
// events.Publisher so the event engine need not know about package bus.
func (s *Server) Publish(n events.Notification) {
	if s.Bus != nil {
		s.Bus.Publish(n)
	}
}

// WireBus subscribes Notify as the bus's one consumer, so every fired
// notification - however it reached the bus - comes back through the core
// loop's request channel instead of being delivered from the bus client's
// own goroutine. Call once; it may be called before Run starts, since
// Notify only enqueues onto the request channel that Run drains.
func (s *Server) WireBus(b *bus.Bus) error {
	return b.Subscribe(s.Notify)
}

// Notify is the bus delivery callback. It waits in submit until the request
// channel accepts the notification; submit also returns once s.quit is
// closed, so a bus callback racing shutdown does not hang.
func (s *Server) Notify(n events.Notification) {
	s.submit(&request{notify: &n})
}

// deliverNotification pushes one fired notification onto its subscriber
// module's asynchronous socket, in EvntNotify wire form: u32 tag-index, u32
// event-id, u32 datalen, data. A module with no async socket yet attached,
// or one that has since disconnected, silently drops the notification -
// there is no queueing past what the module's TCP/unix socket buffer holds.
func (s *Server) deliverNotification(n events.Notification) {
	m, ok := s.modules[n.Module]
	if !ok || m.AsyncConn == nil {
		return
	}

	payload := make([]byte, 12+len(n.Data))
	putU32(payload, 0, n.TagID)
	putU32(payload, 4, n.EventID)
	putU32(payload, 8, uint32(len(n.Data)))
	copy(payload[12:], n.Data)

	frame := wire.Frame{Command: wire.EvntNotify, Payload: payload}
	if err := wire.WriteFrame(m.AsyncConn, frame); err != nil {
		daxlog.Warnf("dispatch: notify module %d: %v", n.Module, err)
	}
}

// hooks is the tagstore.Hooks implementation the dispatcher wires in once
// system tags exist. OnWrite chains events then mapping, per section 4.4's
// ordering guarantee ("events triggered by a cascaded write fire after the
// originating event"): mapping.Engine.Check already re-runs event_check on
// every cascaded destination as it propagates, so chaining the two here
// covers both the direct write and every hop it causes.
type hooks struct{ s *Server }

func (h hooks) OnWrite(index uint32, offset, size uint32) {
	h.s.Events.Check(index, offset, size)
	h.s.Mapping.Check(index, offset, size)
}

func (h hooks) OnTagAdded(index uint32, typ cdt.Type, count uint32, attr tagstore.Attr, name string) {
	if attr&tagstore.AttrRetain != 0 {
		t, err := h.s.Store.GetByIndex(index)
		if err == nil {
			h.s.Retention.PersistTag(name, uint32(typ), count, t.Data)
		}
	}
	h.s.publishTagEvent(h.s.sys.tagAdded, index, typ, count, attr, name)
}

func (h hooks) OnTagDeleted(index uint32, name string, attr tagstore.Attr) {
	if attr&tagstore.AttrRetain != 0 {
		h.s.Retention.Forget(name)
	}
	h.s.publishTagEvent(h.s.sys.tagDeleted, index, 0, 0, attr, name)
}

func (h hooks) OnRetainWrite(index uint32) {
	t, err := h.s.Store.GetByIndex(index)
	if err != nil {
		return
	}
	h.s.Retention.PersistWrite(t.Name, uint32(t.Type), t.Count, t.Data)
}

// Run processes requests off reqCh until Stop is called. It must run on
// exactly one goroutine; every state mutation in the server happens here.
func (s *Server) Run() {
	for {
		select {
		case req := <-s.reqCh:
			s.handle(req)
		case <-s.quit:
			return
		}
	}
}

// Stop ends Run's loop; pending requests in flight are not drained.
func (s *Server) Stop() { close(s.quit) }

// submit enqueues req and is safe to call from any connection goroutine.
func (s *Server) submit(req *request) {
	select {
	case s.reqCh <- req:
	case <-s.quit:
		if req.reply != nil {
			close(req.reply)
		}
	}
}

func (s *Server) nextModID() uint32 {
	s.nextModuleID++
	return s.nextModuleID
}

// Bootstrap creates the system CDTs and system tags and wires the Hooks
// implementation in. It must run exactly once, before any connection is
// accepted, and before Retention.Restore so that restored RETAIN tags flow
// through the same counters.
func (s *Server) Bootstrap() error {
	if err := s.installSystemTags(); err != nil {
		return err
	}
	s.Store.SetHooks(hooks{s: s})
	daxlog.Infof("dispatch: %d system tags installed", s.Store.Count())
	return nil
}
