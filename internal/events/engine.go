package events

import (
	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
)

// Publisher delivers a fired notification to its subscriber, e.g. onto the
// internal bus (package bus) for the dispatcher's async-socket writer to
// pick up. It is called synchronously, in tag-event-list order, as part of
// the write that triggered it (section 4.4's ordering guarantee).
type Publisher interface {
	Publish(n Notification)
}

// Engine evaluates per-tag event predicates on every write and publishes
// notifications for those that fire. Like tagstore.Store, it is driven
// exclusively from the dispatcher's single core-loop goroutine.
type Engine struct {
	store *tagstore.Store
	pub   Publisher

	byTag map[uint32][]*Event
}

func NewEngine(store *tagstore.Store, pub Publisher) *Engine {
	return &Engine{store: store, pub: pub, byTag: make(map[uint32][]*Event)}
}

// Add allocates a new subscription, computing the CHANGE/DEADBAND baseline
// from the tag's current data (Open Question in section 9: a subscribe then
// immediate same-value write will not fire CHANGE, matching the source).
func (e *Engine) Add(tagIndex uint32, kind Kind, byteOff uint32, bit uint8, count, size uint32, dtype uint32, payload []byte, module uint32, opts Options) (uint32, error) {
	t, err := e.store.GetByIndex(tagIndex)
	if err != nil {
		return 0, err
	}

	pred, err := compilePredicate(kind)
	if err != nil {
		return 0, wire.New(wire.ErrArg, "invalid event predicate: "+err.Error())
	}

	t.NextEventID++
	ev := &Event{
		ID: t.NextEventID, Tag: tagIndex, Module: module, Kind: kind,
		Byte: byteOff, Bit: bit, Count: count, Size: size, DType: dtype,
		Options: opts, payload: payload, predicate: pred,
	}

	start, end := ev.byteRange()
	if int(end) <= len(t.Data) {
		ev.baseline = append([]byte(nil), t.Data[start:end]...)
		if size > 0 {
			ev.lastSent = numericValue(ev.baseline, isFloatDType(dtype), size)
		}
		if count > 0 {
			ev.lastBit = boolAt(ev.baseline, bit)
		}
	}

	e.byTag[tagIndex] = append(e.byTag[tagIndex], ev)
	sub := &tagstore.EventSub{ID: ev.ID, Module: module, OnDelete: func() { e.removeFromTag(tagIndex, ev.ID) }}
	t.Events = append(t.Events, sub)
	return ev.ID, nil
}

// Del removes a subscription owned by module.
func (e *Engine) Del(tagIndex, eventID, module uint32) error {
	t, err := e.store.GetByIndex(tagIndex)
	if err != nil {
		return err
	}
	if !e.removeFromTag(tagIndex, eventID) {
		return wire.New(wire.ErrNotFound, "no such event")
	}
	for i, sub := range t.Events {
		if sub.ID == eventID {
			t.Events = append(t.Events[:i], t.Events[i+1:]...)
			break
		}
	}
	return nil
}

func (e *Engine) removeFromTag(tagIndex, eventID uint32) bool {
	list := e.byTag[tagIndex]
	for i, ev := range list {
		if ev.ID == eventID {
			e.byTag[tagIndex] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the subscription (tagIndex, eventID) registered by Add, for
// EVNT_GET to read back.
func (e *Engine) Get(tagIndex, eventID uint32) (*Event, bool) {
	for _, ev := range e.byTag[tagIndex] {
		if ev.ID == eventID {
			return ev, true
		}
	}
	return nil, false
}

// Opt updates an existing subscription's notification options.
func (e *Engine) Opt(tagIndex, eventID uint32, opts Options) error {
	for _, ev := range e.byTag[tagIndex] {
		if ev.ID == eventID {
			ev.Options = opts
			return nil
		}
	}
	return wire.New(wire.ErrNotFound, "no such event")
}

// Check evaluates every subscription on tagIndex whose byte range
// intersects [offset, offset+size), in tag-event-list order, and publishes
// notifications for those that fire. It is the tagstore.Hooks.OnWrite
// implementation the dispatcher wires in.
func (e *Engine) Check(tagIndex uint32, offset, size uint32) {
	events := e.byTag[tagIndex]
	if len(events) == 0 {
		return
	}
	t, err := e.store.GetByIndex(tagIndex)
	if err != nil {
		return
	}

	for _, ev := range events {
		start, end := ev.byteRange()
		if !intersects(start, end, offset, offset+size) {
			continue
		}
		if fired, current := e.evaluate(t, ev); fired {
			n := Notification{Module: ev.Module, TagID: tagIndex, EventID: ev.ID}
			if ev.Options.SendData {
				n.Data = current
			}
			if e.pub != nil {
				e.pub.Publish(n)
			}
		}
	}
}

func (e *Engine) evaluate(t *tagstore.Tag, ev *Event) (fired bool, current []byte) {
	start, end := ev.byteRange()
	if int(end) > len(t.Data) {
		return false, nil
	}
	current = t.Data[start:end]

	switch ev.Kind {
	case Write:
		return true, current
	case Change:
		changed := ev.baseline == nil || !bytesEqual(current, ev.baseline)
		ev.baseline = append([]byte(nil), current...)
		return changed, current
	case Set, Reset:
		bit := boolAt(current, ev.Bit)
		was := ev.lastBit
		ev.lastBit = bit
		if ev.Kind == Set {
			return !was && bit, current
		}
		return was && !bit, current
	case Equal, Greater, Less:
		val := numericValue(current, isFloatDType(ev.DType), ev.Size)
		payloadVal := numericValue(ev.payload, isFloatDType(ev.DType), ev.Size)
		ok, _ := ev.predicate.eval(predicateEnv{Current: val, Payload: payloadVal})
		return ok, current
	case Deadband:
		val := numericValue(current, isFloatDType(ev.DType), ev.Size)
		payloadVal := numericValue(ev.payload, isFloatDType(ev.DType), ev.Size)
		ok, _ := ev.predicate.eval(predicateEnv{Current: val, Payload: payloadVal, Last: ev.lastSent})
		if ok {
			ev.lastSent = val
		}
		return ok, current
	default:
		return false, current
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isFloatDType reports whether dtype (a cdt.Type carried over the wire as a
// raw uint32) names REAL/LREAL.
func isFloatDType(dtype uint32) bool {
	return cdt.Type(dtype).IsFloat()
}
