// Package groups implements the per-module tag group engine, the atomic
// bitwise/numeric read-modify-write primitives, both of section 4.6. (The
// override engine is implemented directly on tagstore.Store, since Tag owns
// its override buffers per section 3.)
package groups

import (
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
)

// MaxGroupMembers bounds the number of tag handles a single group may hold
// (section 4.6).
const MaxGroupMembers = 64

// MaxGroupBytes is the single-frame data budget a group's combined member
// size must not exceed.
const MaxGroupBytes = wire.MaxFrameSize - wire.HeaderSize

// Group is a module-private ordered bundle of tag slices for batched I/O.
type Group struct {
	ID      uint32
	Module  uint32
	Members []tagstore.TagSlice
}

func (g *Group) totalSize() uint32 {
	var n uint32
	for _, m := range g.Members {
		n += m.ByteSize()
	}
	return n
}

// Engine owns every module's groups.
type Engine struct {
	store *tagstore.Store

	byModule map[uint32]map[uint32]*Group
	next     map[uint32]uint32
}

func NewEngine(store *tagstore.Store) *Engine {
	return &Engine{store: store, byModule: make(map[uint32]map[uint32]*Group), next: make(map[uint32]uint32)}
}

// Add registers a new group for module. It is refused (2BIG) if the
// combined member size exceeds the frame budget or there are more than
// MaxGroupMembers members, leaving module state unchanged (section 8).
func (e *Engine) Add(module uint32, members []tagstore.TagSlice) (uint32, error) {
	if len(members) > MaxGroupMembers {
		return 0, wire.New(wire.Err2Big, "too many group members")
	}
	for _, m := range members {
		if _, err := e.store.GetByIndex(m.Index); err != nil {
			return 0, err
		}
	}
	g := &Group{Module: module, Members: members}
	if g.totalSize() > MaxGroupBytes {
		return 0, wire.New(wire.Err2Big, "group exceeds frame data budget")
	}

	e.next[module]++
	g.ID = e.next[module]
	if e.byModule[module] == nil {
		e.byModule[module] = make(map[uint32]*Group)
	}
	e.byModule[module][g.ID] = g
	return g.ID, nil
}

// Del removes a module's group.
func (e *Engine) Del(module, groupID uint32) error {
	groups := e.byModule[module]
	if groups == nil {
		return wire.New(wire.ErrNotFound, "no such group")
	}
	if _, ok := groups[groupID]; !ok {
		return wire.New(wire.ErrNotFound, "no such group")
	}
	delete(groups, groupID)
	return nil
}

// DeleteModule tears down every group owned by module (dispatcher cleanup
// on disconnect).
func (e *Engine) DeleteModule(module uint32) { delete(e.byModule, module); delete(e.next, module) }

func (e *Engine) get(module, groupID uint32) (*Group, error) {
	groups := e.byModule[module]
	if groups == nil {
		return nil, wire.New(wire.ErrNotFound, "no such group")
	}
	g, ok := groups[groupID]
	if !ok {
		return nil, wire.New(wire.ErrNotFound, "no such group")
	}
	return g, nil
}

// Read returns the concatenated bytes of every member, in order.
func (e *Engine) Read(module, groupID uint32) ([]byte, error) {
	g, err := e.get(module, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, g.totalSize())
	for _, m := range g.Members {
		buf, err := e.store.Read(module, m.Index, m.Byte, m.ByteSize())
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
	return out, nil
}

// Write consumes data as the concatenation of every member's slice, in
// order, and writes each back to its tag.
func (e *Engine) Write(module, groupID uint32, data []byte) error {
	g, err := e.get(module, groupID)
	if err != nil {
		return err
	}
	if uint32(len(data)) != g.totalSize() {
		return wire.New(wire.ErrArg, "group write size does not match member total")
	}
	pos := uint32(0)
	for _, m := range g.Members {
		n := m.ByteSize()
		if err := e.store.Write(module, m.Index, m.Byte, data[pos:pos+n]); err != nil {
			return err
		}
		pos += n
	}
	return nil
}

// MaskWrite is Write's masked-write counterpart, consuming data and mask as
// the same per-member concatenation.
func (e *Engine) MaskWrite(module, groupID uint32, data, mask []byte) error {
	g, err := e.get(module, groupID)
	if err != nil {
		return err
	}
	if uint32(len(data)) != g.totalSize() || uint32(len(mask)) != g.totalSize() {
		return wire.New(wire.ErrArg, "group masked write size does not match member total")
	}
	pos := uint32(0)
	for _, m := range g.Members {
		n := m.ByteSize()
		if err := e.store.MaskWrite(module, m.Index, m.Byte, data[pos:pos+n], mask[pos:pos+n]); err != nil {
			return err
		}
		pos += n
	}
	return nil
}
