// Package mapping implements the mapping engine of section 4.5: declarative
// byte-wise propagation from a source tag slice to a destination tag slice,
// triggered on writes to the source and bounded to MaxHops chained
// propagations per originating write.
package mapping

import (
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
)

// MaxHops bounds chained mapping propagations per originating write
// (section 4.5); cycles are thus safe but do not fully propagate.
const MaxHops = 128

// Checker lets the mapping engine re-run event_check on a destination after
// a cascaded write, without importing package events (which itself depends
// on tagstore, not mapping).
type Checker interface {
	Check(tagIndex uint32, offset, size uint32)
}

type mapping struct {
	id   uint32
	src  tagstore.TagSlice
	dst  tagstore.TagSlice
}

// Engine owns every installed mapping and performs the write-triggered
// propagation.
type Engine struct {
	store   *tagstore.Store
	checker Checker

	bySrc map[uint32][]*mapping
	next  uint32
}

func NewEngine(store *tagstore.Store, checker Checker) *Engine {
	return &Engine{store: store, checker: checker, bySrc: make(map[uint32][]*mapping)}
}

// Add installs src -> dst. The destination must be at least as large as the
// source slice, otherwise 2BIG (section 4.5); type mismatches are permitted
// since the copy is byte-wise.
func (e *Engine) Add(src, dst tagstore.TagSlice) (uint32, error) {
	srcTag, err := e.store.GetByIndex(src.Index)
	if err != nil {
		return 0, err
	}
	dstTag, err := e.store.GetByIndex(dst.Index)
	if err != nil {
		return 0, err
	}
	if dst.ByteSize() < src.ByteSize() {
		return 0, wire.New(wire.Err2Big, "destination smaller than source slice")
	}

	e.next++
	m := &mapping{id: e.next, src: src, dst: dst}
	e.bySrc[src.Index] = append(e.bySrc[src.Index], m)

	dstTag.Attr |= tagstore.AttrMapping
	srcTag.Maps = append(srcTag.Maps, &tagstore.MapRef{ID: m.id, OnDelete: func() {
		e.removeMapping(src.Index, m.id)
	}})
	return m.id, nil
}

func (e *Engine) removeMapping(srcIndex, id uint32) {
	list := e.bySrc[srcIndex]
	for i, m := range list {
		if m.id == id {
			e.bySrc[srcIndex] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Get lists the mapping ids currently rooted at src.
func (e *Engine) Get(src uint32) []uint32 {
	list := e.bySrc[src]
	ids := make([]uint32, len(list))
	for i, m := range list {
		ids[i] = m.id
	}
	return ids
}

// Del removes mapping id rooted at src.
func (e *Engine) Del(src, id uint32) error {
	t, err := e.store.GetByIndex(src)
	if err != nil {
		return err
	}
	before := len(e.bySrc[src])
	e.removeMapping(src, id)
	if len(e.bySrc[src]) == before {
		return wire.New(wire.ErrNotFound, "no such mapping")
	}
	for i, ref := range t.Maps {
		if ref.ID == id {
			t.Maps = append(t.Maps[:i], t.Maps[i+1:]...)
			break
		}
	}
	return nil
}

// Check is the tagstore.Hooks.OnWrite propagation entry point: it copies
// the written bytes into every mapping's destination, re-invokes
// event_check on the destination, and recurses into any mapping rooted at
// the destination, up to MaxHops total propagations for the originating
// write.
func (e *Engine) Check(srcIndex uint32, offset, size uint32) {
	hops := 0
	e.propagate(srcIndex, offset, size, &hops)
}

func (e *Engine) propagate(srcIndex uint32, writeOffset, writeSize uint32, hops *int) {
	for _, m := range e.bySrc[srcIndex] {
		if *hops >= MaxHops {
			return
		}
		start, end := m.src.Byte, m.src.Byte+m.src.ByteSize()
		if !(writeOffset < end && start < writeOffset+writeSize) {
			continue
		}

		srcTag, err := e.store.GetByIndex(srcIndex)
		if err != nil {
			continue
		}
		lo, hi := maxU32(start, writeOffset), minU32(end, writeOffset+writeSize)
		if hi <= lo || int(hi) > len(srcTag.Data) {
			continue
		}
		buf := srcTag.Data[lo:hi]
		dstOffset := m.dst.Byte + (lo - start)

		if err := e.store.WriteCascade(m.dst.Index, dstOffset, buf); err != nil {
			continue
		}
		*hops++
		if e.checker != nil {
			e.checker.Check(m.dst.Index, dstOffset, uint32(len(buf)))
		}
		e.propagate(m.dst.Index, dstOffset, uint32(len(buf)), hops)
	}
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
