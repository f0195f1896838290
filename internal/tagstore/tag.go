// Package tagstore owns the indexed array of tags that is OpenDAX's central
// shared data space: name resolution, the flat data buffers, attribute
// flags, and the per-tag override overlay. It is grounded on the teacher's
// internal/metricstore package (a singleton in-memory store organized as a
// lookup structure over typed values, with background-safe accessors), but
// the lookup key here is a tag name/index instead of a metric selector and
// the value is an attributed, typed byte buffer instead of a float series.
package tagstore

import "github.com/opendax/daxd/internal/cdt"

// Attr is the tag attribute flag bitfield of section 3.
type Attr uint16

const (
	AttrReadOnly Attr = 1 << iota
	AttrVirtual
	AttrRetain
	AttrOverride // an override has been installed
	AttrOvrSet   // the override is currently active
	AttrSpecial
	AttrOwned
	AttrEvent
	AttrMapping
)

// TagIo is the small capability interface a virtual tag's backing function
// set implements, replacing the source's raw read/write function pointers
// (section 9's "polymorphic-over-capability-set" note).
type TagIo interface {
	Read(offset uint32, buf []byte) error
	Write(offset uint32, buf []byte) error
}

// SpecialIO lets a tag intercept reads/writes ahead of the normal buffer
// path without fully replacing its storage, e.g. a computed system tag
// backed by real storage that also wants to run a hook on every access.
type SpecialIO interface {
	BeforeRead(offset uint32, buf []byte) error
	BeforeWrite(offset uint32, buf []byte) error
}

// EventSub is a per-tag event subscription; the concrete type lives in
// package events, referenced here only by id and owning module to avoid an
// import cycle (tagstore is below events in the dependency order).
type EventSub struct {
	ID       uint32
	Module   uint32
	OnDelete func() // invoked when the tag is deleted, to notify the subscriber
}

// MapRef is a non-owning reference to an outgoing mapping rooted at this
// tag, held so tag_del can tear mappings down; package mapping owns the
// actual propagation logic.
type MapRef struct {
	ID        uint32
	OnDelete  func()
}

// Tag is one named, typed data item in the server.
type Tag struct {
	Index uint32
	Name  string
	Type  cdt.Type
	Count uint32
	Attr  Attr

	Data []byte // nil for virtual and queue tags, and once the slot is deleted

	OwnerFD uint32 // valid iff AttrOwned is set

	Queue *Queue // non-nil iff Type.IsQueue()
	IO    TagIo  // non-nil iff AttrVirtual is set
	Hook  SpecialIO // non-nil iff AttrSpecial is set

	OverrideMask []byte // present iff AttrOverride is set
	OverrideData []byte

	Events []*EventSub
	Maps   []*MapRef

	NextEventID uint32
	NextMapID   uint32

	dead bool // set by Store.Del; Data/Queue alone can't tell a deleted tag from a virtual one
}

func (t *Tag) Deleted() bool { return t.dead }

// ByteSize returns the flat byte size of the tag's buffer (bit-packed BOOL
// arrays round up to a whole byte).
func ByteSize(r *cdt.Registry, typ cdt.Type, count uint32) (uint32, error) {
	return r.TypeSize(typ, count)
}

// TagSlice is a decoded tag handle: a byte/bit-addressed slice of a tag,
// used by the mapping and group engines. It mirrors wire.Handle but lives in
// this package so tagstore need not import wire's encode/decode concerns.
type TagSlice struct {
	Index uint32
	Byte  uint32
	Bit   uint8
	Count uint32
	Size  uint32 // bit width of one element
}

// ByteSize returns the whole-byte span this slice covers.
func (h TagSlice) ByteSize() uint32 {
	if h.Size == 0 {
		return 0
	}
	totalBits := uint32(h.Bit) + h.Count*h.Size
	return (totalBits + 7) / 8
}
