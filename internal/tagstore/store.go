package tagstore

import (
	"sort"
	"strings"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/wire"
)

const MaxNameLen = 32

// Hooks lets the tag store call back into the event, mapping and retention
// engines without importing them directly (those packages depend on
// tagstore, not the other way around). The dispatcher wires a concrete
// implementation in once at startup.
type Hooks interface {
	// OnWrite runs after a successful write to [offset, offset+size) of
	// index, after the bytes have been committed.
	OnWrite(index uint32, offset, size uint32)
	// OnTagAdded/OnTagDeleted publish the _tag_added/_tag_deleted system
	// tag records described in section 3.
	OnTagAdded(index uint32, typ cdt.Type, count uint32, attr Attr, name string)
	OnTagDeleted(index uint32, name string, attr Attr)
	// OnRetainWrite is called after a write to a RETAIN tag so the
	// retention engine can re-persist it; the hook re-reads the tag's
	// current full buffer via GetByIndex rather than being handed the
	// written slice, since the flat-file and SQL backends both store one
	// whole-buffer record per tag.
	OnRetainWrite(index uint32)
}

type nameEntry struct {
	name  string
	index uint32
}

// Store is the indexed array of tags. Only one goroutine (the dispatcher's
// core loop) may call Store's methods at a time; there is no internal
// locking, matching the single-threaded discipline of section 5.
type Store struct {
	cdts    *cdt.Registry
	hooks   Hooks
	metrics *Metrics

	tags  []*Tag // tags[0] is unused; indices start at 1
	names []nameEntry
}

func NewStore(cdts *cdt.Registry) *Store {
	return &Store{cdts: cdts, tags: make([]*Tag, 1)}
}

func (s *Store) SetHooks(h Hooks) { s.hooks = h }

// SetMetrics attaches the Prometheus instruments built by NewMetrics.
func (s *Store) SetMetrics(m *Metrics) { s.metrics = m }

func (s *Store) findName(name string) (int, bool) {
	key := strings.ToLower(name)
	i := sort.Search(len(s.names), func(i int) bool { return s.names[i].name >= key })
	if i < len(s.names) && s.names[i].name == key {
		return i, true
	}
	return i, false
}

func (s *Store) insertName(name string, index uint32) {
	key := strings.ToLower(name)
	i, _ := s.findName(name)
	s.names = append(s.names, nameEntry{})
	copy(s.names[i+1:], s.names[i:])
	s.names[i] = nameEntry{name: key, index: index}
}

func (s *Store) removeName(name string) {
	i, ok := s.findName(name)
	if !ok {
		return
	}
	s.names = append(s.names[:i], s.names[i+1:]...)
}

func validateName(n string) error {
	if n == "" || len(n) > MaxNameLen {
		return wire.New(wire.ErrArg, "invalid tag name length")
	}
	first := n[0]
	if !(first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return wire.New(wire.ErrArg, "tag name must start with a letter or underscore")
	}
	for i := 1; i < len(n); i++ {
		c := n[i]
		ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			return wire.New(wire.ErrArg, "tag name must be letters, digits or underscore")
		}
	}
	return nil
}

// Add creates a new tag, or grows an existing one in place when name
// already exists, ownerFD is compatible, and the type matches (section 4.2,
// size monotonicity invariant of section 8).
func (s *Store) Add(ownerFD uint32, name string, typ cdt.Type, count uint32, attr Attr) (uint32, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, wire.New(wire.ErrArg, "count must be >= 1")
	}

	if i, ok := s.findName(name); ok {
		idx := s.names[i].index
		existing := s.tags[idx]
		if existing.Deleted() {
			return 0, wire.New(wire.ErrDupl, "name reserved by a deleted tag slot")
		}
		ownedOk := existing.Attr&AttrOwned == 0 || existing.OwnerFD == ownerFD
		if existing.Type != typ || !ownedOk {
			return 0, wire.New(wire.ErrDupl, "tag name exists with an incompatible definition")
		}
		if count <= existing.Count {
			return 0, wire.New(wire.ErrDupl, "tag name exists")
		}
		if err := s.grow(existing, count); err != nil {
			return 0, err
		}
		return idx, nil
	}

	size, err := s.cdts.TypeSize(typ, count)
	if err != nil {
		return 0, err
	}

	tag := &Tag{
		Name:    name,
		Type:    typ,
		Count:   count,
		Attr:    attr,
		OwnerFD: ownerFD,
	}
	if attr&AttrOwned == 0 {
		tag.OwnerFD = 0
	}
	if typ.IsQueue() {
		elemSize, err := s.cdts.TypeSize(typ.Base(), 1)
		if err != nil {
			return 0, err
		}
		tag.Queue = NewQueue(elemSize)
	} else if attr&AttrVirtual == 0 {
		tag.Data = make([]byte, size)
	}

	tag.Index = uint32(len(s.tags))
	s.tags = append(s.tags, tag)
	s.insertName(name, tag.Index)
	s.cdts.IncRefcount(typ)

	if s.hooks != nil {
		s.hooks.OnTagAdded(tag.Index, typ, count, attr, name)
	}
	return tag.Index, nil
}

func (s *Store) grow(t *Tag, count uint32) error {
	if t.Queue != nil {
		t.Count = count
		return nil
	}
	size, err := s.cdts.TypeSize(t.Type, count)
	if err != nil {
		return err
	}
	if t.Data != nil {
		grown := make([]byte, size)
		copy(grown, t.Data)
		t.Data = grown
	}
	t.Count = count
	return nil
}

// Del removes a tag: frees its buffers, removes the name from the index,
// decrements its type's refcount, and tears down attached events/mappings
// via their owning-side callbacks.
func (s *Store) Del(index uint32) error {
	t, err := s.byIndex(index)
	if err != nil {
		return err
	}
	for _, ev := range t.Events {
		if ev.OnDelete != nil {
			ev.OnDelete()
		}
	}
	for _, m := range t.Maps {
		if m.OnDelete != nil {
			m.OnDelete()
		}
	}
	name, attr := t.Name, t.Attr

	s.removeName(t.Name)
	s.cdts.DecRefcount(t.Type)
	t.Data = nil
	t.Queue = nil
	t.OverrideMask = nil
	t.OverrideData = nil
	t.Events = nil
	t.Maps = nil
	t.dead = true

	if s.hooks != nil {
		s.hooks.OnTagDeleted(index, name, attr)
	}
	return nil
}

func (s *Store) byIndex(index uint32) (*Tag, error) {
	if index == 0 || int(index) >= len(s.tags) {
		return nil, wire.New(wire.ErrNotFound, "no such tag index")
	}
	return s.tags[index], nil
}

// GetByIndex returns the tag at index, or DELETED if its slot was freed.
func (s *Store) GetByIndex(index uint32) (*Tag, error) {
	t, err := s.byIndex(index)
	if err != nil {
		return nil, err
	}
	if t.Deleted() {
		return nil, wire.New(wire.ErrDeleted, "tag has been deleted")
	}
	return t, nil
}

// GetByName resolves name to its tag, or NOTFOUND.
func (s *Store) GetByName(name string) (*Tag, error) {
	i, ok := s.findName(name)
	if !ok {
		return nil, wire.New(wire.ErrNotFound, "no such tag")
	}
	return s.GetByIndex(s.names[i].index)
}

// List returns every live tag, in index order.
func (s *Store) List() []*Tag {
	out := make([]*Tag, 0, len(s.tags))
	for _, t := range s.tags[1:] {
		if !t.Deleted() {
			out = append(out, t)
		}
	}
	return out
}

// Count returns the number of live tags.
func (s *Store) Count() int {
	n := 0
	for _, t := range s.tags[1:] {
		if !t.Deleted() {
			n++
		}
	}
	return n
}

// LastIndex returns the highest index ever assigned (0 if none).
func (s *Store) LastIndex() uint32 { return uint32(len(s.tags) - 1) }
