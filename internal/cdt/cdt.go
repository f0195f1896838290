package cdt

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/opendax/daxd/internal/wire"
)

const maxNameLen = 32

// Member is one field of a CDT: a name, an element type (base or another
// CDT) and an array count.
type Member struct {
	Name  string
	Type  Type
	Count uint32
}

// CDT is a user-defined compound data type: a name, a reference count (the
// number of tags currently using it) and an ordered member list.
type CDT struct {
	Name     string
	ID       Type
	Members  []Member
	Refcount int
	spec     string // original serialized form, for the idempotency check
}

// Registry holds every CDT created on a server, keyed by name and by id.
// Every method takes the registry's mutex, so it is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	byName  map[string]*CDT
	byID    map[Type]*CDT
	nextIdx Type
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*CDT),
		byID:   make(map[Type]*CDT),
	}
}

// Create parses a colon-separated spec "Name:m1,T1,c1:m2,T2,c2:..." and
// registers it. Two create requests with byte-identical serialized form are
// idempotent and return the same id (invariant d in section 3).
func (r *Registry) Create(spec string) (Type, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parts := strings.Split(spec, ":")
	if len(parts) < 1 || parts[0] == "" {
		return 0, wire.New(wire.ErrArg, "empty CDT name")
	}
	name := parts[0]
	if err := validateName(name); err != nil {
		return 0, err
	}

	if existing, ok := r.byName[strings.ToLower(name)]; ok {
		if existing.spec == spec {
			return existing.ID, nil
		}
		return 0, wire.New(wire.ErrDupl, "CDT name already exists with a different definition")
	}

	if len(parts)%3 != 1 {
		return 0, wire.New(wire.ErrArg, "malformed CDT spec")
	}

	seen := make(map[string]bool)
	members := make([]Member, 0, len(parts)/3)
	for i := 1; i < len(parts); i += 3 {
		mname := parts[i]
		mtype := parts[i+1]
		mcountStr := parts[i+2]

		if err := validateName(mname); err != nil {
			return 0, err
		}
		lname := strings.ToLower(mname)
		if seen[lname] {
			return 0, wire.New(wire.ErrDupl, fmt.Sprintf("duplicate member name %q", mname))
		}
		seen[lname] = true

		count, err := strconv.ParseUint(mcountStr, 10, 32)
		if err != nil || count == 0 {
			return 0, wire.New(wire.ErrArg, fmt.Sprintf("bad count for member %q", mname))
		}

		var mt Type
		if bt, ok := BaseTypeByName(mtype); ok {
			mt = bt
		} else if other, ok := r.byName[strings.ToLower(mtype)]; ok {
			mt = other.ID
		} else {
			return 0, wire.New(wire.ErrArg, fmt.Sprintf("unknown member type %q", mtype))
		}

		members = append(members, Member{Name: mname, Type: mt, Count: uint32(count)})
	}

	r.nextIdx++
	id := CDTFlag | r.nextIdx
	c := &CDT{Name: name, ID: id, Members: members, spec: spec}
	r.byName[strings.ToLower(name)] = c
	r.byID[id] = c
	return id, nil
}

func validateName(n string) error {
	if n == "" || len(n) > maxNameLen {
		return wire.New(wire.ErrArg, "invalid name length")
	}
	first := n[0]
	if !(first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return wire.New(wire.ErrArg, "invalid name: must start with a letter or underscore")
	}
	for i := 1; i < len(n); i++ {
		c := n[i]
		ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			return wire.New(wire.ErrArg, "invalid name: letters, digits and underscore only")
		}
	}
	return nil
}

// GetType returns the type id for name, or 0 if unknown. Base type names
// are matched first (case-insensitively), then registered CDTs.
func (r *Registry) GetType(name string) Type {
	if bt, ok := BaseTypeByName(name); ok {
		return bt
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byName[strings.ToLower(name)]; ok {
		return c.ID
	}
	return 0
}

// GetName returns the name for typ, which may be a base type or a CDT id.
func (r *Registry) GetName(typ Type) string {
	if !typ.IsCDT() {
		return BaseTypeName(typ)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[typ]; ok {
		return c.Name
	}
	return ""
}

// Get returns the CDT record for typ, if any.
func (r *Registry) Get(typ Type) (*CDT, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[typ]
	return c, ok
}

// IncRefcount bumps the reference count of the CDT backing typ, a no-op for
// base types.
func (r *Registry) IncRefcount(typ Type) {
	if !typ.IsCDT() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[typ]; ok {
		c.Refcount++
	}
}

// DecRefcount drops the reference count of the CDT backing typ.
func (r *Registry) DecRefcount(typ Type) {
	if !typ.IsCDT() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[typ]; ok && c.Refcount > 0 {
		c.Refcount--
	}
}

// Remove deletes a CDT by name; it fails while the CDT's refcount is
// positive (invariant b in section 3).
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return wire.New(wire.ErrNotFound, "CDT not found")
	}
	if c.Refcount > 0 {
		return wire.New(wire.ErrIllegal, "CDT still referenced by tags")
	}
	delete(r.byName, strings.ToLower(name))
	delete(r.byID, c.ID)
	return nil
}

// Serialize reproduces the colon-separated wire spec for typ.
func (r *Registry) Serialize(typ Type) (string, error) {
	r.mu.Lock()
	c, ok := r.byID[typ]
	r.mu.Unlock()
	if !ok {
		return "", wire.New(wire.ErrNotFound, "CDT not found")
	}
	return c.spec, nil
}

// TypeSize computes the flat byte size of typ with count elements,
// following section 4.1: BOOL members accumulate bit position; non-BOOL
// members byte-align first. Returns an error for an unknown CDT id.
func (r *Registry) TypeSize(typ Type, count uint32) (uint32, error) {
	bits, err := r.typeBits(typ)
	if err != nil {
		return 0, err
	}
	totalBits := bits * uint64(count)
	return uint32((totalBits + 7) / 8), nil
}

// typeBits returns the bit size of one element of typ.
func (r *Registry) typeBits(typ Type) (uint64, error) {
	if !typ.IsCDT() {
		bits, ok := typ.BitSize()
		if !ok {
			return 0, wire.New(wire.ErrBadType, "unknown base type")
		}
		return uint64(bits), nil
	}
	r.mu.Lock()
	c, ok := r.byID[typ]
	r.mu.Unlock()
	if !ok {
		return 0, wire.New(wire.ErrNotFound, "CDT not found")
	}

	var bitPos uint64
	for _, m := range c.Members {
		if m.Type.Base() == BOOL && !m.Type.IsCDT() {
			bitPos += uint64(m.Count)
			continue
		}
		// Non-BOOL member: byte-align the running position first.
		bitPos = (bitPos + 7) &^ 7
		mbits, err := r.typeBits(m.Type)
		if err != nil {
			return 0, err
		}
		bitPos += mbits * uint64(m.Count)
	}
	return bitPos, nil
}
