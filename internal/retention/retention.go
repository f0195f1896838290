// Package retention coordinates daxd's two persistence backends (the
// bit-exact flatfile format of spec §6, and the structured sqlstore
// backend) behind one Engine: it records every RETAIN tag's definition and
// data as it is written, and restores CDTs then tags, in that order, at
// startup.
package retention

import (
	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/retention/flatfile"
	"github.com/opendax/daxd/internal/retention/sqlstore"
	"github.com/opendax/daxd/internal/tagstore"
)

// Backend is the minimal persistence contract both backends satisfy; Engine
// is written against this interface so callers can choose either without
// the rest of the server caring which is active.
type Backend interface {
	Persist(name string, typ uint32, count uint32, data []byte) error
	Remove(name string) error
	LoadTags() ([]PersistedTag, error)
}

// PersistedTag is a backend-neutral restore record.
type PersistedTag struct {
	Name  string
	Type  uint32
	Count uint32
	Data  []byte
}

// CDTBackend is satisfied by backends that also snapshot CDT definitions
// (today only sqlstore; the flat-file backend writes no type records, so
// CDTs restored through it fall back to the registry already having base
// types only).
type CDTBackend interface {
	LoadCDTDefs() ([]PersistedCDT, error)
	PersistCDT(name, spec string) error
}

// PersistedCDT is a backend-neutral CDT restore record, in declaration
// order.
type PersistedCDT struct {
	Name string
	Spec string
}

// Engine wires persistence into the tag store's Hooks without tagstore
// importing either backend.
type Engine struct {
	backend    Backend
	cdtBackend CDTBackend // nil if the active backend does not support it
}

func NewEngine(backend Backend) *Engine { return &Engine{backend: backend} }

// WithCDTBackend enables CDT declaration persistence (sqlstore only).
func (e *Engine) WithCDTBackend(b CDTBackend) *Engine {
	e.cdtBackend = b
	return e
}

// PersistTag is called once when a RETAIN tag is first registered.
func (e *Engine) PersistTag(name string, typ uint32, count uint32, data []byte) {
	if e.backend == nil {
		return
	}
	_ = e.backend.Persist(name, typ, count, data)
}

// PersistWrite re-persists a RETAIN tag's bytes after a write.
func (e *Engine) PersistWrite(name string, typ uint32, count uint32, data []byte) {
	e.PersistTag(name, typ, count, data)
}

// Forget removes a tag's persisted record on tag_del.
func (e *Engine) Forget(name string) {
	if e.backend == nil {
		return
	}
	_ = e.backend.Remove(name)
}

// PersistCDT records a CDT's declaration, if the active backend supports it.
func (e *Engine) PersistCDT(name, spec string) {
	if e.cdtBackend == nil {
		return
	}
	_ = e.cdtBackend.PersistCDT(name, spec)
}

// Restore recreates every persisted CDT (in declaration order) and then
// every persisted RETAIN tag, copying saved bytes into its buffer, matching
// section 4.3's startup ordering.
func (e *Engine) Restore(reg *cdt.Registry, store *tagstore.Store) error {
	if e.cdtBackend != nil {
		defs, err := e.cdtBackend.LoadCDTDefs()
		if err != nil {
			return err
		}
		for _, d := range defs {
			if _, err := reg.Create(d.Spec); err != nil {
				return err
			}
		}
	}

	if e.backend == nil {
		return nil
	}
	tags, err := e.backend.LoadTags()
	if err != nil {
		return err
	}
	for _, t := range tags {
		idx, err := store.Add(0, t.Name, cdt.Type(t.Type), t.Count, tagstore.AttrRetain)
		if err != nil {
			return err
		}
		if err := store.WriteCascade(idx, 0, t.Data); err != nil {
			return err
		}
	}
	return nil
}

// FlatfileBackend adapts package flatfile's Store to the Backend interface.
type FlatfileBackend struct{ s *flatfile.Store }

func NewFlatfileBackend(s *flatfile.Store) *FlatfileBackend { return &FlatfileBackend{s: s} }

func (b *FlatfileBackend) Persist(name string, typ uint32, count uint32, data []byte) error {
	return b.s.Upsert(name, typ, count, data)
}

func (b *FlatfileBackend) Remove(name string) error { return b.s.Delete(name) }

func (b *FlatfileBackend) LoadTags() ([]PersistedTag, error) {
	recs := b.s.Load()
	out := make([]PersistedTag, 0, len(recs))
	for _, r := range recs {
		out = append(out, PersistedTag{Name: r.Name, Type: r.Type, Count: r.Count, Data: r.Data})
	}
	return out, nil
}

// SQLBackend adapts package sqlstore's Store to the Backend/CDTBackend
// interfaces.
type SQLBackend struct{ s *sqlstore.Store }

func NewSQLBackend(s *sqlstore.Store) *SQLBackend { return &SQLBackend{s: s} }

func (b *SQLBackend) Persist(name string, typ uint32, count uint32, data []byte) error {
	return b.s.UpsertTag(name, typ, count, 0, data)
}

func (b *SQLBackend) Remove(name string) error { return b.s.DeleteTag(name) }

func (b *SQLBackend) LoadTags() ([]PersistedTag, error) {
	rows, err := b.s.LoadTags()
	if err != nil {
		return nil, err
	}
	out := make([]PersistedTag, 0, len(rows))
	for _, r := range rows {
		out = append(out, PersistedTag{Name: r.Name, Type: r.Type, Count: r.Count, Data: r.Data})
	}
	return out, nil
}

func (b *SQLBackend) PersistCDT(name, spec string) error { return b.s.UpsertCDT(name, spec) }

func (b *SQLBackend) LoadCDTDefs() ([]PersistedCDT, error) {
	rows, err := b.s.LoadCDTs()
	if err != nil {
		return nil, err
	}
	out := make([]PersistedCDT, 0, len(rows))
	for _, r := range rows {
		out = append(out, PersistedCDT{Name: r.Name, Spec: r.Spec})
	}
	return out, nil
}
