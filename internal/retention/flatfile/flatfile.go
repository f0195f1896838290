// Package flatfile implements the bit-exact retention file format of
// section 6: a 16-byte header followed by a singly linked list of
// variable-length tag records. It is the simpler of daxd's two retention
// backends, intended for single-file, no-dependency deployments; the
// structured backend (package sqlstore) is preferred when more than a
// handful of RETAIN tags are in play.
package flatfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

const (
	magic      = "DAXRET"
	version    = 1
	headerSize = 16

	flagDeleted = 1 << 0
)

// Record is one persisted tag: its definition (name/type/count) and its
// current raw data bytes.
type Record struct {
	Name    string
	Type    uint32
	Count   uint32
	Data    []byte
	Deleted bool

	offset int64 // byte offset of this record in the file, 0 if not yet written
}

// Store is a single-file retention backend. It keeps an in-memory index of
// every record's file offset so persist/lookup don't require a linear scan,
// but the on-disk format itself is the spec's linked list (first_tag_rec_ptr
// chains every record, including tombstoned ones, in append order).
type Store struct {
	mu   sync.Mutex
	path string
	f    *os.File

	firstTypeRec int64
	firstTagRec  int64
	lastTagRec   int64 // offset of the record whose next-pointer needs patching

	byName map[string]*Record
}

// Open creates path if absent (writing a fresh header) or opens and indexes
// an existing file.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, f: f, byName: make(map[string]*Record)}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() == 0 {
		if err := s.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return s, nil
	}
	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := s.indexRecords(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.f.Close() }

func (s *Store) writeHeader() error {
	buf := make([]byte, headerSize)
	copy(buf[0:6], magic)
	binary.BigEndian.PutUint16(buf[6:8], version)
	// first_type_rec_ptr, first_tag_rec_ptr left zero.
	_, err := s.f.WriteAt(buf, 0)
	return err
}

func (s *Store) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := s.f.ReadAt(buf, 0); err != nil {
		return err
	}
	if string(buf[0:6]) != magic {
		return fmt.Errorf("flatfile: %s: bad magic", s.path)
	}
	if v := binary.BigEndian.Uint16(buf[6:8]); v != version {
		return fmt.Errorf("flatfile: %s: unsupported version %d", s.path, v)
	}
	s.firstTypeRec = int64(binary.BigEndian.Uint32(buf[8:12]))
	s.firstTagRec = int64(binary.BigEndian.Uint32(buf[12:16]))
	return nil
}

// indexRecords walks the tag-record chain once at startup, building the
// by-name index (later records for the same name — a grow, or a delete
// tombstone followed by re-add — shadow earlier ones).
func (s *Store) indexRecords() error {
	ptr := s.firstTagRec
	for ptr != 0 {
		rec, next, err := s.readRecordAt(ptr)
		if err != nil {
			return err
		}
		if rec.Deleted {
			delete(s.byName, rec.Name)
		} else {
			s.byName[rec.Name] = rec
		}
		s.lastTagRec = ptr
		ptr = next
	}
	return nil
}

func (s *Store) readRecordAt(offset int64) (*Record, int64, error) {
	hdr := make([]byte, 18)
	if _, err := s.f.ReadAt(hdr, offset); err != nil {
		return nil, 0, err
	}
	next := int64(binary.BigEndian.Uint32(hdr[0:4]))
	dataSize := binary.BigEndian.Uint32(hdr[4:8])
	nameLen := hdr[8]
	flags := hdr[9]
	typ := binary.BigEndian.Uint32(hdr[10:14])
	count := binary.BigEndian.Uint32(hdr[14:18])

	rest := make([]byte, int(nameLen)+int(dataSize))
	if _, err := s.f.ReadAt(rest, offset+18); err != nil {
		return nil, 0, err
	}

	rec := &Record{
		Name:    string(rest[:nameLen]),
		Type:    typ,
		Count:   count,
		Data:    append([]byte(nil), rest[nameLen:]...),
		Deleted: flags&flagDeleted != 0,
		offset:  offset,
	}
	return rec, next, nil
}

// Upsert appends a new record (or a new version of an existing record) for
// name and re-persists the on-disk linked list's head pointer on the first
// write. The flat-file backend never overwrites an old record's bytes; the
// superseded record is left in the chain as dead weight, matching the
// spec's append-only tombstone design (§6 does not define in-place update).
func (s *Store) Upsert(name string, typ, count uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &Record{Name: name, Type: typ, Count: count, Data: append([]byte(nil), data...)}
	offset, err := s.appendRecord(rec, 0)
	if err != nil {
		return err
	}
	rec.offset = offset
	s.byName[name] = rec
	return nil
}

// Delete tombstones name's record: the bytes stay on disk but the record is
// flagged DELETED and dropped from the live index.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byName[name]
	if !ok {
		return nil
	}
	rec := &Record{Name: name, Type: old.Type, Count: old.Count, Deleted: true}
	offset, err := s.appendRecord(rec, flagDeleted)
	if err != nil {
		return err
	}
	rec.offset = offset
	delete(s.byName, name)
	return nil
}

// appendRecord writes rec at end-of-file, chains it onto the previous tail,
// and patches the header's first_tag_rec_ptr if this is the first record.
func (s *Store) appendRecord(rec *Record, flags byte) (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	offset := fi.Size()

	buf := make([]byte, 18+len(rec.Name)+len(rec.Data))
	// next_tag_rec_ptr stays 0: this record becomes the new tail.
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(rec.Data)))
	buf[8] = byte(len(rec.Name))
	buf[9] = flags
	binary.BigEndian.PutUint32(buf[10:14], rec.Type)
	binary.BigEndian.PutUint32(buf[14:18], rec.Count)
	copy(buf[18:], rec.Name)
	copy(buf[18+len(rec.Name):], rec.Data)

	if _, err := s.f.WriteAt(buf, offset); err != nil {
		return 0, err
	}

	if s.lastTagRec == 0 {
		if err := s.patchHeaderTagPtr(offset); err != nil {
			return 0, err
		}
	} else {
		if err := s.patchNextPtr(s.lastTagRec, offset); err != nil {
			return 0, err
		}
	}
	s.lastTagRec = offset
	return offset, nil
}

func (s *Store) patchHeaderTagPtr(ptr int64) error {
	s.firstTagRec = ptr
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(ptr))
	_, err := s.f.WriteAt(buf, 12)
	return err
}

func (s *Store) patchNextPtr(recOffset, next int64) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(next))
	_, err := s.f.WriteAt(buf, recOffset)
	return err
}

// Load returns every live (non-tombstoned) record, for startup restore.
func (s *Store) Load() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.byName))
	for _, r := range s.byName {
		out = append(out, r)
	}
	return out
}
