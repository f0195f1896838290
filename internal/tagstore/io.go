package tagstore

import "github.com/opendax/daxd/internal/wire"

// Read copies size bytes at offset out of index's buffer into a new slice.
// Virtual tags invoke their IO.Read instead of touching a buffer; SPECIAL
// tags are given a first look via Hook.BeforeRead; an active override
// overlays bytes wherever its mask bit is 1 (override overlay law, section
// 8).
func (s *Store) Read(fd uint32, index, offset, size uint32) ([]byte, error) {
	t, err := s.GetByIndex(index)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)

	if t.Attr&AttrSpecial != 0 && t.Hook != nil {
		if err := t.Hook.BeforeRead(offset, buf); err != nil {
			return nil, err
		}
	}

	if t.Attr&AttrVirtual != 0 {
		if t.IO == nil {
			return nil, wire.New(wire.ErrWriteOnly, "virtual tag has no read function")
		}
		if err := t.IO.Read(offset, buf); err != nil {
			return nil, err
		}
	} else {
		if t.Queue != nil {
			return nil, wire.New(wire.ErrIllegal, "queue tags are read via pop, not offset reads")
		}
		if uint64(offset)+uint64(size) > uint64(len(t.Data)) {
			return nil, wire.New(wire.Err2Big, "read past end of tag")
		}
		copy(buf, t.Data[offset:offset+size])
	}

	if t.Attr&AttrOvrSet != 0 {
		overlay(buf, t.OverrideData, t.OverrideMask, offset)
	}
	return buf, nil
}

// overlay applies the override overlay law: out[i] = (odata[i] & omask[i])
// | (out[i] & ^omask[i]), for the slice of the override buffers starting at
// offset.
func overlay(out, odata, omask []byte, offset uint32) {
	for i := range out {
		pos := int(offset) + i
		if pos >= len(omask) {
			break
		}
		out[i] = (odata[pos] & omask[pos]) | (out[i] &^ omask[pos])
	}
}

// Write copies data into index's buffer at offset. READONLY tags refuse
// unless the caller owns them (AttrOwned); SPECIAL tags are given a look via
// Hook.BeforeWrite; successful writes invoke the OnWrite and, if RETAIN is
// set, OnRetainWrite hooks.
func (s *Store) Write(fd uint32, index, offset uint32, data []byte) error {
	t, err := s.GetByIndex(index)
	if err != nil {
		return err
	}
	if err := s.checkWritable(t, fd); err != nil {
		return err
	}

	if t.Attr&AttrSpecial != 0 && t.Hook != nil {
		if err := t.Hook.BeforeWrite(offset, data); err != nil {
			return err
		}
	}

	if t.Queue != nil {
		if offset != 0 {
			return wire.New(wire.ErrIllegal, "queue writes must target offset 0")
		}
		if err := t.Queue.Push(data); err != nil {
			return err
		}
	} else if t.Attr&AttrVirtual != 0 {
		if t.IO == nil {
			return wire.New(wire.ErrIllegal, "virtual tag has no write function")
		}
		if err := t.IO.Write(offset, data); err != nil {
			return err
		}
	} else {
		if uint64(offset)+uint64(len(data)) > uint64(len(t.Data)) {
			return wire.New(wire.Err2Big, "write past end of tag")
		}
		copy(t.Data[offset:], data)
	}

	s.afterWrite(t, offset, uint32(len(data)))
	return nil
}

// WriteCascade writes bytes copied by the mapping engine's propagation
// into a destination slice. Unlike Write, it does not invoke OnWrite (the
// mapping engine itself re-runs event_check on the destination and recurses
// into further mappings under its own hop bound, per section 4.5) but it
// does re-persist the destination if it is RETAIN, matching a normal write.
func (s *Store) WriteCascade(index, offset uint32, data []byte) error {
	t, err := s.GetByIndex(index)
	if err != nil {
		return err
	}
	if uint64(offset)+uint64(len(data)) > uint64(len(t.Data)) {
		return wire.New(wire.Err2Big, "mapping destination write past end of tag")
	}
	copy(t.Data[offset:], data)

	if s.hooks != nil && t.Attr&AttrRetain != 0 {
		s.hooks.OnRetainWrite(t.Index)
	}
	return nil
}

func (s *Store) checkWritable(t *Tag, fd uint32) error {
	if t.Attr&AttrReadOnly != 0 {
		if t.Attr&AttrOwned == 0 || t.OwnerFD != fd {
			return wire.New(wire.ErrReadOnly, "tag is read-only")
		}
	}
	if t.Attr&AttrOwned != 0 && t.OwnerFD != fd && t.Attr&AttrReadOnly == 0 {
		// Owned tags accept writes only from their owner even without
		// READONLY, per section 3's "owning-module-write-only" note.
		return wire.New(wire.ErrReadOnly, "tag is owned by another module")
	}
	return nil
}

func (s *Store) afterWrite(t *Tag, offset, size uint32) {
	s.metrics.observeWrite(t)
	if s.hooks != nil {
		s.hooks.OnWrite(t.Index, offset, size)
		if t.Attr&AttrRetain != 0 {
			s.hooks.OnRetainWrite(t.Index)
		}
	}
}

// MaskWrite writes only the bits set in mask, preserving the rest (masked
// write law of section 8): new[i] = (data[i] & mask[i]) | (old[i] &
// ^mask[i]). Forbidden on virtual tags.
func (s *Store) MaskWrite(fd uint32, index, offset uint32, data, mask []byte) error {
	t, err := s.GetByIndex(index)
	if err != nil {
		return err
	}
	if t.Attr&AttrVirtual != 0 {
		return wire.New(wire.ErrIllegal, "masked write not permitted on virtual tags")
	}
	if err := s.checkWritable(t, fd); err != nil {
		return err
	}
	if len(data) != len(mask) {
		return wire.New(wire.ErrArg, "data and mask must be equal length")
	}
	if uint64(offset)+uint64(len(data)) > uint64(len(t.Data)) {
		return wire.New(wire.Err2Big, "masked write past end of tag")
	}

	for i := range data {
		pos := offset + uint32(i)
		t.Data[pos] = (data[i] & mask[i]) | (t.Data[pos] &^ mask[i])
	}

	s.afterWrite(t, offset, uint32(len(data)))
	return nil
}

// Pop consumes one element from a queue tag.
func (s *Store) Pop(index uint32) ([]byte, error) {
	t, err := s.GetByIndex(index)
	if err != nil {
		return nil, err
	}
	if t.Queue == nil {
		return nil, wire.New(wire.ErrBadType, "tag is not a queue")
	}
	return t.Queue.Pop()
}
