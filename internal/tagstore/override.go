package tagstore

import "github.com/opendax/daxd/internal/wire"

// OverrideAdd installs or ORs into index's per-byte override shadow
// (section 4.6). Mask bits that are already 1 keep their previous override
// byte unless the new mask bit for that position is also 1.
func (s *Store) OverrideAdd(index, offset uint32, data, mask []byte) error {
	t, err := s.byIndex(index)
	if err != nil {
		return err
	}
	if t.Deleted() {
		return wire.New(wire.ErrDeleted, "tag has been deleted")
	}
	if len(data) != len(mask) {
		return wire.New(wire.ErrArg, "data and mask must be equal length")
	}

	size := uint32(len(t.Data))
	if t.OverrideMask == nil {
		t.OverrideMask = make([]byte, size)
		t.OverrideData = make([]byte, size)
		t.Attr |= AttrOverride
	}
	if uint64(offset)+uint64(len(mask)) > uint64(len(t.OverrideMask)) {
		return wire.New(wire.Err2Big, "override past end of tag")
	}

	for i := range mask {
		pos := offset + uint32(i)
		t.OverrideMask[pos] |= mask[i]
		t.OverrideData[pos] = (data[i] & mask[i]) | (t.OverrideData[pos] &^ mask[i])
	}
	return nil
}

// OverrideDel clears mask bits; once the whole mask is zero, the override
// buffers are freed and AttrOverride/AttrOvrSet are cleared.
func (s *Store) OverrideDel(index, offset uint32, mask []byte) error {
	t, err := s.byIndex(index)
	if err != nil {
		return err
	}
	if t.OverrideMask == nil {
		return wire.New(wire.ErrNotFound, "no override installed")
	}
	for i := range mask {
		pos := offset + uint32(i)
		if pos >= uint32(len(t.OverrideMask)) {
			break
		}
		t.OverrideMask[pos] &^= mask[i]
	}

	allZero := true
	for _, b := range t.OverrideMask {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.OverrideMask = nil
		t.OverrideData = nil
		t.Attr &^= AttrOverride | AttrOvrSet
	}
	return nil
}

// OverrideGet returns a copy of the override mask/data pair.
func (s *Store) OverrideGet(index uint32) (data, mask []byte, err error) {
	t, err := s.byIndex(index)
	if err != nil {
		return nil, nil, err
	}
	if t.OverrideMask == nil {
		return nil, nil, wire.New(wire.ErrNotFound, "no override installed")
	}
	return append([]byte(nil), t.OverrideData...), append([]byte(nil), t.OverrideMask...), nil
}

// OverrideSet toggles the AttrOvrSet flag that activates the overlay on
// reads.
func (s *Store) OverrideSet(index uint32, active bool) error {
	t, err := s.byIndex(index)
	if err != nil {
		return err
	}
	if t.Attr&AttrOverride == 0 {
		return wire.New(wire.ErrIllegal, "no override installed on this tag")
	}
	if active {
		t.Attr |= AttrOvrSet
	} else {
		t.Attr &^= AttrOvrSet
	}
	return nil
}
