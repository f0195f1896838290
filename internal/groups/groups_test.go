package groups

import (
	"testing"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *tagstore.Store { return tagstore.NewStore(cdt.NewRegistry()) }

func TestGroupReadWrite(t *testing.T) {
	store := newStore()
	a, _ := store.Add(1, "a", cdt.INT, 1, 0)
	b, _ := store.Add(1, "b", cdt.DINT, 1, 0)
	require.NoError(t, store.Write(1, a, 0, []byte{1, 2}))
	require.NoError(t, store.Write(1, b, 0, []byte{3, 4, 5, 6}))

	eng := NewEngine(store)
	gid, err := eng.Add(1, []tagstore.TagSlice{
		{Index: a, Count: 1, Size: 16},
		{Index: b, Count: 1, Size: 32},
	})
	require.NoError(t, err)

	buf, err := eng.Read(1, gid)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, buf)

	require.NoError(t, eng.Write(1, gid, []byte{9, 9, 8, 8, 8, 8}))
	av, _ := store.Read(1, a, 0, 2)
	assert.Equal(t, []byte{9, 9}, av)
	bv, _ := store.Read(1, b, 0, 4)
	assert.Equal(t, []byte{8, 8, 8, 8}, bv)
}

// Group size rule: oversize groups are refused and leave module state
// unchanged.
func TestGroupOversizeRejected(t *testing.T) {
	store := newStore()
	big, _ := store.Add(1, "big", cdt.BYTE, MaxGroupBytes+10, 0)

	eng := NewEngine(store)
	_, err := eng.Add(1, []tagstore.TagSlice{{Index: big, Count: MaxGroupBytes + 10, Size: 8}})
	require.Error(t, err)

	_, err = eng.Read(1, 1)
	require.Error(t, err) // no group was created
}

func TestGroupTooManyMembers(t *testing.T) {
	store := newStore()
	eng := NewEngine(store)
	members := make([]tagstore.TagSlice, MaxGroupMembers+1)
	for i := range members {
		idx, _ := store.Add(1, string(rune('a'+i%26))+string(rune(i)), cdt.BOOL, 1, 0)
		members[i] = tagstore.TagSlice{Index: idx, Count: 1, Size: 1}
	}
	_, err := eng.Add(1, members)
	require.Error(t, err)
}

// Atomic bit-OR partial-byte law.
func TestAtomicBitOrPartialByte(t *testing.T) {
	store := newStore()
	idx, err := store.Add(1, "b", cdt.BOOL, 24, 0)
	require.NoError(t, err)

	payload := []byte{0xFF, 0xFF}
	h := tagstore.TagSlice{Index: idx, Byte: 0, Bit: 4, Count: 12, Size: 1}
	require.NoError(t, AtomicOp(store, 1, h, payload, OpOr))

	buf, err := store.Read(1, idx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, byte(0xF0), buf[0]) // bits 4-7 set
	assert.Equal(t, byte(0xFF), buf[1]) // bits 8-15 set
	assert.Equal(t, byte(0x00), buf[2])
}

func TestAtomicIncDec(t *testing.T) {
	store := newStore()
	idx, err := store.Add(1, "n", cdt.DINT, 1, 0)
	require.NoError(t, err)
	require.NoError(t, store.Write(1, idx, 0, []byte{5, 0, 0, 0}))

	h := tagstore.TagSlice{Index: idx, Byte: 0, Count: 1, Size: 32}
	require.NoError(t, AtomicOp(store, 1, h, nil, OpInc))
	buf, _ := store.Read(1, idx, 0, 4)
	assert.Equal(t, []byte{6, 0, 0, 0}, buf)

	require.NoError(t, AtomicOp(store, 1, h, nil, OpDec))
	buf, _ = store.Read(1, idx, 0, 4)
	assert.Equal(t, []byte{5, 0, 0, 0}, buf)
}

func TestAtomicIncDecForbiddenOnBool(t *testing.T) {
	store := newStore()
	idx, _ := store.Add(1, "b", cdt.BOOL, 1, 0)
	h := tagstore.TagSlice{Index: idx, Byte: 0, Count: 1, Size: 1}
	err := AtomicOp(store, 1, h, nil, OpInc)
	require.Error(t, err)
}

func TestAtomicBitwiseForbiddenOnReal(t *testing.T) {
	store := newStore()
	idx, _ := store.Add(1, "r", cdt.REAL, 1, 0)
	h := tagstore.TagSlice{Index: idx, Byte: 0, Count: 1, Size: 32}
	err := AtomicOp(store, 1, h, []byte{0, 0, 0, 0}, OpOr)
	require.Error(t, err)
}

func TestAtomicForbiddenOnCDT(t *testing.T) {
	reg := cdt.NewRegistry()
	store := tagstore.NewStore(reg)

	ctyp, err := reg.Create("point:x,INT,1:y,INT,1")
	require.NoError(t, err)

	idx, err := store.Add(1, "p", ctyp, 1, 0)
	require.NoError(t, err)

	h := tagstore.TagSlice{Index: idx, Byte: 0, Count: 1, Size: 32}
	err = AtomicOp(store, 1, h, []byte{0, 0, 0, 0}, OpOr)
	require.Error(t, err)
}
