package mapping

import (
	"testing"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopChecker struct{ calls []uint32 }

func (n *noopChecker) Check(tagIndex uint32, offset, size uint32) { n.calls = append(n.calls, tagIndex) }

func newRig() (*tagstore.Store, *Engine, *noopChecker) {
	reg := cdt.NewRegistry()
	store := tagstore.NewStore(reg)
	checker := &noopChecker{}
	eng := NewEngine(store, checker)
	store.SetHooks(hookAdapter{eng})
	return store, eng, checker
}

type hookAdapter struct{ eng *Engine }

func (h hookAdapter) OnWrite(index uint32, offset, size uint32) { h.eng.Check(index, offset, size) }
func (h hookAdapter) OnTagAdded(uint32, cdt.Type, uint32, tagstore.Attr, string) {}
func (h hookAdapter) OnTagDeleted(uint32, string, tagstore.Attr) {}
func (h hookAdapter) OnRetainWrite(uint32) {}

// Scenario 3: mapping propagation.
func TestMappingPropagation(t *testing.T) {
	store, eng, _ := newRig()
	src, err := store.Add(1, "src", cdt.INT, 1, 0)
	require.NoError(t, err)
	dst, err := store.Add(1, "dst", cdt.INT, 1, 0)
	require.NoError(t, err)

	_, err = eng.Add(
		tagstore.TagSlice{Index: src, Byte: 0, Count: 1, Size: 16},
		tagstore.TagSlice{Index: dst, Byte: 0, Count: 1, Size: 16},
	)
	require.NoError(t, err)

	require.NoError(t, store.Write(1, src, 0, []byte{0xAA, 0x00}))

	buf, err := store.Read(1, dst, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x00}, buf)
}

func TestMapAddTooSmallDestination(t *testing.T) {
	store, eng, _ := newRig()
	src, _ := store.Add(1, "src", cdt.DINT, 1, 0)
	dst, _ := store.Add(1, "dst", cdt.INT, 1, 0)

	_, err := eng.Add(
		tagstore.TagSlice{Index: src, Byte: 0, Count: 1, Size: 32},
		tagstore.TagSlice{Index: dst, Byte: 0, Count: 1, Size: 16},
	)
	require.Error(t, err)
}

// Mapping hop bound: a cycle terminates after MaxHops propagations and does
// not crash or infinitely recurse.
func TestMappingCycleBounded(t *testing.T) {
	store, eng, _ := newRig()
	a, _ := store.Add(1, "a", cdt.INT, 1, 0)
	b, _ := store.Add(1, "b", cdt.INT, 1, 0)

	_, err := eng.Add(tagstore.TagSlice{Index: a, Byte: 0, Count: 1, Size: 16}, tagstore.TagSlice{Index: b, Byte: 0, Count: 1, Size: 16})
	require.NoError(t, err)
	_, err = eng.Add(tagstore.TagSlice{Index: b, Byte: 0, Count: 1, Size: 16}, tagstore.TagSlice{Index: a, Byte: 0, Count: 1, Size: 16})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.NoError(t, store.Write(1, a, 0, []byte{0x01, 0x00}))
	})

	buf, err := store.Read(1, b, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00}, buf)
}

func TestMapDel(t *testing.T) {
	store, eng, _ := newRig()
	src, _ := store.Add(1, "src", cdt.INT, 1, 0)
	dst, _ := store.Add(1, "dst", cdt.INT, 1, 0)

	id, err := eng.Add(tagstore.TagSlice{Index: src, Byte: 0, Count: 1, Size: 16}, tagstore.TagSlice{Index: dst, Byte: 0, Count: 1, Size: 16})
	require.NoError(t, err)

	require.NoError(t, eng.Del(src, id))
	require.NoError(t, store.Write(1, src, 0, []byte{0xFF, 0xFF}))

	buf, err := store.Read(1, dst, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, buf)
}
