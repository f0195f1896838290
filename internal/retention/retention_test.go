package retention

import (
	"path/filepath"
	"testing"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/retention/flatfile"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreFromFlatfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retain.dat")
	ff, err := flatfile.Open(path)
	require.NoError(t, err)
	require.NoError(t, ff.Upsert("pressure", uint32(cdt.DINT), 1, []byte{1, 2, 3, 4}))
	require.NoError(t, ff.Close())

	ff2, err := flatfile.Open(path)
	require.NoError(t, err)
	defer ff2.Close()

	eng := NewEngine(NewFlatfileBackend(ff2))
	reg := cdt.NewRegistry()
	store := tagstore.NewStore(reg)

	require.NoError(t, eng.Restore(reg, store))

	tag, err := store.GetByName("pressure")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, tag.Data)
	assert.NotZero(t, tag.Attr&tagstore.AttrRetain)
}

func TestForgetRemovesPersistedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retain.dat")
	ff, err := flatfile.Open(path)
	require.NoError(t, err)
	defer ff.Close()

	eng := NewEngine(NewFlatfileBackend(ff))
	eng.PersistTag("n", uint32(cdt.INT), 1, []byte{1, 2})
	eng.Forget("n")

	tags, err := eng.backend.LoadTags()
	require.NoError(t, err)
	assert.Empty(t, tags)
}
