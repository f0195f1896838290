package flatfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retain.dat")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert("pressure", 0x00000105, 1, []byte{1, 2, 3, 4}))
	require.NoError(t, s.Upsert("flow", 0x00000104, 1, []byte{5, 6}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	recs := s2.Load()
	byName := make(map[string]*Record)
	for _, r := range recs {
		byName[r.Name] = r
	}
	require.Contains(t, byName, "pressure")
	require.Contains(t, byName, "flow")
	assert.Equal(t, []byte{1, 2, 3, 4}, byName["pressure"].Data)
	assert.Equal(t, []byte{5, 6}, byName["flow"].Data)
}

func TestDeleteTombstones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retain.dat")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert("temp", 0x00000105, 1, []byte{9, 9, 9, 9}))
	require.NoError(t, s.Delete("temp"))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.Empty(t, s2.Load())
}

func TestUpsertGrowReplacesLiveRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retain.dat")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert("n", 1, 1, []byte{1}))
	require.NoError(t, s.Upsert("n", 1, 1, []byte{2}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	recs := s2.Load()
	require.Len(t, recs, 1)
	assert.Equal(t, []byte{2}, recs[0].Data)
}
