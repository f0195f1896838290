package sqlstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retain.db")
	s, err := Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndLoadTag(t *testing.T) {
	s := open(t)
	require.NoError(t, s.UpsertTag("pressure", 0x00000105, 1, 0, []byte{1, 2, 3, 4}))

	rows, err := s.LoadTags()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "pressure", rows[0].Name)
	assert.Equal(t, []byte{1, 2, 3, 4}, rows[0].Data)
}

func TestUpsertTagReplacesExisting(t *testing.T) {
	s := open(t)
	require.NoError(t, s.UpsertTag("n", 1, 1, 0, []byte{1}))
	require.NoError(t, s.UpsertTag("n", 1, 1, 0, []byte{2}))

	row, err := s.GetTag("n")
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, row.Data)
}

func TestUpdateTagDataOnly(t *testing.T) {
	s := open(t)
	require.NoError(t, s.UpsertTag("n", 1, 1, 0, []byte{0}))
	require.NoError(t, s.UpdateTagData("n", []byte{9}))

	row, err := s.GetTag("n")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, row.Data)
}

func TestDeleteTag(t *testing.T) {
	s := open(t)
	require.NoError(t, s.UpsertTag("n", 1, 1, 0, []byte{0}))
	require.NoError(t, s.DeleteTag("n"))

	rows, err := s.LoadTags()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCDTDeclarationOrder(t *testing.T) {
	s := open(t)
	require.NoError(t, s.UpsertCDT("point", "point:x,INT,1:y,INT,1"))
	require.NoError(t, s.UpsertCDT("line", "line:a,point,1:b,point,1"))

	rows, err := s.LoadCDTs()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "point", rows[0].Name)
	assert.Equal(t, "line", rows[1].Name)
}
