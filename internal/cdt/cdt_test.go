package cdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIdempotent(t *testing.T) {
	r := NewRegistry()
	id1, err := r.Create("_test:a,BOOL,3:b,BOOL,5:c,INT,1")
	require.NoError(t, err)

	id2, err := r.Create("_test:a,BOOL,3:b,BOOL,5:c,INT,1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestCreateDuplicateDifferentDefinition(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("_test:a,BOOL,3")
	require.NoError(t, err)

	_, err = r.Create("_test:a,BOOL,4")
	require.Error(t, err)
	werr, ok := err.(interface{ Error() string })
	require.True(t, ok)
	_ = werr
}

func TestDuplicateMemberName(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("bad:a,BOOL,1:a,BOOL,1")
	require.Error(t, err)
}

func TestBoolPackingSize(t *testing.T) {
	r := NewRegistry()
	id, err := r.Create("_test:a,BOOL,3:b,BOOL,5:c,INT,1")
	require.NoError(t, err)

	size, err := r.TypeSize(id, 1)
	require.NoError(t, err)
	// 8 packed bools (1 byte) + byte-align + 2-byte INT = 3 bytes.
	assert.EqualValues(t, 3, size)
}

func TestNestedCDTSize(t *testing.T) {
	r := NewRegistry()
	inner, err := r.Create("inner:x,BOOL,1:y,DINT,1")
	require.NoError(t, err)
	require.True(t, inner.IsCDT())

	outer, err := r.Create("outer:m,inner,2:f,BOOL,1")
	require.NoError(t, err)

	// inner = 1 byte-aligned bool + 4-byte DINT = 5 bytes -> 2 instances = 10
	// bytes, then 1 trailing bool bit -> 1 more byte = 11 bytes.
	size, err := r.TypeSize(outer, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 11, size)
}

func TestGetTypeBaseCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, DINT, r.GetType("dint"))
	assert.Equal(t, DINT, r.GetType("DINT"))
	assert.EqualValues(t, 0, r.GetType("nonexistent"))
}

func TestRefcountBlocksRemove(t *testing.T) {
	r := NewRegistry()
	id, err := r.Create("t:a,BOOL,1")
	require.NoError(t, err)
	r.IncRefcount(id)

	err = r.Remove("t")
	require.Error(t, err)

	r.DecRefcount(id)
	err = r.Remove("t")
	require.NoError(t, err)
}

func TestSerializeRoundTrip(t *testing.T) {
	r := NewRegistry()
	spec := "rt:a,BOOL,3:b,INT,2"
	id, err := r.Create(spec)
	require.NoError(t, err)

	out, err := r.Serialize(id)
	require.NoError(t, err)
	assert.Equal(t, spec, out)

	id2, err := r.Create(out)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}
