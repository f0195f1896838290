package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileScalars(t *testing.T) {
	src := `
-- tagserver config
socketname = "/tmp/opendax"
serverport = 7777
min_buffers = 4
`
	m, err := parseFile(src)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/opendax", m["socketname"])
	assert.Equal(t, 7777, m["serverport"])
	assert.Equal(t, 4, m["min_buffers"])
}

func TestParseFileNestedTable(t *testing.T) {
	src := `
retention = {
    driver = "sqlite3"
    path = "/var/lib/daxd/retain.db"
}
`
	m, err := parseFile(src)
	require.NoError(t, err)
	tbl, ok := m["retention"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sqlite3", tbl["driver"])
	assert.Equal(t, "/var/lib/daxd/retain.db", tbl["path"])
}

func TestParseFileIgnoresUnknownKeysWhenApplied(t *testing.T) {
	src := `
socketname = "/tmp/mysocket"
some_future_key = "whatever"
`
	m, err := parseFile(src)
	require.NoError(t, err)

	cfg := Default()
	applyMap(&cfg, m)
	assert.Equal(t, "/tmp/mysocket", cfg.SocketName)
}

func TestParseFileSemicolonSeparated(t *testing.T) {
	src := `socketname = "/tmp/a"; serverport = 1000;`
	m, err := parseFile(src)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a", m["socketname"])
	assert.Equal(t, 1000, m["serverport"])
}
