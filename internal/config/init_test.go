package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDefaultsWhenNoConfigFile(t *testing.T) {
	cli := CommandLine{ConfigFile: filepath.Join(t.TempDir(), "missing.conf")}
	cfg, err := Init(cli)
	require.NoError(t, err)
	assert.Equal(t, Default().SocketName, cfg.SocketName)
	assert.Equal(t, uint16(7777), cfg.ServerPort)
}

func TestInitFileThenCommandLinePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagserver.conf")
	require.NoError(t, os.WriteFile(path, []byte(`
socketname = "/tmp/fromfile"
serverport = 8888
dbdriver = "sqlite3"
dbpath = "/tmp/fromfile.db"
`), 0o644))

	cfg, err := Init(CommandLine{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fromfile", cfg.SocketName)
	assert.Equal(t, uint16(8888), cfg.ServerPort)

	cfg, err = Init(CommandLine{ConfigFile: path, ServerPort: 9999})
	require.NoError(t, err)
	assert.Equal(t, uint16(9999), cfg.ServerPort)
	assert.Equal(t, "/tmp/fromfile", cfg.SocketName)
}

func TestInitRejectsInvalidDBDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagserver.conf")
	require.NoError(t, os.WriteFile(path, []byte(`dbdriver = "postgres"`), 0o644))

	_, err := Init(CommandLine{ConfigFile: path})
	assert.Error(t, err)
}
