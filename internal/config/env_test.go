package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEnvOverridesSocketName(t *testing.T) {
	t.Setenv("DAXD_SOCKETNAME", "/tmp/from-env")
	t.Setenv("DAXD_SERVERPORT", "1234")

	cfg := ApplyEnv(Default())
	assert.Equal(t, "/tmp/from-env", cfg.SocketName)
	assert.Equal(t, uint16(1234), cfg.ServerPort)
}

func TestApplyEnvLeavesUnsetFieldsAlone(t *testing.T) {
	cfg := ApplyEnv(Default())
	assert.Equal(t, Default().DBDriver, cfg.DBDriver)
}
