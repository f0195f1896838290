package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcceptsDefault(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.ServerPort = 0
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsEmptySocketName(t *testing.T) {
	cfg := Default()
	cfg.SocketName = ""
	assert.Error(t, Validate(cfg))
}
