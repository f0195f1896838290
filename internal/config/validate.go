package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema validates the JSON form of Config, used by Init, grounded on
// the teacher's internal/config.Validate / schema.Config pattern.
const configSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"socketname":  {"type": "string", "minLength": 1},
		"serverip":    {"type": "string", "minLength": 1},
		"serverport":  {"type": "integer", "minimum": 1, "maximum": 65535},
		"min_buffers": {"type": "integer", "minimum": 0},
		"loglevel":    {"type": "string", "enum": ["debug", "info", "warn", "error", "crit"]},
		"dbdriver":    {"type": "string", "enum": ["flatfile", "sqlite3"]},
		"dbpath":      {"type": "string", "minLength": 1},
		"admin-addr":  {"type": "string", "minLength": 1}
	},
	"required": ["socketname", "serverip", "serverport", "dbdriver", "dbpath"]
}`

// Validate checks cfg's JSON encoding against configSchema.
func Validate(cfg Config) error {
	sch, err := jsonschema.CompileString("daxd-config.json", configSchema)
	if err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling config: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config: re-decoding config: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
