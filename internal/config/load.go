package config

import (
	"fmt"
	"os"
	"time"
)

// Load reads and parses a daxd configuration file, applying recognized keys
// on top of base. Unknown keys are ignored, matching the original's
// behavior of only ever reading back the specific globals it cares about.
func Load(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	m, err := parseFile(string(raw))
	if err != nil {
		return base, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	applyMap(&base, m)
	return base, nil
}

func applyMap(cfg *Config, m map[string]any) {
	if v, ok := asString(m["socketname"]); ok {
		cfg.SocketName = v
	}
	if v, ok := asString(m["serverip"]); ok {
		cfg.ServerIP = v
	}
	if v, ok := asInt(m["serverport"]); ok {
		cfg.ServerPort = uint16(v)
	}
	if v, ok := asInt(m["min_buffers"]); ok {
		cfg.MinBuffers = v
	}
	if v, ok := asString(m["loglevel"]); ok {
		cfg.LogLevel = v
	}
	if v, ok := asString(m["dbdriver"]); ok {
		cfg.DBDriver = v
	}
	if v, ok := asString(m["dbpath"]); ok {
		cfg.DBPath = v
	}
	if v, ok := asString(m["s3_bucket"]); ok {
		cfg.S3Bucket = v
	}
	if v, ok := asString(m["s3_region"]); ok {
		cfg.S3Region = v
	}
	if v, ok := asString(m["s3_endpoint"]); ok {
		cfg.S3Endpoint = v
	}
	if v, ok := asInt(m["s3_backup_every_hours"]); ok {
		cfg.S3BackupEvery = time.Duration(v) * time.Hour
	}
	if v, ok := asInt(m["nats_embedded_port"]); ok {
		cfg.NatsEmbeddedPort = v
	}
	if v, ok := asString(m["admin_addr"]); ok {
		cfg.AdminAddr = v
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
