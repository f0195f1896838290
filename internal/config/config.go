// Package config loads daxd's configuration: a small Lua-like config file
// (grounded on the original tagserver's src/server/options.c), process
// environment overrides, and command-line flags, merged in that order of
// increasing precedence and validated against a JSON schema before use.
package config

import "time"

// Config mirrors opendax's opt_* accessors plus the ambient keys this
// implementation adds for its structured retention, internal bus, and
// admin HTTP surface.
type Config struct {
	SocketName string `json:"socketname"`
	ServerIP   string `json:"serverip"`
	ServerPort uint16 `json:"serverport"`
	MinBuffers int    `json:"min_buffers"`
	LogLevel   string `json:"loglevel"`

	DBDriver         string        `json:"dbdriver"` // "flatfile" or "sqlite3"
	DBPath           string        `json:"dbpath"`
	S3Bucket         string        `json:"s3-bucket,omitempty"`
	S3Region         string        `json:"s3-region,omitempty"`
	S3Endpoint       string        `json:"s3-endpoint,omitempty"`
	S3BackupEvery    time.Duration `json:"s3-backup-every,omitempty"`
	NatsEmbeddedPort int           `json:"nats-embedded-port"`
	AdminAddr        string        `json:"admin-addr"`
}

// Keys holds the process-wide configuration once Init has run, following
// the teacher's package-global Keys pattern.
var Keys Config = Default()

// Default returns the configuration daxd runs with when neither a config
// file, environment variable, nor command-line flag sets a value, matching
// setdefaults() in the original source plus this implementation's own
// ambient additions.
func Default() Config {
	return Config{
		SocketName:       "/tmp/opendax",
		ServerIP:         "0.0.0.0",
		ServerPort:       7777,
		MinBuffers:       1,
		LogLevel:         "info",
		DBDriver:         "flatfile",
		DBPath:           "/tmp/opendax/retain.dat",
		NatsEmbeddedPort: 0, // 0 means "let the OS pick a free port"
		AdminAddr:        "127.0.0.1:9191",
	}
}
