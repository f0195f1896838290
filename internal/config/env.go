package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ApplyEnv loads a .env file if one is present in the working directory
// (silently skipped if absent, following the teacher's optional .env
// loading in cmd/cc-backend/main.go) and then overlays any DAXD_* process
// environment variables on top of cfg, for container deployments that
// prefer env vars over a mounted config file.
func ApplyEnv(cfg Config) Config {
	_ = godotenv.Load()

	if v, ok := os.LookupEnv("DAXD_SOCKETNAME"); ok {
		cfg.SocketName = v
	}
	if v, ok := os.LookupEnv("DAXD_SERVERIP"); ok {
		cfg.ServerIP = v
	}
	if v, ok := os.LookupEnv("DAXD_SERVERPORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ServerPort = uint16(n)
		}
	}
	if v, ok := os.LookupEnv("DAXD_MIN_BUFFERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinBuffers = n
		}
	}
	if v, ok := os.LookupEnv("DAXD_LOGLEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("DAXD_DBDRIVER"); ok {
		cfg.DBDriver = v
	}
	if v, ok := os.LookupEnv("DAXD_DBPATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("DAXD_S3_BUCKET"); ok {
		cfg.S3Bucket = v
	}
	if v, ok := os.LookupEnv("DAXD_S3_REGION"); ok {
		cfg.S3Region = v
	}
	if v, ok := os.LookupEnv("DAXD_S3_ENDPOINT"); ok {
		cfg.S3Endpoint = v
	}
	if v, ok := os.LookupEnv("DAXD_S3_BACKUP_EVERY_HOURS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.S3BackupEvery = time.Duration(n) * time.Hour
		}
	}
	if v, ok := os.LookupEnv("DAXD_NATS_EMBEDDED_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NatsEmbeddedPort = n
		}
	}
	if v, ok := os.LookupEnv("DAXD_ADMIN_ADDR"); ok {
		cfg.AdminAddr = v
	}
	return cfg
}
