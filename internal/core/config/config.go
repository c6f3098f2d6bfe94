package config

import (
	"time"

	redisclient "github.com/vietddude/pdfmend/internal/infra/redis"
	"github.com/vietddude/pdfmend/internal/infra/storage"
	"github.com/vietddude/pdfmend/internal/infra/storage/postgres"
	"github.com/vietddude/pdfmend/internal/repair/diagnostics"
	"github.com/vietddude/pdfmend/internal/repair/reconstruct"
	"github.com/vietddude/pdfmend/internal/repair/recovery"
)

// Archive backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server         ServerConfig       `yaml:"server"`
	Logging        LoggingConfig      `yaml:"logging"`
	Recovery       recovery.Config    `yaml:"recovery"`
	Reconstruction reconstruct.Config `yaml:"reconstruction"`
	Diagnostics    diagnostics.Config `yaml:"diagnostics"`
	Archive        ArchiveConfig      `yaml:"archive"`
	Redis          redisclient.Config `yaml:"redis"`
	Database       postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ArchiveConfig selects where recovery reports are kept.
type ArchiveConfig struct {
	Backend string `yaml:"backend"` // none, memory, redis, postgres
	// StorePayload keeps the repaired bytes alongside the report.
	StorePayload bool `yaml:"store_payload"`
	// Retry applies to the redis and postgres backends.
	Retry storage.RetryConfig `yaml:"retry"`
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8080,
			MaxBodyBytes: 64 << 20,
			ReadTimeout:  30 * time.Second,
		},
		Logging:        LoggingConfig{Level: "info", Format: "text"},
		Recovery:       recovery.DefaultConfig(),
		Reconstruction: reconstruct.DefaultConfig(),
		Diagnostics:    diagnostics.DefaultConfig(),
		Archive:        ArchiveConfig{Backend: BackendMemory, Retry: storage.DefaultRetryConfig},
		Redis:          redisclient.Config{TTL: 7 * 24 * time.Hour},
	}
}
