package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. Values from a .env file in the
// working directory are exported first so the YAML can reference them.
// An empty path returns the defaults.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		return cfg, cfg.validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fixes up zero values a file may have set explicitly.
func (c *AppConfig) applyDefaults() {
	def := Default()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = def.Server.MaxBodyBytes
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Recovery.MaxErrors <= 0 {
		c.Recovery.MaxErrors = def.Recovery.MaxErrors
	}
	if c.Reconstruction.MinFragmentSize <= 0 {
		c.Reconstruction.MinFragmentSize = def.Reconstruction.MinFragmentSize
	}
	if c.Reconstruction.MaxFragments <= 0 {
		c.Reconstruction.MaxFragments = def.Reconstruction.MaxFragments
	}
	if c.Reconstruction.ChunkSize <= 0 {
		c.Reconstruction.ChunkSize = def.Reconstruction.ChunkSize
	}
	if c.Archive.Retry.MaxAttempts <= 0 {
		c.Archive.Retry = def.Archive.Retry
	}
	if c.Archive.Backend == "" {
		c.Archive.Backend = BackendNone
	}
}

func (c *AppConfig) validate() error {
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("archive backend redis requires redis.url")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("archive backend postgres requires database.url")
		}
	default:
		return fmt.Errorf("unknown archive backend %q", c.Archive.Backend)
	}
	if c.Recovery.Timeout < 0 {
		return fmt.Errorf("recovery.timeout must not be negative")
	}
	return nil
}
