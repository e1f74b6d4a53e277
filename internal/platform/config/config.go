// Package config assembles process configuration for the sasanactl tooling
// and for services embedding the registry. Values come from an optional YAML
// file named by SASANA_CONFIG, with environment variables taking precedence
// over file keys.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"sasana/internal/registry/codes"
)

// EnvConfigPath names the YAML file to load before applying the environment.
const EnvConfigPath = "SASANA_CONFIG"

// Database selects and parameterizes the storage backend.
type Database struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	// DSN is the postgres connection string; ignored for sqlite.
	DSN string `yaml:"dsn"`
	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `yaml:"sqlite_path"`
}

// Allocator tunes the public-code allocation loop.
type Allocator struct {
	Strategy     string        `yaml:"strategy"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// Audit parameterizes the outbox relay.
type Audit struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Config is the full process configuration.
type Config struct {
	Database Database  `yaml:"database"`
	RedisURL string    `yaml:"redis_url"`
	Alloc    Allocator `yaml:"allocator"`
	Audit    Audit     `yaml:"audit"`
}

// Default returns the configuration used when nothing is set: an embedded
// sqlite file next to the process and the historical allocator behavior.
func Default() Config {
	alloc := codes.DefaultAllocatorConfig()
	return Config{
		Database: Database{
			Driver:     "sqlite",
			SQLitePath: "sasana.db",
		},
		Alloc: Allocator{
			Strategy:     string(alloc.Strategy),
			MaxAttempts:  alloc.MaxAttempts,
			RetryBackoff: alloc.RetryBackoff,
		},
		Audit: Audit{
			Topic:        "sasana.audit",
			BatchSize:    100,
			PollInterval: time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// SASANA_CONFIG when present, then environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigPath); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.Database.Driver, "SASANA_DB_DRIVER")
	setStr(&cfg.Database.DSN, "SASANA_DB_DSN")
	setStr(&cfg.Database.SQLitePath, "SASANA_SQLITE_PATH")
	setStr(&cfg.RedisURL, "SASANA_REDIS_URL")
	setStr(&cfg.Alloc.Strategy, "SASANA_ALLOC_STRATEGY")
	setStr(&cfg.Audit.Topic, "SASANA_AUDIT_TOPIC")

	if v := os.Getenv("SASANA_AUDIT_BROKERS"); v != "" {
		cfg.Audit.Brokers = splitList(v)
	}
	if v := os.Getenv("SASANA_ALLOC_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Alloc.MaxAttempts = n
		}
	}
	if v := os.Getenv("SASANA_ALLOC_RETRY_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alloc.RetryBackoff = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

// Validate rejects configurations the tooling cannot act on.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config: database.dsn is required for the postgres driver")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("config: database.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if _, err := c.AllocatorConfig(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AllocatorConfig converts the allocator section into the codes package's
// tuning struct.
func (c Config) AllocatorConfig() (codes.AllocatorConfig, error) {
	strategy, err := codes.ParseStrategy(c.Alloc.Strategy)
	if err != nil {
		return codes.AllocatorConfig{}, err
	}
	cfg := codes.AllocatorConfig{
		Strategy:     strategy,
		MaxAttempts:  c.Alloc.MaxAttempts,
		RetryBackoff: c.Alloc.RetryBackoff,
	}
	if err := cfg.Validate(); err != nil {
		return codes.AllocatorConfig{}, err
	}
	return cfg, nil
}
