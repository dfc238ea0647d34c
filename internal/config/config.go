// Package config resolves runtime configuration from the environment,
// with an optional YAML file that can also set the tool-loop cap, which
// has no environment variable. Mirrors the teacher's Load(filename)
// pattern: unmarshal, apply defaults, validate.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs a runtime process reads at startup.
type Config struct {
	Profile         string
	Identity        string
	PollInterval    time.Duration
	BatchSize       int
	MailboxPrefix   string
	ToolLoopCap     int
	StoreBackend    string
	Redis           RedisConfig
	BadgerDir       string
	RegistryURL     string
	HeartbeatPeriod time.Duration
}

// RedisConfig configures the Redis Streams backed store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

const (
	defaultPollInterval    = time.Second
	defaultBatchSize       = 5
	defaultToolLoopCap     = 32
	defaultHeartbeatPeriod = 15 * time.Second
	minHeartbeatPeriod     = 5 * time.Second
)

// FromEnv builds a Config from environment variables and an optional
// YAML file named by QUADRACODE_CONFIG_FILE. Values the file sets replace
// the environment-derived profile, mailbox prefix, store backend, Redis,
// Badger and registry settings; QUADRACODE_POLL_INTERVAL_MS,
// QUADRACODE_BATCH_SIZE, QUADRACODE_REDIS_DB and
// QUADRACODE_HEARTBEAT_SECONDS are applied after the file and take
// precedence over it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Profile:         getenv("QUADRACODE_PROFILE", "orchestrator"),
		Identity:        os.Getenv("QUADRACODE_ID"),
		PollInterval:    defaultPollInterval,
		BatchSize:       defaultBatchSize,
		MailboxPrefix:   getenv("QUADRACODE_MAILBOX_PREFIX", "qc:mailbox/"),
		ToolLoopCap:     defaultToolLoopCap,
		StoreBackend:    getenv("QUADRACODE_STORE_BACKEND", "memory"),
		BadgerDir:       os.Getenv("QUADRACODE_BADGER_DIR"),
		RegistryURL:     os.Getenv("QUADRACODE_REGISTRY_URL"),
		HeartbeatPeriod: defaultHeartbeatPeriod,
		Redis: RedisConfig{
			Addr:     getenv("QUADRACODE_REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("QUADRACODE_REDIS_PASSWORD"),
		},
	}

	if path := os.Getenv("QUADRACODE_CONFIG_FILE"); path != "" {
		if err := cfg.mergeYAMLFile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("QUADRACODE_POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("QUADRACODE_POLL_INTERVAL_MS: %w", err)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("QUADRACODE_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("QUADRACODE_BATCH_SIZE: %w", err)
		}
		cfg.BatchSize = n
	}
	if v := os.Getenv("QUADRACODE_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("QUADRACODE_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	if v := os.Getenv("QUADRACODE_HEARTBEAT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("QUADRACODE_HEARTBEAT_SECONDS: %w", err)
		}
		cfg.HeartbeatPeriod = time.Duration(n) * time.Second
	}

	if cfg.HeartbeatPeriod < minHeartbeatPeriod {
		cfg.HeartbeatPeriod = minHeartbeatPeriod
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.ToolLoopCap <= 0 {
		return nil, fmt.Errorf("tool_loop_cap must be positive, got %d", cfg.ToolLoopCap)
	}

	return cfg, nil
}

// mergeYAMLFile loads path and overlays any fields it sets onto cfg, the
// way the teacher's Load merges file config with defaults: file values
// only take effect when present.
func (c *Config) mergeYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay struct {
		Profile       string       `yaml:"profile"`
		BatchSize     int          `yaml:"batch_size"`
		MailboxPrefix string       `yaml:"mailbox_prefix"`
		ToolLoopCap   int          `yaml:"tool_loop_cap"`
		StoreBackend  string       `yaml:"store_backend"`
		Redis         *RedisConfig `yaml:"redis"`
		BadgerDir     string       `yaml:"badger_dir"`
		RegistryURL   string       `yaml:"registry_url"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if overlay.Profile != "" {
		c.Profile = overlay.Profile
	}
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.MailboxPrefix != "" {
		c.MailboxPrefix = overlay.MailboxPrefix
	}
	if overlay.ToolLoopCap != 0 {
		c.ToolLoopCap = overlay.ToolLoopCap
	}
	if overlay.StoreBackend != "" {
		c.StoreBackend = overlay.StoreBackend
	}
	if overlay.Redis != nil {
		c.Redis = *overlay.Redis
	}
	if overlay.BadgerDir != "" {
		c.BadgerDir = overlay.BadgerDir
	}
	if overlay.RegistryURL != "" {
		c.RegistryURL = overlay.RegistryURL
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
