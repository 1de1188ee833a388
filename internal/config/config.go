// Package config loads the service's configuration: defaults, then
// config/config.yml, then config/config.local.yml, then environment
// variable overrides — mirroring the teacher's config.LoadConfig
// layering.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// MongoConfig holds the durable store's connection settings.
type MongoConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	OutboxColl     string `yaml:"outbox_collection"`
	SequenceColl   string `yaml:"sequence_collection"`
	CheckpointColl string `yaml:"checkpoint_collection"`
}

// ServiceConfig holds the event plane's background task cadence.
type ServiceConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollBatchSize     int           `yaml:"poll_batch_size"`
	PollErrorBackoff  time.Duration `yaml:"poll_error_backoff"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// AuthConfig holds the API-key gate settings. APIKeyHashes are bcrypt
// hashes produced by internal/httpapi/auth.HashKey; an empty list means
// the connect and publish endpoints run unauthenticated.
type AuthConfig struct {
	APIKeyHashes []string `yaml:"api_key_hashes"`
}

// Config is the top-level application configuration.
type Config struct {
	Mongo   MongoConfig   `yaml:"mongo"`
	Service ServiceConfig `yaml:"service"`
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
}

// DefaultConfig returns the configuration's baseline values, overridden in
// turn by config.yml, config.local.yml, and the environment.
func DefaultConfig() Config {
	return Config{
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "sse_realtime",
			OutboxColl:     "outbox",
			SequenceColl:   "sequence_counters",
			CheckpointColl: "checkpoints",
		},
		Service: ServiceConfig{
			PollInterval:      50 * time.Millisecond,
			PollBatchSize:     100,
			PollErrorBackoff:  5 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
	}
}

// Load builds the effective configuration: defaults, then config.yml,
// then config.local.yml, then environment overrides.
func Load(configDir string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFile(configDir+"/config.yml", &cfg); err != nil {
		return nil, err
	}
	if err := loadFile(configDir+"/config.local.yml", &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SSE_MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("SSE_MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("SSE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = port
		}
	}
	if v := os.Getenv("SSE_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Service.HeartbeatInterval = d
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if cfg.Mongo.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}
	if cfg.HTTP.Port <= 0 {
		return fmt.Errorf("http.port must be positive")
	}
	return nil
}
