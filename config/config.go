// Package config loads keepsake.yaml configuration files for the chat
// server and the SDK defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of a keepsake.yaml file.
type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Memory MemoryConfig `yaml:"memory"`
	Store  StoreConfig  `yaml:"store"`
	Recall RecallConfig `yaml:"recall"`
	Server ServerConfig `yaml:"server"`
}

// ModelConfig selects the model and response sizing.
type ModelConfig struct {
	// Name is the model identifier, e.g. "claude-sonnet-4-20250514".
	Name string `yaml:"name,omitempty"`

	// MaxTokens caps each model response.
	MaxTokens int64 `yaml:"max_tokens,omitempty"`
}

// MemoryConfig tunes the reconciliation pipeline.
type MemoryConfig struct {
	// WindowSize is how many trailing history messages each model call sees.
	WindowSize int `yaml:"window_size,omitempty"`

	// RepairAttempts bounds validation-repair round trips per extraction
	// candidate.
	RepairAttempts int `yaml:"repair_attempts,omitempty"`

	// MaxContextItems caps records rendered per collection section.
	MaxContextItems int `yaml:"max_context_items,omitempty"`
}

// StoreConfig selects and tunes the record store.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend,omitempty"`

	// RedisURL is the connection URL when Backend is "redis", e.g.
	// "redis://localhost:6379/0".
	RedisURL string `yaml:"redis_url,omitempty"`

	// CacheSize enables a read-through record cache in front of the backend
	// when > 0. Counted in records.
	CacheSize int64 `yaml:"cache_size,omitempty"`
}

// RecallConfig tunes episodic exchange recall.
type RecallConfig struct {
	// Enabled toggles recall. Off by default; structured memory works
	// without it.
	Enabled bool `yaml:"enabled,omitempty"`

	// MinSimilarity drops weakly related exchanges on retrieval.
	MinSimilarity float32 `yaml:"min_similarity,omitempty"`

	// Limit caps exchanges returned per retrieval.
	Limit int `yaml:"limit,omitempty"`
}

// ServerConfig tunes the chat server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:      "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Memory: MemoryConfig{
			WindowSize:      12,
			RepairAttempts:  2,
			MaxContextItems: 20,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Recall: RecallConfig{
			MinSimilarity: 0.35,
			Limit:         5,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load reads a keepsake.yaml file and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q (want \"memory\" or \"redis\")", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.RedisURL == "" {
		return fmt.Errorf("redis backend needs store.redis_url")
	}
	if c.Memory.WindowSize <= 0 {
		return fmt.Errorf("memory.window_size must be positive")
	}
	if c.Memory.RepairAttempts < 0 {
		return fmt.Errorf("memory.repair_attempts must not be negative")
	}
	return nil
}
