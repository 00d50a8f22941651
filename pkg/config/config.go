// Package config loads the application configuration from YAML with
// environment fallbacks for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// API keys
	OpenAIKey string `yaml:"openai_key"`
	GeminiKey string `yaml:"gemini_key"`

	// Model configuration
	Provider    string  `yaml:"provider"` // openai, gemini
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Store configuration
	Store StoreConfig `yaml:"store"`

	// Server configuration
	Server ServerConfig `yaml:"server"`

	// History compaction
	History HistoryConfig `yaml:"history"`
}

// StoreConfig selects and configures the session backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, redis, firestore

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	GCPProject          string `yaml:"gcp_project"`
	FirestoreCollection string `yaml:"firestore_collection"`

	// SessionTTLSeconds expires idle Redis sessions. Zero keeps them forever.
	SessionTTLSeconds int `yaml:"session_ttl_seconds"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr        string  `yaml:"addr"`
	MetricsPort int     `yaml:"metrics_port"`
	RatePerSec  float64 `yaml:"rate_per_sec"`
	RateBurst   int     `yaml:"rate_burst"`
}

// HistoryConfig tunes compaction.
type HistoryConfig struct {
	ThresholdTurns int `yaml:"threshold_turns"`
	KeepTurns      int `yaml:"keep_turns"`

	// SweepSchedule is a cron expression for the background compaction
	// sweeper. Empty disables it.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   1000,
		Store:       StoreConfig{Backend: "memory", FirestoreCollection: "sessions"},
		Server: ServerConfig{
			Addr:        ":8000",
			MetricsPort: 9090,
			RatePerSec:  10,
			RateBurst:   20,
		},
		History: HistoryConfig{ThresholdTurns: 10, KeepTurns: 4},
	}
}

// Load reads configuration from a YAML file, applies defaults, and fills
// secrets from the environment. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(cfg)

	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Store.GCPProject == "" {
		cfg.Store.GCPProject = os.Getenv("GCP_PROJECT")
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = os.Getenv("REDIS_ADDR")
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = def.Store.Backend
	}
	if cfg.Store.FirestoreCollection == "" {
		cfg.Store.FirestoreCollection = def.Store.FirestoreCollection
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = def.Server.MetricsPort
	}
	if cfg.Server.RatePerSec == 0 {
		cfg.Server.RatePerSec = def.Server.RatePerSec
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = def.Server.RateBurst
	}
	if cfg.History.ThresholdTurns == 0 {
		cfg.History.ThresholdTurns = def.History.ThresholdTurns
	}
	if cfg.History.KeepTurns == 0 {
		cfg.History.KeepTurns = def.History.KeepTurns
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown provider: %s", c.Provider)
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis backend requires redis_addr")
		}
	case "firestore":
		if c.Store.GCPProject == "" {
			return fmt.Errorf("firestore backend requires gcp_project")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.History.KeepTurns >= c.History.ThresholdTurns {
		return fmt.Errorf("keep_turns (%d) must be below threshold_turns (%d)",
			c.History.KeepTurns, c.History.ThresholdTurns)
	}

	return nil
}
