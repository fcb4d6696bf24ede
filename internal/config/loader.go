package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aite550659-max/agent-trust-protocol/internal/common"
	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a file, auto-detecting the format by extension.
// Supported formats: .yaml, .yml, .json, .toml
func LoadFromFile(path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return LoadFromYAML(path)
	case ".json":
		return LoadFromJSON(path)
	case ".toml":
		return LoadFromTOML(path)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json, .toml)", ext)
	}
}

// LoadFromYAML loads configuration from a YAML file.
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return processConfig(&cfg)
}

// LoadFromJSON loads configuration from a JSON file.
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}

	return processConfig(&cfg)
}

// LoadFromTOML loads configuration from a TOML file.
func LoadFromTOML(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	return processConfig(&cfg)
}

// LoadFromEnv builds configuration entirely from environment variables.
// Useful for containerized deployments with no config file mounted.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	return processConfig(&cfg)
}

// processConfig applies environment overrides and defaults, then validates.
func processConfig(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides lets the environment win over file values for the
// settings operators most often need to change per deployment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("MIRROR_BASE_URL"); v != "" {
		cfg.Ingestion.MirrorBaseURL = v
	}
	if v := os.Getenv("STREAM_BASE_URL"); v != "" {
		cfg.Ingestion.StreamBaseURL = v
	}
	if v := os.Getenv("NETWORK"); v != "" {
		cfg.Ingestion.Network = v
	}
	if v := os.Getenv("TOPIC_IDS"); v != "" {
		topics := strings.Split(v, ",")
		cfg.Ingestion.Topics = cfg.Ingestion.Topics[:0]
		for _, t := range topics {
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				cfg.Ingestion.Topics = append(cfg.Ingestion.Topics, trimmed)
			}
		}
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Ingestion.PollInterval = common.NewDuration(time.Duration(ms) * time.Millisecond)
		}
	}
	if v := os.Getenv("PAGE_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Ingestion.PageDelay = common.NewDuration(time.Duration(ms) * time.Millisecond)
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if cfg.Logging == nil {
			cfg.Logging = &LoggingConfig{}
		}
		cfg.Logging.DefaultLevel = v
	}
}
