package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified
// path. It applies default values, validates the configuration, and
// returns any errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention POLARIS_SECTION_FIELD (e.g. POLARIS_SOURCE_LOCATION) and
// always take precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Source overrides
	if val := os.Getenv("POLARIS_SOURCE_TYPE"); val != "" {
		cfg.Source.Type = val
	}
	if val := os.Getenv("POLARIS_SOURCE_LOCATION"); val != "" {
		cfg.Source.Location = val
	}
	if val := os.Getenv("POLARIS_SOURCE_RESOURCES"); val != "" {
		cfg.Source.Resources = strings.Split(val, ",")
	}
	if val := os.Getenv("POLARIS_SOURCE_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Source.Watch = b
		}
	}

	// Polling overrides
	if val := os.Getenv("POLARIS_POLLING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Polling.Enabled = b
		}
	}
	if val := os.Getenv("POLARIS_POLLING_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Polling.Interval = Duration(d)
		}
	}
	if val := os.Getenv("POLARIS_POLLING_SOURCE_TYPE"); val != "" {
		cfg.Polling.SourceType = val
	}
	if val := os.Getenv("POLARIS_POLLING_SOURCE"); val != "" {
		cfg.Polling.Source = val
	}

	// Events overrides
	if val := os.Getenv("POLARIS_EVENTS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Events.Enabled = b
		}
	}
	if val := os.Getenv("POLARIS_EVENTS_CHANNEL"); val != "" {
		cfg.Events.Channel = val
	}
	if val := os.Getenv("POLARIS_REDIS_ADDR"); val != "" {
		cfg.Events.Redis.Addr = val
	}
	if val := os.Getenv("POLARIS_REDIS_PASSWORD"); val != "" {
		cfg.Events.Redis.Password = val
	}
	if val := os.Getenv("POLARIS_REDIS_DB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Events.Redis.DB = n
		}
	}

	// Resync overrides
	if val := os.Getenv("POLARIS_RESYNC_SCHEDULE"); val != "" {
		cfg.Resync.Schedule = val
	}
}
