package config

import "time"

// Default values for configuration fields.
const (
	// Source defaults
	DefaultSourceType = "file"

	// Polling defaults
	DefaultPollingInterval = time.Minute

	// Events defaults
	DefaultEventChannel = "polaris:policy:changes"
	DefaultRedisAddr    = "127.0.0.1:6379"
)

// ApplyDefaults fills in default values for any unset configuration
// fields. It modifies the configuration in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Source.Type == "" {
		cfg.Source.Type = DefaultSourceType
	}
	if cfg.Polling.Interval == 0 {
		cfg.Polling.Interval = Duration(DefaultPollingInterval)
	}
	if cfg.Events.Channel == "" {
		cfg.Events.Channel = DefaultEventChannel
	}
	if cfg.Events.Redis.Addr == "" {
		cfg.Events.Redis.Addr = DefaultRedisAddr
	}
}
