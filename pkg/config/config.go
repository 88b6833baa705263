package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the permission
// checking subsystem.
type Config struct {
	// Source selects where policy rules are loaded from.
	Source SourceConfig `yaml:"source"`

	// Polling configures background version drift detection.
	Polling PollingConfig `yaml:"polling"`

	// Events configures the Redis pub/sub channel for reload
	// notifications shared across instances.
	Events EventsConfig `yaml:"events"`

	// Resync configures periodic full reloads on a cron schedule.
	Resync ResyncConfig `yaml:"resync"`
}

// SourceConfig selects and parameterizes the policy source.
type SourceConfig struct {
	// Type is the source kind: "database", "file" or "api"
	// ("resource" is accepted as an alias for "file").
	// Default: "file"
	Type string `yaml:"type"`

	// Location is source-specific: the SQL query for "database", the
	// file path for "file", the endpoint URL for "api".
	Location string `yaml:"location"`

	// Resources optionally restricts loading to the named resource
	// codes. Empty loads everything.
	Resources []string `yaml:"resources"`

	// Watch enables hot reload on file modification. Only valid for
	// the "file" source type.
	// Default: false
	Watch bool `yaml:"watch"`
}

// PollingConfig configures the version poller.
type PollingConfig struct {
	// Enabled turns background version polling on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Interval is the fixed delay between version checks. Must be at
	// least one minute.
	// Default: 1m
	Interval Duration `yaml:"interval"`

	// SourceType is the version source kind: "database" or "api".
	SourceType string `yaml:"source_type"`

	// Source is source-specific: the SQL query for "database", the
	// endpoint URL for "api".
	Source string `yaml:"source"`
}

// EventsConfig configures the reload notification bus.
type EventsConfig struct {
	// Enabled turns pub/sub reload notifications on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Channel is the pub/sub channel name.
	// Default: "polaris:policy:changes"
	Channel string `yaml:"channel"`

	// Redis holds connection settings for the shared Redis instance.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Addr is the "host:port" of the Redis server.
	// Default: "127.0.0.1:6379"
	Addr string `yaml:"addr"`

	// Password authenticates against the server. Empty disables
	// authentication.
	Password string `yaml:"password"`

	// DB selects the logical database.
	// Default: 0
	DB int `yaml:"db"`
}

// ResyncConfig configures scheduled full reloads.
type ResyncConfig struct {
	// Schedule is a standard cron expression. Empty disables the
	// scheduler.
	Schedule string `yaml:"schedule"`
}

// Duration wraps time.Duration so YAML values can be written in the
// usual "30s" / "5m" notation.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
