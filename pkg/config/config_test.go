package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"polaris-auth/polaris/pkg/policy"
	"polaris-auth/polaris/pkg/version"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "polaris.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const fullConfig = `
source:
  type: database
  location: "SELECT id, role_id, resource_code, action_code FROM policies"
  resources: [orders, invoices]
polling:
  enabled: true
  interval: 2m
  source_type: database
  source: "SELECT MAX(version) FROM policy_versions"
events:
  enabled: true
  channel: "custom:changes"
  redis:
    addr: "redis.internal:6379"
    db: 2
resync:
  schedule: "0 3 * * *"
`

func TestLoadConfig_Full(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}

	if cfg.Source.Type != "database" {
		t.Errorf("source type = %q", cfg.Source.Type)
	}
	if len(cfg.Source.Resources) != 2 {
		t.Errorf("resources = %v", cfg.Source.Resources)
	}
	if cfg.Polling.Interval.Std() != 2*time.Minute {
		t.Errorf("interval = %s, want 2m", cfg.Polling.Interval.Std())
	}
	if cfg.Events.Channel != "custom:changes" {
		t.Errorf("channel = %q", cfg.Events.Channel)
	}
	if cfg.Events.Redis.DB != 2 {
		t.Errorf("redis db = %d", cfg.Events.Redis.DB)
	}
	if cfg.Resync.Schedule != "0 3 * * *" {
		t.Errorf("schedule = %q", cfg.Resync.Schedule)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
source:
  location: ./policies.csv
`))
	if err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}

	if cfg.Source.Type != DefaultSourceType {
		t.Errorf("source type = %q, want %q", cfg.Source.Type, DefaultSourceType)
	}
	if cfg.Polling.Interval.Std() != DefaultPollingInterval {
		t.Errorf("interval = %s, want %s", cfg.Polling.Interval.Std(), DefaultPollingInterval)
	}
	if cfg.Events.Channel != DefaultEventChannel {
		t.Errorf("channel = %q, want %q", cfg.Events.Channel, DefaultEventChannel)
	}
	if cfg.Events.Redis.Addr != DefaultRedisAddr {
		t.Errorf("redis addr = %q, want %q", cfg.Events.Redis.Addr, DefaultRedisAddr)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig() should fail for a missing file")
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
source:
  location: ./policies.csv
polling:
  interval: banana
`))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("LoadConfig() = %v, want invalid duration error", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Source: SourceConfig{Type: "file", Location: "./policies.csv"}}
		ApplyDefaults(cfg)
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown source type", func(c *Config) { c.Source.Type = "ldap" }, "source.type"},
		{"missing location", func(c *Config) { c.Source.Location = "" }, "source.location"},
		{"watch on non-file source", func(c *Config) {
			c.Source.Type = "database"
			c.Source.Watch = true
		}, "source.watch"},
		{"bad api url", func(c *Config) {
			c.Source.Type = "api"
			c.Source.Location = "not a url"
		}, "source.location"},
		{"polling interval too short", func(c *Config) {
			c.Polling = PollingConfig{Enabled: true, Interval: Duration(30 * time.Second), SourceType: "database", Source: "q"}
		}, "polling.interval"},
		{"polling without source", func(c *Config) {
			c.Polling = PollingConfig{Enabled: true, Interval: Duration(time.Minute), SourceType: "api"}
		}, "polling.source"},
		{"polling with file source", func(c *Config) {
			c.Polling = PollingConfig{Enabled: true, Interval: Duration(time.Minute), SourceType: "database", Source: "q"}
		}, "polling.enabled"},
		{"resource alias accepted", func(c *Config) { c.Source.Type = "resource" }, ""},
		{"events without redis addr", func(c *Config) {
			c.Events = EventsConfig{Enabled: true}
		}, "events.redis.addr"},
		{"bad resync schedule", func(c *Config) {
			c.Resync.Schedule = "whenever"
		}, "resync.schedule"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Source:  SourceConfig{Type: "ldap"},
		Polling: PollingConfig{Enabled: true},
	}
	err := Validate(cfg)
	var verr ValidationError
	if ok := errorsAs(err, &verr); !ok {
		t.Fatalf("Validate() = %T, want ValidationError", err)
	}
	if len(verr.Errors) < 4 {
		t.Fatalf("collected %d errors, want at least 4: %v", len(verr.Errors), verr)
	}
}

func errorsAs(err error, target *ValidationError) bool {
	verr, ok := err.(ValidationError)
	if ok {
		*target = verr
	}
	return ok
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLARIS_SOURCE_TYPE", "api")
	t.Setenv("POLARIS_SOURCE_LOCATION", "http://policies.internal/api/policies")
	t.Setenv("POLARIS_SOURCE_RESOURCES", "orders,reports")
	t.Setenv("POLARIS_POLLING_ENABLED", "true")
	t.Setenv("POLARIS_POLLING_INTERVAL", "5m")
	t.Setenv("POLARIS_POLLING_SOURCE_TYPE", "api")
	t.Setenv("POLARIS_POLLING_SOURCE", "http://policies.internal/api/version")
	t.Setenv("POLARIS_REDIS_ADDR", "redis.override:6379")

	cfg, err := LoadConfigWithEnvOverrides(writeConfig(t, `
source:
  type: file
  location: ./policies.csv
`))
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() = %v", err)
	}

	if cfg.Source.Type != "api" {
		t.Errorf("source type = %q, want api", cfg.Source.Type)
	}
	if len(cfg.Source.Resources) != 2 {
		t.Errorf("resources = %v", cfg.Source.Resources)
	}
	if cfg.Polling.Interval.Std() != 5*time.Minute {
		t.Errorf("interval = %s, want 5m", cfg.Polling.Interval.Std())
	}
	if cfg.Events.Redis.Addr != "redis.override:6379" {
		t.Errorf("redis addr = %q", cfg.Events.Redis.Addr)
	}
}

func TestBuilder_Translations(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}

	source, err := cfg.SourceConfig()
	if err != nil {
		t.Fatalf("SourceConfig() = %v", err)
	}
	if source.Type != policy.SourceDatabase {
		t.Errorf("source type = %v, want database", source.Type)
	}
	if len(source.Resources) != 2 {
		t.Errorf("resources = %v", source.Resources)
	}

	polling, err := cfg.PollingConfig()
	if err != nil {
		t.Fatalf("PollingConfig() = %v", err)
	}
	if !polling.Enabled || polling.SourceType != version.SourceDatabase {
		t.Errorf("polling = %+v", polling)
	}
	if err := polling.Validate(); err != nil {
		t.Errorf("translated polling config invalid: %v", err)
	}

	opts, err := cfg.CheckerOptions(nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("CheckerOptions() = %v", err)
	}
	if opts.EventChannel != "custom:changes" {
		t.Errorf("event channel = %q", opts.EventChannel)
	}
	if opts.ResyncSchedule != "0 3 * * *" {
		t.Errorf("resync schedule = %q", opts.ResyncSchedule)
	}
}

func TestBuilder_RedisClient(t *testing.T) {
	cfg := &Config{}
	if cfg.RedisClient() != nil {
		t.Fatal("RedisClient() should be nil when events are disabled")
	}

	cfg.Events.Enabled = true
	cfg.Events.Redis.Addr = "127.0.0.1:6379"
	client := cfg.RedisClient()
	if client == nil {
		t.Fatal("RedisClient() = nil with events enabled")
	}
	client.Close()
}
