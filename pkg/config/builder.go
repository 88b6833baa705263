package config

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"polaris-auth/polaris/pkg/permission"
	"polaris-auth/polaris/pkg/policy"
	"polaris-auth/polaris/pkg/version"
)

// SourceConfig translates the source section into the policy
// package's configuration type.
func (c *Config) SourceConfig() (policy.SourceConfig, error) {
	sourceType, err := policy.ParseSourceType(c.Source.Type)
	if err != nil {
		return policy.SourceConfig{}, fmt.Errorf("translating source configuration: %w", err)
	}
	return policy.SourceConfig{
		Type:      sourceType,
		Location:  c.Source.Location,
		Resources: c.Source.Resources,
	}, nil
}

// PollingConfig translates the polling section into the version
// package's configuration type. A disabled section translates to a
// disabled configuration without touching the source type.
func (c *Config) PollingConfig() (version.PollingConfig, error) {
	if !c.Polling.Enabled {
		return version.PollingConfig{}, nil
	}
	sourceType, err := version.ParseSourceType(c.Polling.SourceType)
	if err != nil {
		return version.PollingConfig{}, fmt.Errorf("translating polling configuration: %w", err)
	}
	return version.PollingConfig{
		Enabled:    true,
		Interval:   c.Polling.Interval.Std(),
		SourceType: sourceType,
		Source:     c.Polling.Source,
	}, nil
}

// RedisClient builds a client for the configured Redis instance, or
// nil when events are disabled. The caller owns the client and closes
// it on shutdown.
func (c *Config) RedisClient() redis.UniversalClient {
	if !c.Events.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Events.Redis.Addr,
		Password: c.Events.Redis.Password,
		DB:       c.Events.Redis.DB,
	})
}

// CheckerOptions assembles permission.Options from the configuration.
// The db handle is required for database-backed sources or version
// checks and may be nil otherwise; the redis client is typically the
// one returned by RedisClient.
func (c *Config) CheckerOptions(db *sql.DB, redisClient redis.UniversalClient, logger *slog.Logger, metrics *permission.Metrics) (permission.Options, error) {
	source, err := c.SourceConfig()
	if err != nil {
		return permission.Options{}, err
	}
	polling, err := c.PollingConfig()
	if err != nil {
		return permission.Options{}, err
	}

	return permission.Options{
		Source:         source,
		Polling:        polling,
		EventChannel:   c.Events.Channel,
		ResyncSchedule: c.Resync.Schedule,
		WatchFile:      c.Source.Watch,
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		Metrics:        metrics,
	}, nil
}
