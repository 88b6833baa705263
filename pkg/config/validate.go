package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific
// configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g.
	// "polling.interval").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. All field errors are collected and returned
// together.
type ValidationError struct {
	// Errors contains all validation errors found in the
	// configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a
// ValidationError if any rules fail. It returns nil when the
// configuration is valid.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateSource(&cfg.Source)...)
	errs = append(errs, validatePolling(&cfg.Polling)...)
	errs = append(errs, validateEvents(&cfg.Events)...)
	errs = append(errs, validateResync(&cfg.Resync)...)

	// A static file has no external version to poll.
	if cfg.Polling.Enabled && isFileSource(cfg.Source.Type) {
		errs = append(errs, FieldError{
			Field:   "polling.enabled",
			Message: "version polling cannot be enabled for the file source type",
		})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func isFileSource(sourceType string) bool {
	return sourceType == "file" || sourceType == "resource"
}

func validateSource(cfg *SourceConfig) []FieldError {
	var errs []FieldError

	switch cfg.Type {
	case "database", "file", "resource", "api":
	case "":
		errs = append(errs, FieldError{Field: "source.type", Message: "source type is required"})
	default:
		errs = append(errs, FieldError{
			Field:   "source.type",
			Message: fmt.Sprintf("unsupported source type %q (expected database, file or api)", cfg.Type),
		})
	}

	if cfg.Location == "" {
		errs = append(errs, FieldError{Field: "source.location", Message: "source location is required"})
	}

	if cfg.Type == "api" && cfg.Location != "" {
		if _, err := url.ParseRequestURI(cfg.Location); err != nil {
			errs = append(errs, FieldError{
				Field:   "source.location",
				Message: fmt.Sprintf("invalid endpoint URL: %v", err),
			})
		}
	}

	if cfg.Watch && !isFileSource(cfg.Type) {
		errs = append(errs, FieldError{
			Field:   "source.watch",
			Message: "watch is only supported for the file source type",
		})
	}

	return errs
}

func validatePolling(cfg *PollingConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError

	if cfg.Interval.Std() < time.Minute {
		errs = append(errs, FieldError{
			Field:   "polling.interval",
			Message: fmt.Sprintf("interval %s is below the minimum of 1m", cfg.Interval.Std()),
		})
	}

	switch cfg.SourceType {
	case "database", "api":
	case "":
		errs = append(errs, FieldError{Field: "polling.source_type", Message: "version source type is required when polling is enabled"})
	default:
		errs = append(errs, FieldError{
			Field:   "polling.source_type",
			Message: fmt.Sprintf("unsupported version source type %q (expected database or api)", cfg.SourceType),
		})
	}

	if cfg.Source == "" {
		errs = append(errs, FieldError{Field: "polling.source", Message: "version source is required when polling is enabled"})
	}

	return errs
}

func validateEvents(cfg *EventsConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if cfg.Redis.Addr == "" {
		errs = append(errs, FieldError{Field: "events.redis.addr", Message: "redis address is required when events are enabled"})
	}
	if cfg.Redis.DB < 0 {
		errs = append(errs, FieldError{Field: "events.redis.db", Message: "redis db must not be negative"})
	}
	return errs
}

func validateResync(cfg *ResyncConfig) []FieldError {
	if cfg.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return []FieldError{{
			Field:   "resync.schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		}}
	}
	return nil
}
