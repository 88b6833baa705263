package version

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Checker reports the current version of the authoritative policy
// data. Implementations must never return an error; failures collapse
// to an absent version or an unavailable source so that callers need
// no failure handling beyond skipping a tick.
type Checker interface {
	// Current returns the source's version marker, or false when the
	// source cannot be reached or produced no version.
	Current(ctx context.Context) (int64, bool)

	// Available reports whether the source can currently serve
	// versions. Used once at poller start to decide whether polling is
	// worth scheduling at all.
	Available(ctx context.Context) bool

	// Describe returns a human-readable description for diagnostics.
	Describe() string
}

// SourceType identifies the kind of version source.
type SourceType int

const (
	// SourceDatabase reads the version with a single-column SQL query.
	SourceDatabase SourceType = iota + 1

	// SourceAPI reads the version from a remote HTTP endpoint.
	SourceAPI
)

// String implements fmt.Stringer.
func (t SourceType) String() string {
	switch t {
	case SourceDatabase:
		return "database"
	case SourceAPI:
		return "api"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseSourceType maps configuration text onto a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch s {
	case "database":
		return SourceDatabase, nil
	case "api":
		return SourceAPI, nil
	default:
		return 0, &ConfigError{Field: "polling.source_type", Message: fmt.Sprintf("unsupported version source type %q", s)}
	}
}

// NewChecker constructs the Checker selected by sourceType. The db
// handle is required for SourceDatabase and ignored otherwise.
func NewChecker(sourceType SourceType, source string, db *sql.DB, logger *slog.Logger) (Checker, error) {
	if source == "" {
		return nil, &ConfigError{Field: "polling.source", Message: "version source is required"}
	}

	switch sourceType {
	case SourceDatabase:
		if db == nil {
			return nil, &ConfigError{Field: "polling.source", Message: "database handle is required for the database version source"}
		}
		return NewDatabaseChecker(db, source, logger), nil
	case SourceAPI:
		return NewAPIChecker(source, logger), nil
	default:
		return nil, &ConfigError{Field: "polling.source_type", Message: "unsupported version source type"}
	}
}

// ConfigError indicates a missing or invalid polling configuration
// value. It is fatal at construction time.
type ConfigError struct {
	// Field is the configuration field at fault.
	Field string

	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("version configuration error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("version configuration error: %s", e.Message)
}
