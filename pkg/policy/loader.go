package policy

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"polaris-auth/polaris/pkg/engine"
)

// Loader fetches the full rule set from a policy source and installs
// it into the enforcement engine as one atomic bulk replacement. The
// configured resource filter is applied before the install, never
// after, so the engine only ever holds admitted rules.
type Loader interface {
	// Load replaces the engine's entire rule set from the source.
	Load(ctx context.Context, eng engine.Engine) error

	// Describe returns a human-readable description for diagnostics.
	Describe() string
}

// NewLoader constructs the Loader selected by cfg. The db handle is
// required for SourceDatabase and ignored otherwise.
func NewLoader(cfg SourceConfig, db *sql.DB, logger *slog.Logger) (Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SourceDatabase:
		if db == nil {
			return nil, &ConfigError{Field: "source", Message: "database handle is required for the database source"}
		}
		return NewDatabaseLoader(db, cfg.Location, cfg.Resources, logger), nil
	case SourceFile:
		return NewFileLoader(cfg.Location, cfg.Resources, nil, logger), nil
	case SourceAPI:
		return NewAPILoader(cfg.Location, cfg.Resources, logger), nil
	default:
		// Unreachable after Validate; kept for exhaustiveness.
		return nil, &ConfigError{Field: "source.type", Message: "unsupported source type"}
	}
}

// installRules is the shared final step of every loader variant: convert
// the filtered rules to engine tuples and perform a single bulk
// replacement. Bulk replacement is used instead of per-rule insertion
// because rule sets routinely reach thousands of rows.
func installRules(eng engine.Engine, rules []Rule, source string, start time.Time, logger *slog.Logger) error {
	tuples := make([][]string, 0, len(rules))
	for _, r := range rules {
		tuples = append(tuples, r.Tuple())
	}

	if err := eng.Replace(tuples); err != nil {
		return err
	}

	logger.Info("policies loaded",
		"source", source,
		"count", len(rules),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
