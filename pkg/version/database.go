package version

import (
	"context"
	"database/sql"
	"log/slog"
)

// DatabaseChecker reads the version marker with a caller-supplied
// single-column SQL query, typically something like
//
//	SELECT CAST(strftime('%s', MAX(updated_at)) AS INTEGER) FROM policies
//
// Query failures are logged and reported as an absent version.
type DatabaseChecker struct {
	db     *sql.DB
	query  string
	logger *slog.Logger
}

// NewDatabaseChecker creates a database-backed version checker.
func NewDatabaseChecker(db *sql.DB, query string, logger *slog.Logger) *DatabaseChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseChecker{
		db:     db,
		query:  query,
		logger: logger.With("component", "version.database"),
	}
}

// Current implements Checker.
func (c *DatabaseChecker) Current(ctx context.Context) (int64, bool) {
	var version sql.NullInt64
	if err := c.db.QueryRowContext(ctx, c.query).Scan(&version); err != nil {
		c.logger.Error("failed to read version from database",
			"query", c.query,
			"error", err,
		)
		return 0, false
	}
	if !version.Valid {
		// MAX() over an empty table yields NULL; treat as no version.
		return 0, false
	}
	return version.Int64, true
}

// Available implements Checker.
func (c *DatabaseChecker) Available(ctx context.Context) bool {
	var version sql.NullInt64
	if err := c.db.QueryRowContext(ctx, c.query).Scan(&version); err != nil {
		c.logger.Warn("database version source unavailable",
			"query", c.query,
			"error", err,
		)
		return false
	}
	return true
}

// Describe implements Checker.
func (c *DatabaseChecker) Describe() string {
	return "database version checker using: " + c.query
}
