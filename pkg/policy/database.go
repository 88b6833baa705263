package policy

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"polaris-auth/polaris/pkg/engine"
)

// DatabaseLoader loads rules by running a caller-supplied SQL query
// against a relational source. The query must select the columns
// id, role_id, resource_code and action_code. When a resource filter
// is configured the query is rewritten with a parameterized
// resource_code IN (...) predicate so filtering happens server-side
// and unneeded rows are never transferred.
type DatabaseLoader struct {
	db     *sql.DB
	query  string
	filter Filter
	logger *slog.Logger
}

// NewDatabaseLoader creates a database-backed loader.
func NewDatabaseLoader(db *sql.DB, query string, filter Filter, logger *slog.Logger) *DatabaseLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseLoader{
		db:     db,
		query:  query,
		filter: filter,
		logger: logger.With("component", "policy.database"),
	}
}

// Load implements Loader.
func (l *DatabaseLoader) Load(ctx context.Context, eng engine.Engine) error {
	start := time.Now()
	l.logger.Debug("loading policies from database", "query", l.query)

	rules, err := l.fetchRules(ctx)
	if err != nil {
		return err
	}

	return installRules(eng, rules, "database", start, l.logger)
}

// Describe implements Loader.
func (l *DatabaseLoader) Describe() string {
	return "database policy loader using: " + l.query
}

func (l *DatabaseLoader) fetchRules(ctx context.Context) ([]Rule, error) {
	query := l.query
	var args []any
	if !l.filter.Empty() {
		query = addResourcePredicate(query, len(l.filter))
		args = make([]any, len(l.filter))
		for i, r := range l.filter {
			args[i] = r
		}
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &SourceUnavailableError{Source: query, Op: "query", Cause: err}
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.RoleID, &r.Resource, &r.Action); err != nil {
			return nil, &SourceUnavailableError{Source: query, Op: "scan", Cause: err}
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &SourceUnavailableError{Source: query, Op: "iterate", Cause: err}
	}

	return rules, nil
}

// addResourcePredicate appends a parameterized resource_code IN (...)
// predicate to the query, joining with AND when the query already has
// a WHERE clause.
func addResourcePredicate(query string, n int) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", n), ",")
	predicate := "resource_code IN (" + placeholders + ")"

	if strings.Contains(strings.ToUpper(query), "WHERE") {
		return query + " AND " + predicate
	}
	return query + " WHERE " + predicate
}
