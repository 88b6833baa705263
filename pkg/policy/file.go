package policy

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"polaris-auth/polaris/pkg/engine"
)

// ContentResolver resolves a configured rule-file location to its raw
// content. The default reads from the local filesystem; hosts that
// keep rule files in a mode-scoped configuration store supply their
// own resolver.
type ContentResolver func(location string) ([]byte, error)

// FileLoader loads rules from a line-oriented rule file. Each
// non-empty, non-comment line has the shape
//
//	p,<roleId>,<resourceCode>,<actionCode>
//
// Malformed lines are skipped with a warning; a single bad line never
// fails the load. Filtering is applied client-side after parsing.
type FileLoader struct {
	location string
	filter   Filter
	resolve  ContentResolver
	logger   *slog.Logger
}

// NewFileLoader creates a file-backed loader. A nil resolver reads the
// location as a filesystem path.
func NewFileLoader(location string, filter Filter, resolve ContentResolver, logger *slog.Logger) *FileLoader {
	if resolve == nil {
		resolve = os.ReadFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLoader{
		location: location,
		filter:   filter,
		resolve:  resolve,
		logger:   logger.With("component", "policy.file"),
	}
}

// Load implements Loader.
func (l *FileLoader) Load(ctx context.Context, eng engine.Engine) error {
	start := time.Now()
	l.logger.Debug("loading policies from file", "location", l.location)

	content, err := l.resolve(l.location)
	if err != nil {
		return &SourceUnavailableError{Source: l.location, Op: "read", Cause: err}
	}

	rules := l.filter.Apply(l.parse(string(content)))
	return installRules(eng, rules, "file", start, l.logger)
}

// Describe implements Loader.
func (l *FileLoader) Describe() string {
	return "file policy loader using: " + l.location
}

func (l *FileLoader) parse(content string) []Rule {
	var rules []Rule

	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 4 || strings.TrimSpace(parts[0]) != "p" {
			l.logger.Warn("skipping malformed policy line",
				"location", l.location,
				"line", i+1,
			)
			continue
		}

		roleID, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			l.logger.Warn("skipping policy line with invalid role id",
				"location", l.location,
				"line", i+1,
			)
			continue
		}

		rules = append(rules, Rule{
			ID:       int64(i + 1), // line number stands in for an id
			RoleID:   roleID,
			Resource: strings.TrimSpace(parts[2]),
			Action:   strings.TrimSpace(parts[3]),
		})
	}

	return rules
}
