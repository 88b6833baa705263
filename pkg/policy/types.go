package policy

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"

	"polaris-auth/polaris/pkg/engine"
)

// Rule is a single access grant: role RoleID may perform Action on
// Resource. Rules are immutable values produced by a Loader and
// consumed in bulk by the enforcement engine; this subsystem never
// persists them.
type Rule struct {
	ID       int64
	RoleID   int64
	Resource string
	Action   string
}

// Tuple converts the rule to the engine's (subject, domain, object,
// action) form. Rules are domain-agnostic, so the domain slot carries
// the match-anything wildcard.
func (r Rule) Tuple() []string {
	return []string{strconv.FormatInt(r.RoleID, 10), engine.AnyDomain, r.Resource, r.Action}
}

func (r Rule) String() string {
	return fmt.Sprintf("rule[%d: %d->%s:%s]", r.ID, r.RoleID, r.Resource, r.Action)
}

// Filter is a resource-code allowlist. An empty filter loads
// everything; a non-empty filter keeps only rules whose resource code
// is a member.
type Filter []string

// Empty reports whether the filter admits all rules.
func (f Filter) Empty() bool {
	return len(f) == 0
}

// Contains reports whether resource is in the allowlist.
func (f Filter) Contains(resource string) bool {
	return lo.Contains(f, resource)
}

// Apply returns the rules admitted by the filter. An empty filter
// returns the input unchanged.
func (f Filter) Apply(rules []Rule) []Rule {
	if f.Empty() {
		return rules
	}
	return lo.Filter(rules, func(r Rule, _ int) bool {
		return f.Contains(r.Resource)
	})
}

// SourceType identifies the kind of policy source. It is a closed set;
// ParseSourceType is the only way to obtain one from configuration
// text, and it rejects anything outside the set.
type SourceType int

const (
	// SourceDatabase loads rules with a SQL query against a relational
	// source.
	SourceDatabase SourceType = iota + 1

	// SourceFile loads rules from a line-oriented rule file.
	SourceFile

	// SourceAPI loads rules from a remote HTTP endpoint.
	SourceAPI
)

// String implements fmt.Stringer.
func (t SourceType) String() string {
	switch t {
	case SourceDatabase:
		return "database"
	case SourceFile:
		return "file"
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
	case "file", "resource":
		return SourceFile, nil
	case "api":
		return SourceAPI, nil
	default:
		return 0, &ConfigError{Field: "source.type", Message: fmt.Sprintf("unsupported source type %q", s)}
	}
}

// SourceConfig selects and parametrizes exactly one Loader. It is
// immutable after the permission checker initializes.
type SourceConfig struct {
	// Type selects the loader variant.
	Type SourceType

	// Location is source-specific: the SQL query for SourceDatabase,
	// the rule file path for SourceFile, the endpoint URL for SourceAPI.
	Location string

	// Resources restricts which rules this instance loads. Empty loads
	// everything.
	Resources Filter
}

// Validate checks that the configuration is complete.
func (c SourceConfig) Validate() error {
	switch c.Type {
	case SourceDatabase, SourceFile, SourceAPI:
	default:
		return &ConfigError{Field: "source.type", Message: "source type is required"}
	}
	if c.Location == "" {
		return &ConfigError{Field: "source.location", Message: "source location is required"}
	}
	return nil
}
