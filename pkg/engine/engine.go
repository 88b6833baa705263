package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// DefaultModel is the RBAC-with-domains model used for permission checks.
// Policies carry a role identifier as subject; role inheritance is
// expanded through the domain-aware grouping definition, and object and
// action strings are matched with keyMatch wildcards.
const DefaultModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && keyMatch(r.dom, p.dom) && keyMatch(r.obj, p.obj) && keyMatch(r.act, p.act)
`

// AnyDomain is the wildcard domain used by rules and role links that
// are not scoped to a particular domain.
const AnyDomain = "*"

// Engine is the enforcement engine boundary consumed by policy loaders
// and the permission checker. Replace swaps in a complete rule set
// atomically; Check evaluates a single authorization request against
// whatever rule set is currently active.
type Engine interface {
	// Replace atomically replaces the entire policy rule set.
	// Each tuple is (subject, domain, object, action).
	Replace(tuples [][]string) error

	// Check evaluates an authorization request. It returns the decision
	// and any evaluation error; callers that need fail-closed semantics
	// must treat an error as a denial themselves.
	Check(subject, domain, object, action string) (bool, error)

	// AddRoleLink grants subject membership in role within domain.
	// Links survive Replace.
	AddRoleLink(subject, role, domain string) error

	// RemoveRoleLink revokes a previously granted role link.
	RemoveRoleLink(subject, role, domain string) error

	// RuleCount returns the number of policy rules currently active.
	RuleCount() int

	// Close releases the engine. The engine must not be used afterwards.
	Close() error
}

// CasbinEngine implements Engine on top of a Casbin enforcer.
//
// Rule replacement is copy-then-swap: a fresh enforcer is built from the
// model text, populated with the recorded role links and the new rule
// set, and then installed with an atomic pointer swap. Readers never
// take a lock and never observe an empty or half-built rule set.
type CasbinEngine struct {
	modelText string
	logger    *slog.Logger

	current atomic.Pointer[casbin.Enforcer]

	mu        sync.Mutex // guards links, ruleCount and Replace ordering
	links     [][]string
	ruleCount int
	closed    bool
}

// NewCasbinEngine creates an engine with an empty rule set. An empty
// modelText selects DefaultModel.
func NewCasbinEngine(modelText string, logger *slog.Logger) (*CasbinEngine, error) {
	if modelText == "" {
		modelText = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &CasbinEngine{
		modelText: modelText,
		logger:    logger.With("component", "engine"),
	}

	enforcer, err := e.buildEnforcer(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build enforcer: %w", err)
	}
	e.current.Store(enforcer)

	return e, nil
}

// buildEnforcer constructs a fully populated enforcer from scratch.
func (e *CasbinEngine) buildEnforcer(links, tuples [][]string) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(e.modelText)
	if err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	if len(links) > 0 {
		if _, err := enforcer.AddGroupingPolicies(links); err != nil {
			return nil, fmt.Errorf("failed to add role links: %w", err)
		}
	}

	if len(tuples) > 0 {
		if _, err := enforcer.AddPolicies(tuples); err != nil {
			return nil, fmt.Errorf("failed to add policies: %w", err)
		}
	}

	return enforcer, nil
}

// Replace implements Engine. The new rule set becomes visible to Check
// callers in a single pointer swap.
func (e *CasbinEngine) Replace(tuples [][]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine is closed")
	}

	enforcer, err := e.buildEnforcer(e.links, tuples)
	if err != nil {
		return fmt.Errorf("failed to rebuild rule set: %w", err)
	}

	e.current.Store(enforcer)
	e.ruleCount = len(tuples)

	e.logger.Debug("rule set replaced", "rules", len(tuples))
	return nil
}

// Check implements Engine.
func (e *CasbinEngine) Check(subject, domain, object, action string) (bool, error) {
	enforcer := e.current.Load()
	if enforcer == nil {
		return false, fmt.Errorf("engine is closed")
	}
	return enforcer.Enforce(subject, domain, object, action)
}

// AddRoleLink implements Engine. The link is applied to the active
// enforcer and recorded so subsequent Replace calls preserve it.
func (e *CasbinEngine) AddRoleLink(subject, role, domain string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine is closed")
	}

	enforcer := e.current.Load()
	if _, err := enforcer.AddGroupingPolicy(subject, role, domain); err != nil {
		return fmt.Errorf("failed to add role link: %w", err)
	}

	e.links = append(e.links, []string{subject, role, domain})
	return nil
}

// RemoveRoleLink implements Engine.
func (e *CasbinEngine) RemoveRoleLink(subject, role, domain string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine is closed")
	}

	enforcer := e.current.Load()
	if _, err := enforcer.RemoveGroupingPolicy(subject, role, domain); err != nil {
		return fmt.Errorf("failed to remove role link: %w", err)
	}

	kept := e.links[:0]
	for _, l := range e.links {
		if l[0] == subject && l[1] == role && l[2] == domain {
			continue
		}
		kept = append(kept, l)
	}
	e.links = kept
	return nil
}

// RuleCount implements Engine.
func (e *CasbinEngine) RuleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ruleCount
}

// Close implements Engine. It is idempotent.
func (e *CasbinEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	e.closed = true
	e.current.Store(nil)
	e.links = nil
	e.ruleCount = 0
	return nil
}
