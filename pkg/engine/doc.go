// Package engine wraps the Casbin authorization engine behind a small
// interface suited to bulk policy replacement.
//
// The central type is CasbinEngine, which keeps the currently active
// enforcer behind an atomic pointer. Replace builds a complete new
// enforcer from the incoming rule set and swaps it in, so concurrent
// Check calls always observe either the previous or the new rule set,
// never a partially loaded one.
//
// The RBAC model (subject, domain, object, action with role inheritance
// and keyMatch wildcards) is fixed by DefaultModel; callers that need a
// different matcher can pass their own model text to NewCasbinEngine.
package engine
