// Package version detects policy drift without transferring the full
// rule set.
//
// A Checker returns an opaque, monotonically comparable version marker
// for the authoritative policy data (for example MAX(updated_at) as
// epoch seconds, or a counter served by an API). Checkers never return
// errors: any failure collapses to "no version available", so a flaky
// source can only delay drift detection, never break callers.
//
// The Poller asks its Checker for the current version on a fixed-delay
// schedule, compares by equality against a cached value, and fires a
// reload callback when they differ. Equality rather than ordering is
// deliberate; a version that moves backward (a source rollback) is
// change like any other and triggers the same full reload.
package version
