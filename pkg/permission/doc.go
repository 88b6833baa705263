// Package permission orchestrates policy enforcement: it owns the
// enforcement engine, loads policies from the configured source, and
// keeps them current through version polling, pub/sub notifications,
// file watching and scheduled resyncs.
//
// A Checker moves through a strict lifecycle. It is constructed idle,
// initialized exactly once with Init, serves Check calls while ready,
// and is torn down with Close. Every path that refreshes policies
// funnels through a single internal reload routine, so concurrent
// triggers from different subsystems coalesce instead of stacking up.
package permission
