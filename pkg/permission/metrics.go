package permission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks permission checking and reload activity.
//
// Metrics:
//   - polaris_permission_checks_total: Permission checks by decision
//   - polaris_permission_check_duration_seconds: Check latency
//   - polaris_permission_reloads_total: Policy reloads by trigger and outcome
//   - polaris_permission_rules_loaded: Rules currently held by the engine
//
// All methods are safe on a nil receiver, so callers that do not care
// about telemetry simply pass no Metrics.
type Metrics struct {
	checksTotal   *prometheus.CounterVec
	checkDuration prometheus.Histogram
	reloadsTotal  *prometheus.CounterVec
	rulesLoaded   prometheus.Gauge
}

// NewMetrics creates and registers permission metrics with the
// provided registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "polaris",
				Subsystem: "permission",
				Name:      "checks_total",
				Help:      "Total number of permission checks",
			},
			[]string{"decision"},
		),

		checkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "polaris",
				Subsystem: "permission",
				Name:      "check_duration_seconds",
				Help:      "Duration of permission checks in seconds",
				// Checks run against an in-memory enforcer (< 1ms)
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "polaris",
				Subsystem: "permission",
				Name:      "reloads_total",
				Help:      "Total number of policy reloads",
			},
			[]string{"trigger", "outcome"},
		),

		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "polaris",
				Subsystem: "permission",
				Name:      "rules_loaded",
				Help:      "Number of policy rules currently loaded",
			},
		),
	}

	registry.MustRegister(
		m.checksTotal,
		m.checkDuration,
		m.reloadsTotal,
		m.rulesLoaded,
	)

	return m
}

// ObserveCheck records one permission check.
func (m *Metrics) ObserveCheck(allowed bool, duration time.Duration) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.checksTotal.WithLabelValues(decision).Inc()
	m.checkDuration.Observe(duration.Seconds())
}

// ObserveReload records one reload attempt.
func (m *Metrics) ObserveReload(trigger string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.reloadsTotal.WithLabelValues(trigger, outcome).Inc()
}

// SetRulesLoaded records the engine's current rule count.
func (m *Metrics) SetRulesLoaded(n int) {
	if m == nil {
		return
	}
	m.rulesLoaded.Set(float64(n))
}
