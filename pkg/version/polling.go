package version

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MinimumInterval is the lowest polling interval accepted by
// configuration validation, bounding the load placed on the version
// source by a fleet of instances.
const MinimumInterval = time.Minute

// unknownVersion is the cache sentinel used before the first
// successful version observation.
const unknownVersion = -1

// PollingConfig governs whether and how the version Poller runs.
type PollingConfig struct {
	// Enabled turns background version polling on.
	Enabled bool

	// Interval is the fixed delay between polling ticks. Must be at
	// least MinimumInterval.
	Interval time.Duration

	// SourceType selects the version checker variant.
	SourceType SourceType

	// Source is source-specific: the SQL query for SourceDatabase, the
	// endpoint URL for SourceAPI.
	Source string
}

// Validate checks the configuration. A disabled configuration is
// always valid; an enabled one must name a source and respect the
// minimum interval.
func (c PollingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Interval < MinimumInterval {
		return &ConfigError{
			Field:   "polling.interval",
			Message: fmt.Sprintf("interval %s is below the minimum of %s", c.Interval, MinimumInterval),
		}
	}
	switch c.SourceType {
	case SourceDatabase, SourceAPI:
	default:
		return &ConfigError{Field: "polling.source_type", Message: "version source type is required"}
	}
	if c.Source == "" {
		return &ConfigError{Field: "polling.source", Message: "version source is required"}
	}
	return nil
}

// ReloadFunc is invoked when the poller detects drift. Its error is
// logged and swallowed; a failed reload must not stop the poller.
type ReloadFunc func() error

// PollerMetrics is a snapshot of poller activity.
type PollerMetrics struct {
	Ticks          int64
	SkippedTicks   int64
	Reloads        int64
	FailedReloads  int64
	LastReloadTime time.Time
	LastReloadDur  time.Duration
}

// Poller periodically compares the source version against a cached
// value and fires the reload callback on change. The comparison is
// pure equality; any observed difference, forward or backward, counts
// as drift.
//
// The first tick happens one full interval after Start, not
// immediately: Start already takes a synchronous baseline reading, and
// an immediate tick would only repeat it.
type Poller struct {
	checker  Checker
	interval time.Duration
	onDrift  ReloadFunc
	logger   *slog.Logger

	cached atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	metrics PollerMetrics
}

// stopGrace bounds how long Stop waits for the polling goroutine
// before giving up on a graceful exit.
const stopGrace = 5 * time.Second

// NewPoller creates a poller. Interval bounds are enforced by
// PollingConfig.Validate at configuration time, not here, so tests can
// run with short intervals.
func NewPoller(checker Checker, interval time.Duration, onDrift ReloadFunc, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		checker:  checker,
		interval: interval,
		onDrift:  onDrift,
		logger:   logger.With("component", "version.poller"),
	}
	p.cached.Store(unknownVersion)
	return p
}

// Start takes a synchronous baseline version reading and launches the
// polling goroutine. It is a no-op when already running, when no
// checker is configured, or when the checker reports its source
// unavailable; none of these are errors, they simply leave the
// instance without background drift detection.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn("version poller already running")
		return
	}
	if p.checker == nil {
		p.logger.Warn("no version checker configured, polling disabled")
		return
	}
	if p.interval <= 0 {
		p.logger.Warn("non-positive polling interval, polling disabled",
			"interval", p.interval,
		)
		return
	}
	if !p.checker.Available(ctx) {
		p.logger.Warn("version source unavailable, polling disabled",
			"checker", p.checker.Describe(),
		)
		return
	}

	p.loadInitialVersion(ctx)

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.running = true

	go p.loop(ctx, p.stopCh, p.doneCh)

	p.logger.Info("version poller started",
		"interval", p.interval,
		"checker", p.checker.Describe(),
	)
}

// Stop cancels polling and waits for the goroutine to exit, up to a
// bounded grace period. Idempotent and safe when never started.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.Info("version poller stopped")
	case <-time.After(stopGrace):
		// The goroutine is stuck in a slow checker call; it will exit
		// on its own once that call returns and sees the closed stop
		// channel.
		p.logger.Warn("version poller did not stop within grace period, abandoning")
	}
}

// Running reports whether the polling goroutine is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// CachedVersion returns the last version observed by the poller, or
// the unknown sentinel (-1) before the first successful observation.
func (p *Poller) CachedVersion() int64 {
	return p.cached.Load()
}

// Metrics returns a snapshot of poller activity.
func (p *Poller) Metrics() PollerMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// loadInitialVersion primes the cache so the first tick has something
// to compare against. A failed baseline leaves the sentinel in place;
// the first successful tick then adopts the observed version without
// reloading.
func (p *Poller) loadInitialVersion(ctx context.Context) {
	if v, ok := p.checker.Current(ctx); ok {
		p.cached.Store(v)
		p.logger.Info("initial policy version cached", "version", v)
		return
	}
	p.cached.Store(unknownVersion)
	p.logger.Warn("failed to read initial policy version, will adopt on first successful poll")
}

func (p *Poller) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("version poller stopped by context")
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick performs one drift check. Transient source failures skip the
// tick without touching the cache, so a flapping source cannot cause
// spurious reloads.
func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	p.metrics.Ticks++
	p.mu.Unlock()

	current, ok := p.checker.Current(ctx)
	if !ok {
		p.mu.Lock()
		p.metrics.SkippedTicks++
		p.mu.Unlock()
		p.logger.Debug("version unavailable, skipping tick")
		return
	}

	cached := p.cached.Load()

	switch {
	case cached == unknownVersion:
		// First successful observation after a failed baseline; adopt
		// without reloading.
		p.cached.Store(current)
		p.logger.Info("policy version initialized", "version", current)

	case current != cached:
		direction := "forward"
		if current < cached {
			direction = "backward"
		}
		p.logger.Info("policy version drift detected",
			"cached", cached,
			"current", current,
			"direction", direction,
		)

		// Update the cache before reloading so a failed reload is not
		// retried on every subsequent tick; the event bus and the next
		// real change remain the recovery paths.
		p.cached.Store(current)
		p.reload()

	default:
		p.logger.Debug("policy version unchanged", "version", current)
	}
}

func (p *Poller) reload() {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("reload callback panicked", "panic", r)
			p.mu.Lock()
			p.metrics.FailedReloads++
			p.mu.Unlock()
		}
	}()

	err := p.onDrift()

	p.mu.Lock()
	p.metrics.LastReloadTime = time.Now()
	p.metrics.LastReloadDur = time.Since(start)
	if err != nil {
		p.metrics.FailedReloads++
	} else {
		p.metrics.Reloads++
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("drift-triggered reload failed", "error", err)
		return
	}
	p.logger.Info("policies reloaded after version drift",
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
