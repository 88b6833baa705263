package version

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedChecker plays back a fixed sequence of version readings,
// repeating the last entry once exhausted.
type scriptedChecker struct {
	mu        sync.Mutex
	versions  []int64
	oks       []bool
	idx       int
	available bool
}

func (s *scriptedChecker) Current(_ context.Context) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.idx
	if i >= len(s.versions) {
		i = len(s.versions) - 1
	} else {
		s.idx++
	}
	return s.versions[i], s.oks[i]
}

func (s *scriptedChecker) Available(_ context.Context) bool { return s.available }

func (s *scriptedChecker) Describe() string { return "scripted" }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestPoller_ReloadsOnceOnDrift(t *testing.T) {
	// Baseline reads 5, then ticks observe 5, 7, 7, ... Exactly one
	// reload fires, on the 5 -> 7 transition.
	checker := &scriptedChecker{
		versions:  []int64{5, 5, 7, 7},
		oks:       []bool{true, true, true, true},
		available: true,
	}

	var reloads atomic.Int64
	p := NewPoller(checker, 20*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, testLogger())
	defer p.Stop()

	p.Start(context.Background())
	if got := p.CachedVersion(); got != 5 {
		t.Fatalf("baseline version = %d, want 5", got)
	}

	waitFor(t, 2*time.Second, func() bool { return p.CachedVersion() == 7 })
	waitFor(t, 2*time.Second, func() bool { return reloads.Load() == 1 })

	// Let a few more ticks observe the now-stable version.
	time.Sleep(80 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("reloads = %d, want exactly 1", got)
	}
}

func TestPoller_BackwardDriftReloads(t *testing.T) {
	checker := &scriptedChecker{
		versions:  []int64{9, 3},
		oks:       []bool{true, true},
		available: true,
	}

	var reloads atomic.Int64
	p := NewPoller(checker, 20*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, testLogger())
	defer p.Stop()

	p.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return p.CachedVersion() == 3 })
	if got := reloads.Load(); got != 1 {
		t.Fatalf("reloads = %d, want 1 (backward movement counts as drift)", got)
	}
}

func TestPoller_AdoptsAfterFailedBaseline(t *testing.T) {
	// Baseline fails, first tick succeeds: the version is adopted
	// without a reload.
	checker := &scriptedChecker{
		versions:  []int64{0, 42},
		oks:       []bool{false, true},
		available: true,
	}

	var reloads atomic.Int64
	p := NewPoller(checker, 20*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, testLogger())
	defer p.Stop()

	p.Start(context.Background())
	if got := p.CachedVersion(); got != unknownVersion {
		t.Fatalf("cached after failed baseline = %d, want %d", got, unknownVersion)
	}

	waitFor(t, 2*time.Second, func() bool { return p.CachedVersion() == 42 })
	if got := reloads.Load(); got != 0 {
		t.Fatalf("reloads = %d, want 0 on sentinel adoption", got)
	}
}

func TestPoller_SkipsTickOnUnavailableVersion(t *testing.T) {
	checker := &scriptedChecker{
		versions:  []int64{5, 0, 0, 5},
		oks:       []bool{true, false, false, true},
		available: true,
	}

	var reloads atomic.Int64
	p := NewPoller(checker, 20*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, testLogger())
	defer p.Stop()

	p.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return p.Metrics().SkippedTicks >= 2 })

	if got := p.CachedVersion(); got != 5 {
		t.Fatalf("cached = %d, want 5 (failed reads must not touch the cache)", got)
	}
	if got := reloads.Load(); got != 0 {
		t.Fatalf("reloads = %d, want 0", got)
	}
}

func TestPoller_ContinuesAfterReloadError(t *testing.T) {
	checker := &scriptedChecker{
		versions:  []int64{1, 2, 3},
		oks:       []bool{true, true, true},
		available: true,
	}

	var calls atomic.Int64
	p := NewPoller(checker, 20*time.Millisecond, func() error {
		calls.Add(1)
		return errors.New("load failed")
	}, testLogger())
	defer p.Stop()

	p.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 2 })

	m := p.Metrics()
	if m.FailedReloads < 2 {
		t.Fatalf("failed reloads = %d, want >= 2", m.FailedReloads)
	}
}

func TestPoller_StartNoopWhenUnavailable(t *testing.T) {
	checker := &scriptedChecker{
		versions:  []int64{1},
		oks:       []bool{true},
		available: false,
	}

	p := NewPoller(checker, 20*time.Millisecond, func() error { return nil }, testLogger())
	p.Start(context.Background())

	if p.Running() {
		t.Fatal("poller must not run against an unavailable source")
	}
	p.Stop()
}

func TestPoller_StartNoopWithNonPositiveInterval(t *testing.T) {
	checker := &scriptedChecker{
		versions:  []int64{1},
		oks:       []bool{true},
		available: true,
	}

	for _, interval := range []time.Duration{0, -time.Second} {
		p := NewPoller(checker, interval, func() error { return nil }, testLogger())
		p.Start(context.Background())
		if p.Running() {
			t.Fatalf("poller must not run with interval %s", interval)
		}
		p.Stop()
	}
}

func TestPoller_StartNoopWithoutChecker(t *testing.T) {
	p := NewPoller(nil, 20*time.Millisecond, func() error { return nil }, testLogger())
	p.Start(context.Background())
	if p.Running() {
		t.Fatal("poller must not run without a checker")
	}
}

func TestPoller_DoubleStartAndStopIdempotent(t *testing.T) {
	checker := &scriptedChecker{
		versions:  []int64{5},
		oks:       []bool{true},
		available: true,
	}

	p := NewPoller(checker, 20*time.Millisecond, func() error { return nil }, testLogger())
	p.Start(context.Background())
	p.Start(context.Background())
	if !p.Running() {
		t.Fatal("poller should be running")
	}
	p.Stop()
	p.Stop()
	if p.Running() {
		t.Fatal("poller should be stopped")
	}
}

func TestPollingConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     PollingConfig
		wantErr bool
	}{
		{"disabled is always valid", PollingConfig{}, false},
		{"valid database", PollingConfig{Enabled: true, Interval: time.Minute, SourceType: SourceDatabase, Source: "SELECT MAX(version) FROM policy_versions"}, false},
		{"valid api", PollingConfig{Enabled: true, Interval: 2 * time.Minute, SourceType: SourceAPI, Source: "http://example.com/version"}, false},
		{"interval below minimum", PollingConfig{Enabled: true, Interval: 30 * time.Second, SourceType: SourceDatabase, Source: "q"}, true},
		{"missing source type", PollingConfig{Enabled: true, Interval: time.Minute, Source: "q"}, true},
		{"missing source", PollingConfig{Enabled: true, Interval: time.Minute, SourceType: SourceAPI}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
