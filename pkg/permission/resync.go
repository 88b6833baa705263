package permission

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// ResyncScheduler periodically requests a full policy reload on a
// cron schedule, catching changes that slipped past both polling and
// pub/sub (a missed message during a Redis outage, for instance).
type ResyncScheduler struct {
	schedule string
	resync   func()
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewResyncScheduler creates a scheduler that calls resync on the
// given cron schedule.
//
// Common expressions:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "*/30 * * * *" - Every 30 minutes
func NewResyncScheduler(schedule string, resync func(), logger *slog.Logger) *ResyncScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResyncScheduler{
		schedule: schedule,
		resync:   resync,
		cron:     cron.New(),
		logger:   logger.With("component", "permission.resync"),
	}
}

// Start begins scheduled resyncs. An empty schedule disables the
// scheduler without error.
func (s *ResyncScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("resync schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.logger.Info("scheduled policy resync")
		s.resync()
	}); err != nil {
		return fmt.Errorf("failed to schedule resync: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("resync scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the scheduler. Idempotent.
func (s *ResyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("resync scheduler stopped")
}
