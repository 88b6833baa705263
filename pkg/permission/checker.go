package permission

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"polaris-auth/polaris/pkg/engine"
	"polaris-auth/polaris/pkg/event"
	"polaris-auth/polaris/pkg/policy"
	"polaris-auth/polaris/pkg/version"
)

// Reload triggers, used as the trigger label on reload metrics and in
// logs.
const (
	TriggerManual = "manual"
	TriggerPoll   = "poll"
	TriggerEvent  = "event"
	TriggerFile   = "file"
	TriggerResync = "resync"
)

// Lifecycle states of a Checker.
const (
	stateIdle int32 = iota
	stateInitializing
	stateReady
	stateFailed
	stateClosed
)

// Options configures a Checker. Source is the only required section;
// everything else degrades to a disabled subsystem when left zero.
//
// The Loader, VersionChecker, Bus and Engine fields override the
// components the Checker would otherwise build from configuration.
// They exist for dependency injection; production callers usually
// leave them nil.
type Options struct {
	// Source selects where policies are loaded from.
	Source policy.SourceConfig

	// Polling configures background version drift detection.
	Polling version.PollingConfig

	// EventChannel is the pub/sub channel for reload notifications.
	// Empty selects event.DefaultChannel. Only used when Redis is set.
	EventChannel string

	// ResyncSchedule is an optional cron expression for periodic full
	// reloads. Empty disables scheduled resync.
	ResyncSchedule string

	// WatchFile enables hot reload on file modification for the file
	// source type.
	WatchFile bool

	// DB is the database handle for database-backed sources and
	// version checks.
	DB *sql.DB

	// Redis is the shared client for the reload event bus. Nil
	// disables pub/sub.
	Redis redis.UniversalClient

	// Logger receives structured diagnostics. Nil selects
	// slog.Default.
	Logger *slog.Logger

	// Metrics receives telemetry. Nil disables it.
	Metrics *Metrics

	// Loader overrides the policy loader built from Source.
	Loader policy.Loader

	// VersionChecker overrides the checker built from Polling.
	VersionChecker version.Checker

	// Bus overrides the event bus built from Redis and EventChannel.
	Bus event.Bus

	// Engine overrides the enforcement engine.
	Engine engine.Engine
}

// Checker is the orchestrating entry point for permission
// enforcement.
type Checker struct {
	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	state atomic.Int32

	engine  engine.Engine
	loader  policy.Loader
	poller  *version.Poller
	bus     event.Bus
	watcher *policy.FileWatcher
	resync  *ResyncScheduler

	// reloadQueue holds at most one pending reload request; further
	// requests coalesce into it.
	reloadQueue chan string
	reloadMu    sync.Mutex
	workerDone  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewChecker creates an idle Checker. Call Init before Check.
func NewChecker(opts Options) *Checker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		opts:        opts,
		logger:      logger.With("component", "permission.checker"),
		metrics:     opts.Metrics,
		reloadQueue: make(chan string, 1),
	}
}

// Init starts the Checker: it builds the engine and loader, performs a
// synchronous initial policy load, and then attaches the optional
// refresh subsystems. The initial load is the only fatal stage after
// construction; a poller, bus, watcher or resync that fails to start
// leaves the Checker serving with reduced refresh coverage.
//
// Init succeeds at most once. A second call on a ready Checker is a
// logged no-op; a call after a failed Init or Close returns
// ErrAlreadyInitialized, callers are expected to build a fresh Checker
// instead.
func (c *Checker) Init(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateIdle, stateInitializing) {
		if c.state.Load() == stateReady {
			c.logger.Warn("permission checker already initialized, ignoring")
			return nil
		}
		return ErrAlreadyInitialized
	}

	start := time.Now()

	if err := c.initCore(ctx); err != nil {
		c.state.Store(stateFailed)
		c.teardown()
		return err
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.workerDone = make(chan struct{})
	go c.reloadWorker()

	c.startRefreshSubsystems()

	c.state.Store(stateReady)
	c.logger.Info("permission checker ready",
		"source", c.loader.Describe(),
		"rules", c.engine.RuleCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// initCore builds the engine and loader and performs the initial
// load. Any failure here is fatal.
func (c *Checker) initCore(ctx context.Context) error {
	if err := c.opts.Source.Validate(); err != nil {
		return &InitError{Stage: "config", Cause: err}
	}
	if err := c.opts.Polling.Validate(); err != nil {
		return &InitError{Stage: "config", Cause: err}
	}
	// A static file has no external version to poll.
	if c.opts.Polling.Enabled && c.opts.Source.Type == policy.SourceFile {
		return &InitError{Stage: "config", Cause: &policy.ConfigError{
			Field:   "polling.enabled",
			Message: "version polling cannot be enabled for the file source type",
		}}
	}

	c.engine = c.opts.Engine
	if c.engine == nil {
		eng, err := engine.NewCasbinEngine(engine.DefaultModel, c.logger)
		if err != nil {
			return &InitError{Stage: "engine", Cause: err}
		}
		c.engine = eng
	}

	c.loader = c.opts.Loader
	if c.loader == nil {
		loader, err := policy.NewLoader(c.opts.Source, c.opts.DB, c.logger)
		if err != nil {
			return &InitError{Stage: "loader", Cause: err}
		}
		c.loader = loader
	}

	if err := c.loader.Load(ctx, c.engine); err != nil {
		return &InitError{Stage: "initial load", Cause: err}
	}
	c.metrics.SetRulesLoaded(c.engine.RuleCount())
	return nil
}

// startRefreshSubsystems attaches polling, pub/sub, file watching and
// scheduled resync. Failures are logged, never fatal.
func (c *Checker) startRefreshSubsystems() {
	if c.opts.Polling.Enabled || c.opts.VersionChecker != nil {
		checker := c.opts.VersionChecker
		if checker == nil {
			var err error
			checker, err = version.NewChecker(c.opts.Polling.SourceType, c.opts.Polling.Source, c.opts.DB, c.logger)
			if err != nil {
				c.logger.Warn("version polling disabled", "error", err)
			}
		}
		if checker != nil {
			c.poller = version.NewPoller(checker, c.opts.Polling.Interval, func() error {
				c.requestReload(TriggerPoll)
				return nil
			}, c.logger)
			c.poller.Start(c.ctx)
		}
	}

	c.bus = c.opts.Bus
	if c.bus == nil && c.opts.Redis != nil {
		c.bus = event.NewRedisBus(c.opts.Redis, c.opts.EventChannel, c.logger)
	}
	if c.bus != nil {
		if err := c.bus.Subscribe(c.ctx, c.handleEvent); err != nil {
			c.logger.Warn("event subscription failed, continuing without pub/sub", "error", err)
			c.bus = nil
		}
	}

	if c.opts.WatchFile && c.opts.Source.Type == policy.SourceFile {
		watcher, err := policy.NewFileWatcher(c.opts.Source.Location, policy.DefaultDebounceInterval, c.logger)
		if err != nil {
			c.logger.Warn("file watching disabled", "error", err)
		} else {
			c.watcher = watcher
			go func() {
				if err := watcher.Watch(c.ctx, func() error {
					c.requestReload(TriggerFile)
					return nil
				}); err != nil {
					c.logger.Warn("file watcher exited", "error", err)
				}
			}()
		}
	}

	if c.opts.ResyncSchedule != "" {
		c.resync = NewResyncScheduler(c.opts.ResyncSchedule, func() {
			c.requestReload(TriggerResync)
		}, c.logger)
		if err := c.resync.Start(); err != nil {
			c.logger.Warn("scheduled resync disabled", "error", err)
			c.resync = nil
		}
	}
}

// Check reports whether the subject may perform the action on the
// object. It fails closed: before initialization, after Close, or on
// any engine error the answer is deny.
func (c *Checker) Check(subject, object, action string) bool {
	return c.CheckInDomain(subject, engine.AnyDomain, object, action)
}

// CheckInDomain is Check scoped to a single domain, for deployments
// whose role links are granted per domain rather than globally.
func (c *Checker) CheckInDomain(subject, domain, object, action string) bool {
	allowed, err := c.CheckErr(subject, domain, object, action)
	if err != nil {
		return false
	}
	return allowed
}

// CheckErr is CheckInDomain with the failure cause. Denials carry a
// nil error; ErrNotInitialized and ErrClosed distinguish lifecycle
// misuse from a genuine deny.
func (c *Checker) CheckErr(subject, domain, object, action string) (bool, error) {
	switch c.state.Load() {
	case stateReady:
	case stateClosed:
		return false, ErrClosed
	default:
		return false, ErrNotInitialized
	}

	start := time.Now()
	allowed, err := c.engine.Check(subject, domain, object, action)
	if err != nil {
		c.logger.Error("permission check failed, denying",
			"subject", subject,
			"domain", domain,
			"object", object,
			"action", action,
			"error", err,
		)
		c.metrics.ObserveCheck(false, time.Since(start))
		return false, err
	}

	c.metrics.ObserveCheck(allowed, time.Since(start))
	return allowed, nil
}

// Reload synchronously reloads policies from the configured source.
func (c *Checker) Reload(ctx context.Context) error {
	if s := c.state.Load(); s != stateReady {
		if s == stateClosed {
			return ErrClosed
		}
		return ErrNotInitialized
	}
	return c.doReload(ctx, TriggerManual)
}

// PublishReload broadcasts a reload notification to every instance on
// the shared channel. This instance reloads too, through its own
// subscription; without a bus the reload stays local.
func (c *Checker) PublishReload(ctx context.Context) error {
	if s := c.state.Load(); s != stateReady {
		if s == stateClosed {
			return ErrClosed
		}
		return ErrNotInitialized
	}
	if c.bus == nil {
		c.logger.Warn("no event bus configured, reloading locally only")
		c.requestReload(TriggerManual)
		return nil
	}
	return c.bus.Publish(ctx)
}

// Engine exposes the underlying enforcement engine for role link
// management. Nil before a successful Init.
func (c *Checker) Engine() engine.Engine {
	if c.state.Load() != stateReady {
		return nil
	}
	return c.engine
}

// Ready reports whether the Checker is initialized and serving.
func (c *Checker) Ready() bool {
	return c.state.Load() == stateReady
}

// handleEvent consumes bus payloads. Anything that is not a reload
// notification is dropped, as is anything arriving before the Checker
// is ready.
func (c *Checker) handleEvent(payload string) {
	if !event.IsReload(payload) {
		c.logger.Debug("ignoring unrecognized event payload", "payload", payload)
		return
	}
	if c.state.Load() != stateReady {
		c.logger.Debug("dropping reload event, checker not ready")
		return
	}
	c.logger.Info("reload event received", "origin", event.Origin(payload))
	c.requestReload(TriggerEvent)
}

// requestReload enqueues an asynchronous reload. A request arriving
// while one is already pending coalesces into it; a burst of triggers
// costs at most two reloads (the running one plus one queued).
func (c *Checker) requestReload(trigger string) {
	select {
	case c.reloadQueue <- trigger:
	default:
		c.logger.Debug("reload already pending, coalescing", "trigger", trigger)
	}
}

// reloadWorker is the single consumer of the reload queue.
func (c *Checker) reloadWorker() {
	defer close(c.workerDone)
	for {
		select {
		case <-c.ctx.Done():
			return
		case trigger := <-c.reloadQueue:
			if err := c.doReload(c.ctx, trigger); err != nil {
				c.logger.Error("policy reload failed",
					"trigger", trigger,
					"error", err,
				)
			}
		}
	}
}

// doReload is the single choke point every reload goes through.
func (c *Checker) doReload(ctx context.Context, trigger string) error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	start := time.Now()
	err := c.loader.Load(ctx, c.engine)
	c.metrics.ObserveReload(trigger, err)
	if err != nil {
		return err
	}

	c.metrics.SetRulesLoaded(c.engine.RuleCount())
	c.logger.Info("policies reloaded",
		"trigger", trigger,
		"rules", c.engine.RuleCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close stops every subsystem in reverse start order and releases the
// engine. Idempotent; Check calls after Close are denied.
func (c *Checker) Close() error {
	c.closeOnce.Do(func() {
		prev := c.state.Swap(stateClosed)
		if prev != stateReady {
			return
		}

		if c.resync != nil {
			c.resync.Stop()
		}
		if c.watcher != nil {
			if err := c.watcher.Stop(); err != nil {
				c.logger.Warn("failed to stop file watcher", "error", err)
			}
		}
		if c.bus != nil {
			if err := c.bus.Close(); err != nil {
				c.logger.Warn("failed to close event bus", "error", err)
			}
		}
		if c.poller != nil {
			c.poller.Stop()
		}

		c.teardown()
		c.logger.Info("permission checker closed")
	})
	return nil
}

// teardown cancels the worker and releases the engine. Used both by
// Close and by a failed Init.
func (c *Checker) teardown() {
	if c.cancel != nil {
		c.cancel()
		<-c.workerDone
	}
	if c.engine != nil {
		if err := c.engine.Close(); err != nil {
			c.logger.Warn("failed to close engine", "error", err)
		}
	}
}
