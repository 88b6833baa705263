package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches a rule file for changes and triggers a reload.
// It debounces rapid event bursts (editors often emit several write
// events per save) so one save produces one reload. Only meaningful
// for the file source variant; the other sources are covered by
// version polling and the event bus.
type FileWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	timer   *time.Timer
}

// DefaultDebounceInterval is the quiet period required before a change
// triggers a reload.
const DefaultDebounceInterval = 100 * time.Millisecond

// NewFileWatcher creates a watcher for the rule file at path. A
// non-positive debounce selects DefaultDebounceInterval.
func NewFileWatcher(path string, debounce time.Duration, logger *slog.Logger) (*FileWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		path:     path,
		debounce: debounce,
		watcher:  watcher,
		logger:   logger.With("component", "policy.watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch starts watching and blocks until the context is cancelled or
// Stop is called. onChange is invoked after each debounced change; its
// error is logged, never propagated, so a failed reload does not stop
// the watch loop.
//
// The watch is registered on the file's directory rather than the file
// itself: most editors and config-management tools replace files by
// atomic rename, which would otherwise silently detach the watch.
func (w *FileWatcher) Watch(ctx context.Context, onChange func() error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("policy file watcher started",
		"path", w.path,
		"debounce_ms", w.debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy file watcher stopped by context")
			return nil

		case <-w.stopCh:
			w.logger.Info("policy file watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("policy file event",
				"path", event.Name,
				"op", event.Op.String(),
			)
			w.trigger(onChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Keep watching despite errors.
			w.logger.Error("policy file watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and waits for the watch loop to exit.
// Idempotent, and safe to call when the watcher was never started.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	running := w.running
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	return w.watcher.Close()
}

// relevant filters out events for other files in the directory and
// chmod-only changes.
func (w *FileWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

// trigger resets the debounce timer; onChange runs once the file has
// been quiet for the full interval.
func (w *FileWatcher) trigger(onChange func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.Info("policy file changed, triggering reload", "path", w.path)
		if err := onChange(); err != nil {
			w.logger.Error("policy reload failed", "error", err)
		}
	})
}
