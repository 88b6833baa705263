package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileWatcher_TriggersOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.csv")
	if err := os.WriteFile(path, []byte("p, 1, users, read\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher, err := NewFileWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}

	var reloads atomic.Int32
	triggered := make(chan struct{}, 10)
	onChange := func() error {
		reloads.Add(1)
		select {
		case triggered <- struct{}{}:
		default:
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Watch(ctx, onChange) }()

	// Give the watch registration a moment.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("p, 2, users, write\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("reload not triggered after file change")
	}

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestFileWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.csv")
	if err := os.WriteFile(path, []byte("p, 1, users, read\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher, err := NewFileWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = watcher.Watch(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()
	time.Sleep(50 * time.Millisecond)

	other := filepath.Join(dir, "unrelated.txt")
	if err := os.WriteFile(other, []byte("noise"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(150 * time.Millisecond)
	if n := reloads.Load(); n != 0 {
		t.Errorf("reload triggered %d times by unrelated file, want 0", n)
	}

	_ = watcher.Stop()
}

func TestFileWatcher_SurvivesAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.csv")
	if err := os.WriteFile(path, []byte("p, 1, users, read\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher, err := NewFileWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}

	triggered := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = watcher.Watch(ctx, func() error {
			select {
			case triggered <- struct{}{}:
			default:
			}
			return nil
		})
	}()
	time.Sleep(50 * time.Millisecond)

	// Replace by write-then-rename, the way config tooling deploys files.
	tmp := filepath.Join(dir, ".policies.csv.tmp")
	if err := os.WriteFile(tmp, []byte("p, 2, users, write\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("reload not triggered after atomic rename")
	}

	_ = watcher.Stop()
}

func TestFileWatcher_StopWithoutStart(t *testing.T) {
	watcher, err := NewFileWatcher(filepath.Join(t.TempDir(), "policies.csv"), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() without Watch error = %v", err)
	}
}

func TestFileWatcher_ConcurrentStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.csv")
	if err := os.WriteFile(path, []byte("p, 1, users, read\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher, err := NewFileWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}

	go func() { _ = watcher.Watch(context.Background(), func() error { return nil }) }()
	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = watcher.Stop()
		}()
	}
	wg.Wait()

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() after Stop error = %v", err)
	}
}
