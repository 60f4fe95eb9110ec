package ingest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func startTestWatcher(
	t *testing.T, onChange func([]string),
) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWatcher(50*time.Millisecond, zerolog.Nop(), onChange)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if _, _, err := w.WatchRecursive(dir); err != nil {
		t.Fatalf("WatchRecursive: %v", err)
	}
	w.Start()
	t.Cleanup(func() { w.Stop() })
	return w, dir
}

func TestWatcherNilCallback(t *testing.T) {
	if _, err := NewWatcher(time.Second, zerolog.Nop(), nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func TestWatcherDeliversChanges(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	_, dir := startTestWatcher(t, func(paths []string) {
		mu.Lock()
		got = append(got, paths...)
		mu.Unlock()
		select {
		case <-done:
		default:
			close(done)
		}
	})

	path := filepath.Join(dir, "batch.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, p := range got {
		if p == path {
			found = true
		}
	}
	if !found {
		t.Errorf("callback paths %v missing %s", got, path)
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	w, err := NewWatcher(
		50*time.Millisecond, zerolog.Nop(), func([]string) {},
	)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Start()
	w.Stop()
	w.Stop()
}
