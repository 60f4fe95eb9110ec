package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mhamzafaisal1/chitrac/internal/db"
	"github.com/mhamzafaisal1/chitrac/internal/session"
)

func testEngine(t *testing.T) (*Engine, *db.DB, string) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "chitrac.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	spool := t.TempDir()
	return NewEngine(d, spool, 500, zerolog.Nop()), d, spool
}

func writeSpool(t *testing.T, spool, collection, name, data string) string {
	t.Helper()
	dir := filepath.Join(spool, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const operatorDoc = `{"id":"s1","timestamps":{"start":"2024-06-01T08:00:00Z","end":"2024-06-01T09:00:00Z"},"operator":{"id":117,"name":"Flip"},"machine":{"serial":67801},"counts":[]}`

const stateLine = `{"timestamp":"2024-06-01T08:30:00Z","machine":{"serial":67801},"status":{"code":1,"name":"Running"}}`

func TestImportAll(t *testing.T) {
	e, d, spool := testEngine(t)
	writeSpool(t, spool, session.CollectionOperatorSession,
		"batch1.jsonl", operatorDoc+"\nnot json\n")
	writeSpool(t, spool, session.CollectionState,
		"states.jsonl", stateLine+"\n")

	stats := e.ImportAll()
	if stats.Files != 2 {
		t.Errorf("Files = %d, want 2", stats.Files)
	}
	if stats.Sessions != 1 {
		t.Errorf("Sessions = %d, want 1", stats.Sessions)
	}
	if stats.States != 1 {
		t.Errorf("States = %d, want 1", stats.States)
	}
	if stats.BadLines != 1 {
		t.Errorf("BadLines = %d, want 1", stats.BadLines)
	}

	got, err := d.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if got.SessionCount != 1 || got.StateCount != 1 {
		t.Errorf("db stats = %+v", got)
	}
}

func TestImportAllSkipsUnchanged(t *testing.T) {
	e, _, spool := testEngine(t)
	writeSpool(t, spool, session.CollectionOperatorSession,
		"batch1.jsonl", operatorDoc+"\n")

	e.ImportAll()
	stats := e.ImportAll()
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
	if stats.Sessions != 0 {
		t.Errorf("Sessions = %d, want 0 on unchanged re-import",
			stats.Sessions)
	}
}

func TestSkipCacheSurvivesRestart(t *testing.T) {
	e, d, spool := testEngine(t)
	writeSpool(t, spool, session.CollectionOperatorSession,
		"batch1.jsonl", operatorDoc+"\n")
	e.ImportAll()

	// A fresh engine over the same database inherits the skips.
	e2 := NewEngine(d, spool, 500, zerolog.Nop())
	stats := e2.ImportAll()
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 after restart", stats.Skipped)
	}
}

func TestImportPaths(t *testing.T) {
	e, d, spool := testEngine(t)
	path := writeSpool(t, spool, session.CollectionOperatorSession,
		"live.jsonl", operatorDoc+"\n")

	e.ImportPaths([]string{
		path,
		filepath.Join(spool, "unrelated.txt"),
		"/outside/operator-session/x.jsonl",
	})

	got, err := d.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if got.SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1", got.SessionCount)
	}
}

func TestClassifyPaths(t *testing.T) {
	e, _, spool := testEngine(t)

	files := e.classifyPaths([]string{
		filepath.Join(spool, session.CollectionState, "a.jsonl"),
		filepath.Join(spool, session.CollectionState, "nested", "b.jsonl"),
		filepath.Join(spool, "state.jsonl"),
		filepath.Join(spool, session.CollectionMachineSession, "c.txt"),
	})
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1: %+v", len(files), files)
	}
	if files[0].collection != session.CollectionState {
		t.Errorf("collection = %q", files[0].collection)
	}
}
