// Package ingest imports session and state documents from a
// JSONL spool directory into the database. Files are grouped by
// collection subdirectory, parsed across a worker pool, and
// written in batches; unchanged and unparseable files are skipped
// by mtime until they change again.
package ingest

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhamzafaisal1/chitrac/internal/db"
	"github.com/mhamzafaisal1/chitrac/internal/session"
	"github.com/mhamzafaisal1/chitrac/internal/telemetry"
)

const (
	maxWorkers = 8

	// maxLineBytes bounds one spool document. Longer lines are
	// counted as bad and skipped.
	maxLineBytes = 4 << 20
)

// Stats summarizes one import run.
type Stats struct {
	Files    int `json:"files"`
	Sessions int `json:"sessions"`
	States   int `json:"states"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	BadLines int `json:"bad_lines"`
}

// Engine orchestrates spool discovery and import.
type Engine struct {
	db        *db.DB
	spoolDir  string
	batchSize int
	log       zerolog.Logger

	importMu     gosync.Mutex // serializes full import runs
	mu           gosync.RWMutex
	lastRun      time.Time
	lastRunStats Stats

	// skipCache tracks files that should not be re-read, keyed
	// by path with the mtime at time of caching. Covers both
	// successfully imported files and files that failed to
	// parse; either way the file is retried when it changes.
	skipMu    gosync.RWMutex
	skipCache map[string]int64
}

// NewEngine creates an import engine over spoolDir. The skip
// cache is pre-populated from the database so files imported in a
// prior run are not re-read on startup.
func NewEngine(
	database *db.DB, spoolDir string, batchSize int,
	log zerolog.Logger,
) *Engine {
	skipCache := make(map[string]int64)
	if loaded, err := database.LoadImportSkips(); err == nil {
		skipCache = loaded
	} else {
		log.Warn().Err(err).Msg("loading import skip cache")
	}
	if batchSize < 1 {
		batchSize = 500
	}
	return &Engine{
		db:        database,
		spoolDir:  spoolDir,
		batchSize: batchSize,
		log:       log.With().Str("component", "ingest").Logger(),
		skipCache: skipCache,
	}
}

// LastRun returns the time of the last completed import.
func (e *Engine) LastRun() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}

// LastRunStats returns statistics from the last import.
func (e *Engine) LastRunStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRunStats
}

// spoolFile is one discovered spool file with its collection.
type spoolFile struct {
	path       string
	collection string
}

// discover lists every .jsonl file under the per-collection
// spool subdirectories.
func (e *Engine) discover() []spoolFile {
	collections := []string{
		session.CollectionOperatorSession,
		session.CollectionMachineSession,
		session.CollectionItemSession,
		session.CollectionState,
	}
	var files []spoolFile
	for _, c := range collections {
		dir := filepath.Join(e.spoolDir, c)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() ||
				!strings.HasSuffix(entry.Name(), ".jsonl") {
				continue
			}
			files = append(files, spoolFile{
				path:       filepath.Join(dir, entry.Name()),
				collection: c,
			})
		}
	}
	return files
}

// classifyPaths maps changed filesystem paths to spool files,
// ignoring paths outside the collection subdirectories.
func (e *Engine) classifyPaths(paths []string) []spoolFile {
	var files []spoolFile
	for _, p := range paths {
		if !strings.HasSuffix(p, ".jsonl") {
			continue
		}
		rel, err := filepath.Rel(e.spoolDir, filepath.Clean(p))
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case session.CollectionOperatorSession,
			session.CollectionMachineSession,
			session.CollectionItemSession,
			session.CollectionState:
			files = append(files, spoolFile{
				path:       filepath.Clean(p),
				collection: parts[0],
			})
		}
	}
	return files
}

// ImportAll discovers and imports every spool file.
func (e *Engine) ImportAll() Stats {
	e.importMu.Lock()
	defer e.importMu.Unlock()

	t0 := time.Now()
	files := e.discover()
	stats := e.run(files)
	e.persistSkipCache()

	e.mu.Lock()
	e.lastRun = time.Now()
	e.lastRunStats = stats
	e.mu.Unlock()

	e.log.Info().
		Int("files", stats.Files).
		Int("sessions", stats.Sessions).
		Int("states", stats.States).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Dur("elapsed", time.Since(t0)).
		Msg("spool import complete")
	return stats
}

// ImportPaths imports only the given changed paths. Paths that
// are not spool files are silently ignored.
func (e *Engine) ImportPaths(paths []string) {
	files := e.classifyPaths(paths)
	if len(files) == 0 {
		return
	}

	e.importMu.Lock()
	defer e.importMu.Unlock()

	stats := e.run(files)
	e.persistSkipCache()

	e.mu.Lock()
	e.lastRun = time.Now()
	e.lastRunStats = stats
	e.mu.Unlock()

	if stats.Sessions > 0 || stats.States > 0 {
		e.log.Info().
			Int("sessions", stats.Sessions).
			Int("states", stats.States).
			Msg("spool changes imported")
	}
}

func (e *Engine) run(files []spoolFile) Stats {
	results := e.startWorkers(files)
	return e.collectAndBatch(results, len(files))
}

// fileResult is one parsed spool file.
type fileResult struct {
	path     string
	mtime    int64
	skip     bool
	sessions []db.SessionRecord
	states   []db.StateRecord
	badLines int
	err      error
}

// startWorkers fans file parsing across a worker pool and
// returns a channel of results.
func (e *Engine) startWorkers(files []spoolFile) <-chan fileResult {
	workers := min(max(runtime.NumCPU(), 2), maxWorkers)

	jobs := make(chan spoolFile, len(files))
	results := make(chan fileResult, len(files))

	for range workers {
		go func() {
			for f := range jobs {
				results <- e.processFile(f)
			}
		}()
	}

	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	return results
}

func (e *Engine) processFile(f spoolFile) fileResult {
	info, err := os.Stat(f.path)
	if err != nil {
		return fileResult{
			path: f.path,
			err:  fmt.Errorf("stat %s: %w", f.path, err),
		}
	}
	mtime := info.ModTime().UnixNano()

	e.skipMu.RLock()
	cachedMtime, cached := e.skipCache[f.path]
	e.skipMu.RUnlock()
	if cached && cachedMtime == mtime {
		return fileResult{path: f.path, mtime: mtime, skip: true}
	}

	res := e.parseFile(f)
	res.path = f.path
	res.mtime = mtime
	return res
}

func (e *Engine) parseFile(f spoolFile) fileResult {
	fh, err := os.Open(f.path)
	if err != nil {
		return fileResult{err: fmt.Errorf("open %s: %w", f.path, err)}
	}
	defer fh.Close()

	var res fileResult
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if f.collection == session.CollectionState {
			st, err := session.DecodeState(line)
			if err != nil {
				res.badLines++
				continue
			}
			res.states = append(res.states, db.StateRecord{
				Doc: line, State: st,
			})
			continue
		}
		s, err := session.DecodeSession(f.collection, line)
		if err != nil {
			res.badLines++
			continue
		}
		res.sessions = append(res.sessions, db.SessionRecord{
			Collection: f.collection, Doc: line, Session: s,
		})
	}
	if err := scanner.Err(); err != nil {
		return fileResult{
			err: fmt.Errorf("reading %s: %w", f.path, err),
		}
	}
	return res
}

// collectAndBatch drains the results channel, batches parsed
// records, and writes them to the database.
func (e *Engine) collectAndBatch(
	results <-chan fileResult, total int,
) Stats {
	var stats Stats
	var sessions []db.SessionRecord
	var states []db.StateRecord

	for range total {
		r := <-results

		if r.err != nil {
			if r.mtime != 0 {
				e.cacheSkip(r.path, r.mtime)
			}
			stats.Failed++
			telemetry.ImportErrors.Inc()
			e.log.Warn().Err(r.err).Msg("import error")
			continue
		}
		if r.skip {
			stats.Skipped++
			continue
		}

		stats.Files++
		stats.BadLines += r.badLines
		if r.badLines > 0 {
			telemetry.ImportErrors.Add(float64(r.badLines))
		}

		sessions = append(sessions, r.sessions...)
		states = append(states, r.states...)
		// A fully imported file is skipped until its mtime
		// changes again.
		e.cacheSkip(r.path, r.mtime)

		if len(sessions) >= e.batchSize {
			stats.Sessions += len(sessions)
			e.writeSessions(sessions)
			sessions = sessions[:0]
		}
		if len(states) >= e.batchSize {
			stats.States += len(states)
			e.writeStates(states)
			states = states[:0]
		}
	}

	if len(sessions) > 0 {
		stats.Sessions += len(sessions)
		e.writeSessions(sessions)
	}
	if len(states) > 0 {
		stats.States += len(states)
		e.writeStates(states)
	}
	return stats
}

func (e *Engine) writeSessions(recs []db.SessionRecord) {
	if err := e.db.SaveSessions(recs); err != nil {
		e.log.Error().Err(err).Msg("writing session batch")
		return
	}
	telemetry.ImportedSessions.Add(float64(len(recs)))
}

func (e *Engine) writeStates(recs []db.StateRecord) {
	if err := e.db.SaveStates(recs); err != nil {
		e.log.Error().Err(err).Msg("writing state batch")
		return
	}
	telemetry.ImportedStates.Add(float64(len(recs)))
}

// cacheSkip records a file so it is not re-read until its mtime
// changes.
func (e *Engine) cacheSkip(path string, mtime int64) {
	e.skipMu.Lock()
	e.skipCache[path] = mtime
	e.skipMu.Unlock()
}

// persistSkipCache writes the in-memory skip cache to the
// database so it survives restarts.
func (e *Engine) persistSkipCache() {
	e.skipMu.RLock()
	snapshot := make(map[string]int64, len(e.skipCache))
	maps.Copy(snapshot, e.skipCache)
	e.skipMu.RUnlock()

	for path, mtime := range snapshot {
		if err := e.db.SaveImportSkip(path, mtime); err != nil {
			e.log.Warn().Err(err).Msg("persisting skip cache")
			return
		}
	}
}
