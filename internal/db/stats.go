package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Stats holds store-wide record counts.
type Stats struct {
	SessionCount  int `json:"session_count"`
	OpenSessions  int `json:"open_sessions"`
	StateCount    int `json:"state_count"`
	OperatorCount int `json:"operator_count"`
	MachineCount  int `json:"machine_count"`
	CachedDays    int `json:"cached_days"`
}

// GetStats returns record counts across the store.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM sessions WHERE end_ts IS NULL),
			(SELECT COUNT(*) FROM states),
			(SELECT COUNT(DISTINCT entity_id) FROM sessions
				WHERE collection = 'operator-session'),
			(SELECT COUNT(DISTINCT machine_serial) FROM sessions),
			(SELECT COUNT(DISTINCT date) FROM daily_totals)`

	var s Stats
	err := db.reader.QueryRowContext(ctx, query).Scan(
		&s.SessionCount, &s.OpenSessions, &s.StateCount,
		&s.OperatorCount, &s.MachineCount, &s.CachedDays,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats: %w", err)
	}
	return s, nil
}

// LoadImportSkips returns the persisted skip cache for the
// importer, keyed by path with the file mtime at skip time.
func (db *DB) LoadImportSkips() (map[string]int64, error) {
	rows, err := db.reader.Query(
		`SELECT path, mtime FROM import_skips`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying import skips: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var path string
		var mtime int64
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, fmt.Errorf("scanning import skip: %w", err)
		}
		out[path] = mtime
	}
	return out, rows.Err()
}

// SaveImportSkip records that a spool file should be skipped
// until its mtime changes.
func (db *DB) SaveImportSkip(path string, mtime int64) error {
	return db.Update(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO import_skips (path, mtime)
			 VALUES (?, ?)`, path, mtime,
		)
		return err
	})
}
