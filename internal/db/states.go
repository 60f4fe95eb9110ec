package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mhamzafaisal1/chitrac/internal/session"
)

// StatesInRange returns a machine's state snapshots inside
// [winStart, winEnd], sorted ascending by timestamp. When
// operatorID is non-nil, only states listing that operator are
// returned.
func (db *DB) StatesInRange(
	ctx context.Context,
	machineSerial int, operatorID *int,
	winStart, winEnd time.Time,
) ([]session.State, error) {
	query := `SELECT doc FROM states
		WHERE machine_serial = ?
		AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`

	rows, err := db.reader.QueryContext(ctx, query,
		machineSerial,
		session.FormatTime(winStart), session.FormatTime(winEnd),
	)
	if err != nil {
		return nil, fmt.Errorf("querying states: %w", err)
	}
	defer rows.Close()

	var out []session.State
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		st, err := session.DecodeState(doc)
		if err != nil {
			// Malformed state records are skipped, not fatal.
			continue
		}
		if operatorID != nil && !stateHasOperator(st, *operatorID) {
			continue
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state rows: %w", err)
	}
	return out, nil
}

func stateHasOperator(st session.State, operatorID int) bool {
	for _, op := range st.Operators {
		if op.ID == operatorID {
			return true
		}
	}
	return false
}

// LatestState returns a machine's most recent state snapshot, or
// nil when the machine has never reported.
func (db *DB) LatestState(
	ctx context.Context, machineSerial int,
) (*session.State, error) {
	query := `SELECT doc FROM states WHERE machine_serial = ?
		ORDER BY timestamp DESC LIMIT 1`

	var doc string
	err := db.reader.QueryRowContext(ctx, query, machineSerial).
		Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest state: %w", err)
	}
	st, err := session.DecodeState(doc)
	if err != nil {
		return nil, fmt.Errorf("decoding latest state: %w", err)
	}
	return &st, nil
}

// StateRecord pairs a normalized state with its raw document.
type StateRecord struct {
	Doc   string
	State session.State
}

// SaveStates inserts a batch of state records in one transaction.
// A snapshot that already exists for (machine, timestamp) is
// replaced.
func (db *DB) SaveStates(recs []StateRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO states
			(machine_serial, timestamp, status_code, doc)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing state insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range recs {
			if _, err := stmt.Exec(
				r.State.Machine.Serial,
				session.FormatTime(r.State.Timestamp),
				r.State.Status.Code, r.Doc,
			); err != nil {
				return fmt.Errorf("inserting state: %w", err)
			}
		}
		return nil
	})
}
