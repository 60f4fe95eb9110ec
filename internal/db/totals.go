package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mhamzafaisal1/chitrac/internal/session"
)

// DailyTotals returns the entity's cache rows for local dates in
// [fromDate, toDate] inclusive (YYYY-MM-DD), across all machines,
// sorted by date. Missing dates are simply absent; they
// contribute zero to any merge.
func (db *DB) DailyTotals(
	ctx context.Context,
	entityType session.EntityType, entityID int,
	fromDate, toDate string,
) ([]session.DailyTotal, error) {
	query := `SELECT entity_type, entity_id, machine_serial, date,
		runtime_ms, worked_time_ms, time_credit_ms,
		total_counts, total_misfeeds
		FROM daily_totals
		WHERE entity_type = ? AND entity_id = ?
		AND date >= ? AND date <= ?
		ORDER BY date ASC, machine_serial ASC`

	rows, err := db.reader.QueryContext(ctx, query,
		string(entityType), entityID, fromDate, toDate,
	)
	if err != nil {
		return nil, fmt.Errorf("querying daily totals: %w", err)
	}
	defer rows.Close()

	var out []session.DailyTotal
	for rows.Next() {
		var dt session.DailyTotal
		var et string
		if err := rows.Scan(
			&et, &dt.EntityID, &dt.MachineSerial, &dt.Date,
			&dt.RuntimeMs, &dt.WorkedTimeMs, &dt.TimeCreditMs,
			&dt.TotalCounts, &dt.TotalMisfeeds,
		); err != nil {
			return nil, fmt.Errorf("scanning daily total: %w", err)
		}
		dt.EntityType = session.EntityType(et)
		out = append(out, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily totals: %w", err)
	}
	return out, nil
}

// UpsertDailyTotals replaces cache rows in one transaction. Only
// the rollup job calls this; the reporting engine reads only.
func (db *DB) UpsertDailyTotals(totals []session.DailyTotal) error {
	if len(totals) == 0 {
		return nil
	}
	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO daily_totals
			(entity_type, entity_id, machine_serial, date,
			 runtime_ms, worked_time_ms, time_credit_ms,
			 total_counts, total_misfeeds)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_type, entity_id, machine_serial, date)
			DO UPDATE SET
				runtime_ms = excluded.runtime_ms,
				worked_time_ms = excluded.worked_time_ms,
				time_credit_ms = excluded.time_credit_ms,
				total_counts = excluded.total_counts,
				total_misfeeds = excluded.total_misfeeds`)
		if err != nil {
			return fmt.Errorf("preparing totals upsert: %w", err)
		}
		defer stmt.Close()

		for _, dt := range totals {
			if _, err := stmt.Exec(
				string(dt.EntityType), dt.EntityID,
				dt.MachineSerial, dt.Date,
				dt.RuntimeMs, dt.WorkedTimeMs, dt.TimeCreditMs,
				dt.TotalCounts, dt.TotalMisfeeds,
			); err != nil {
				return fmt.Errorf("upserting daily total: %w", err)
			}
		}
		return nil
	})
}
