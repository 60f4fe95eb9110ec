package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mhamzafaisal1/chitrac/internal/session"
)

// sessionCols is the column list for session reads. Keep in sync
// with scanSessionRow.
const sessionCols = `id, collection, updated_at, doc`

// rowScanner is satisfied by both *sql.Row and *sql.Rows,
// allowing a single scan helper for both.
type rowScanner interface {
	Scan(dest ...any) error
}

type sessionRow struct {
	id         string
	collection string
	updatedAt  string
	doc        string
}

func scanSessionRow(rs rowScanner) (sessionRow, error) {
	var r sessionRow
	err := rs.Scan(&r.id, &r.collection, &r.updatedAt, &r.doc)
	return r, err
}

// decodeRow normalizes a stored session document, going through
// the decoded-document cache. Cache keys include updated_at so a
// re-imported document is never served stale.
func (db *DB) decodeRow(r sessionRow) (session.Session, error) {
	key := r.id + "|" + r.updatedAt
	if s, ok := db.docCache.Get(key); ok {
		return s, nil
	}
	s, err := session.DecodeSession(r.collection, r.doc)
	if err != nil {
		return session.Session{}, fmt.Errorf(
			"decoding session %s: %w", r.id, err,
		)
	}
	db.docCache.Add(key, s)
	return s, nil
}

// OverlappingSessions returns the entity's sessions that overlap
// [winStart, winEnd), sorted ascending by start. The predicate is
// start < winEnd AND (end >= winStart OR end absent); bounds are
// re-checked in Go on the decoded timestamps.
func (db *DB) OverlappingSessions(
	ctx context.Context,
	collection string, entityID int,
	winStart, winEnd time.Time,
) ([]session.Session, error) {
	query := `SELECT ` + sessionCols + ` FROM sessions
		WHERE collection = ? AND entity_id = ?
		AND start_ts < ?
		AND (end_ts >= ? OR end_ts IS NULL)`

	rows, err := db.reader.QueryContext(ctx, query,
		collection, entityID,
		session.FormatTime(winEnd), session.FormatTime(winStart),
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		r, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		s, err := db.decodeRow(r)
		if err != nil {
			return nil, err
		}
		if !s.Start.Before(winEnd) {
			continue
		}
		if s.End != nil && s.End.Before(winStart) {
			continue
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// LatestOpenSession returns the entity's most recent session with
// no end timestamp, or nil when the entity has none open.
func (db *DB) LatestOpenSession(
	ctx context.Context, collection string, entityID int,
) (*session.Session, error) {
	query := `SELECT ` + sessionCols + ` FROM sessions
		WHERE collection = ? AND entity_id = ? AND end_ts IS NULL
		ORDER BY start_ts DESC LIMIT 1`

	r, err := scanSessionRow(db.reader.QueryRowContext(
		ctx, query, collection, entityID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying open session: %w", err)
	}
	s, err := db.decodeRow(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// latestDocPerEntity scans a collection newest-first and returns
// the most recent decoded session per entity id.
func (db *DB) latestDocPerEntity(
	ctx context.Context, collection string,
) (map[int]session.Session, error) {
	query := `SELECT entity_id, ` + sessionCols + ` FROM sessions
		WHERE collection = ? ORDER BY start_ts DESC`

	rows, err := db.reader.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	latest := make(map[int]session.Session)
	for rows.Next() {
		var entityID int
		var r sessionRow
		if err := rows.Scan(
			&entityID, &r.id, &r.collection, &r.updatedAt, &r.doc,
		); err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}
		if _, seen := latest[entityID]; seen {
			continue
		}
		s, err := db.decodeRow(r)
		if err != nil {
			return nil, err
		}
		latest[entityID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity rows: %w", err)
	}
	return latest, nil
}

// Operators lists known operators from their most recent
// sessions, sorted by id.
func (db *DB) Operators(ctx context.Context) ([]session.OperatorRef, error) {
	latest, err := db.latestDocPerEntity(
		ctx, session.CollectionOperatorSession,
	)
	if err != nil {
		return nil, err
	}
	out := make([]session.OperatorRef, 0, len(latest))
	for id, s := range latest {
		ref := s.Operator
		ref.ID = id
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Machines lists known machines from their most recent sessions,
// sorted by serial.
func (db *DB) Machines(ctx context.Context) ([]session.MachineRef, error) {
	latest, err := db.latestDocPerEntity(
		ctx, session.CollectionMachineSession,
	)
	if err != nil {
		return nil, err
	}
	out := make([]session.MachineRef, 0, len(latest))
	for serial, s := range latest {
		ref := s.Machine
		ref.Serial = serial
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Serial < out[j].Serial
	})
	return out, nil
}

// SessionRecord pairs a normalized session with the raw document
// it was decoded from, for persistence.
type SessionRecord struct {
	Collection string
	Doc        string
	Session    session.Session
}

// entityID returns the value indexed as entity_id for the
// record's collection.
func (r SessionRecord) entityID() int {
	switch r.Collection {
	case session.CollectionOperatorSession:
		return r.Session.Operator.ID
	case session.CollectionMachineSession:
		return r.Session.Machine.Serial
	default:
		if len(r.Session.Items) > 0 {
			return r.Session.Items[0].ID
		}
		return 0
	}
}

// SaveSessions upserts a batch of session records in one
// transaction. Re-imports of the same id replace the document;
// open sessions are replaced by their closed form the same way.
func (db *DB) SaveSessions(recs []SessionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	now := session.FormatTime(time.Now())

	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO sessions
			(id, collection, entity_id, machine_serial,
			 start_ts, end_ts, doc, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				end_ts = excluded.end_ts,
				doc = excluded.doc,
				updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("preparing session upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range recs {
			var endTS *string
			if r.Session.End != nil {
				s := session.FormatTime(*r.Session.End)
				endTS = &s
			}
			if _, err := stmt.Exec(
				r.Session.ID, r.Collection, r.entityID(),
				r.Session.Machine.Serial,
				session.FormatTime(r.Session.Start), endTS,
				r.Doc, now,
			); err != nil {
				return fmt.Errorf(
					"upserting session %s: %w", r.Session.ID, err,
				)
			}
		}
		return nil
	})
}
