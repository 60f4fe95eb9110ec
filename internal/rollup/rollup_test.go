package rollup

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhamzafaisal1/chitrac/internal/db"
	"github.com/mhamzafaisal1/chitrac/internal/session"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "chitrac.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func seedOperatorSession(
	t *testing.T, d *db.DB, id string, operatorID, serial int,
	start, end string, counts int,
) {
	t.Helper()
	doc := fmt.Sprintf(`{
		"id": %q,
		"timestamps": {"start": %q, "end": %q},
		"operator": {"id": %d, "name": "Op %d"},
		"machine": {"serial": %d},
		"items": [{"id": 5, "name": "Towel", "standard": 600}],
		"counts": [%s]
	}`, id, start, end, operatorID, operatorID, serial,
		countsJSON(t, start, counts))

	s, err := session.DecodeSession(
		session.CollectionOperatorSession, doc,
	)
	if err != nil {
		t.Fatalf("DecodeSession: %v", err)
	}
	err = d.SaveSessions([]db.SessionRecord{{
		Collection: session.CollectionOperatorSession,
		Doc:        doc,
		Session:    s,
	}})
	if err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
}

// countsJSON emits n counts one second apart from start.
func countsJSON(t *testing.T, start string, n int) string {
	t.Helper()
	ts, ok := session.ParseTime(start)
	if !ok {
		t.Fatalf("bad start %q", start)
	}
	out := ""
	for i := range n {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"timestamp": %q, "item": {"id": 5}}`,
			session.FormatTime(ts.Add(time.Duration(i)*time.Second)))
	}
	return out
}

func testJob(t *testing.T, d *db.DB, now string) *Job {
	t.Helper()
	j := New(d, time.UTC, 1, zerolog.Nop())
	ts, ok := session.ParseTime(now)
	if !ok {
		t.Fatalf("bad now %q", now)
	}
	j.now = func() time.Time { return ts }
	return j
}

func TestRunWritesDailyTotals(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	// A 2h session yesterday with 600 counts at 600 pph.
	seedOperatorSession(t, d, "s1", 117, 67801,
		"2024-06-01T08:00:00Z", "2024-06-01T10:00:00Z", 600)

	j := testJob(t, d, "2024-06-02T12:00:00Z")
	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows, err := d.DailyTotals(ctx,
		session.EntityOperator, 117, "2024-06-01", "2024-06-01")
	if err != nil {
		t.Fatalf("DailyTotals: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.RuntimeMs != 7200000 {
		t.Errorf("RuntimeMs = %d, want 7200000", row.RuntimeMs)
	}
	if row.TotalCounts != 600 {
		t.Errorf("TotalCounts = %d, want 600", row.TotalCounts)
	}
	// 600 counts at 600 pph earn 3600s of credit.
	if row.TimeCreditMs != 3600000 {
		t.Errorf("TimeCreditMs = %d, want 3600000", row.TimeCreditMs)
	}
	if row.MachineSerial != 67801 {
		t.Errorf("MachineSerial = %d", row.MachineSerial)
	}
}

func TestRunSplitsSessionAcrossDays(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	// 22:00 to 02:00 spans the midnight boundary: 2h per day.
	seedOperatorSession(t, d, "s1", 117, 67801,
		"2024-06-01T22:00:00Z", "2024-06-02T02:00:00Z", 0)

	j := testJob(t, d, "2024-06-02T12:00:00Z")
	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows, err := d.DailyTotals(ctx,
		session.EntityOperator, 117, "2024-06-01", "2024-06-02")
	if err != nil {
		t.Fatalf("DailyTotals: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, row := range rows {
		if row.RuntimeMs != 7200000 {
			t.Errorf("day %s RuntimeMs = %d, want 7200000",
				row.Date, row.RuntimeMs)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	seedOperatorSession(t, d, "s1", 117, 67801,
		"2024-06-01T08:00:00Z", "2024-06-01T10:00:00Z", 0)

	j := testJob(t, d, "2024-06-02T12:00:00Z")
	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows, err := d.DailyTotals(ctx,
		session.EntityOperator, 117, "2024-06-01", "2024-06-01")
	if err != nil {
		t.Fatalf("DailyTotals: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows after rerun, want 1", len(rows))
	}
}
