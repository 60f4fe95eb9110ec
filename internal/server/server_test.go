package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhamzafaisal1/chitrac/internal/config"
	"github.com/mhamzafaisal1/chitrac/internal/db"
	"github.com/mhamzafaisal1/chitrac/internal/report"
	"github.com/mhamzafaisal1/chitrac/internal/session"
)

func testServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	d, err := db.Open(filepath.Join(t.TempDir(), "chitrac.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	builder := report.New(d, report.Options{
		Log:      zerolog.Nop(),
		Location: time.UTC,
	})
	return New(cfg, d, builder, zerolog.Nop()), d
}

func seedOperatorSession(
	t *testing.T, d *db.DB, id string, operatorID, serial int,
	start, end string,
) {
	t.Helper()
	endField := ""
	if end != "" {
		endField = fmt.Sprintf(`, "end": %q`, end)
	}
	doc := fmt.Sprintf(`{
		"id": %q,
		"timestamps": {"start": %q%s},
		"operator": {"id": %d, "name": "Op %d"},
		"machine": {"serial": %d, "name": "Machine %d"},
		"items": [{"id": 5, "name": "Towel", "standard": 600}],
		"counts": []
	}`, id, start, endField, operatorID, operatorID, serial, serial)

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

func seedState(
	t *testing.T, d *db.DB, serial int, ts string, code int, name string,
) {
	t.Helper()
	doc := fmt.Sprintf(`{
		"timestamp": %q,
		"machine": {"serial": %d},
		"operators": [{"id": 117}],
		"status": {"code": %d, "name": %q}
	}`, ts, serial, code, name)
	st, err := session.DecodeState(doc)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if err := d.SaveStates([]db.StateRecord{{Doc: doc, State: st}}); err != nil {
		t.Fatalf("SaveStates: %v", err)
	}
}

func get(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestListOperators(t *testing.T) {
	s, d := testServer(t)
	seedOperatorSession(t, d, "s1", 117, 67801,
		"2024-06-01T08:00:00Z", "2024-06-01T09:00:00Z")

	rec := get(t, s, "/api/v1/operators")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	ops := decode[[]session.OperatorRef](t, rec)
	if len(ops) != 1 || ops[0].ID != 117 {
		t.Errorf("operators = %+v", ops)
	}
}

func TestListOperatorsEmpty(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/api/v1/operators")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want empty array", got)
	}
}

func TestOperatorPerformanceWindow(t *testing.T) {
	s, d := testServer(t)
	seedOperatorSession(t, d, "s1", 117, 67801,
		"2024-06-01T08:00:00Z", "2024-06-01T09:00:00Z")

	rec := get(t, s, "/api/v1/operators/117/performance"+
		"?start=2024-06-01T08:00:00Z&end=2024-06-01T10:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	rep := decode[report.Report](t, rec)
	if len(rep.Results) != 1 {
		t.Fatalf("results = %+v", rep.Results)
	}
	if rep.RequestID == "" {
		t.Error("missing request id")
	}
	m := rep.Results[0].Timeframes[0].Metrics
	if m.RuntimeSeconds != 3600 {
		t.Errorf("runtime = %v, want 3600", m.RuntimeSeconds)
	}
	if m.Performance.Availability != 0.5 {
		t.Errorf("availability = %v, want 0.5", m.Performance.Availability)
	}
}

func TestOperatorPerformanceBadParams(t *testing.T) {
	s, _ := testServer(t)
	cases := []string{
		"/api/v1/operators/xyz/performance",
		"/api/v1/operators/117/performance?start=2024-06-01T08:00:00Z",
		"/api/v1/operators/117/performance" +
			"?start=bogus&end=2024-06-01T08:00:00Z",
		"/api/v1/operators/117/performance?timeframes=fortnight",
	}
	for _, url := range cases {
		rec := get(t, s, url)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", url, rec.Code)
		}
	}
}

func TestMachineFaults(t *testing.T) {
	s, d := testServer(t)
	seedState(t, d, 67801, "2024-06-01T10:00:00Z", 3, "Jam")
	seedState(t, d, 67801, "2024-06-01T10:04:00Z", 1, "Running")

	rec := get(t, s, "/api/v1/machines/67801/faults"+
		"?start=2024-06-01T09:00:00Z&end=2024-06-01T11:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	rep := decode[report.FaultReport](t, rec)
	if len(rep.FaultCycles) != 1 {
		t.Fatalf("cycles = %+v", rep.FaultCycles)
	}
	if rep.FaultCycles[0].DurationSeconds != 240 {
		t.Errorf("duration = %v, want 240",
			rep.FaultCycles[0].DurationSeconds)
	}
	if len(rep.FaultSummaries) != 1 {
		t.Errorf("summaries = %+v", rep.FaultSummaries)
	}
}

func TestMachineFaultsEmpty(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/api/v1/machines/67801/faults"+
		"?start=2024-06-01T09:00:00Z&end=2024-06-01T11:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rep := decode[report.FaultReport](t, rec)
	if rep.FaultCycles == nil || rep.FaultSummaries == nil {
		t.Error("fault arrays must be empty, not null")
	}
}

func TestItemPerformanceRequiresIDs(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/api/v1/items/performance")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	s, d := testServer(t)
	seedOperatorSession(t, d, "s1", 117, 67801,
		"2024-06-01T08:00:00Z", "")

	rec := get(t, s, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	stats := decode[db.Stats](t, rec)
	if stats.SessionCount != 1 || stats.OpenSessions != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGetVersion(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	d, err := db.Open(filepath.Join(t.TempDir(), "chitrac.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	builder := report.New(d, report.Options{Log: zerolog.Nop()})

	s := New(cfg, d, builder, zerolog.Nop(), WithVersion(VersionInfo{
		Version: "1.2.3", Commit: "abc",
	}))
	rec := get(t, s, "/api/v1/version")
	v := decode[VersionInfo](t, rec)
	if v.Version != "1.2.3" || v.Commit != "abc" {
		t.Errorf("version = %+v", v)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/operators", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
