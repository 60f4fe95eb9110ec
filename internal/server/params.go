package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mhamzafaisal1/chitrac/internal/report"
	"github.com/mhamzafaisal1/chitrac/internal/session"
)

var errEndBeforeStart = fmt.Errorf("end must be after start")

// parseReportQuery reads the shared performance query parameters:
// either an explicit start/end window (RFC 3339) or a comma
// separated list of named timeframes.
func parseReportQuery(
	r *http.Request, entityType session.EntityType,
) (report.Request, error) {
	req := report.Request{EntityType: entityType}
	q := r.URL.Query()

	startStr := q.Get("start")
	endStr := q.Get("end")
	if (startStr == "") != (endStr == "") {
		return req, fmt.Errorf("start and end must be given together")
	}
	if startStr != "" {
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return req, fmt.Errorf("invalid start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return req, fmt.Errorf("invalid end: %w", err)
		}
		if !end.After(start) {
			return req, fmt.Errorf("end must be after start")
		}
		req.Start = &start
		req.End = &end
		return req, nil
	}

	if tfs := q.Get("timeframes"); tfs != "" {
		for _, name := range strings.Split(tfs, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				req.Timeframes = append(req.Timeframes, name)
			}
		}
	}
	return req, nil
}

// pathInt reads an integer path segment.
func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, r.PathValue(name))
	}
	return v, nil
}

// queryIDs reads a comma separated ids parameter.
func queryIDs(r *http.Request) ([]int, error) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		return nil, nil
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
