package perf

import (
	"time"

	"github.com/mhamzafaisal1/chitrac/internal/session"
)

// filterCounts returns counts whose timestamps fall within
// [from, to] inclusive.
func filterCounts(
	counts []session.CountRecord, from, to time.Time,
) []session.CountRecord {
	var out []session.CountRecord
	for _, c := range counts {
		if c.Timestamp.Before(from) || c.Timestamp.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Truncate returns a window-clipped copy of s with all derived
// metrics recomputed from the clipped bounds and filtered counts.
// The input session is never mutated; the returned value is owned
// by the caller, which is what makes concurrent fan-out over a
// shared session set safe.
//
// Sessions entirely outside [newStart, newEnd] must be filtered
// upstream via WindowOverlap; Truncate assumes an intersection
// exists.
func Truncate(s session.Session, newStart, newEnd time.Time) session.Session {
	start := s.Start
	if newStart.After(start) {
		start = newStart
	}
	end := newEnd
	if s.End != nil && s.End.Before(end) {
		end = *s.End
	}
	if end.Before(start) {
		end = start
	}

	out := s
	out.Start = start
	out.End = &end
	out.Counts = session.Counts{
		Valid:   filterCounts(s.Counts.Valid, start, end),
		Misfeed: filterCounts(s.Counts.Misfeed, start, end),
	}

	out.Runtime = end.Sub(start).Seconds()
	out.WorkTime = out.Runtime
	if s.Type == session.EntityMachine {
		out.WorkTime = out.Runtime *
			float64(session.ActiveStationCount(s.Operators))
	}
	out.TotalCount = len(out.Counts.Valid)
	out.MisfeedCount = len(out.Counts.Misfeed)
	out.TimeCredit = TimeCreditSeconds(
		out.Counts.Valid, s.StandardsByItem(),
	)
	return out
}
