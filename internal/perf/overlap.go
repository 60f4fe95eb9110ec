// Package perf holds the pure session-window calculators: window
// overlap, time credit, session truncation, and efficiency/OEE
// composition. Nothing here has side effects; every function is
// safe to call concurrently.
package perf

import "time"

// Overlap describes how a session intersects a query window.
type Overlap struct {
	OverlapSeconds     float64
	FullSessionSeconds float64
	ProrationFactor    float64
	EffectiveStart     time.Time
	EffectiveEnd       time.Time
}

// Intersects reports whether the session overlaps the window at
// all. Sessions that do not intersect must be skipped entirely.
func (o Overlap) Intersects() bool { return o.OverlapSeconds > 0 }

// WindowOverlap computes the overlap between a session interval
// (end nil while the session is open) and a query window. An open
// session's effective end is the window end; callers resolve
// windows so that the window end never exceeds now.
//
// ProrationFactor scales session-level aggregates that cannot be
// recomputed from raw counts.
func WindowOverlap(
	start time.Time, end *time.Time,
	winStart, winEnd time.Time,
) Overlap {
	sessEnd := winEnd
	if end != nil && end.Before(winEnd) {
		sessEnd = *end
	}

	effStart := start
	if winStart.After(effStart) {
		effStart = winStart
	}
	effEnd := sessEnd
	if winEnd.Before(effEnd) {
		effEnd = winEnd
	}

	o := Overlap{
		FullSessionSeconds: sessEnd.Sub(start).Seconds(),
		EffectiveStart:     effStart,
		EffectiveEnd:       effEnd,
	}
	if !effEnd.After(effStart) {
		o.EffectiveStart = time.Time{}
		o.EffectiveEnd = time.Time{}
		return o
	}

	o.OverlapSeconds = effEnd.Sub(effStart).Seconds()
	if o.FullSessionSeconds > 0 {
		o.ProrationFactor = o.OverlapSeconds / o.FullSessionSeconds
	}
	return o
}
