package perf

import (
	"fmt"
	"time"
)

// Range is a resolved query window. End never exceeds the "now"
// it was resolved against.
type Range struct {
	Start time.Time
	End   time.Time
}

// Seconds returns the window span in seconds.
func (r Range) Seconds() float64 {
	if !r.End.After(r.Start) {
		return 0
	}
	return r.End.Sub(r.Start).Seconds()
}

// Named timeframes accepted by the reporting endpoints.
const (
	TimeframeSixMin  = "6min"
	TimeframeQuarter = "15min"
	TimeframeHour    = "hour"
	TimeframeShift   = "shift"
	TimeframeToday   = "today"
	TimeframeWeek    = "week"
)

// DefaultTimeframes are the live timeframes computed when a
// request names no window.
var DefaultTimeframes = []string{
	TimeframeSixMin, TimeframeQuarter, TimeframeHour, TimeframeToday,
}

const shiftHours = 8

// ResolveTimeframe turns a named timeframe into a concrete
// [start, now] range. Calendar timeframes (shift, today, week)
// resolve in loc; shift boundaries fall at 00:00, 08:00, and
// 16:00 local.
func ResolveTimeframe(
	name string, now time.Time, loc *time.Location,
) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	var start time.Time
	switch name {
	case TimeframeSixMin:
		start = now.Add(-6 * time.Minute)
	case TimeframeQuarter:
		start = now.Add(-15 * time.Minute)
	case TimeframeHour:
		start = now.Add(-time.Hour)
	case TimeframeShift:
		h := (local.Hour() / shiftHours) * shiftHours
		start = time.Date(
			local.Year(), local.Month(), local.Day(), h, 0, 0, 0, loc,
		)
	case TimeframeToday:
		start = time.Date(
			local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc,
		)
	case TimeframeWeek:
		// ISO week, Monday start.
		weekday := int(local.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		day := time.Date(
			local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc,
		)
		start = day.AddDate(0, 0, -(weekday - 1))
	default:
		return Range{}, fmt.Errorf("unknown timeframe %q", name)
	}

	return Range{Start: start.UTC(), End: now.UTC()}, nil
}

// ClampEnd caps a requested window end at now so that open
// sessions are never credited time that has not elapsed yet.
func ClampEnd(r Range, now time.Time) Range {
	if r.End.After(now) {
		r.End = now
	}
	return r
}
