package report

import (
	"context"
	"fmt"
	"time"

	"github.com/mhamzafaisal1/chitrac/internal/perf"
	"github.com/mhamzafaisal1/chitrac/internal/session"
	"github.com/mhamzafaisal1/chitrac/internal/telemetry"
)

// Aggregation strategies, by window length against the long-window
// threshold.
const (
	strategyLive   = "live"
	strategyHybrid = "hybrid"
)

// DefaultLongWindowThreshold is the window length above which the
// daily cache is consulted instead of computing every day live.
const DefaultLongWindowThreshold = 36 * time.Hour

// totals accumulates the additive metric components for one entity
// and window. Ratios are composed from a totals exactly once, after
// all tiers are summed; they are never averaged across tiers.
type totals struct {
	runtimeSec float64
	workSec    float64
	creditSec  float64
	valid      int
	misfeed    int

	// rows counts source rows (sessions or cached days) seen for
	// the window, before overlap filtering. Zero rows marks the
	// window empty for fallback resolution.
	rows int
}

func (t *totals) add(u totals) {
	t.runtimeSec += u.runtimeSec
	t.workSec += u.workSec
	t.creditSec += u.creditSec
	t.valid += u.valid
	t.misfeed += u.misfeed
	t.rows += u.rows
}

// addSession clips one session to the window and accumulates its
// recomputed metrics.
func (t *totals) addSession(s session.Session, win perf.Range) {
	ov := perf.WindowOverlap(s.Start, s.End, win.Start, win.End)
	if !ov.Intersects() {
		return
	}
	clipped := perf.Truncate(s, ov.EffectiveStart, ov.EffectiveEnd)
	t.runtimeSec += clipped.Runtime
	t.workSec += clipped.WorkTime
	t.creditSec += clipped.TimeCredit
	t.valid += clipped.TotalCount
	t.misfeed += clipped.MisfeedCount
}

// liveTotals computes a window entirely from session records.
func (b *Builder) liveTotals(
	ctx context.Context,
	entityType session.EntityType, entityID int,
	win perf.Range,
) (totals, error) {
	sessions, err := b.store.OverlappingSessions(
		ctx, collectionFor(entityType), entityID, win.Start, win.End,
	)
	if err != nil {
		return totals{}, fmt.Errorf("live window: %w", err)
	}

	t := totals{rows: len(sessions)}
	for _, s := range sessions {
		t.addSession(s, win)
	}
	return t, nil
}

// cachedTotals sums pre-aggregated daily rows for the whole local
// calendar days [fromDate, toDate]. Missing dates contribute zero.
func (b *Builder) cachedTotals(
	ctx context.Context,
	entityType session.EntityType, entityID int,
	fromDate, toDate string,
) (totals, error) {
	rows, err := b.store.DailyTotals(
		ctx, entityType, entityID, fromDate, toDate,
	)
	if err != nil {
		return totals{}, fmt.Errorf("cached days: %w", err)
	}

	var t totals
	for _, r := range rows {
		t.runtimeSec += float64(r.RuntimeMs) / 1000
		t.workSec += float64(r.WorkedTimeMs) / 1000
		t.creditSec += float64(r.TimeCreditMs) / 1000
		t.valid += r.TotalCounts
		t.misfeed += r.TotalMisfeeds
	}
	t.rows = len(rows)
	return t, nil
}

// daySplit is a long window divided into whole local calendar days
// plus at most two live partial boundary days.
type daySplit struct {
	head *perf.Range // partial day before the first midnight
	tail *perf.Range // partial day after the last midnight

	// fromDate/toDate bound the whole cached days, inclusive.
	// Empty when the window contains fewer than one whole day.
	fromDate string
	toDate   string
}

func splitDays(win perf.Range, loc *time.Location) daySplit {
	start := win.Start.In(loc)
	end := win.End.In(loc)

	firstMidnight := time.Date(
		start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc,
	)
	if firstMidnight.Before(start) {
		firstMidnight = firstMidnight.AddDate(0, 0, 1)
	}
	lastMidnight := time.Date(
		end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc,
	)

	var sp daySplit
	if !firstMidnight.Before(lastMidnight) {
		// No whole day fits; the window is two live partials.
		mid := firstMidnight
		if mid.After(end) {
			mid = end
		}
		if mid.After(start) {
			sp.head = &perf.Range{Start: start.UTC(), End: mid.UTC()}
		}
		if end.After(mid) {
			sp.tail = &perf.Range{Start: mid.UTC(), End: end.UTC()}
		}
		return sp
	}

	if start.Before(firstMidnight) {
		sp.head = &perf.Range{
			Start: start.UTC(), End: firstMidnight.UTC(),
		}
	}
	if end.After(lastMidnight) {
		sp.tail = &perf.Range{
			Start: lastMidnight.UTC(), End: end.UTC(),
		}
	}
	sp.fromDate = firstMidnight.Format(time.DateOnly)
	sp.toDate = lastMidnight.AddDate(0, 0, -1).Format(time.DateOnly)
	return sp
}

// computeWindow selects the aggregation strategy for one entity and
// window. Windows at or under the threshold are computed live from
// session records; longer windows merge cached whole days with live
// boundary partials, summing additive fields before ratios are
// composed.
func (b *Builder) computeWindow(
	ctx context.Context,
	entityType session.EntityType, entityID int,
	win perf.Range,
) (totals, error) {
	if win.End.Sub(win.Start) <= b.threshold {
		telemetry.WindowsComputed.WithLabelValues(strategyLive).Inc()
		return b.liveTotals(ctx, entityType, entityID, win)
	}
	telemetry.WindowsComputed.WithLabelValues(strategyHybrid).Inc()

	sp := splitDays(win, b.loc)

	var t totals
	if sp.fromDate != "" {
		cached, err := b.cachedTotals(
			ctx, entityType, entityID, sp.fromDate, sp.toDate,
		)
		if err != nil {
			return totals{}, err
		}
		t.add(cached)
	}
	for _, part := range []*perf.Range{sp.head, sp.tail} {
		if part == nil {
			continue
		}
		live, err := b.liveTotals(ctx, entityType, entityID, *part)
		if err != nil {
			return totals{}, err
		}
		t.add(live)
	}
	return t, nil
}

// metricsFrom composes the final metric block from summed totals.
// Credit is rounded here, at the outermost boundary only.
func metricsFrom(t totals, windowSec float64) Metrics {
	downtime := windowSec - t.runtimeSec
	if downtime < 0 {
		downtime = 0
	}
	p := perf.Compose(
		t.runtimeSec, t.creditSec, t.valid, t.misfeed, windowSec,
	)
	return Metrics{
		RuntimeSeconds:    t.runtimeSec,
		DowntimeSeconds:   downtime,
		WorkedSeconds:     t.workSec,
		TimeCreditSeconds: perf.Round2(t.creditSec),
		Output: Output{
			TotalCount:   t.valid,
			MisfeedCount: t.misfeed,
		},
		Performance: composeView(p),
	}
}

func collectionFor(t session.EntityType) string {
	switch t {
	case session.EntityMachine:
		return session.CollectionMachineSession
	case session.EntityItem:
		return session.CollectionItemSession
	default:
		return session.CollectionOperatorSession
	}
}
