// Package rollup maintains the daily cache: for each operator and
// machine it recomputes per-day totals from session records and
// upserts them, so long-window reports can read whole days from
// the cache instead of re-clipping every session.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhamzafaisal1/chitrac/internal/db"
	"github.com/mhamzafaisal1/chitrac/internal/perf"
	"github.com/mhamzafaisal1/chitrac/internal/session"
	"github.com/mhamzafaisal1/chitrac/internal/telemetry"
)

// Job recomputes daily totals for recent local days.
type Job struct {
	db  *db.DB
	log zerolog.Logger
	loc *time.Location

	// backfill is how many past days each run recomputes, in
	// addition to the current day. Open sessions keep changing
	// the current day, and late spool imports can touch the days
	// just before it.
	backfill int

	now func() time.Time
}

// New returns a rollup job. backfill days below 1 default to 1.
func New(
	database *db.DB, loc *time.Location, backfill int,
	log zerolog.Logger,
) *Job {
	if backfill < 1 {
		backfill = 1
	}
	if loc == nil {
		loc = time.Local
	}
	return &Job{
		db:       database,
		log:      log.With().Str("component", "rollup").Logger(),
		loc:      loc,
		backfill: backfill,
		now:      time.Now,
	}
}

// Run recomputes the current day plus the backfill days for every
// known operator and machine. Failures for one entity are logged
// and do not stop the pass.
func (j *Job) Run(ctx context.Context) error {
	t0 := time.Now()
	now := j.now()

	operators, err := j.db.Operators(ctx)
	if err != nil {
		return fmt.Errorf("listing operators: %w", err)
	}
	machines, err := j.db.Machines(ctx)
	if err != nil {
		return fmt.Errorf("listing machines: %w", err)
	}

	days := j.recentDays(now)
	written := 0
	for _, day := range days {
		for _, op := range operators {
			n, err := j.rollupEntity(
				ctx, session.EntityOperator, op.ID, day,
			)
			if err != nil {
				j.log.Warn().Err(err).
					Int("operator", op.ID).
					Str("date", day.date).
					Msg("rollup failed for operator")
				continue
			}
			written += n
		}
		for _, m := range machines {
			n, err := j.rollupEntity(
				ctx, session.EntityMachine, m.Serial, day,
			)
			if err != nil {
				j.log.Warn().Err(err).
					Int("machine", m.Serial).
					Str("date", day.date).
					Msg("rollup failed for machine")
				continue
			}
			written += n
		}
	}

	telemetry.RollupRuns.Inc()
	telemetry.RollupDays.Add(float64(written))
	j.log.Info().
		Int("days", len(days)).
		Int("rows", written).
		Dur("elapsed", time.Since(t0)).
		Msg("rollup pass complete")
	return nil
}

// RunPeriodic runs the job at the given interval until ctx is
// cancelled. The first pass runs immediately.
func (j *Job) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := j.Run(ctx); err != nil {
			j.log.Error().Err(err).Msg("rollup pass failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// localDay is one local calendar day with its bounds.
type localDay struct {
	date  string
	start time.Time
	end   time.Time
}

func (j *Job) recentDays(now time.Time) []localDay {
	local := now.In(j.loc)
	today := time.Date(
		local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, j.loc,
	)

	days := make([]localDay, 0, j.backfill+1)
	for i := j.backfill; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		end := start.AddDate(0, 0, 1)
		if end.After(now) {
			end = now
		}
		days = append(days, localDay{
			date:  start.Format(time.DateOnly),
			start: start.UTC(),
			end:   end.UTC(),
		})
	}
	return days
}

// rollupEntity recomputes one entity's totals for one day,
// grouped by machine serial. Returns the number of rows written.
func (j *Job) rollupEntity(
	ctx context.Context,
	entityType session.EntityType, entityID int,
	day localDay,
) (int, error) {
	collection := session.CollectionOperatorSession
	if entityType == session.EntityMachine {
		collection = session.CollectionMachineSession
	}

	sessions, err := j.db.OverlappingSessions(
		ctx, collection, entityID, day.start, day.end,
	)
	if err != nil {
		return 0, fmt.Errorf("sessions for day %s: %w", day.date, err)
	}
	if len(sessions) == 0 {
		return 0, nil
	}

	byMachine := make(map[int]*session.DailyTotal)
	for _, s := range sessions {
		ov := perf.WindowOverlap(s.Start, s.End, day.start, day.end)
		if !ov.Intersects() {
			continue
		}
		clipped := perf.Truncate(s, ov.EffectiveStart, ov.EffectiveEnd)

		row := byMachine[s.Machine.Serial]
		if row == nil {
			row = &session.DailyTotal{
				EntityType:    entityType,
				EntityID:      entityID,
				MachineSerial: s.Machine.Serial,
				Date:          day.date,
			}
			byMachine[s.Machine.Serial] = row
		}
		row.RuntimeMs += int64(clipped.Runtime * 1000)
		row.WorkedTimeMs += int64(clipped.WorkTime * 1000)
		row.TimeCreditMs += int64(clipped.TimeCredit * 1000)
		row.TotalCounts += clipped.TotalCount
		row.TotalMisfeeds += clipped.MisfeedCount
	}
	if len(byMachine) == 0 {
		return 0, nil
	}

	totals := make([]session.DailyTotal, 0, len(byMachine))
	for _, row := range byMachine {
		totals = append(totals, *row)
	}
	if err := j.db.UpsertDailyTotals(totals); err != nil {
		return 0, fmt.Errorf("upserting day %s: %w", day.date, err)
	}
	return len(totals), nil
}
