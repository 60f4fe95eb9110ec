package report

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mhamzafaisal1/chitrac/internal/perf"
	"github.com/mhamzafaisal1/chitrac/internal/session"
	"github.com/mhamzafaisal1/chitrac/internal/telemetry"
)

const maxWorkers = 8

// Builder runs report requests against a Store.
type Builder struct {
	store     Store
	log       zerolog.Logger
	threshold time.Duration
	loc       *time.Location
	now       func() time.Time
}

// Options tune a Builder. Zero values fall back to defaults.
type Options struct {
	Log zerolog.Logger

	// Threshold is the long-window threshold for the aggregation
	// selector. Defaults to DefaultLongWindowThreshold.
	Threshold time.Duration

	// Location resolves calendar timeframes and cache-day
	// boundaries. Defaults to time.Local.
	Location *time.Location

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New returns a Builder over store.
func New(store Store, opts Options) *Builder {
	b := &Builder{
		store:     store,
		log:       opts.Log,
		threshold: opts.Threshold,
		loc:       opts.Location,
		now:       opts.Now,
	}
	if b.threshold <= 0 {
		b.threshold = DefaultLongWindowThreshold
	}
	if b.loc == nil {
		b.loc = time.Local
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Request selects the entities and windows of one report.
type Request struct {
	EntityType session.EntityType

	// EntityIDs limits the report; empty means every known entity
	// of the type.
	EntityIDs []int

	// Timeframes are named windows (6min, 15min, hour, shift,
	// today, week). Empty means perf.DefaultTimeframes. Ignored
	// when Start/End are set.
	Timeframes []string

	// Start/End select one explicit window instead of named
	// timeframes.
	Start, End *time.Time
}

// window is one resolved timeframe of a request.
type window struct {
	name string
	rng  perf.Range
}

func (b *Builder) resolveWindows(req Request, now time.Time) ([]window, error) {
	if req.Start != nil && req.End != nil {
		if !req.End.After(*req.Start) {
			return nil, fmt.Errorf(
				"window end %s not after start %s", req.End, req.Start,
			)
		}
		r := perf.ClampEnd(
			perf.Range{Start: req.Start.UTC(), End: req.End.UTC()}, now,
		)
		return []window{{name: "custom", rng: r}}, nil
	}

	names := req.Timeframes
	if len(names) == 0 {
		names = perf.DefaultTimeframes
	}
	windows := make([]window, 0, len(names))
	for _, name := range names {
		r, err := perf.ResolveTimeframe(name, now, b.loc)
		if err != nil {
			return nil, err
		}
		windows = append(windows, window{name: name, rng: r})
	}
	return windows, nil
}

// resolveEntities expands the request into concrete entities with
// display names. Item reports require explicit ids; there is no
// item directory to enumerate.
func (b *Builder) resolveEntities(
	ctx context.Context, req Request,
) ([]Entity, error) {
	switch req.EntityType {
	case session.EntityOperator:
		ops, err := b.store.Operators(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing operators: %w", err)
		}
		return filterEntities(req, operatorEntities(ops)), nil
	case session.EntityMachine:
		machines, err := b.store.Machines(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing machines: %w", err)
		}
		return filterEntities(req, machineEntities(machines)), nil
	case session.EntityItem:
		if len(req.EntityIDs) == 0 {
			return nil, fmt.Errorf("item reports require entity ids")
		}
		entities := make([]Entity, 0, len(req.EntityIDs))
		for _, id := range req.EntityIDs {
			entities = append(entities, Entity{
				Type: session.EntityItem, ID: id,
			})
		}
		return entities, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", req.EntityType)
	}
}

func operatorEntities(ops []session.OperatorRef) []Entity {
	entities := make([]Entity, 0, len(ops))
	for _, op := range ops {
		entities = append(entities, Entity{
			Type: session.EntityOperator, ID: op.ID, Name: op.Name,
		})
	}
	return entities
}

func machineEntities(machines []session.MachineRef) []Entity {
	entities := make([]Entity, 0, len(machines))
	for _, m := range machines {
		entities = append(entities, Entity{
			Type: session.EntityMachine, ID: m.Serial, Name: m.Name,
		})
	}
	return entities
}

// filterEntities keeps requested ids, preserving request order.
// Ids unknown to the directory still get a row; their sessions may
// exist even when no recent one names them.
func filterEntities(req Request, known []Entity) []Entity {
	if len(req.EntityIDs) == 0 {
		return known
	}
	byID := make(map[int]Entity, len(known))
	for _, e := range known {
		byID[e.ID] = e
	}
	entities := make([]Entity, 0, len(req.EntityIDs))
	for _, id := range req.EntityIDs {
		if e, ok := byID[id]; ok {
			entities = append(entities, e)
			continue
		}
		entities = append(entities, Entity{Type: req.EntityType, ID: id})
	}
	return entities
}

// windowJob is one (entity, timeframe) unit of fan-out work.
type windowJob struct {
	entityID int
	winIdx   int
}

type windowResult struct {
	windowJob
	totals totals
	err    error
}

// startWorkers fans the (entity, timeframe) grid across a worker
// pool and returns the results channel. Every computation is
// independent; failures surface per job.
func (b *Builder) startWorkers(
	ctx context.Context,
	entityType session.EntityType,
	jobs []windowJob, windows []window,
) <-chan windowResult {
	workers := min(max(runtime.NumCPU(), 2), maxWorkers)

	in := make(chan windowJob, len(jobs))
	out := make(chan windowResult, len(jobs))

	for range workers {
		go func() {
			for job := range in {
				t, err := b.computeWindow(
					ctx, entityType, job.entityID,
					windows[job.winIdx].rng,
				)
				out <- windowResult{
					windowJob: job, totals: t, err: err,
				}
			}
		}()
	}

	for _, j := range jobs {
		in <- j
	}
	close(in)
	return out
}

// Build computes the report for req. A read failure for one entity
// omits that entity and increments Omitted; other entities are
// unaffected.
func (b *Builder) Build(ctx context.Context, req Request) (Report, error) {
	started := time.Now()
	now := b.now().UTC()

	windows, err := b.resolveWindows(req, now)
	if err != nil {
		return Report{}, err
	}
	entities, err := b.resolveEntities(ctx, req)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		RequestID:   uuid.NewString(),
		GeneratedAt: now,
	}
	if len(entities) == 0 {
		report.Results = []EntityResult{}
		return report, nil
	}

	jobs := make([]windowJob, 0, len(entities)*len(windows))
	for _, e := range entities {
		for i := range windows {
			jobs = append(jobs, windowJob{entityID: e.ID, winIdx: i})
		}
	}

	results := b.startWorkers(ctx, req.EntityType, jobs, windows)

	// Join barrier: collect every job before assembling anything.
	byEntity := make(map[int][]totals, len(entities))
	failed := make(map[int]error)
	for range jobs {
		r := <-results
		if r.err != nil {
			if _, seen := failed[r.entityID]; !seen {
				failed[r.entityID] = r.err
			}
			continue
		}
		if byEntity[r.entityID] == nil {
			byEntity[r.entityID] = make([]totals, len(windows))
		}
		byEntity[r.entityID][r.winIdx] = r.totals
	}

	report.Results = make([]EntityResult, 0, len(entities))
	for _, e := range entities {
		if err := failed[e.ID]; err != nil {
			b.log.Warn().
				Err(err).
				Str("entity_type", string(e.Type)).
				Int("entity_id", e.ID).
				Msg("entity omitted from report")
			report.Omitted++
			telemetry.ReportEntitiesOmitted.Inc()
			continue
		}
		row, err := b.assembleEntity(
			ctx, e, windows, byEntity[e.ID], now,
		)
		if err != nil {
			b.log.Warn().
				Err(err).
				Str("entity_type", string(e.Type)).
				Int("entity_id", e.ID).
				Msg("entity omitted from report")
			report.Omitted++
			telemetry.ReportEntitiesOmitted.Inc()
			continue
		}
		report.Results = append(report.Results, row)
	}

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Entity.ID < report.Results[j].Entity.ID
	})

	telemetry.ReportsTotal.WithLabelValues(string(req.EntityType)).Inc()
	telemetry.ReportDuration.WithLabelValues(string(req.EntityType)).
		Observe(time.Since(started).Seconds())
	b.log.Debug().
		Str("request_id", report.RequestID).
		Str("entity_type", string(req.EntityType)).
		Int("entities", len(report.Results)).
		Int("omitted", report.Omitted).
		Dur("elapsed", time.Since(started)).
		Msg("report built")
	return report, nil
}

// assembleEntity resolves status, applies fallback substitution,
// and builds the final row for one entity.
func (b *Builder) assembleEntity(
	ctx context.Context,
	e Entity, windows []window, perWindow []totals,
	now time.Time,
) (EntityResult, error) {
	row := EntityResult{Entity: e}

	status, machine, open, err := b.currentStatus(ctx, e)
	if err != nil {
		return EntityResult{}, err
	}
	row.CurrentStatus = status
	row.CurrentMachine = machine

	// An entity whose machine reports running substitutes its open
	// session for every empty timeframe. Idle or offline entities
	// keep their legitimate zeros.
	var fallbackTotals *totals
	var fallbackRange TimeRange
	if status != nil && status.Running() && open != nil {
		for _, t := range perWindow {
			if t.rows == 0 {
				ft, fr := b.openSessionTotals(*open, now)
				fallbackTotals = &ft
				fallbackRange = fr
				break
			}
		}
	}

	row.Timeframes = make([]TimeframeResult, 0, len(windows))
	for i, w := range windows {
		t := perWindow[i]
		tf := TimeframeResult{
			Timeframe: w.name,
			TimeRange: TimeRange{Start: w.rng.Start, End: w.rng.End},
		}
		if t.rows == 0 && fallbackTotals != nil {
			tf.Metrics = metricsFrom(
				*fallbackTotals,
				fallbackRange.End.Sub(fallbackRange.Start).Seconds(),
			)
			tf.TimeRange = fallbackRange
			tf.Fallback = true
			telemetry.FallbacksResolved.Inc()
		} else {
			tf.Metrics = metricsFrom(t, w.rng.Seconds())
		}
		row.Timeframes = append(row.Timeframes, tf)
	}
	return row, nil
}

// openSessionTotals clips an open session to [start, now] and uses
// the elapsed session span as the composition window, so the
// substituted ratios reflect everything since the session began.
func (b *Builder) openSessionTotals(
	open session.Session, now time.Time,
) (totals, TimeRange) {
	var t totals
	t.addSession(open, perf.Range{Start: open.Start, End: now})
	t.rows = 1
	return t, TimeRange{Start: open.Start, End: now}
}

// currentStatus resolves the entity's latest machine status. For
// operators the machine comes from the latest open operator
// session; an operator with no open session is offline.
func (b *Builder) currentStatus(
	ctx context.Context, e Entity,
) (*session.Status, *session.MachineRef, *session.Session, error) {
	switch e.Type {
	case session.EntityMachine:
		open, err := b.store.LatestOpenSession(
			ctx, session.CollectionMachineSession, e.ID,
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open session: %w", err)
		}
		state, err := b.store.LatestState(ctx, e.ID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("latest state: %w", err)
		}
		machine := &session.MachineRef{Serial: e.ID, Name: e.Name}
		if state == nil {
			return nil, machine, open, nil
		}
		return &state.Status, machine, open, nil

	case session.EntityOperator:
		open, err := b.store.LatestOpenSession(
			ctx, session.CollectionOperatorSession, e.ID,
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open session: %w", err)
		}
		if open == nil {
			return nil, nil, nil, nil
		}
		state, err := b.store.LatestState(ctx, open.Machine.Serial)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("latest state: %w", err)
		}
		machine := open.Machine
		if state == nil {
			return nil, &machine, open, nil
		}
		return &state.Status, &machine, open, nil

	default:
		// Items carry no live status.
		return nil, nil, nil, nil
	}
}
