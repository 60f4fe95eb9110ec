// Package report builds per-entity performance reports: it fans
// out per-(entity, timeframe) computations over the session,
// state, and daily-cache stores, merges cached and live tiers for
// long windows, and assembles the response objects served by the
// HTTP layer.
package report

import (
	"context"
	"time"

	"github.com/mhamzafaisal1/chitrac/internal/fault"
	"github.com/mhamzafaisal1/chitrac/internal/perf"
	"github.com/mhamzafaisal1/chitrac/internal/session"
)

// Store is the read-only data access the engine needs. *db.DB
// implements it; tests substitute fakes.
type Store interface {
	Operators(ctx context.Context) ([]session.OperatorRef, error)
	Machines(ctx context.Context) ([]session.MachineRef, error)
	OverlappingSessions(
		ctx context.Context,
		collection string, entityID int,
		winStart, winEnd time.Time,
	) ([]session.Session, error)
	LatestOpenSession(
		ctx context.Context, collection string, entityID int,
	) (*session.Session, error)
	StatesInRange(
		ctx context.Context,
		machineSerial int, operatorID *int,
		winStart, winEnd time.Time,
	) ([]session.State, error)
	LatestState(
		ctx context.Context, machineSerial int,
	) (*session.State, error)
	DailyTotals(
		ctx context.Context,
		entityType session.EntityType, entityID int,
		fromDate, toDate string,
	) ([]session.DailyTotal, error)
}

// Entity identifies the subject of one result row.
type Entity struct {
	Type session.EntityType `json:"type"`
	ID   int                `json:"id"`
	Name string             `json:"name,omitempty"`
}

// TimeRange is the window a timeframe result covers. For
// fallback-resolved timeframes it is the open session's span, not
// the requested window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Output holds the count totals for one timeframe.
type Output struct {
	TotalCount   int `json:"totalCount"`
	MisfeedCount int `json:"misfeedCount"`
}

// PerformanceView is the composed ratio block with display
// percentages and bands alongside the full-precision ratios.
type PerformanceView struct {
	perf.Performance
	EfficiencyPercent int    `json:"efficiencyPercent"`
	OEEPercent        int    `json:"oeePercent"`
	EfficiencyBand    string `json:"efficiencyBand"`
	OEEBand           string `json:"oeeBand"`
}

// Metrics is the metric block for one entity and timeframe.
type Metrics struct {
	RuntimeSeconds    float64         `json:"runtime"`
	DowntimeSeconds   float64         `json:"downtime"`
	WorkedSeconds     float64         `json:"workedTime"`
	TimeCreditSeconds float64         `json:"totalTimeCredit"`
	Output            Output          `json:"output"`
	Performance       PerformanceView `json:"performance"`
}

// TimeframeResult is one computed timeframe for one entity.
type TimeframeResult struct {
	Timeframe string    `json:"timeframe"`
	TimeRange TimeRange `json:"timeRange"`
	Metrics   Metrics   `json:"metrics"`

	// Fallback marks a timeframe whose metrics came from the
	// entity's open session because the requested window held no
	// session rows.
	Fallback bool `json:"fallback,omitempty"`
}

// EntityResult is the full per-entity result row.
type EntityResult struct {
	Entity         Entity              `json:"entity"`
	CurrentStatus  *session.Status     `json:"currentStatus,omitempty"`
	CurrentMachine *session.MachineRef `json:"currentMachine,omitempty"`
	Timeframes     []TimeframeResult   `json:"timeframes"`
}

// Report is the assembled response for one request.
type Report struct {
	RequestID   string         `json:"requestId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Results     []EntityResult `json:"results"`

	// Omitted counts entities dropped after a read failure. Their
	// absence is non-fatal for the rest of the report.
	Omitted int `json:"omitted,omitempty"`
}

// FaultReport is the response for a machine fault query.
type FaultReport struct {
	RequestID      string          `json:"requestId"`
	Machine        int             `json:"machine"`
	TimeRange      TimeRange       `json:"timeRange"`
	FaultCycles    []fault.Cycle   `json:"faultCycles"`
	FaultSummaries []fault.Summary `json:"faultSummaries"`
}

func composeView(p perf.Performance) PerformanceView {
	return PerformanceView{
		Performance:       p,
		EfficiencyPercent: perf.Percent(p.Efficiency),
		OEEPercent:        perf.Percent(p.OEE),
		EfficiencyBand:    perf.Band(p.Efficiency),
		OEEBand:           perf.Band(p.OEE),
	}
}
