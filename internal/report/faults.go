package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mhamzafaisal1/chitrac/internal/fault"
	"github.com/mhamzafaisal1/chitrac/internal/perf"
)

// BuildFaults extracts fault cycles and their summaries for one
// machine over a window, optionally filtered to states where one
// operator was present.
func (b *Builder) BuildFaults(
	ctx context.Context,
	machineSerial int, operatorID *int,
	win perf.Range,
) (FaultReport, error) {
	started := time.Now()
	win = perf.ClampEnd(win, b.now().UTC())

	states, err := b.store.StatesInRange(
		ctx, machineSerial, operatorID, win.Start, win.End,
	)
	if err != nil {
		return FaultReport{}, fmt.Errorf(
			"states for machine %d: %w", machineSerial, err,
		)
	}

	cycles := fault.ExtractCycles(states, win.End)
	rep := FaultReport{
		RequestID:      uuid.NewString(),
		Machine:        machineSerial,
		TimeRange:      TimeRange{Start: win.Start, End: win.End},
		FaultCycles:    cycles,
		FaultSummaries: fault.Summarize(cycles),
	}
	if rep.FaultCycles == nil {
		rep.FaultCycles = []fault.Cycle{}
	}
	if rep.FaultSummaries == nil {
		rep.FaultSummaries = []fault.Summary{}
	}

	b.log.Debug().
		Str("request_id", rep.RequestID).
		Int("machine", machineSerial).
		Int("cycles", len(rep.FaultCycles)).
		Dur("elapsed", time.Since(started)).
		Msg("fault report built")
	return rep, nil
}
