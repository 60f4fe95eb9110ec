package fault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhamzafaisal1/chitrac/internal/session"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
}

func state(t time.Time, code int, name string, ops ...int) session.State {
	st := session.State{
		Timestamp: t,
		Machine:   session.MachineRef{Serial: 67801, Name: "Blanket1"},
		Status:    session.Status{Code: code, Name: name},
	}
	for _, id := range ops {
		st.Operators = append(st.Operators,
			session.OperatorRef{ID: id})
	}
	return st
}

func TestExtractCyclesJamScenario(t *testing.T) {
	// Jam at 10:00 with 2 active operators, running again at
	// 10:04: one 240s cycle, 480s of missed work time.
	states := []session.State{
		state(at(9, 55), 1, "Running", 117, 204),
		state(at(10, 0), 3, "Jam", 117, 204),
		state(at(10, 4), 1, "Running", 117, 204),
	}

	cycles := ExtractCycles(states, at(11, 0))
	require.Len(t, cycles, 1)

	c := cycles[0]
	assert.Equal(t, at(10, 0), c.Start)
	assert.Equal(t, at(10, 4), c.End)
	assert.Equal(t, 240.0, c.DurationSeconds)
	assert.Equal(t, 3, c.FaultCode)
	assert.Equal(t, "Jam", c.FaultName)
	assert.Equal(t, 480.0, c.WorkTimeMissedSeconds)
	assert.Equal(t, 67801, c.Machine.Serial)
}

func TestExtractCyclesSentinelOperatorExcluded(t *testing.T) {
	states := []session.State{
		state(at(10, 0), 3, "Jam", 117, session.NoOperatorID),
		state(at(10, 2), 0, "Idle", 117, session.NoOperatorID),
	}

	cycles := ExtractCycles(states, at(11, 0))
	require.Len(t, cycles, 1)
	assert.Equal(t, 120.0, cycles[0].DurationSeconds)
	assert.Equal(t, 120.0, cycles[0].WorkTimeMissedSeconds)
}

func TestExtractCyclesOpenAtWindowEnd(t *testing.T) {
	// Still faulted at the window edge: clipped, not discarded.
	states := []session.State{
		state(at(10, 0), 5, "Feed Error", 117),
	}

	cycles := ExtractCycles(states, at(10, 30))
	require.Len(t, cycles, 1)
	assert.Equal(t, at(10, 30), cycles[0].End)
	assert.Equal(t, 1800.0, cycles[0].DurationSeconds)
}

func TestExtractCyclesZeroDurationDropped(t *testing.T) {
	// Fault opening exactly at the window end clips to zero and
	// is silently dropped.
	states := []session.State{
		state(at(10, 30), 3, "Jam", 117),
	}
	assert.Empty(t, ExtractCycles(states, at(10, 30)))
}

func TestExtractCyclesFaultCodeChange(t *testing.T) {
	// A different fault code while faulted closes the cycle and
	// opens a new one; a repeated code does not.
	states := []session.State{
		state(at(10, 0), 3, "Jam", 117),
		state(at(10, 1), 3, "Jam", 117),
		state(at(10, 2), 7, "Guard Open", 117),
		state(at(10, 5), 1, "Running", 117),
	}

	cycles := ExtractCycles(states, at(11, 0))
	require.Len(t, cycles, 2)
	assert.Equal(t, 3, cycles[0].FaultCode)
	assert.Equal(t, 120.0, cycles[0].DurationSeconds)
	assert.Equal(t, 7, cycles[1].FaultCode)
	assert.Equal(t, 180.0, cycles[1].DurationSeconds)
}

func TestExtractCyclesNoFaults(t *testing.T) {
	states := []session.State{
		state(at(10, 0), 1, "Running", 117),
		state(at(10, 5), 0, "Idle", 117),
	}
	assert.Empty(t, ExtractCycles(states, at(11, 0)))
	assert.Empty(t, ExtractCycles(nil, at(11, 0)))
}

func TestSummarize(t *testing.T) {
	states := []session.State{
		state(at(10, 0), 3, "Jam", 117, 204),
		state(at(10, 4), 1, "Running", 117, 204),
		state(at(10, 10), 7, "Guard Open", 117, 204),
		state(at(10, 11), 1, "Running", 117, 204),
		state(at(10, 20), 3, "Jam", 117, 204),
		state(at(10, 22), 0, "Idle", 117, 204),
	}

	summaries := Summarize(ExtractCycles(states, at(11, 0)))
	require.Len(t, summaries, 2)

	// Jam: 240s + 120s across two cycles, sorted first.
	jam := summaries[0]
	assert.Equal(t, 3, jam.FaultCode)
	assert.Equal(t, 2, jam.Count)
	assert.Equal(t, 360.0, jam.TotalDurationSeconds)
	assert.Equal(t, 720.0, jam.TotalWorkTimeMissedSeconds)

	guard := summaries[1]
	assert.Equal(t, 7, guard.FaultCode)
	assert.Equal(t, 1, guard.Count)
	assert.Equal(t, 60.0, guard.TotalDurationSeconds)
}
