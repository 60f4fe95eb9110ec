// Package fault derives fault cycles and per-fault-type summaries
// from ordered machine state records.
package fault

import (
	"sort"
	"time"

	"github.com/mhamzafaisal1/chitrac/internal/session"
)

// Cycle is one contiguous fault interval on a machine. Derived
// per query, never stored.
type Cycle struct {
	Start                 time.Time             `json:"start"`
	End                   time.Time             `json:"end"`
	DurationSeconds       float64               `json:"durationSeconds"`
	FaultCode             int                   `json:"faultCode"`
	FaultName             string                `json:"faultName"`
	Machine               session.MachineRef    `json:"machine"`
	Operators             []session.OperatorRef `json:"operators"`
	WorkTimeMissedSeconds float64               `json:"workTimeMissedSeconds"`
}

// Summary accumulates cycles that share a fault identity.
type Summary struct {
	FaultCode                  int     `json:"faultCode"`
	FaultName                  string  `json:"faultName"`
	Count                      int     `json:"count"`
	TotalDurationSeconds       float64 `json:"totalDurationSeconds"`
	TotalWorkTimeMissedSeconds float64 `json:"totalWorkTimeMissedSeconds"`
}

// closeCycle finalizes an open cycle at end. Cycles that clip to
// zero or negative duration are boundary artifacts and are
// dropped, not errors.
func closeCycle(c Cycle, end time.Time) (Cycle, bool) {
	d := end.Sub(c.Start).Seconds()
	if d <= 0 {
		return Cycle{}, false
	}
	c.End = end
	c.DurationSeconds = d
	c.WorkTimeMissedSeconds = d *
		float64(session.ActiveStationCount(c.Operators))
	return c, true
}

// ExtractCycles runs the fault state machine over states sorted
// ascending by timestamp for a single machine. A transition into
// a fault status opens a cycle; a transition to running or idle
// closes it. A change of fault code while faulted closes the
// current cycle and opens a new one. A cycle still open after the
// last state is closed at windowEnd.
func ExtractCycles(
	states []session.State, windowEnd time.Time,
) []Cycle {
	var cycles []Cycle
	var open *Cycle

	for _, st := range states {
		switch {
		case st.Status.Faulted():
			if open != nil && open.FaultCode == st.Status.Code {
				continue // same fault, cycle stays open
			}
			if open != nil {
				if c, ok := closeCycle(*open, st.Timestamp); ok {
					cycles = append(cycles, c)
				}
			}
			open = &Cycle{
				Start:     st.Timestamp,
				FaultCode: st.Status.Code,
				FaultName: st.Status.Name,
				Machine:   st.Machine,
				Operators: st.Operators,
			}
		default:
			if open == nil {
				continue
			}
			if c, ok := closeCycle(*open, st.Timestamp); ok {
				cycles = append(cycles, c)
			}
			open = nil
		}
	}

	// Clip, don't discard, a cycle still open at the window end.
	if open != nil {
		if c, ok := closeCycle(*open, windowEnd); ok {
			cycles = append(cycles, c)
		}
	}
	return cycles
}

// Summarize groups cycles by (faultCode, faultName) and sorts the
// rows by total duration descending.
func Summarize(cycles []Cycle) []Summary {
	type key struct {
		code int
		name string
	}
	acc := make(map[key]*Summary)
	var order []key

	for _, c := range cycles {
		k := key{code: c.FaultCode, name: c.FaultName}
		s, ok := acc[k]
		if !ok {
			s = &Summary{FaultCode: k.code, FaultName: k.name}
			acc[k] = s
			order = append(order, k)
		}
		s.Count++
		s.TotalDurationSeconds += c.DurationSeconds
		s.TotalWorkTimeMissedSeconds += c.WorkTimeMissedSeconds
	}

	out := make([]Summary, 0, len(order))
	for _, k := range order {
		out = append(out, *acc[k])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalDurationSeconds != out[j].TotalDurationSeconds {
			return out[i].TotalDurationSeconds > out[j].TotalDurationSeconds
		}
		return out[i].FaultCode < out[j].FaultCode
	})
	return out
}
