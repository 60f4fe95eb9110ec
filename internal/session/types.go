// Package session defines the record types the reporting engine
// consumes (sessions, states, counts, daily totals) and the
// normalization that turns raw store documents into them.
package session

import "time"

// EntityType identifies which kind of entity a record or report
// refers to.
type EntityType string

const (
	EntityOperator EntityType = "operator"
	EntityMachine  EntityType = "machine"
	EntityItem     EntityType = "item"
)

// NoOperatorID is the sentinel operator id meaning "no operator
// present at this station". It is excluded from active station
// counts.
const NoOperatorID = -1

// OperatorRef identifies an operator.
type OperatorRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MachineRef identifies a physical machine by serial.
type MachineRef struct {
	Serial int    `json:"serial"`
	Name   string `json:"name"`
}

// Item is a production item with its rate standard. The standard's
// unit is ambiguous at the source: values below 60 are
// pieces-per-minute, values at or above 60 are pieces-per-hour.
type Item struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Standard float64 `json:"standard"`
}

// CountRecord is one production count event inside a session.
type CountRecord struct {
	Timestamp time.Time `json:"timestamp"`
	ItemID    int       `json:"itemId"`
	Operator  int       `json:"operator"`
	Machine   int       `json:"machine"`
	Misfeed   bool      `json:"misfeed"`
}

// Counts is the canonical split of a session's count records.
// Raw documents carry either this shape or a single flat list;
// normalization always produces this one.
type Counts struct {
	Valid   []CountRecord `json:"valid"`
	Misfeed []CountRecord `json:"misfeed"`
}

// Session is one continuous interval of active status for an
// operator, machine, or item on a given physical machine.
//
// The derived fields (Runtime through TimeCredit) are recomputed
// whenever a session is clipped to a query window; stored values
// are never trusted for windowed reporting.
type Session struct {
	ID      string      `json:"id"`
	Type    EntityType  `json:"type"`
	Start   time.Time   `json:"start"`
	End     *time.Time  `json:"end,omitempty"` // nil while still open
	Machine MachineRef  `json:"machine"`
	Operator OperatorRef `json:"operator,omitempty"`

	// Operators are the active stations on a machine session.
	Operators []OperatorRef `json:"operators,omitempty"`

	// Items lists the production items active during the session.
	// A session may span multiple items.
	Items []Item `json:"items,omitempty"`

	Counts Counts `json:"counts"`

	// Derived metrics, in seconds / pieces.
	Runtime      float64 `json:"runtime"`
	WorkTime     float64 `json:"workTime"`
	TotalCount   int     `json:"totalCount"`
	MisfeedCount int     `json:"misfeedCount"`
	TimeCredit   float64 `json:"totalTimeCredit"`
}

// Open reports whether the session has no end timestamp yet.
func (s *Session) Open() bool { return s.End == nil }

// StandardsByItem returns the session's authoritative item-id to
// standard map used for time-credit computation.
func (s *Session) StandardsByItem() map[int]float64 {
	m := make(map[int]float64, len(s.Items))
	for _, it := range s.Items {
		m[it.ID] = it.Standard
	}
	return m
}

// ActiveStationCount counts operators excluding the no-operator
// sentinel.
func ActiveStationCount(ops []OperatorRef) int {
	n := 0
	for _, op := range ops {
		if op.ID != NoOperatorID {
			n++
		}
	}
	return n
}

// Status is a machine status snapshot value. Code conventions:
// 1 = running, 0 = idle/timeout, >= 2 = fault (the code carries
// the fault identity).
type Status struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

const (
	StatusIdle    = 0
	StatusRunning = 1
	// Codes >= FaultCodeMin identify fault conditions.
	FaultCodeMin = 2
)

// Running reports whether the status means the machine is running.
func (s Status) Running() bool { return s.Code == StatusRunning }

// Faulted reports whether the status code identifies a fault.
func (s Status) Faulted() bool { return s.Code >= FaultCodeMin }

// State is one machine status snapshot. States are strictly
// time-ordered per machine.
type State struct {
	Timestamp time.Time     `json:"timestamp"`
	Machine   MachineRef    `json:"machine"`
	Operators []OperatorRef `json:"operators"`
	Status    Status        `json:"status"`
	Program   string        `json:"program"`
}

// DailyTotal is one pre-aggregated cache row for
// (entityType, entity, machine, local date). Written by the
// rollup job; read-only to the reporting engine.
type DailyTotal struct {
	EntityType    EntityType `json:"entityType"`
	EntityID      int        `json:"entityId"`
	MachineSerial int        `json:"machineSerial"`
	Date          string     `json:"date"` // YYYY-MM-DD
	RuntimeMs     int64      `json:"runtimeMs"`
	WorkedTimeMs  int64      `json:"workedTimeMs"`
	TimeCreditMs  int64      `json:"totalTimeCreditMs"`
	TotalCounts   int        `json:"totalCounts"`
	TotalMisfeeds int        `json:"totalMisfeeds"`
}
