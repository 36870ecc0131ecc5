// Package trace records the OLT's per-cycle DBA decisions and ONU power-state
// changes, and renders the verbose per-event trace.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// GrantRecord captures one ONU's slot in a DBA cycle.
type GrantRecord struct {
	ONU       int
	Requested int64   // bits reported
	Granted   int64   // bits granted
	SlotStart float64 // time the slot opens
}

// CycleRecord captures a single DBA cycle decision.
type CycleRecord struct {
	Clock          float64       // time of the GATE messages
	Policy         string        // DBA policy name
	CycleLength    float64       // length of the cycle that starts at Clock
	Grants         []GrantRecord // in slot order
	TotalRequested int64
	TotalGranted   int64
	ActiveONUs     int
}

// TransitionRecord captures one ONU power-state change.
type TransitionRecord struct {
	ONU   int
	Clock float64
	From  string
	To    string
}
