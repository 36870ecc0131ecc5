package trace

// TraceLevel controls which records a SimulationTrace keeps.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelCycles captures one record per DBA cycle.
	TraceLevelCycles TraceLevel = "cycles"
	// TraceLevelTransitions captures DBA cycles and every ONU power-state change.
	TraceLevelTransitions TraceLevel = "transitions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:        true,
	TraceLevelCycles:      true,
	TraceLevelTransitions: true,
	"":                    true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a simulation.
type SimulationTrace struct {
	Config      TraceConfig
	Cycles      []CycleRecord
	Transitions []TransitionRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:      config,
		Cycles:      make([]CycleRecord, 0),
		Transitions: make([]TransitionRecord, 0),
	}
}

// RecordCycle appends a DBA cycle record. No-op at TraceLevelNone.
func (st *SimulationTrace) RecordCycle(record CycleRecord) {
	if st == nil || st.Config.Level == TraceLevelNone || st.Config.Level == "" {
		return
	}
	st.Cycles = append(st.Cycles, record)
}

// RecordTransition appends an ONU state-change record. Kept only at TraceLevelTransitions.
func (st *SimulationTrace) RecordTransition(record TransitionRecord) {
	if st == nil || st.Config.Level != TraceLevelTransitions {
		return
	}
	st.Transitions = append(st.Transitions, record)
}
