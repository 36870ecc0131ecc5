package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalCycles       int
	MeanCycleLength   float64
	MaxCycleLength    float64
	MeanActiveONUs    float64
	GrantDistribution map[int]int64 // ONU id → total bits granted
	TotalTransitions  int
	TransitionCounts  map[string]int // "FROM->TO" → count
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		GrantDistribution: make(map[int]int64),
		TransitionCounts:  make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalCycles = len(st.Cycles)
	if len(st.Cycles) > 0 {
		totalLength := 0.0
		totalActive := 0
		for _, c := range st.Cycles {
			totalLength += c.CycleLength
			totalActive += c.ActiveONUs
			if c.CycleLength > summary.MaxCycleLength {
				summary.MaxCycleLength = c.CycleLength
			}
			for _, g := range c.Grants {
				summary.GrantDistribution[g.ONU] += g.Granted
			}
		}
		summary.MeanCycleLength = totalLength / float64(len(st.Cycles))
		summary.MeanActiveONUs = float64(totalActive) / float64(len(st.Cycles))
	}

	summary.TotalTransitions = len(st.Transitions)
	for _, t := range st.Transitions {
		summary.TransitionCounts[t.From+"->"+t.To]++
	}

	return summary
}
