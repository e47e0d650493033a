// Package trace records per-iteration diagnostics of the feasibility loop.
package trace

import "github.com/google/uuid"

// IterationRecord captures one pass of the solve loop: the realized line
// loadings, the convergence delta against the prior pass, and the objective.
type IterationRecord struct {
	Index     int
	Objective float64
	MaxDelta  float64
	// Loadings maps branch ID to realized per-unit loading (post-clip).
	Loadings map[string]float64
	// ShedMWh is the total unmet demand in this iteration's solution.
	ShedMWh float64
}

// SolveTrace collects iteration records over one solver run.
type SolveTrace struct {
	// RunID distinguishes traces from independent scenario runs.
	RunID      string
	Iterations []IterationRecord
	enabled    bool
}

// NewSolveTrace creates a trace ready for recording. When enabled is false,
// Record is a no-op and only the run identity is kept.
func NewSolveTrace(enabled bool) *SolveTrace {
	return &SolveTrace{
		RunID:   uuid.NewString(),
		enabled: enabled,
	}
}

// Enabled reports whether iteration records are being kept.
func (st *SolveTrace) Enabled() bool { return st.enabled }

// Record appends an iteration record when tracing is enabled.
func (st *SolveTrace) Record(rec IterationRecord) {
	if !st.enabled {
		return
	}
	st.Iterations = append(st.Iterations, rec)
}

// Len returns the number of recorded iterations.
func (st *SolveTrace) Len() int { return len(st.Iterations) }
