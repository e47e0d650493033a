package trace

import "testing"

func TestSolveTrace_RecordsOnlyWhenEnabled(t *testing.T) {
	enabled := NewSolveTrace(true)
	disabled := NewSolveTrace(false)

	rec := IterationRecord{Index: 1, Objective: 42.5, MaxDelta: 1.0}
	enabled.Record(rec)
	disabled.Record(rec)

	if enabled.Len() != 1 {
		t.Errorf("enabled trace has %d records, want 1", enabled.Len())
	}
	if disabled.Len() != 0 {
		t.Errorf("disabled trace has %d records, want 0", disabled.Len())
	}
	if !enabled.Enabled() || disabled.Enabled() {
		t.Error("Enabled() does not reflect construction flag")
	}
}

func TestSolveTrace_DistinctRunIDs(t *testing.T) {
	a := NewSolveTrace(false)
	b := NewSolveTrace(false)
	if a.RunID == "" || a.RunID == b.RunID {
		t.Errorf("run IDs not distinct: %q vs %q", a.RunID, b.RunID)
	}
}
