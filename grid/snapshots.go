package grid

import (
	"fmt"
	"time"
)

// Snapshots is an ordered sequence of time points defining the temporal
// resolution of an optimization. Windows are half-open: the end instant is
// excluded.
type Snapshots struct {
	Times []time.Time
	// WeightHours is the duration each snapshot represents, in hours.
	// Marginal costs are weighted by this when summed into the objective.
	WeightHours float64
}

// NewSnapshots builds snapshots covering [start, end) at a fixed step.
func NewSnapshots(start, end time.Time, step time.Duration) (Snapshots, error) {
	if !end.After(start) {
		return Snapshots{}, fmt.Errorf("snapshot window [%v, %v) is empty", start, end)
	}
	if step <= 0 {
		return Snapshots{}, fmt.Errorf("snapshot step must be positive, got %v", step)
	}
	var times []time.Time
	for t := start; t.Before(end); t = t.Add(step) {
		times = append(times, t)
	}
	return Snapshots{Times: times, WeightHours: step.Hours()}, nil
}

// Len returns the number of snapshots.
func (s Snapshots) Len() int { return len(s.Times) }

// Slice returns the snapshots in [i, j), preserving half-open semantics.
func (s Snapshots) Slice(i, j int) (Snapshots, error) {
	if i < 0 || j > len(s.Times) || i > j {
		return Snapshots{}, fmt.Errorf("snapshot slice [%d, %d) out of range for %d snapshots", i, j, len(s.Times))
	}
	return Snapshots{Times: s.Times[i:j], WeightHours: s.WeightHours}, nil
}
