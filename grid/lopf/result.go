package lopf

import (
	"fmt"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// DefaultLoadSheddingCost is the penalty per MWh of unmet demand, high
// enough that shedding is used only when no feasible supply exists.
const DefaultLoadSheddingCost = 1e5

// defaultTolerance bounds the max relative loading change for convergence.
const defaultTolerance = 1e-2

// noiseMagnitude scales the deterministic marginal-cost perturbation used to
// break degenerate ties.
const noiseMagnitude = 1e-2

// Status is the terminal state of the solve loop.
type Status string

const (
	// StatusConverged means loadings settled within tolerance after at least
	// the minimum iteration count.
	StatusConverged Status = "Converged"
	// StatusMaxIterationsReached means the iteration budget ran out first.
	// The last solution is still returned; this is not an error.
	StatusMaxIterationsReached Status = "MaxIterationsReached"
)

// Options parameterizes one solver run.
type Options struct {
	MinIterations int
	MaxIterations int
	// Tolerance bounds the max relative loading change for convergence;
	// zero selects the default.
	Tolerance float64
	// ClipPMaxPu floors loadings below this per-unit threshold to zero
	// before the convergence check.
	ClipPMaxPu float64
	// NoisyCosts perturbs marginal costs each iteration, deterministically
	// from Seed, to break degenerate ties.
	NoisyCosts bool
	Seed       int64
	// LoadShedding enables the unmet-demand slack, penalized at
	// LoadSheddingCost (default DefaultLoadSheddingCost).
	LoadShedding     bool
	LoadSheddingCost float64
	// SkipIterations performs a single solve with no refinement.
	SkipIterations bool
	// TrackIterations retains the full per-iteration trace.
	TrackIterations bool
	// Backend names the linear-programming capability; empty selects simplex.
	Backend string
	// Cancel aborts the run between iterations when closed. In-flight
	// iteration state is discarded cleanly.
	Cancel <-chan struct{}
}

// OptionsFromConfig maps the scenario solving section onto solver options.
func OptionsFromConfig(c grid.SolvingConfig) Options {
	return Options{
		MinIterations:    c.MinIterations,
		MaxIterations:    c.MaxIterations,
		Tolerance:        c.Tolerance,
		ClipPMaxPu:       c.ClipPMaxPu,
		NoisyCosts:       c.NoisyCosts,
		Seed:             c.Seed,
		LoadShedding:     c.LoadShedding,
		LoadSheddingCost: c.LoadSheddingCost,
		SkipIterations:   c.SkipIterations,
		TrackIterations:  c.TrackIterations,
		Backend:          c.Backend,
	}
}

// validate applies the same fail-fast rules as the configuration surface,
// protecting direct library callers.
func (o *Options) validate() error {
	if o.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be at least 1, got %d", o.MaxIterations)
	}
	if o.MinIterations < 0 || o.MinIterations > o.MaxIterations {
		return fmt.Errorf("min iterations %d outside [0, %d]", o.MinIterations, o.MaxIterations)
	}
	if o.ClipPMaxPu < 0 || o.ClipPMaxPu >= 1 {
		return fmt.Errorf("clip threshold must be in [0, 1), got %f", o.ClipPMaxPu)
	}
	if o.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative, got %f", o.Tolerance)
	}
	return nil
}

// Solution is the dispatch/investment result of a solver run. All series are
// indexed by snapshot and keyed by component ID.
type Solution struct {
	Status     Status
	Iterations int
	Objective  float64

	Dispatch        map[string][]float64 // generator output, MW
	StorageDispatch map[string][]float64
	StorageStore    map[string][]float64
	StateOfCharge   map[string][]float64 // MWh
	BranchFlow      map[string][]float64 // lines and transformers, MW (bus0 -> bus1 positive)
	LinkFlow        map[string][]float64
	Shed            map[string][]float64 // unmet demand per bus, MW

	// CapacityAdditions maps extendable component IDs to built capacity.
	CapacityAdditions map[string]float64
	// ShedTotalMWh is total unmet demand over the horizon.
	ShedTotalMWh float64
}

// Converged reports whether the loop reached the converged terminal state.
func (s *Solution) Converged() bool { return s.Status == StatusConverged }

// iterationState is the per-iteration working set of the loop: realized
// loadings, the effective-reactance corrections and the convergence delta.
// It is owned exclusively by the solver and discarded after the convergence
// check; only the final state and the trace survive.
type iterationState struct {
	iteration int
	loadings  map[string]float64 // per branch, post-clip
	xEff      map[string]float64
	maxDelta  float64
}
