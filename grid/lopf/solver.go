package lopf

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/gridflow-sim/gridflow-sim/grid"
	"github.com/gridflow-sim/gridflow-sim/grid/trace"
)

// Solve runs the iterative feasibility loop over the network:
//
//	Init -> Solve -> Evaluate -> (Solve | Converged | MaxIterationsReached)
//
// Each pass solves the linearized optimal power flow, re-derives line
// loadings, and feeds impedance corrections for expanded lines into the next
// pass. Non-convergence within the iteration budget is a soft failure: the
// last solution is returned flagged StatusMaxIterationsReached. Infeasibility
// without load shedding and backend unavailability are fatal.
func Solve(n *grid.Network, snaps grid.Snapshots, opts Options) (*Solution, *trace.SolveTrace, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}
	backend, err := NewBackend(opts.Backend)
	if err != nil {
		return nil, nil, err
	}
	if err := n.Validate(); err != nil {
		return nil, nil, fmt.Errorf("network invalid: %w", err)
	}

	tr := trace.NewSolveTrace(opts.TrackIterations)
	rng := grid.NewPartitionedRNG(grid.NewRunKey(opts.Seed))
	genIDs := sortedGeneratorIDs(n)

	maxIter := opts.MaxIterations
	if opts.SkipIterations {
		maxIter = 1
	}
	tolerance := opts.Tolerance
	if tolerance == 0 {
		tolerance = defaultTolerance
	}

	// Init: flat effective reactances, nominal ratings, zero prior loadings.
	state := iterationState{
		loadings: map[string]float64{},
		xEff:     map[string]float64{},
	}

	var sol *Solution
	for iter := 1; iter <= maxIter; iter++ {
		select {
		case <-opts.Cancel:
			return nil, nil, fmt.Errorf("solve aborted before iteration %d", iter)
		default:
		}

		noise := noiseFunc(opts, rng, genIDs, iter)
		m := buildModel(n, snaps, opts, state.xEff, noise)
		res, err := backend.Solve(m.problem)
		if err != nil {
			return nil, nil, err
		}
		sol = extractSolution(n, snaps, m, res)
		sol.Iterations = iter

		// Evaluate: realized loadings against the prior iteration.
		loadings := computeLoadings(m, sol, opts.ClipPMaxPu)
		state.maxDelta = maxRelativeDelta(state.loadings, loadings)
		state.loadings = loadings
		state.iteration = iter

		tr.Record(trace.IterationRecord{
			Index:     iter,
			Objective: sol.Objective,
			MaxDelta:  state.maxDelta,
			Loadings:  loadings,
			ShedMWh:   sol.ShedTotalMWh,
		})
		logrus.Infof("iteration %d: objective %.4f, max loading delta %.5f", iter, sol.Objective, state.maxDelta)

		if state.maxDelta < tolerance && iter >= opts.MinIterations {
			sol.Status = StatusConverged
			if sol.ShedTotalMWh > 0 {
				logrus.Warnf("solution sheds %.3f MWh of demand", sol.ShedTotalMWh)
			}
			return sol, tr, nil
		}

		// Impedance corrections for the next pass: expanded branches get
		// proportionally lower effective reactance.
		for _, br := range m.branches {
			if !br.Extendable || br.SNom <= 0 {
				continue
			}
			add := sol.CapacityAdditions[br.ID]
			if add > 0 {
				state.xEff[br.ID] = br.X * br.SNom / (br.SNom + add)
			}
		}
	}

	sol.Status = StatusMaxIterationsReached
	logrus.Warnf("no convergence within %d iterations; returning last iterate (max delta %.5f)",
		maxIter, state.maxDelta)
	if sol.ShedTotalMWh > 0 {
		logrus.Warnf("solution sheds %.3f MWh of demand", sol.ShedTotalMWh)
	}
	return sol, tr, nil
}

// noiseFunc returns the marginal-cost perturbation for this iteration:
// deterministic for a fixed seed, scaled by noiseMagnitude, applied to
// marginal costs only.
func noiseFunc(opts Options, rng *grid.PartitionedRNG, genIDs []string, iter int) func(string) float64 {
	if !opts.NoisyCosts {
		return func(string) float64 { return 0 }
	}
	r := rng.ForSubsystem(grid.SubsystemIteration(iter))
	perturb := make(map[string]float64, len(genIDs))
	for _, id := range genIDs {
		perturb[id] = r.Float64() * noiseMagnitude
	}
	return func(id string) float64 { return perturb[id] }
}

// extractSolution maps the raw primal point back onto network components.
func extractSolution(n *grid.Network, snaps grid.Snapshots, m *model, res *Result) *Solution {
	T := snaps.Len()
	idx := m.index
	x := res.X

	series := func(cols []int) []float64 {
		out := make([]float64, len(cols))
		for i, c := range cols {
			out[i] = x[c]
		}
		return out
	}

	sol := &Solution{
		Objective:         res.Objective,
		Dispatch:          map[string][]float64{},
		StorageDispatch:   map[string][]float64{},
		StorageStore:      map[string][]float64{},
		StateOfCharge:     map[string][]float64{},
		BranchFlow:        map[string][]float64{},
		LinkFlow:          map[string][]float64{},
		Shed:              map[string][]float64{},
		CapacityAdditions: map[string]float64{},
	}
	for _, g := range n.Generators {
		sol.Dispatch[g.ID] = series(idx.genDispatch[g.ID])
		if g.PNomExtendable {
			sol.CapacityAdditions[g.ID] = x[idx.genCapAdd[g.ID]]
		}
	}
	for _, s := range n.StorageUnits {
		sol.StorageDispatch[s.ID] = series(idx.stDispatch[s.ID])
		sol.StorageStore[s.ID] = series(idx.stStore[s.ID])
		sol.StateOfCharge[s.ID] = series(idx.stSOC[s.ID])
	}
	for _, br := range m.branches {
		sol.BranchFlow[br.ID] = series(idx.branchFlow[br.ID])
		if br.Extendable {
			sol.CapacityAdditions[br.ID] = x[idx.brCapAdd[br.ID]]
		}
	}
	for _, k := range n.Links {
		sol.LinkFlow[k.ID] = series(idx.linkFlow[k.ID])
		if k.PNomExtendable {
			sol.CapacityAdditions[k.ID] = x[idx.linkCapAdd[k.ID]]
		}
	}
	for id, cols := range idx.shed {
		s := series(cols)
		sol.Shed[id] = s
		for t := 0; t < T; t++ {
			sol.ShedTotalMWh += s[t] * snaps.WeightHours
		}
	}
	return sol
}

// computeLoadings derives the per-branch scalar loading: the maximum per-unit
// flow over all snapshots against the iteration's rating (including any
// capacity built this iteration). Loadings below the clip threshold are
// floored to zero so near-idle lines cannot stall convergence.
func computeLoadings(m *model, sol *Solution, clip float64) map[string]float64 {
	loadings := make(map[string]float64, len(m.branches))
	for _, br := range m.branches {
		rating := br.Rating
		if br.Extendable {
			rating += sol.CapacityAdditions[br.ID] * br.SMaxPu
		}
		loading := 0.0
		if rating > 0 {
			for _, f := range sol.BranchFlow[br.ID] {
				if l := math.Abs(f) / rating; l > loading {
					loading = l
				}
			}
		}
		if loading < clip {
			loading = 0
		}
		loadings[br.ID] = loading
	}
	return loadings
}

// maxRelativeDelta is the convergence metric: the largest relative loading
// change over all branches, with 0/0 counted as no change.
func maxRelativeDelta(prev, cur map[string]float64) float64 {
	maxDelta := 0.0
	for id, c := range cur {
		p := prev[id]
		hi := math.Max(p, c)
		if hi == 0 {
			continue
		}
		if d := math.Abs(c-p) / hi; d > maxDelta {
			maxDelta = d
		}
	}
	return maxDelta
}
