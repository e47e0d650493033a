package cluster

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// SyntheticIsolatedBus is the representative bus that absorbs small
// disconnected components under the isolated-bus policy.
const SyntheticIsolatedBus = "isolated"

// removeStubs merges degree-one buses into their single neighbor until a
// fixed point is reached, so a second invocation is a no-op. Merges across
// country borders require acrossBorders. The mapping records every merge.
func removeStubs(n *grid.Network, acrossBorders bool, mapping BusMapping) {
	for {
		var stubs []string
		for id, d := range n.BranchDegree() {
			if d == 1 {
				stubs = append(stubs, id)
			}
		}
		sort.Strings(stubs)

		merged := false
		for _, stub := range stubs {
			// Degrees and adjacency shift as stubs merge; re-check everything.
			idx := n.BusIndex()
			if _, ok := idx[stub]; !ok {
				continue
			}
			if n.BranchDegree()[stub] != 1 {
				continue
			}
			neighbor := n.Adjacency()[stub][0]
			if !acrossBorders && n.Buses[idx[stub]].Country != n.Buses[idx[neighbor]].Country {
				continue
			}
			mergeBus(n, stub, neighbor)
			mapping.redirect(stub, neighbor)
			merged = true
		}
		if !merged {
			return
		}
	}
}

// mergeBus reattaches every injector of src to dst, then removes src and all
// branches touching it.
func mergeBus(n *grid.Network, src, dst string) {
	for i := range n.Generators {
		if n.Generators[i].Bus == src {
			n.Generators[i].Bus = dst
		}
	}
	for i := range n.StorageUnits {
		if n.StorageUnits[i].Bus == src {
			n.StorageUnits[i].Bus = dst
		}
	}
	for i := range n.Loads {
		if n.Loads[i].Bus == src {
			n.Loads[i].Bus = dst
		}
	}
	n.RemoveBuses(map[string]bool{src: true})
}

// applyIsolatedBusPolicy treats every component other than the largest:
// buses whose mean injected power falls below the drop threshold are removed
// outright (and leave the mapping); buses at or above the merge threshold
// move onto one synthetic isolated bus, preventing spurious infeasibilities
// from tiny disconnected components. Buses between the thresholds are kept
// as they are.
func applyIsolatedBusPolicy(n *grid.Network, snaps grid.Snapshots, cfg grid.IsolatedBusConfig, mapping BusMapping) {
	if cfg.DropThresholdMW <= 0 && cfg.MergeThresholdMW <= 0 {
		return
	}
	comps := n.ConnectedComponents()
	if len(comps) <= 1 {
		return
	}
	injection := n.MeanInjection(snaps)

	drop := map[string]bool{}
	var merge []string
	for _, comp := range comps[1:] {
		for _, id := range comp {
			switch {
			case injection[id] < cfg.DropThresholdMW:
				drop[id] = true
			case injection[id] >= cfg.MergeThresholdMW:
				merge = append(merge, id)
			}
		}
	}

	if len(drop) > 0 {
		n.RemoveBuses(drop)
		for orig, cur := range mapping {
			if drop[cur] {
				delete(mapping, orig)
			}
		}
		logrus.Infof("isolated-bus policy dropped %d buses below %.3f MW", len(drop), cfg.DropThresholdMW)
	}

	if len(merge) > 0 {
		first := n.Buses[n.BusIndex()[merge[0]]]
		n.Buses = append(n.Buses, grid.Bus{
			ID:      SyntheticIsolatedBus,
			VNom:    first.VNom,
			X:       first.X,
			Y:       first.Y,
			Country: first.Country,
			Carrier: grid.CarrierAC,
		})
		for _, id := range merge {
			mergeBus(n, id, SyntheticIsolatedBus)
			mapping.redirect(id, SyntheticIsolatedBus)
		}
		logrus.Infof("isolated-bus policy merged %d buses onto %s", len(merge), SyntheticIsolatedBus)
	}
}
