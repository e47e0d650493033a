// Package cluster implements the topology reducer: it collapses a detailed
// network into a smaller representative one while preserving aggregate
// electrical and capacity characteristics.
package cluster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// Algorithm selects the clustering method.
type Algorithm string

const (
	// AlgorithmKMeans clusters buses in a feature space with Lloyd's algorithm.
	AlgorithmKMeans Algorithm = "kmeans"
	// AlgorithmHierarchical merges nearest bus pairs by electrical distance.
	AlgorithmHierarchical Algorithm = "hierarchical"
)

// Feature selects the k-means feature space.
type Feature string

const (
	FeatureSolarWind  Feature = "cf-solar+wind"
	FeatureSolar      Feature = "cf-solar"
	FeatureWind       Feature = "cf-wind"
	FeatureGeographic Feature = "geographic"
)

// Options parameterizes one reduction run. Strategies is an explicit mapping,
// passed per call; there is no ambient strategy table shared between runs.
type Options struct {
	TargetClusters int
	Algorithm      Algorithm
	Feature        Feature
	// Weighting scales bus weights for k-means centroid updates:
	// "uniform" (default) or "load". Ignored by the hierarchical algorithm.
	Weighting string
	// ExcludeCarriers pins buses out of clustering: a bus whose own carrier,
	// or the carrier of any generator it hosts, is excluded keeps its own
	// cluster and is never merged.
	ExcludeCarriers          []string
	Strategies               StrategyMap
	RemoveStubs              bool
	RemoveStubsAcrossBorders bool
	IsolatedBuses            grid.IsolatedBusConfig
	Seed                     int64
	MaxKmeansIterations      int
}

// BusMapping maps every original bus ID to its representative bus ID in the
// reduced network. The mapping is total and non-overlapping.
type BusMapping map[string]string

// redirect repoints every mapping entry resolving to `from` onto `to`, then
// records the merge itself.
func (m BusMapping) redirect(from, to string) {
	for orig, cur := range m {
		if cur == from {
			m[orig] = to
		}
	}
	m[from] = to
}

// Reduce collapses the network to opts.TargetClusters representative buses.
// The input network is not mutated; the returned mapping covers every bus of
// the input, including buses absorbed by stub removal or the isolated-bus
// policy (dropped buses are absent from the mapping).
func Reduce(n *grid.Network, snaps grid.Snapshots, opts Options) (*grid.Network, BusMapping, error) {
	work := n.Copy()
	mapping := make(BusMapping, len(n.Buses))
	for _, b := range n.Buses {
		mapping[b.ID] = b.ID
	}

	applyIsolatedBusPolicy(work, snaps, opts.IsolatedBuses, mapping)

	if opts.RemoveStubs {
		removeStubs(work, opts.RemoveStubsAcrossBorders, mapping)
	}

	pinned := pinnedBuses(work, opts.ExcludeCarriers)
	// The synthetic isolated bus stays its own representative.
	for _, b := range work.Buses {
		if b.ID == SyntheticIsolatedBus {
			pinned[b.ID] = true
		}
	}
	clusterable := make([]string, 0, len(work.Buses))
	for _, b := range work.Buses {
		if !pinned[b.ID] {
			clusterable = append(clusterable, b.ID)
		}
	}
	sort.Strings(clusterable)

	k := opts.TargetClusters
	if k < 1 || k > len(clusterable) {
		return nil, nil, fmt.Errorf("%w: requested %d clusters for %d clusterable buses",
			grid.ErrInvalidClusterCount, k, len(clusterable))
	}

	comps := inducedComponents(work, clusterable)
	if len(comps) > k {
		var heads []string
		for _, c := range comps {
			heads = append(heads, c[0])
		}
		return nil, nil, fmt.Errorf("%w: %d components (starting at %s) exceed requested %d clusters",
			grid.ErrDisconnectedNetwork, len(comps), strings.Join(heads, ", "), k)
	}

	targets := apportion(k, comps)
	assignment := make(map[string]int, len(clusterable)) // bus ID -> global cluster index
	next := 0
	for ci, comp := range comps {
		kc := targets[ci]
		var local []int
		var err error
		switch opts.Algorithm {
		case AlgorithmHierarchical:
			local, err = hierarchicalAssign(work, comp, kc)
		default:
			local, err = kmeansAssign(work, snaps, comp, kc, opts)
		}
		if err != nil {
			return nil, nil, err
		}
		for i, bus := range comp {
			assignment[bus] = next + local[i]
		}
		next += kc
	}

	reduced, err := buildReduced(work, snaps, assignment, pinned, opts.Strategies, mapping)
	if err != nil {
		return nil, nil, err
	}
	if err := reduced.Validate(); err != nil {
		return nil, nil, fmt.Errorf("reduced network invalid: %w", err)
	}
	logrus.Infof("reduced %d buses to %d (%d pinned) with %s clustering",
		len(n.Buses), len(reduced.Buses), len(pinned), opts.Algorithm)
	return reduced, mapping, nil
}

// pinnedBuses returns the buses exempt from clustering: those whose own
// carrier, or the carrier of any attached generator, is in the exclusion set.
func pinnedBuses(n *grid.Network, exclude []string) map[string]bool {
	if len(exclude) == 0 {
		return map[string]bool{}
	}
	excluded := make(map[string]bool, len(exclude))
	for _, c := range exclude {
		excluded[c] = true
	}
	pinned := make(map[string]bool)
	for _, b := range n.Buses {
		if excluded[b.Carrier] {
			pinned[b.ID] = true
		}
	}
	for _, g := range n.Generators {
		if excluded[g.Carrier] {
			pinned[g.Bus] = true
		}
	}
	return pinned
}

// inducedComponents returns connected components of the subgraph induced on
// the given buses, each sorted, largest first.
func inducedComponents(n *grid.Network, buses []string) [][]string {
	in := make(map[string]bool, len(buses))
	for _, id := range buses {
		in[id] = true
	}
	sub := &grid.Network{}
	busIdx := n.BusIndex()
	for _, id := range buses {
		sub.Buses = append(sub.Buses, n.Buses[busIdx[id]])
	}
	for _, l := range n.Lines {
		if in[l.Bus0] && in[l.Bus1] {
			sub.Lines = append(sub.Lines, l)
		}
	}
	for _, k := range n.Links {
		if in[k.Bus0] && in[k.Bus1] {
			sub.Links = append(sub.Links, k)
		}
	}
	for _, tr := range n.Transformers {
		if in[tr.Bus0] && in[tr.Bus1] {
			sub.Transformers = append(sub.Transformers, tr)
		}
	}
	return sub.ConnectedComponents()
}

// apportion splits k cluster slots over components proportionally to size,
// at least one and at most the component size each.
func apportion(k int, comps [][]string) []int {
	total := 0
	for _, c := range comps {
		total += len(c)
	}
	targets := make([]int, len(comps))
	assigned := 0
	for i, c := range comps {
		t := k * len(c) / total
		if t < 1 {
			t = 1
		}
		if t > len(c) {
			t = len(c)
		}
		targets[i] = t
		assigned += t
	}
	// Distribute the remainder to components with spare room, largest first;
	// withdraw overshoot from the smallest targets above one.
	for assigned < k {
		for i := range targets {
			if assigned == k {
				break
			}
			if targets[i] < len(comps[i]) {
				targets[i]++
				assigned++
			}
		}
	}
	for assigned > k {
		for i := len(targets) - 1; i >= 0 && assigned > k; i-- {
			if targets[i] > 1 {
				targets[i]--
				assigned--
			}
		}
	}
	return targets
}

// clusterBusID names the representative bus of a cluster after its
// lexicographically smallest member.
func clusterBusID(members []string) string {
	min := members[0]
	for _, m := range members[1:] {
		if m < min {
			min = m
		}
	}
	return min
}

// Disaggregate distributes per-cluster generator dispatch back to the
// original generators, proportional to nominal capacity within each
// aggregation group. dispatch is keyed by reduced-network generator ID.
func Disaggregate(dispatch map[string][]float64, mapping BusMapping, original *grid.Network) map[string][]float64 {
	// Total PNom per aggregation group (cluster bus, carrier).
	groupPNom := make(map[string]float64)
	for _, g := range original.Generators {
		cb, ok := mapping[g.Bus]
		if !ok {
			continue
		}
		groupPNom[aggregateID(cb, g.Carrier)] += g.PNom
	}
	out := make(map[string][]float64, len(original.Generators))
	for _, g := range original.Generators {
		cb, ok := mapping[g.Bus]
		if !ok {
			continue
		}
		// Excluded carriers keep their original generator ID.
		series, ok := dispatch[g.ID]
		if ok {
			out[g.ID] = append([]float64(nil), series...)
			continue
		}
		gid := aggregateID(cb, g.Carrier)
		series, ok = dispatch[gid]
		if !ok {
			continue
		}
		total := groupPNom[gid]
		share := 0.0
		if total > 0 {
			share = g.PNom / total
		}
		scaled := make([]float64, len(series))
		for t, v := range series {
			scaled[t] = v * share
		}
		out[g.ID] = scaled
	}
	return out
}

// aggregateID names an aggregated injector after its cluster bus and carrier.
func aggregateID(bus, carrier string) string {
	return bus + " " + carrier
}
