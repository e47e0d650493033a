package cluster

import (
	"fmt"
	"math"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// hierarchicalAssign agglomeratively merges the buses of one connected
// component until k clusters remain. Clusters only merge across a connecting
// branch (single linkage on electrical distance), so every cluster stays
// electrically contiguous. Ties break on the lowest member bus ID pair, which
// makes the result deterministic.
func hierarchicalAssign(n *grid.Network, comp []string, k int) ([]int, error) {
	if k >= len(comp) {
		out := make([]int, len(comp))
		for i := range comp {
			out[i] = i
		}
		return out, nil
	}

	pos := make(map[string]int, len(comp))
	for i, id := range comp {
		pos[id] = i
	}

	// cluster[i] is the cluster index of bus i; head[c] the lowest bus ID in c.
	cluster := make([]int, len(comp))
	head := make([]string, len(comp))
	for i, id := range comp {
		cluster[i] = i
		head[i] = id
	}
	active := len(comp)

	type edge struct {
		a, b int // bus positions
		dist float64
	}
	var edges []edge
	busIdx := n.BusIndex()
	addEdge := func(b0, b1 string, x float64) {
		i, ok0 := pos[b0]
		j, ok1 := pos[b1]
		if !ok0 || !ok1 {
			return
		}
		d := math.Abs(x)
		if d == 0 {
			// Branches without reactance fall back to coordinate distance.
			a, b := n.Buses[busIdx[b0]], n.Buses[busIdx[b1]]
			d = math.Hypot(a.X-b.X, a.Y-b.Y)
		}
		edges = append(edges, edge{a: i, b: j, dist: d})
	}
	for _, l := range n.Lines {
		addEdge(l.Bus0, l.Bus1, l.X)
	}
	for _, tr := range n.Transformers {
		addEdge(tr.Bus0, tr.Bus1, tr.X)
	}
	for _, lk := range n.Links {
		addEdge(lk.Bus0, lk.Bus1, 0)
	}

	for active > k {
		// Single linkage: the closest pair of distinct clusters joined by a
		// branch; ties resolved by the lexicographically lowest head pair.
		bestDist := math.Inf(1)
		bestA, bestB := -1, -1
		for _, e := range edges {
			ca, cb := cluster[e.a], cluster[e.b]
			if ca == cb {
				continue
			}
			ha, hb := head[ca], head[cb]
			if hb < ha {
				ha, hb = hb, ha
				ca, cb = cb, ca
			}
			if bestA < 0 || e.dist < bestDist ||
				(e.dist == bestDist && (ha < head[bestA] || (ha == head[bestA] && hb < head[bestB]))) {
				bestDist = e.dist
				bestA, bestB = ca, cb
			}
		}
		if bestA < 0 {
			return nil, fmt.Errorf("%w: component starting at %s has no mergeable pair at %d clusters",
				grid.ErrDisconnectedNetwork, comp[0], active)
		}
		// Absorb bestB into bestA; bestA already holds the lower head.
		for i := range cluster {
			if cluster[i] == bestB {
				cluster[i] = bestA
			}
		}
		active--
	}

	return compactAssignment(cluster, len(comp)), nil
}
