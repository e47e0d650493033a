package cluster

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// defaultMaxKmeansIterations caps Lloyd's algorithm when no fixed point is
// reached first.
const defaultMaxKmeansIterations = 300

// kmeansAssign clusters the buses of one connected component into k groups in
// feature space. Returns, per bus (in component order), the local cluster
// index in [0, k). Deterministic for a fixed seed.
func kmeansAssign(n *grid.Network, snaps grid.Snapshots, comp []string, k int, opts Options) ([]int, error) {
	if k >= len(comp) {
		out := make([]int, len(comp))
		for i := range comp {
			out[i] = i
		}
		return out, nil
	}

	features := featureMatrix(n, snaps, comp, opts.Feature)
	weights := busWeights(n, comp, opts.Weighting)
	rng := grid.NewPartitionedRNG(grid.NewRunKey(opts.Seed)).ForSubsystem(grid.SubsystemClustering)
	maxIter := opts.MaxKmeansIterations
	if maxIter <= 0 {
		maxIter = defaultMaxKmeansIterations
	}

	rows, cols := features.Dims()

	// k-means++ style seeding: first centroid uniform, the rest by
	// squared-distance-proportional sampling off the partitioned RNG.
	centroids := mat.NewDense(k, cols, nil)
	centroids.SetRow(0, features.RawRowView(rng.Intn(rows)))
	minDist := make([]float64, rows)
	for i := range minDist {
		minDist[i] = math.Inf(1)
	}
	for c := 1; c < k; c++ {
		total := 0.0
		for i := 0; i < rows; i++ {
			d := floats.Distance(features.RawRowView(i), centroids.RawRowView(c-1), 2)
			if d*d < minDist[i] {
				minDist[i] = d * d
			}
			total += minDist[i]
		}
		pick := rows - 1
		if total > 0 {
			r := rng.Float64() * total
			acc := 0.0
			for i := 0; i < rows; i++ {
				acc += minDist[i]
				if acc >= r {
					pick = i
					break
				}
			}
		}
		centroids.SetRow(c, features.RawRowView(pick))
	}

	assign := make([]int, rows)
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i := 0; i < rows; i++ {
			best, bestDist := 0, math.Inf(1)
			for c := 0; c < k; c++ {
				d := floats.Distance(features.RawRowView(i), centroids.RawRowView(c), 2)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		// Weighted centroid update; empty clusters are re-seeded from the bus
		// farthest from its centroid.
		counts := make([]float64, k)
		centroids.Zero()
		for i := 0; i < rows; i++ {
			c := assign[i]
			row := features.RawRowView(i)
			for j := 0; j < cols; j++ {
				centroids.Set(c, j, centroids.At(c, j)+weights[i]*row[j])
			}
			counts[c] += weights[i]
		}
		for c := 0; c < k; c++ {
			if counts[c] > 0 {
				for j := 0; j < cols; j++ {
					centroids.Set(c, j, centroids.At(c, j)/counts[c])
				}
				continue
			}
			far, farDist := 0, -1.0
			for i := 0; i < rows; i++ {
				d := floats.Distance(features.RawRowView(i), centroids.RawRowView(assign[i]), 2)
				if d > farDist {
					far, farDist = i, d
				}
			}
			centroids.SetRow(c, features.RawRowView(far))
			assign[far] = c
			changed = true
		}

		if !changed {
			break
		}
	}

	return compactAssignment(assign, k), nil
}

// compactAssignment renumbers cluster indices so they are dense in [0, k),
// ordered by first appearance, which keeps cluster numbering stable across
// identical runs.
func compactAssignment(assign []int, k int) []int {
	remap := make(map[int]int, k)
	next := 0
	out := make([]int, len(assign))
	for i, a := range assign {
		m, ok := remap[a]
		if !ok {
			m = next
			remap[a] = m
			next++
		}
		out[i] = m
	}
	return out
}
