package cluster

import (
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// featureMatrix builds the per-bus feature space for k-means: one row per bus
// in the given order. Capacity-factor features concatenate the
// capacity-weighted mean availability profile of the matching carriers;
// the geographic feature uses bus coordinates. All columns are min-max
// normalized so no single dimension dominates the distance metric.
func featureMatrix(n *grid.Network, snaps grid.Snapshots, buses []string, feature Feature) *mat.Dense {
	T := snaps.Len()
	var cols int
	switch feature {
	case FeatureGeographic:
		cols = 2
	case FeatureSolar, FeatureWind:
		cols = T
	default: // cf-solar+wind
		cols = 2 * T
	}
	if cols == 0 {
		cols = 2
	}
	m := mat.NewDense(len(buses), cols, nil)
	busIdx := n.BusIndex()

	switch feature {
	case FeatureGeographic:
		for i, id := range buses {
			b := n.Buses[busIdx[id]]
			m.Set(i, 0, b.X)
			m.Set(i, 1, b.Y)
		}
	case FeatureSolar:
		for i, id := range buses {
			m.SetRow(i, meanProfile(n, id, isSolar, T))
		}
	case FeatureWind:
		for i, id := range buses {
			m.SetRow(i, meanProfile(n, id, isWind, T))
		}
	default:
		for i, id := range buses {
			row := append(meanProfile(n, id, isSolar, T), meanProfile(n, id, isWind, T)...)
			m.SetRow(i, row)
		}
	}

	normalizeColumns(m)
	return m
}

func isSolar(carrier string) bool { return strings.Contains(carrier, "solar") }
func isWind(carrier string) bool  { return strings.Contains(carrier, "wind") }

// meanProfile returns the capacity-weighted mean availability profile of the
// generators at bus matching the carrier predicate, length T. A bus without
// matching generators contributes a zero vector.
func meanProfile(n *grid.Network, bus string, match func(string) bool, T int) []float64 {
	profile := make([]float64, T)
	totalPNom := 0.0
	for _, g := range n.Generators {
		if g.Bus != bus || !match(g.Carrier) {
			continue
		}
		w := g.PNom
		if w <= 0 {
			w = 1
		}
		for t := 0; t < T; t++ {
			profile[t] += w * g.Availability(t)
		}
		totalPNom += w
	}
	if totalPNom > 0 {
		floats.Scale(1/totalPNom, profile)
	}
	return profile
}

// normalizeColumns rescales each column of m to [0, 1] in place. Constant
// columns are zeroed.
func normalizeColumns(m *mat.Dense) {
	rows, cols := m.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		lo, hi := floats.Min(col), floats.Max(col)
		span := hi - lo
		for i := 0; i < rows; i++ {
			if span == 0 {
				m.Set(i, j, 0)
			} else {
				m.Set(i, j, (col[i]-lo)/span)
			}
		}
	}
}

// busWeights returns the centroid-update weight per bus: mean demand under
// "load" weighting, 1.0 otherwise.
func busWeights(n *grid.Network, buses []string, weighting string) []float64 {
	w := make([]float64, len(buses))
	for i := range w {
		w[i] = 1
	}
	if weighting != "load" {
		return w
	}
	demand := make(map[string]float64)
	for _, ld := range n.Loads {
		total := 0.0
		for _, v := range ld.PSet {
			total += v
		}
		if len(ld.PSet) > 0 {
			demand[ld.Bus] += total / float64(len(ld.PSet))
		}
	}
	for i, id := range buses {
		if d := demand[id]; d > 0 {
			w[i] = d
		}
	}
	return w
}
