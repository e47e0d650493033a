package cluster

import (
	"fmt"
	"sort"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// Strategy names how constituent attribute values combine into one cluster
// value.
type Strategy string

const (
	StrategySum   Strategy = "sum"
	StrategyMean  Strategy = "mean" // capacity-weighted where weights exist
	StrategyMax   Strategy = "max"
	StrategyAny   Strategy = "any" // logical OR, boolean attributes only
	StrategyFirst Strategy = "first"
)

// StrategyMap declares the combination strategy per attribute name. The map
// must be total over all attributes carried by aggregated entities.
type StrategyMap map[string]Strategy

// DefaultStrategies returns the standard strategy table: sum for capacities,
// mean for efficiencies and costs, max for ramp limits, any for flags.
func DefaultStrategies() StrategyMap {
	return StrategyMap{
		"p_nom":               StrategySum,
		"p_nom_max":           StrategySum,
		"marginal_cost":       StrategyMean,
		"capital_cost":        StrategyMean,
		"efficiency":          StrategyMean,
		"ramp_limit_up":       StrategyMax,
		"ramp_limit_down":     StrategyMax,
		"p_nom_extendable":    StrategyAny,
		"committable":         StrategyAny,
		"p_max_pu":            StrategyMean,
		"max_hours":           StrategyMean,
		"efficiency_store":    StrategyMean,
		"efficiency_dispatch": StrategyMean,
		"cyclic_soc":          StrategyAny,
		"inflow":              StrategySum,
		"p_set":               StrategySum,
	}
}

// combineNum applies a numeric strategy over values with the given weights.
// Mean is weight-proportional; zero total weight degrades to the arithmetic
// mean.
func combineNum(strategy Strategy, attr string, values, weights []float64) (float64, error) {
	switch strategy {
	case StrategySum:
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total, nil
	case StrategyMean:
		totalW, acc := 0.0, 0.0
		for i, v := range values {
			acc += weights[i] * v
			totalW += weights[i]
		}
		if totalW > 0 {
			return acc / totalW, nil
		}
		plain := 0.0
		for _, v := range values {
			plain += v
		}
		return plain / float64(len(values)), nil
	case StrategyMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	case StrategyFirst:
		return values[0], nil
	default:
		return 0, fmt.Errorf("strategy %q is not applicable to numeric attribute %s", strategy, attr)
	}
}

// combineBool applies a boolean strategy.
func combineBool(strategy Strategy, attr string, values []bool) (bool, error) {
	switch strategy {
	case StrategyAny:
		for _, v := range values {
			if v {
				return true, nil
			}
		}
		return false, nil
	case StrategyFirst:
		return values[0], nil
	default:
		return false, fmt.Errorf("strategy %q is not applicable to boolean attribute %s", strategy, attr)
	}
}

// lookup resolves the declared strategy for an attribute, failing when the
// mapping does not cover it.
func (m StrategyMap) lookup(attr string) (Strategy, error) {
	s, ok := m[attr]
	if !ok {
		return "", fmt.Errorf("%w: attribute %q has no declared strategy",
			grid.ErrUnresolvedAggregationStrategy, attr)
	}
	return s, nil
}

// aggregateGenerators combines one group of generators (same cluster bus and
// carrier) into a single generator attached to bus. T is the snapshot count.
func aggregateGenerators(gens []grid.Generator, bus string, T int, strategies StrategyMap) (grid.Generator, error) {
	out := grid.Generator{
		ID:      aggregateID(bus, gens[0].Carrier),
		Bus:     bus,
		Carrier: gens[0].Carrier,
	}
	weights := make([]float64, len(gens))
	for i, g := range gens {
		weights[i] = g.PNom
	}

	numAttrs := []struct {
		name string
		get  func(*grid.Generator) float64
		set  func(*grid.Generator, float64)
	}{
		{"p_nom", func(g *grid.Generator) float64 { return g.PNom }, func(g *grid.Generator, v float64) { g.PNom = v }},
		{"p_nom_max", func(g *grid.Generator) float64 { return g.PNomMax }, func(g *grid.Generator, v float64) { g.PNomMax = v }},
		{"marginal_cost", func(g *grid.Generator) float64 { return g.MarginalCost }, func(g *grid.Generator, v float64) { g.MarginalCost = v }},
		{"capital_cost", func(g *grid.Generator) float64 { return g.CapitalCost }, func(g *grid.Generator, v float64) { g.CapitalCost = v }},
		{"efficiency", func(g *grid.Generator) float64 { return g.Efficiency }, func(g *grid.Generator, v float64) { g.Efficiency = v }},
		{"ramp_limit_up", func(g *grid.Generator) float64 { return g.RampLimitUp }, func(g *grid.Generator, v float64) { g.RampLimitUp = v }},
		{"ramp_limit_down", func(g *grid.Generator) float64 { return g.RampLimitDown }, func(g *grid.Generator, v float64) { g.RampLimitDown = v }},
	}
	for _, attr := range numAttrs {
		strategy, err := strategies.lookup(attr.name)
		if err != nil {
			return grid.Generator{}, err
		}
		values := make([]float64, len(gens))
		for i := range gens {
			values[i] = attr.get(&gens[i])
		}
		v, err := combineNum(strategy, attr.name, values, weights)
		if err != nil {
			return grid.Generator{}, err
		}
		attr.set(&out, v)
	}

	boolAttrs := []struct {
		name string
		get  func(*grid.Generator) bool
		set  func(*grid.Generator, bool)
	}{
		{"p_nom_extendable", func(g *grid.Generator) bool { return g.PNomExtendable }, func(g *grid.Generator, v bool) { g.PNomExtendable = v }},
		{"committable", func(g *grid.Generator) bool { return g.Committable }, func(g *grid.Generator, v bool) { g.Committable = v }},
	}
	for _, attr := range boolAttrs {
		strategy, err := strategies.lookup(attr.name)
		if err != nil {
			return grid.Generator{}, err
		}
		values := make([]bool, len(gens))
		for i := range gens {
			values[i] = attr.get(&gens[i])
		}
		v, err := combineBool(strategy, attr.name, values)
		if err != nil {
			return grid.Generator{}, err
		}
		attr.set(&out, v)
	}

	strategy, err := strategies.lookup("p_max_pu")
	if err != nil {
		return grid.Generator{}, err
	}
	hasProfile := false
	for _, g := range gens {
		if g.PMaxPu != nil {
			hasProfile = true
			break
		}
	}
	if hasProfile {
		profile := make([]float64, T)
		for t := 0; t < T; t++ {
			values := make([]float64, len(gens))
			for i := range gens {
				values[i] = gens[i].Availability(t)
			}
			v, err := combineNum(strategy, "p_max_pu", values, weights)
			if err != nil {
				return grid.Generator{}, err
			}
			profile[t] = v
		}
		out.PMaxPu = profile
	}
	return out, nil
}

// aggregateStorage combines one group of storage units into a single unit.
func aggregateStorage(units []grid.StorageUnit, bus string, T int, strategies StrategyMap) (grid.StorageUnit, error) {
	out := grid.StorageUnit{
		ID:      aggregateID(bus, units[0].Carrier),
		Bus:     bus,
		Carrier: units[0].Carrier,
	}
	weights := make([]float64, len(units))
	for i, s := range units {
		weights[i] = s.PNom
	}

	numAttrs := []struct {
		name string
		get  func(*grid.StorageUnit) float64
		set  func(*grid.StorageUnit, float64)
	}{
		{"p_nom", func(s *grid.StorageUnit) float64 { return s.PNom }, func(s *grid.StorageUnit, v float64) { s.PNom = v }},
		{"max_hours", func(s *grid.StorageUnit) float64 { return s.MaxHours }, func(s *grid.StorageUnit, v float64) { s.MaxHours = v }},
		{"efficiency_store", func(s *grid.StorageUnit) float64 { return s.EfficiencyStore }, func(s *grid.StorageUnit, v float64) { s.EfficiencyStore = v }},
		{"efficiency_dispatch", func(s *grid.StorageUnit) float64 { return s.EfficiencyDispatch }, func(s *grid.StorageUnit, v float64) { s.EfficiencyDispatch = v }},
		{"marginal_cost", func(s *grid.StorageUnit) float64 { return s.MarginalCost }, func(s *grid.StorageUnit, v float64) { s.MarginalCost = v }},
		{"capital_cost", func(s *grid.StorageUnit) float64 { return s.CapitalCost }, func(s *grid.StorageUnit, v float64) { s.CapitalCost = v }},
	}
	for _, attr := range numAttrs {
		strategy, err := strategies.lookup(attr.name)
		if err != nil {
			return grid.StorageUnit{}, err
		}
		values := make([]float64, len(units))
		for i := range units {
			values[i] = attr.get(&units[i])
		}
		v, err := combineNum(strategy, attr.name, values, weights)
		if err != nil {
			return grid.StorageUnit{}, err
		}
		attr.set(&out, v)
	}

	strategy, err := strategies.lookup("cyclic_soc")
	if err != nil {
		return grid.StorageUnit{}, err
	}
	cyclic := make([]bool, len(units))
	for i := range units {
		cyclic[i] = units[i].CyclicSOC
	}
	if out.CyclicSOC, err = combineBool(strategy, "cyclic_soc", cyclic); err != nil {
		return grid.StorageUnit{}, err
	}

	inflowStrategy, err := strategies.lookup("inflow")
	if err != nil {
		return grid.StorageUnit{}, err
	}
	hasInflow := false
	for _, s := range units {
		if s.Inflow != nil {
			hasInflow = true
			break
		}
	}
	if hasInflow {
		inflow := make([]float64, T)
		for t := 0; t < T; t++ {
			values := make([]float64, len(units))
			for i, s := range units {
				if t < len(s.Inflow) {
					values[i] = s.Inflow[t]
				}
			}
			v, err := combineNum(inflowStrategy, "inflow", values, weights)
			if err != nil {
				return grid.StorageUnit{}, err
			}
			inflow[t] = v
		}
		out.Inflow = inflow
	}
	return out, nil
}

// aggregateLoads sums the demand profiles of one cluster into a single load.
func aggregateLoads(loads []grid.Load, bus string, T int, strategies StrategyMap) (grid.Load, error) {
	strategy, err := strategies.lookup("p_set")
	if err != nil {
		return grid.Load{}, err
	}
	out := grid.Load{ID: bus + " load", Bus: bus, PSet: make([]float64, T)}
	weights := make([]float64, len(loads))
	for i := range weights {
		weights[i] = 1
	}
	for t := 0; t < T; t++ {
		values := make([]float64, len(loads))
		for i, ld := range loads {
			if t < len(ld.PSet) {
				values[i] = ld.PSet[t]
			}
		}
		if out.PSet[t], err = combineNum(strategy, "p_set", values, weights); err != nil {
			return grid.Load{}, err
		}
	}
	return out, nil
}

// buildReduced assembles the reduced network from the bus assignment:
// representative buses, aggregated injectors and electrically equivalent
// inter-cluster branches. Pinned buses pass through unchanged together with
// their attachments.
func buildReduced(n *grid.Network, snaps grid.Snapshots, assignment map[string]int,
	pinned map[string]bool, strategies StrategyMap, mapping BusMapping) (*grid.Network, error) {

	T := snaps.Len()
	busIdx := n.BusIndex()

	// Cluster membership, then representative naming by lowest member ID.
	members := map[int][]string{}
	for bus, c := range assignment {
		members[c] = append(members[c], bus)
	}
	clusterIDs := make([]int, 0, len(members))
	for c := range members {
		sort.Strings(members[c])
		clusterIDs = append(clusterIDs, c)
	}
	sort.Ints(clusterIDs)

	repr := make(map[string]string, len(assignment)) // bus ID -> representative bus ID
	reduced := &grid.Network{}
	for _, c := range clusterIDs {
		mem := members[c]
		id := clusterBusID(mem)
		var x, y, vnom float64
		countries := map[string]int{}
		for _, m := range mem {
			b := n.Buses[busIdx[m]]
			x += b.X
			y += b.Y
			if b.VNom > vnom {
				vnom = b.VNom
			}
			countries[b.Country]++
			repr[m] = id
		}
		country := ""
		best := -1
		for ct, cnt := range countries {
			if cnt > best || (cnt == best && ct < country) {
				country, best = ct, cnt
			}
		}
		reduced.Buses = append(reduced.Buses, grid.Bus{
			ID:      id,
			VNom:    vnom,
			X:       x / float64(len(mem)),
			Y:       y / float64(len(mem)),
			Country: country,
			Carrier: grid.CarrierAC,
		})
	}
	// Pinned buses keep their identity.
	pinnedIDs := make([]string, 0, len(pinned))
	for id := range pinned {
		pinnedIDs = append(pinnedIDs, id)
	}
	sort.Strings(pinnedIDs)
	for _, id := range pinnedIDs {
		reduced.Buses = append(reduced.Buses, n.Buses[busIdx[id]])
		repr[id] = id
	}

	for orig, cur := range mapping {
		if r, ok := repr[cur]; ok {
			mapping[orig] = r
		}
	}

	// Inter-cluster lines collapse to one electrical equivalent per bus pair:
	// parallel reactance/resistance, summed rating, minimum margin.
	type pairKey struct{ a, b string }
	lineGroups := map[pairKey][]grid.Line{}
	for _, l := range n.Lines {
		a, b := repr[l.Bus0], repr[l.Bus1]
		if a == b {
			continue
		}
		if b < a {
			a, b = b, a
		}
		lineGroups[pairKey{a, b}] = append(lineGroups[pairKey{a, b}], l)
	}
	linePairs := make([]pairKey, 0, len(lineGroups))
	for p := range lineGroups {
		linePairs = append(linePairs, p)
	}
	sort.Slice(linePairs, func(i, j int) bool {
		if linePairs[i].a != linePairs[j].a {
			return linePairs[i].a < linePairs[j].a
		}
		return linePairs[i].b < linePairs[j].b
	})
	for _, p := range linePairs {
		group := lineGroups[p]
		eq := grid.Line{
			ID:     p.a + "-" + p.b,
			Bus0:   p.a,
			Bus1:   p.b,
			SMaxPu: group[0].SMaxPu,
		}
		invX, invR, length := 0.0, 0.0, 0.0
		capAcc, capW := 0.0, 0.0
		for _, l := range group {
			eq.SNom += l.SNom
			if l.SMaxPu < eq.SMaxPu {
				eq.SMaxPu = l.SMaxPu
			}
			if l.SNomExtendable {
				eq.SNomExtendable = true
			}
			eq.SNomMax += l.SNomMax
			if l.X > 0 {
				invX += 1 / l.X
			}
			if l.R > 0 {
				invR += 1 / l.R
			}
			length += l.LengthKm
			w := l.SNom
			if w <= 0 {
				w = 1
			}
			capAcc += w * l.CapitalCost
			capW += w
		}
		eq.CapitalCost = capAcc / capW
		if invX > 0 {
			eq.X = 1 / invX
		}
		if invR > 0 {
			eq.R = 1 / invR
		}
		eq.LengthKm = length / float64(len(group))
		eq.NumParallel = float64(len(group))
		reduced.Lines = append(reduced.Lines, eq)
	}

	// Transformers inside a cluster vanish; between clusters they aggregate
	// like lines.
	trGroups := map[pairKey][]grid.Transformer{}
	for _, tr := range n.Transformers {
		a, b := repr[tr.Bus0], repr[tr.Bus1]
		if a == b {
			continue
		}
		if b < a {
			a, b = b, a
		}
		trGroups[pairKey{a, b}] = append(trGroups[pairKey{a, b}], tr)
	}
	trPairs := make([]pairKey, 0, len(trGroups))
	for p := range trGroups {
		trPairs = append(trPairs, p)
	}
	sort.Slice(trPairs, func(i, j int) bool {
		if trPairs[i].a != trPairs[j].a {
			return trPairs[i].a < trPairs[j].a
		}
		return trPairs[i].b < trPairs[j].b
	})
	for _, p := range trPairs {
		group := trGroups[p]
		eq := grid.Transformer{ID: p.a + "-" + p.b + " trafo", Bus0: p.a, Bus1: p.b}
		invX := 0.0
		for _, tr := range group {
			eq.SNom += tr.SNom
			if tr.X > 0 {
				invX += 1 / tr.X
			}
		}
		if invX > 0 {
			eq.X = 1 / invX
		}
		reduced.Transformers = append(reduced.Transformers, eq)
	}

	// Links keep controllable-transport semantics; parallel links sum.
	linkGroups := map[pairKey][]grid.Link{}
	for _, k := range n.Links {
		a, b := repr[k.Bus0], repr[k.Bus1]
		if a == b {
			continue
		}
		linkGroups[pairKey{a, b}] = append(linkGroups[pairKey{a, b}], k)
	}
	linkPairs := make([]pairKey, 0, len(linkGroups))
	for p := range linkGroups {
		linkPairs = append(linkPairs, p)
	}
	sort.Slice(linkPairs, func(i, j int) bool {
		if linkPairs[i].a != linkPairs[j].a {
			return linkPairs[i].a < linkPairs[j].a
		}
		return linkPairs[i].b < linkPairs[j].b
	})
	for _, p := range linkPairs {
		group := linkGroups[p]
		eq := grid.Link{
			ID:     p.a + "->" + p.b,
			Bus0:   p.a,
			Bus1:   p.b,
			PMaxPu: group[0].PMaxPu,
			PMinPu: group[0].PMinPu,
		}
		totalPNom, effAcc, length := 0.0, 0.0, 0.0
		for _, k := range group {
			eq.PNom += k.PNom
			eq.PNomMax += k.PNomMax
			if k.PNomExtendable {
				eq.PNomExtendable = true
			}
			w := k.PNom
			if w <= 0 {
				w = 1
			}
			effAcc += w * k.Efficiency
			totalPNom += w
			eq.MarginalCost += w * k.MarginalCost
			length += k.LengthKm
		}
		eq.Efficiency = effAcc / totalPNom
		eq.MarginalCost /= totalPNom
		eq.LengthKm = length / float64(len(group))
		reduced.Links = append(reduced.Links, eq)
	}

	// Injectors aggregate per (representative bus, carrier); pinned buses'
	// attachments and excluded carriers pass through untouched.
	type groupKey struct{ bus, carrier string }
	genGroups := map[groupKey][]grid.Generator{}
	for _, g := range n.Generators {
		r := repr[g.Bus]
		if pinned[g.Bus] {
			reduced.Generators = append(reduced.Generators, g)
			continue
		}
		genGroups[groupKey{r, g.Carrier}] = append(genGroups[groupKey{r, g.Carrier}], g)
	}
	genKeys := make([]groupKey, 0, len(genGroups))
	for k := range genGroups {
		genKeys = append(genKeys, k)
	}
	sort.Slice(genKeys, func(i, j int) bool {
		if genKeys[i].bus != genKeys[j].bus {
			return genKeys[i].bus < genKeys[j].bus
		}
		return genKeys[i].carrier < genKeys[j].carrier
	})
	for _, k := range genKeys {
		agg, err := aggregateGenerators(genGroups[k], k.bus, T, strategies)
		if err != nil {
			return nil, err
		}
		reduced.Generators = append(reduced.Generators, agg)
	}

	stGroups := map[groupKey][]grid.StorageUnit{}
	for _, s := range n.StorageUnits {
		r := repr[s.Bus]
		if pinned[s.Bus] {
			reduced.StorageUnits = append(reduced.StorageUnits, s)
			continue
		}
		stGroups[groupKey{r, s.Carrier}] = append(stGroups[groupKey{r, s.Carrier}], s)
	}
	stKeys := make([]groupKey, 0, len(stGroups))
	for k := range stGroups {
		stKeys = append(stKeys, k)
	}
	sort.Slice(stKeys, func(i, j int) bool {
		if stKeys[i].bus != stKeys[j].bus {
			return stKeys[i].bus < stKeys[j].bus
		}
		return stKeys[i].carrier < stKeys[j].carrier
	})
	for _, k := range stKeys {
		agg, err := aggregateStorage(stGroups[k], k.bus, T, strategies)
		if err != nil {
			return nil, err
		}
		reduced.StorageUnits = append(reduced.StorageUnits, agg)
	}

	loadGroups := map[string][]grid.Load{}
	for _, ld := range n.Loads {
		r := repr[ld.Bus]
		if pinned[ld.Bus] {
			reduced.Loads = append(reduced.Loads, ld)
			continue
		}
		loadGroups[r] = append(loadGroups[r], ld)
	}
	loadBuses := make([]string, 0, len(loadGroups))
	for b := range loadGroups {
		loadBuses = append(loadBuses, b)
	}
	sort.Strings(loadBuses)
	for _, b := range loadBuses {
		agg, err := aggregateLoads(loadGroups[b], b, T, strategies)
		if err != nil {
			return nil, err
		}
		reduced.Loads = append(reduced.Loads, agg)
	}

	return reduced, nil
}
