package lopf

import (
	"sort"
	"sync"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// branch is the solver's unified view of lines and transformers: a passive
// AC element whose flow follows the angle difference of its endpoints.
type branch struct {
	ID          string
	Bus0        string
	Bus1        string
	X           float64 // effective reactance for this iteration
	Rating      float64 // SNom * SMaxPu
	SMaxPu      float64
	SNom        float64
	Extendable  bool
	RatingMax   float64 // 0 means unbounded
	CapitalCost float64
}

// modelIndex maps every component to its variable columns.
type modelIndex struct {
	genDispatch map[string][]int // generator ID -> column per snapshot
	genCapAdd   map[string]int
	stDispatch  map[string][]int
	stStore     map[string][]int
	stSOC       map[string][]int
	branchFlow  map[string][]int
	brCapAdd    map[string]int
	linkFlow    map[string][]int
	linkCapAdd  map[string]int
	angle       map[string][]int // bus ID -> column per snapshot
	shed        map[string][]int // bus ID -> column per snapshot
}

// model is one iteration's fully-assembled linear program.
type model struct {
	problem  *Problem
	index    *modelIndex
	branches []branch
}

// branchesOf collects lines and transformers, applying any per-branch
// effective-reactance corrections from earlier iterations.
func branchesOf(n *grid.Network, xEff map[string]float64) []branch {
	branches := make([]branch, 0, len(n.Lines)+len(n.Transformers))
	for _, l := range n.Lines {
		br := branch{
			ID: l.ID, Bus0: l.Bus0, Bus1: l.Bus1,
			X: l.X, Rating: l.SNom * l.SMaxPu, SMaxPu: l.SMaxPu, SNom: l.SNom,
			Extendable: l.SNomExtendable, CapitalCost: l.CapitalCost,
		}
		if l.SNomMax > 0 {
			br.RatingMax = l.SNomMax * l.SMaxPu
		}
		if x, ok := xEff[l.ID]; ok && x > 0 {
			br.X = x
		}
		branches = append(branches, br)
	}
	for _, tr := range n.Transformers {
		br := branch{
			ID: tr.ID, Bus0: tr.Bus0, Bus1: tr.Bus1,
			X: tr.X, Rating: tr.SNom, SMaxPu: 1, SNom: tr.SNom,
		}
		if x, ok := xEff[tr.ID]; ok && x > 0 {
			br.X = x
		}
		branches = append(branches, br)
	}
	return branches
}

// angleAnchors partitions the buses touched by reactance-bearing branches
// into angle-coupled components and picks one reference bus per component.
// Buses outside every such branch carry no angle variable at all.
func angleAnchors(n *grid.Network, branches []branch) (anchors []string, angled map[string]bool) {
	angled = map[string]bool{}
	parent := map[string]string{}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	for _, br := range branches {
		if br.X <= 0 {
			continue
		}
		for _, id := range []string{br.Bus0, br.Bus1} {
			if !angled[id] {
				angled[id] = true
				parent[id] = id
			}
		}
		parent[find(br.Bus0)] = find(br.Bus1)
	}
	seen := map[string]bool{}
	for _, b := range n.Buses {
		if !angled[b.ID] {
			continue
		}
		if r := find(b.ID); !seen[r] {
			seen[r] = true
			anchors = append(anchors, b.ID)
		}
	}
	return anchors, angled
}

// buildModel assembles the LOPF linear program for one solve iteration.
// noise returns the additive marginal-cost perturbation per generator ID
// (zero function when noisy costs are off). Per-snapshot constraint rows are
// built concurrently; each snapshot owns its row block so there are no
// shared writes until assembly.
func buildModel(n *grid.Network, snaps grid.Snapshots, opts Options,
	xEff map[string]float64, noise func(genID string) float64) *model {

	T := snaps.Len()
	w := snaps.WeightHours
	branches := branchesOf(n, xEff)

	idx := &modelIndex{
		genDispatch: map[string][]int{},
		genCapAdd:   map[string]int{},
		stDispatch:  map[string][]int{},
		stStore:     map[string][]int{},
		stSOC:       map[string][]int{},
		branchFlow:  map[string][]int{},
		brCapAdd:    map[string]int{},
		linkFlow:    map[string][]int{},
		linkCapAdd:  map[string]int{},
		angle:       map[string][]int{},
		shed:        map[string][]int{},
	}

	// Column allocation is sequential and deterministic (component order).
	col := 0
	alloc := func(count int) []int {
		cols := make([]int, count)
		for i := range cols {
			cols[i] = col
			col++
		}
		return cols
	}
	for _, g := range n.Generators {
		idx.genDispatch[g.ID] = alloc(T)
		if g.PNomExtendable {
			idx.genCapAdd[g.ID] = alloc(1)[0]
		}
	}
	for _, s := range n.StorageUnits {
		idx.stDispatch[s.ID] = alloc(T)
		idx.stStore[s.ID] = alloc(T)
		idx.stSOC[s.ID] = alloc(T)
	}
	for _, br := range branches {
		idx.branchFlow[br.ID] = alloc(T)
		if br.Extendable {
			idx.brCapAdd[br.ID] = alloc(1)[0]
		}
	}
	for _, k := range n.Links {
		idx.linkFlow[k.ID] = alloc(T)
		if k.PNomExtendable {
			idx.linkCapAdd[k.ID] = alloc(1)[0]
		}
	}
	// Angles exist only where the DC flow definition references them. A bus
	// reached solely through links or zero-reactance branches gets none;
	// an unreferenced column would be all zeros in the simplex tableau.
	anchors, angled := angleAnchors(n, branches)
	for _, b := range n.Buses {
		if angled[b.ID] {
			idx.angle[b.ID] = alloc(T)
		}
	}
	if opts.LoadShedding {
		for _, b := range n.Buses {
			idx.shed[b.ID] = alloc(T)
		}
	}

	// Objective: snapshot-weighted marginal costs (with optional noise),
	// capital costs on capacity additions, penalty on shed energy.
	obj := make([]float64, col)
	for _, g := range n.Generators {
		mc := g.MarginalCost + noise(g.ID)
		for _, c := range idx.genDispatch[g.ID] {
			obj[c] = mc * w
		}
		if g.PNomExtendable {
			obj[idx.genCapAdd[g.ID]] = g.CapitalCost
		}
	}
	for _, s := range n.StorageUnits {
		for _, c := range idx.stDispatch[s.ID] {
			obj[c] = s.MarginalCost * w
		}
	}
	for _, br := range branches {
		if br.Extendable {
			obj[idx.brCapAdd[br.ID]] = br.CapitalCost
		}
	}
	for _, k := range n.Links {
		if k.PNomExtendable {
			obj[idx.linkCapAdd[k.ID]] = k.CapitalCost
		}
		if k.PMinPu >= 0 && k.MarginalCost != 0 {
			for _, c := range idx.linkFlow[k.ID] {
				obj[c] = k.MarginalCost * w
			}
		}
	}
	if opts.LoadShedding {
		cost := opts.LoadSheddingCost
		if cost <= 0 {
			cost = DefaultLoadSheddingCost
		}
		for _, b := range n.Buses {
			for _, c := range idx.shed[b.ID] {
				obj[c] = cost * w
			}
		}
	}

	demand := demandByBus(n, T)
	busIDs := make([]string, 0, len(n.Buses))
	for _, b := range n.Buses {
		busIDs = append(busIDs, b.ID)
	}
	// Per-snapshot rows are independent until assembly; build them on a
	// bounded worker pool.
	type rowBlock struct {
		eq []Row
		ub []Row
	}
	blocks := make([]rowBlock, T)
	var wg sync.WaitGroup
	const workers = 4
	sem := make(chan struct{}, workers)
	for t := 0; t < T; t++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(t int) {
			defer wg.Done()
			defer func() { <-sem }()
			blocks[t] = rowBlock{eq: snapshotEqRows(n, branches, idx, demand, busIDs, anchors, opts, t),
				ub: snapshotUbRows(n, branches, idx, demand, opts, t)}
		}(t)
	}
	wg.Wait()

	p := &Problem{NumVars: col, Obj: obj}
	for t := 0; t < T; t++ {
		p.Eq = append(p.Eq, blocks[t].eq...)
		p.Ub = append(p.Ub, blocks[t].ub...)
	}
	crossSnapshotRows(n, idx, p, T, w)
	capacityBoundRows(n, branches, idx, p)

	return &model{problem: p, index: idx, branches: branches}
}

// demandByBus sums load profiles per bus and snapshot.
func demandByBus(n *grid.Network, T int) map[string][]float64 {
	demand := map[string][]float64{}
	for _, b := range n.Buses {
		demand[b.ID] = make([]float64, T)
	}
	for _, ld := range n.Loads {
		for t := 0; t < T && t < len(ld.PSet); t++ {
			demand[ld.Bus][t] += ld.PSet[t]
		}
	}
	return demand
}

// snapshotEqRows builds the equality rows of one snapshot: nodal power
// balance, the angle-difference flow definition of every branch, and the
// reference-angle anchor.
func snapshotEqRows(n *grid.Network, branches []branch, idx *modelIndex,
	demand map[string][]float64, busIDs, anchors []string, opts Options, t int) []Row {

	var rows []Row

	balance := make(map[string]*Row, len(busIDs))
	for _, id := range busIDs {
		balance[id] = &Row{RHS: demand[id][t]}
	}
	for _, g := range n.Generators {
		r := balance[g.Bus]
		r.Terms = append(r.Terms, Term{idx.genDispatch[g.ID][t], 1})
	}
	for _, s := range n.StorageUnits {
		r := balance[s.Bus]
		r.Terms = append(r.Terms, Term{idx.stDispatch[s.ID][t], 1})
		r.Terms = append(r.Terms, Term{idx.stStore[s.ID][t], -1})
	}
	for _, br := range branches {
		c := idx.branchFlow[br.ID][t]
		balance[br.Bus0].Terms = append(balance[br.Bus0].Terms, Term{c, -1})
		balance[br.Bus1].Terms = append(balance[br.Bus1].Terms, Term{c, 1})
	}
	for _, k := range n.Links {
		c := idx.linkFlow[k.ID][t]
		balance[k.Bus0].Terms = append(balance[k.Bus0].Terms, Term{c, -1})
		balance[k.Bus1].Terms = append(balance[k.Bus1].Terms, Term{c, k.Efficiency})
	}
	if opts.LoadShedding {
		for _, id := range busIDs {
			balance[id].Terms = append(balance[id].Terms, Term{idx.shed[id][t], 1})
		}
	}
	for _, id := range busIDs {
		r := balance[id]
		// A bare bus with no demand contributes nothing; keep the row only
		// when it constrains something.
		if len(r.Terms) == 0 && r.RHS == 0 {
			continue
		}
		rows = append(rows, *r)
	}

	// DC flow definition f = (θ0 - θ1) / x for branches with reactance;
	// branches without reactance act as controllable transport within limits.
	for _, br := range branches {
		if br.X <= 0 {
			continue
		}
		b := 1 / br.X
		rows = append(rows, Row{Terms: []Term{
			{idx.branchFlow[br.ID][t], 1},
			{idx.angle[br.Bus0][t], -b},
			{idx.angle[br.Bus1][t], b},
		}})
	}

	// Reference angles anchor the angle space of every component.
	for _, id := range anchors {
		rows = append(rows, Row{Terms: []Term{{idx.angle[id][t], 1}}})
	}
	return rows
}

// snapshotUbRows builds the inequality rows of one snapshot: dispatch,
// storage and shed bounds plus flow limits.
func snapshotUbRows(n *grid.Network, branches []branch, idx *modelIndex,
	demand map[string][]float64, opts Options, t int) []Row {

	var rows []Row
	nonneg := func(c int) {
		rows = append(rows, Row{Terms: []Term{{c, -1}}, RHS: 0})
	}

	for _, g := range n.Generators {
		c := idx.genDispatch[g.ID][t]
		nonneg(c)
		avail := g.Availability(t)
		if g.PNomExtendable {
			// p - avail * padd <= avail * pnom
			rows = append(rows, Row{
				Terms: []Term{{c, 1}, {idx.genCapAdd[g.ID], -avail}},
				RHS:   avail * g.PNom,
			})
		} else {
			rows = append(rows, Row{Terms: []Term{{c, 1}}, RHS: avail * g.PNom})
		}
	}

	for _, s := range n.StorageUnits {
		d, st, soc := idx.stDispatch[s.ID][t], idx.stStore[s.ID][t], idx.stSOC[s.ID][t]
		nonneg(d)
		nonneg(st)
		nonneg(soc)
		rows = append(rows, Row{Terms: []Term{{d, 1}}, RHS: s.PNom})
		rows = append(rows, Row{Terms: []Term{{st, 1}}, RHS: s.PNom})
		rows = append(rows, Row{Terms: []Term{{soc, 1}}, RHS: s.MaxHours * s.PNom})
	}

	for _, br := range branches {
		c := idx.branchFlow[br.ID][t]
		if br.Extendable {
			add := idx.brCapAdd[br.ID]
			rows = append(rows, Row{Terms: []Term{{c, 1}, {add, -br.SMaxPu}}, RHS: br.Rating})
			rows = append(rows, Row{Terms: []Term{{c, -1}, {add, -br.SMaxPu}}, RHS: br.Rating})
		} else {
			rows = append(rows, Row{Terms: []Term{{c, 1}}, RHS: br.Rating})
			rows = append(rows, Row{Terms: []Term{{c, -1}}, RHS: br.Rating})
		}
	}

	for _, k := range n.Links {
		c := idx.linkFlow[k.ID][t]
		if k.PNomExtendable {
			add := idx.linkCapAdd[k.ID]
			rows = append(rows, Row{Terms: []Term{{c, 1}, {add, -k.PMaxPu}}, RHS: k.PMaxPu * k.PNom})
			rows = append(rows, Row{Terms: []Term{{c, -1}, {add, k.PMinPu}}, RHS: -k.PMinPu * k.PNom})
		} else {
			rows = append(rows, Row{Terms: []Term{{c, 1}}, RHS: k.PMaxPu * k.PNom})
			rows = append(rows, Row{Terms: []Term{{c, -1}}, RHS: -k.PMinPu * k.PNom})
		}
	}

	if opts.LoadShedding {
		for _, b := range n.Buses {
			c := idx.shed[b.ID][t]
			nonneg(c)
			rows = append(rows, Row{Terms: []Term{{c, 1}}, RHS: demand[b.ID][t]})
		}
	}
	return rows
}

// crossSnapshotRows adds the couplings between consecutive snapshots: ramp
// limits and the storage state-of-charge recursion. w is the snapshot
// duration in hours, converting MW power terms into the MWh state.
func crossSnapshotRows(n *grid.Network, idx *modelIndex, p *Problem, T int, w float64) {
	for _, g := range n.Generators {
		cols := idx.genDispatch[g.ID]
		for t := 1; t < T; t++ {
			if g.RampLimitUp > 0 {
				p.Ub = append(p.Ub, Row{
					Terms: []Term{{cols[t], 1}, {cols[t-1], -1}},
					RHS:   g.RampLimitUp * g.PNom,
				})
			}
			if g.RampLimitDown > 0 {
				p.Ub = append(p.Ub, Row{
					Terms: []Term{{cols[t-1], 1}, {cols[t], -1}},
					RHS:   g.RampLimitDown * g.PNom,
				})
			}
		}
	}

	for _, s := range n.StorageUnits {
		effD := s.EfficiencyDispatch
		if effD <= 0 {
			effD = 1
		}
		for t := 0; t < T; t++ {
			inflow := 0.0
			if t < len(s.Inflow) {
				inflow = s.Inflow[t]
			}
			row := Row{Terms: []Term{
				{idx.stSOC[s.ID][t], 1},
				{idx.stStore[s.ID][t], -s.EfficiencyStore * w},
				{idx.stDispatch[s.ID][t], w / effD},
			}, RHS: inflow * w}
			if t > 0 {
				row.Terms = append(row.Terms, Term{idx.stSOC[s.ID][t-1], -1})
				p.Eq = append(p.Eq, row)
				continue
			}
			if s.CyclicSOC && T > 1 {
				// The cyclic closure can coincide with the summed nodal
				// balances, which would leave the equality system rank
				// deficient. A slacked inequality pair enforces the same
				// equation with an independent row each.
				row.Terms = append(row.Terms, Term{idx.stSOC[s.ID][T-1], -1})
				neg := Row{Terms: make([]Term, len(row.Terms)), RHS: -row.RHS}
				for i, tm := range row.Terms {
					neg.Terms[i] = Term{tm.Col, -tm.Coeff}
				}
				p.Ub = append(p.Ub, row, neg)
				continue
			}
			p.Eq = append(p.Eq, row)
		}
	}
}

// capacityBoundRows bounds every capacity-addition variable.
func capacityBoundRows(n *grid.Network, branches []branch, idx *modelIndex, p *Problem) {
	nonneg := func(c int) {
		p.Ub = append(p.Ub, Row{Terms: []Term{{c, -1}}, RHS: 0})
	}
	for _, g := range n.Generators {
		if !g.PNomExtendable {
			continue
		}
		c := idx.genCapAdd[g.ID]
		nonneg(c)
		if g.PNomMax > 0 && g.PNomMax > g.PNom {
			p.Ub = append(p.Ub, Row{Terms: []Term{{c, 1}}, RHS: g.PNomMax - g.PNom})
		}
	}
	for _, br := range branches {
		if !br.Extendable {
			continue
		}
		c := idx.brCapAdd[br.ID]
		nonneg(c)
		if br.RatingMax > 0 && br.RatingMax > br.Rating {
			// Bound is expressed on nominal capacity, not rating.
			p.Ub = append(p.Ub, Row{Terms: []Term{{c, 1}}, RHS: br.RatingMax/br.SMaxPu - br.SNom})
		}
	}
	for _, k := range n.Links {
		if !k.PNomExtendable {
			continue
		}
		c := idx.linkCapAdd[k.ID]
		nonneg(c)
		if k.PNomMax > 0 && k.PNomMax > k.PNom {
			p.Ub = append(p.Ub, Row{Terms: []Term{{c, 1}}, RHS: k.PNomMax - k.PNom})
		}
	}
}

// sortedGeneratorIDs returns generator IDs in stable order, used for
// deterministic noise application.
func sortedGeneratorIDs(n *grid.Network) []string {
	ids := make([]string, 0, len(n.Generators))
	for _, g := range n.Generators {
		ids = append(ids, g.ID)
	}
	sort.Strings(ids)
	return ids
}
