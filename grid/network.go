package grid

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Carrier names for buses and energy carriers for injectors.
const (
	CarrierAC = "AC"
	CarrierDC = "DC"
)

// UnderConstructionPolicy resolves components flagged as under construction
// before any clustering or solving takes place.
type UnderConstructionPolicy string

const (
	// UnderConstructionZero keeps the component with its capacity forced to zero.
	UnderConstructionZero UnderConstructionPolicy = "zero"
	// UnderConstructionRemove drops the component from the network.
	UnderConstructionRemove UnderConstructionPolicy = "remove"
	// UnderConstructionKeep keeps the component at full capacity.
	UnderConstructionKeep UnderConstructionPolicy = "keep"
)

// Bus is a node of the network graph.
// Units: VNom in kV, coordinates in degrees (lon/lat).
type Bus struct {
	ID                string
	VNom              float64
	X                 float64 // longitude
	Y                 float64 // latitude
	Country           string
	Carrier           string // "AC" or "DC"
	UnderConstruction bool
}

// Line is an AC branch between two buses.
// Units: LengthKm in km, R/X in ohm, SNom in MVA.
type Line struct {
	ID                string
	Bus0              string
	Bus1              string
	LengthKm          float64
	R                 float64
	X                 float64
	SNom              float64
	SMaxPu            float64 // per-unit thermal safety margin on SNom
	NumParallel       float64
	Type              string // conductor type name, see LineTypes
	SNomExtendable    bool
	SNomMax           float64 // upper bound on expanded capacity; 0 means unbounded
	CapitalCost       float64 // per MVA of added capacity
	UnderConstruction bool
	Underground       bool
}

// Link is a controllable (DC) branch between two buses.
// Units: PNom in MW. PMinPu is typically 0 (unidirectional) or -1 (bidirectional).
type Link struct {
	ID                string
	Bus0              string
	Bus1              string
	LengthKm          float64
	PNom              float64
	PMaxPu            float64
	PMinPu            float64
	Efficiency        float64
	MarginalCost      float64 // per MWh transported
	PNomExtendable    bool
	PNomMax           float64
	CapitalCost       float64 // per MW of added capacity
	UnderConstruction bool
}

// Transformer couples two voltage levels. Treated electrically like a line.
type Transformer struct {
	ID   string
	Bus0 string
	Bus1 string
	X    float64 // ohm
	SNom float64 // MVA
	Type string
}

// Generator is a dispatchable or profile-limited injector at one bus.
// Units: PNom in MW, costs in currency per MWh (marginal) / per MW (capital).
type Generator struct {
	ID             string
	Bus            string
	Carrier        string
	PNom           float64
	PNomExtendable bool
	PNomMax        float64
	// PMaxPu is the per-unit availability profile, one entry per snapshot.
	// Nil means constant 1.0.
	PMaxPu        []float64
	MarginalCost  float64
	CapitalCost   float64
	Efficiency    float64
	RampLimitUp   float64 // per-unit of PNom per snapshot; 0 means unlimited
	RampLimitDown float64
	Committable   bool
}

// StorageUnit is an energy storage device at one bus.
type StorageUnit struct {
	ID                 string
	Bus                string
	Carrier            string
	PNom               float64 // MW
	MaxHours           float64 // energy capacity = MaxHours * PNom
	EfficiencyStore    float64
	EfficiencyDispatch float64
	MarginalCost       float64
	CapitalCost        float64
	CyclicSOC          bool
	// Inflow is the natural inflow profile in MW per snapshot. Nil means zero.
	Inflow []float64
}

// Load is a fixed demand at one bus.
type Load struct {
	ID  string
	Bus string
	// PSet is the demand profile in MW, one entry per snapshot.
	PSet []float64
}

// Network is the graph of buses, branches and injectors handed between the
// topology reducer and the solver.
type Network struct {
	Buses        []Bus
	Lines        []Line
	Links        []Link
	Transformers []Transformer
	Generators   []Generator
	StorageUnits []StorageUnit
	Loads        []Load
}

// BusIndex returns a map from bus ID to position in n.Buses.
func (n *Network) BusIndex() map[string]int {
	idx := make(map[string]int, len(n.Buses))
	for i, b := range n.Buses {
		idx[b.ID] = i
	}
	return idx
}

// Validate checks referential integrity and attribute ranges.
// Every branch must reference two existing buses, every injector exactly one,
// and all ratings must be non-negative.
func (n *Network) Validate() error {
	idx := n.BusIndex()
	if len(idx) != len(n.Buses) {
		return fmt.Errorf("duplicate bus identifiers: %d buses, %d unique", len(n.Buses), len(idx))
	}
	for _, l := range n.Lines {
		if _, ok := idx[l.Bus0]; !ok {
			return fmt.Errorf("line %s references unknown bus %s", l.ID, l.Bus0)
		}
		if _, ok := idx[l.Bus1]; !ok {
			return fmt.Errorf("line %s references unknown bus %s", l.ID, l.Bus1)
		}
		if l.SNom < 0 {
			return fmt.Errorf("line %s has negative rating %f", l.ID, l.SNom)
		}
	}
	for _, k := range n.Links {
		if _, ok := idx[k.Bus0]; !ok {
			return fmt.Errorf("link %s references unknown bus %s", k.ID, k.Bus0)
		}
		if _, ok := idx[k.Bus1]; !ok {
			return fmt.Errorf("link %s references unknown bus %s", k.ID, k.Bus1)
		}
		if k.PNom < 0 {
			return fmt.Errorf("link %s has negative rating %f", k.ID, k.PNom)
		}
	}
	for _, tr := range n.Transformers {
		if _, ok := idx[tr.Bus0]; !ok {
			return fmt.Errorf("transformer %s references unknown bus %s", tr.ID, tr.Bus0)
		}
		if _, ok := idx[tr.Bus1]; !ok {
			return fmt.Errorf("transformer %s references unknown bus %s", tr.ID, tr.Bus1)
		}
		if tr.SNom < 0 {
			return fmt.Errorf("transformer %s has negative rating %f", tr.ID, tr.SNom)
		}
	}
	for _, g := range n.Generators {
		if _, ok := idx[g.Bus]; !ok {
			return fmt.Errorf("generator %s references unknown bus %s", g.ID, g.Bus)
		}
		if g.PNom < 0 {
			return fmt.Errorf("generator %s has negative nominal power %f", g.ID, g.PNom)
		}
	}
	for _, s := range n.StorageUnits {
		if _, ok := idx[s.Bus]; !ok {
			return fmt.Errorf("storage unit %s references unknown bus %s", s.ID, s.Bus)
		}
		if s.PNom < 0 {
			return fmt.Errorf("storage unit %s has negative nominal power %f", s.ID, s.PNom)
		}
	}
	for _, ld := range n.Loads {
		if _, ok := idx[ld.Bus]; !ok {
			return fmt.Errorf("load %s references unknown bus %s", ld.ID, ld.Bus)
		}
	}
	return nil
}

// Copy returns a deep copy of the network.
func (n *Network) Copy() *Network {
	c := &Network{
		Buses:        append([]Bus(nil), n.Buses...),
		Lines:        append([]Line(nil), n.Lines...),
		Links:        append([]Link(nil), n.Links...),
		Transformers: append([]Transformer(nil), n.Transformers...),
		Generators:   append([]Generator(nil), n.Generators...),
		StorageUnits: append([]StorageUnit(nil), n.StorageUnits...),
		Loads:        append([]Load(nil), n.Loads...),
	}
	for i := range c.Generators {
		c.Generators[i].PMaxPu = append([]float64(nil), c.Generators[i].PMaxPu...)
	}
	for i := range c.StorageUnits {
		c.StorageUnits[i].Inflow = append([]float64(nil), c.StorageUnits[i].Inflow...)
	}
	for i := range c.Loads {
		c.Loads[i].PSet = append([]float64(nil), c.Loads[i].PSet...)
	}
	return c
}

// Adjacency returns, per bus ID, the IDs of buses reachable over one branch
// (lines, links and transformers alike).
func (n *Network) Adjacency() map[string][]string {
	adj := make(map[string][]string, len(n.Buses))
	add := func(a, b string) {
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	for _, b := range n.Buses {
		adj[b.ID] = nil
	}
	for _, l := range n.Lines {
		add(l.Bus0, l.Bus1)
	}
	for _, k := range n.Links {
		add(k.Bus0, k.Bus1)
	}
	for _, tr := range n.Transformers {
		add(tr.Bus0, tr.Bus1)
	}
	return adj
}

// BranchDegree returns the number of branches attached to each bus.
func (n *Network) BranchDegree() map[string]int {
	deg := make(map[string]int, len(n.Buses))
	for _, b := range n.Buses {
		deg[b.ID] = 0
	}
	for _, l := range n.Lines {
		deg[l.Bus0]++
		deg[l.Bus1]++
	}
	for _, k := range n.Links {
		deg[k.Bus0]++
		deg[k.Bus1]++
	}
	for _, tr := range n.Transformers {
		deg[tr.Bus0]++
		deg[tr.Bus1]++
	}
	return deg
}

// MeanInjection returns, per bus, the mean absolute net power in MW over the
// given snapshots: available generation minus demand, averaged.
func (n *Network) MeanInjection(snaps Snapshots) map[string]float64 {
	T := snaps.Len()
	if T == 0 {
		T = 1
	}
	net := make(map[string]float64, len(n.Buses))
	for _, b := range n.Buses {
		net[b.ID] = 0
	}
	for _, g := range n.Generators {
		avail := 0.0
		for t := 0; t < T; t++ {
			avail += g.Availability(t) * g.PNom
		}
		net[g.Bus] += avail / float64(T)
	}
	for _, ld := range n.Loads {
		demand := 0.0
		for t := 0; t < T && t < len(ld.PSet); t++ {
			demand += ld.PSet[t]
		}
		net[ld.Bus] -= demand / float64(T)
	}
	for id, v := range net {
		net[id] = math.Abs(v)
	}
	return net
}

// Availability returns the per-unit availability of the generator at snapshot t.
func (g *Generator) Availability(t int) float64 {
	if g.PMaxPu == nil {
		return 1.0
	}
	if t < 0 || t >= len(g.PMaxPu) {
		return 0.0
	}
	return g.PMaxPu[t]
}

// RemoveBuses drops the named buses and every branch or injector attached to
// them. Bus order of the survivors is preserved.
func (n *Network) RemoveBuses(ids map[string]bool) {
	keepBus := n.Buses[:0]
	for _, b := range n.Buses {
		if !ids[b.ID] {
			keepBus = append(keepBus, b)
		}
	}
	n.Buses = keepBus

	keepLine := n.Lines[:0]
	for _, l := range n.Lines {
		if !ids[l.Bus0] && !ids[l.Bus1] {
			keepLine = append(keepLine, l)
		}
	}
	n.Lines = keepLine

	keepLink := n.Links[:0]
	for _, k := range n.Links {
		if !ids[k.Bus0] && !ids[k.Bus1] {
			keepLink = append(keepLink, k)
		}
	}
	n.Links = keepLink

	keepTr := n.Transformers[:0]
	for _, tr := range n.Transformers {
		if !ids[tr.Bus0] && !ids[tr.Bus1] {
			keepTr = append(keepTr, tr)
		}
	}
	n.Transformers = keepTr

	keepGen := n.Generators[:0]
	for _, g := range n.Generators {
		if !ids[g.Bus] {
			keepGen = append(keepGen, g)
		}
	}
	n.Generators = keepGen

	keepSt := n.StorageUnits[:0]
	for _, s := range n.StorageUnits {
		if !ids[s.Bus] {
			keepSt = append(keepSt, s)
		}
	}
	n.StorageUnits = keepSt

	keepLoad := n.Loads[:0]
	for _, ld := range n.Loads {
		if !ids[ld.Bus] {
			keepLoad = append(keepLoad, ld)
		}
	}
	n.Loads = keepLoad
}

// ApplyUnderConstructionPolicy resolves under-construction flags on buses,
// lines and links according to the configured policies.
func (n *Network) ApplyUnderConstructionPolicy(linePolicy, linkPolicy UnderConstructionPolicy) {
	if linePolicy == UnderConstructionRemove {
		keep := n.Lines[:0]
		for _, l := range n.Lines {
			if !l.UnderConstruction {
				keep = append(keep, l)
			}
		}
		n.Lines = keep
	} else if linePolicy == UnderConstructionZero {
		for i := range n.Lines {
			if n.Lines[i].UnderConstruction {
				n.Lines[i].SNom = 0
			}
		}
	}
	if linkPolicy == UnderConstructionRemove {
		keep := n.Links[:0]
		for _, k := range n.Links {
			if !k.UnderConstruction {
				keep = append(keep, k)
			}
		}
		n.Links = keep
	} else if linkPolicy == UnderConstructionZero {
		for i := range n.Links {
			if n.Links[i].UnderConstruction {
				n.Links[i].PNom = 0
			}
		}
	}
}

// ConnectedComponents returns the connected components of the bus graph as
// sorted slices of bus IDs, largest component first (ties by first ID).
func (n *Network) ConnectedComponents() [][]string {
	g := simple.NewUndirectedGraph()
	fromID := make(map[string]int64, len(n.Buses))
	toID := make(map[int64]string, len(n.Buses))
	for i, b := range n.Buses {
		id := int64(i)
		fromID[b.ID] = id
		toID[id] = b.ID
		g.AddNode(simple.Node(id))
	}
	addEdge := func(a, b string) {
		u, v := fromID[a], fromID[b]
		if u != v {
			g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
		}
	}
	for _, l := range n.Lines {
		addEdge(l.Bus0, l.Bus1)
	}
	for _, k := range n.Links {
		addEdge(k.Bus0, k.Bus1)
	}
	for _, tr := range n.Transformers {
		addEdge(tr.Bus0, tr.Bus1)
	}
	var comps [][]string
	for _, nodes := range topo.ConnectedComponents(g) {
		comp := make([]string, 0, len(nodes))
		for _, node := range nodes {
			comp = append(comp, toID[node.ID()])
		}
		sort.Strings(comp)
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0] < comps[j][0]
	})
	return comps
}
