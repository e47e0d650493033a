package grid

import (
	"testing"
	"time"
)

func testNetwork() *Network {
	return &Network{
		Buses: []Bus{
			{ID: "a", VNom: 220, Carrier: CarrierAC, Country: "NG"},
			{ID: "b", VNom: 220, Carrier: CarrierAC, Country: "NG"},
			{ID: "c", VNom: 220, Carrier: CarrierAC, Country: "NG"},
		},
		Lines: []Line{
			{ID: "l1", Bus0: "a", Bus1: "b", X: 0.1, SNom: 100, SMaxPu: 1},
			{ID: "l2", Bus0: "b", Bus1: "c", X: 0.1, SNom: 100, SMaxPu: 1},
		},
		Generators: []Generator{
			{ID: "g1", Bus: "a", Carrier: "gas", PNom: 50, MarginalCost: 30},
		},
		Loads: []Load{
			{ID: "d1", Bus: "c", PSet: []float64{40, 40}},
		},
	}
}

func TestNetworkValidate_ReferentialIntegrity(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Network)
	}{
		{"line with unknown bus", func(n *Network) { n.Lines[0].Bus1 = "ghost" }},
		{"generator with unknown bus", func(n *Network) { n.Generators[0].Bus = "ghost" }},
		{"load with unknown bus", func(n *Network) { n.Loads[0].Bus = "ghost" }},
		{"negative line rating", func(n *Network) { n.Lines[0].SNom = -1 }},
		{"negative generator capacity", func(n *Network) { n.Generators[0].PNom = -10 }},
		{"duplicate bus id", func(n *Network) { n.Buses = append(n.Buses, Bus{ID: "a"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := testNetwork()
			if err := n.Validate(); err != nil {
				t.Fatalf("baseline network invalid: %v", err)
			}
			tt.mutate(n)
			if err := n.Validate(); err == nil {
				t.Error("Validate accepted an invalid network, want error")
			}
		})
	}
}

func TestNetworkCopy_IsDeep(t *testing.T) {
	n := testNetwork()
	c := n.Copy()

	c.Buses[0].ID = "mutated"
	c.Generators[0].PNom = 999
	c.Loads[0].PSet[0] = 999

	if n.Buses[0].ID != "a" {
		t.Error("copy shares bus slice with original")
	}
	if n.Generators[0].PNom != 50 {
		t.Error("copy shares generator slice with original")
	}
	if n.Loads[0].PSet[0] != 40 {
		t.Error("copy shares load profile backing array with original")
	}
}

func TestConnectedComponents_SplitGraph(t *testing.T) {
	n := testNetwork()
	// Detach c and add an island pair d-e.
	n.Lines = n.Lines[:1]
	n.Buses = append(n.Buses, Bus{ID: "d", VNom: 220}, Bus{ID: "e", VNom: 220})
	n.Lines = append(n.Lines, Line{ID: "l3", Bus0: "d", Bus1: "e", X: 0.1, SNom: 10, SMaxPu: 1})

	comps := n.ConnectedComponents()
	if len(comps) != 3 {
		t.Fatalf("got %d components, want 3", len(comps))
	}
	// Largest first, ties by first ID: {a,b}, {d,e}, {c}.
	if comps[0][0] != "a" || comps[0][1] != "b" {
		t.Errorf("first component = %v, want [a b]", comps[0])
	}
	if comps[1][0] != "d" || comps[1][1] != "e" {
		t.Errorf("second component = %v, want [d e]", comps[1])
	}
	if len(comps[2]) != 1 || comps[2][0] != "c" {
		t.Errorf("third component = %v, want [c]", comps[2])
	}
}

func TestBranchDegree_CountsAllBranchKinds(t *testing.T) {
	n := testNetwork()
	n.Links = append(n.Links, Link{ID: "k1", Bus0: "a", Bus1: "c", PNom: 10, PMaxPu: 1, Efficiency: 1})

	deg := n.BranchDegree()
	if deg["a"] != 2 {
		t.Errorf("degree(a) = %d, want 2", deg["a"])
	}
	if deg["b"] != 2 {
		t.Errorf("degree(b) = %d, want 2", deg["b"])
	}
	if deg["c"] != 2 {
		t.Errorf("degree(c) = %d, want 2", deg["c"])
	}
}

func TestApplyUnderConstructionPolicy(t *testing.T) {
	build := func() *Network {
		n := testNetwork()
		n.Lines[1].UnderConstruction = true
		n.Links = append(n.Links,
			Link{ID: "k1", Bus0: "a", Bus1: "c", PNom: 10, UnderConstruction: true})
		return n
	}

	n := build()
	n.ApplyUnderConstructionPolicy(UnderConstructionZero, UnderConstructionKeep)
	if n.Lines[1].SNom != 0 {
		t.Errorf("zero policy left line rating %f, want 0", n.Lines[1].SNom)
	}
	if n.Links[0].PNom != 10 {
		t.Errorf("keep policy changed link rating to %f, want 10", n.Links[0].PNom)
	}

	n = build()
	n.ApplyUnderConstructionPolicy(UnderConstructionRemove, UnderConstructionRemove)
	if len(n.Lines) != 1 {
		t.Errorf("remove policy kept %d lines, want 1", len(n.Lines))
	}
	if len(n.Links) != 0 {
		t.Errorf("remove policy kept %d links, want 0", len(n.Links))
	}
}

func TestMeanInjection(t *testing.T) {
	n := testNetwork()
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps, err := NewSnapshots(start, start.Add(2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshots: %v", err)
	}

	inj := n.MeanInjection(snaps)
	if inj["a"] != 50 {
		t.Errorf("injection(a) = %f, want 50 (full availability)", inj["a"])
	}
	if inj["c"] != 40 {
		t.Errorf("injection(c) = %f, want 40 (mean demand, absolute)", inj["c"])
	}
	if inj["b"] != 0 {
		t.Errorf("injection(b) = %f, want 0", inj["b"])
	}
}

func TestGeneratorAvailability(t *testing.T) {
	g := Generator{ID: "g", PMaxPu: []float64{0.5, 0.8}}
	if got := g.Availability(1); got != 0.8 {
		t.Errorf("Availability(1) = %f, want 0.8", got)
	}
	if got := g.Availability(5); got != 0 {
		t.Errorf("Availability past profile end = %f, want 0", got)
	}
	flat := Generator{ID: "flat"}
	if got := flat.Availability(0); got != 1.0 {
		t.Errorf("nil profile Availability = %f, want 1.0", got)
	}
}

func TestRemoveBuses_DropsAttachments(t *testing.T) {
	n := testNetwork()
	n.RemoveBuses(map[string]bool{"c": true})

	if len(n.Buses) != 2 {
		t.Errorf("got %d buses, want 2", len(n.Buses))
	}
	if len(n.Lines) != 1 || n.Lines[0].ID != "l1" {
		t.Errorf("got lines %v, want only l1", n.Lines)
	}
	if len(n.Loads) != 0 {
		t.Errorf("load on removed bus survived")
	}
	if len(n.Generators) != 1 {
		t.Errorf("generator on surviving bus removed")
	}
}
