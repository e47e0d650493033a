package cluster

import (
	"testing"
	"time"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// starNetwork has a three-bus core ring plus two degree-one stubs hanging
// off it, one of them across a border.
func starNetwork() *grid.Network {
	n := &grid.Network{
		Buses: []grid.Bus{
			{ID: "core0", VNom: 220, Country: "NG", Carrier: grid.CarrierAC},
			{ID: "core1", VNom: 220, Country: "NG", Carrier: grid.CarrierAC},
			{ID: "core2", VNom: 220, Country: "NG", Carrier: grid.CarrierAC},
			{ID: "stub-home", VNom: 220, Country: "NG", Carrier: grid.CarrierAC},
			{ID: "stub-abroad", VNom: 220, Country: "BJ", Carrier: grid.CarrierAC},
		},
		Lines: []grid.Line{
			{ID: "r0", Bus0: "core0", Bus1: "core1", X: 0.1, SNom: 100, SMaxPu: 1},
			{ID: "r1", Bus0: "core1", Bus1: "core2", X: 0.1, SNom: 100, SMaxPu: 1},
			{ID: "r2", Bus0: "core2", Bus1: "core0", X: 0.1, SNom: 100, SMaxPu: 1},
			{ID: "s0", Bus0: "core0", Bus1: "stub-home", X: 0.1, SNom: 50, SMaxPu: 1},
			{ID: "s1", Bus0: "core1", Bus1: "stub-abroad", X: 0.1, SNom: 50, SMaxPu: 1},
		},
		Generators: []grid.Generator{
			{ID: "stub gen", Bus: "stub-home", Carrier: "solar", PNom: 20},
		},
		Loads: []grid.Load{
			{ID: "abroad load", Bus: "stub-abroad", PSet: []float64{5}},
		},
	}
	return n
}

func identityMapping(n *grid.Network) BusMapping {
	m := make(BusMapping, len(n.Buses))
	for _, b := range n.Buses {
		m[b.ID] = b.ID
	}
	return m
}

func TestRemoveStubs_MergesWithinCountry(t *testing.T) {
	n := starNetwork()
	mapping := identityMapping(n)

	removeStubs(n, false, mapping)

	if mapping["stub-home"] != "core0" {
		t.Errorf("stub-home maps to %s, want core0", mapping["stub-home"])
	}
	// The generator moved onto the neighbor.
	if n.Generators[0].Bus != "core0" {
		t.Errorf("stub generator on %s, want core0", n.Generators[0].Bus)
	}
	// The cross-border stub stays without acrossBorders.
	if mapping["stub-abroad"] != "stub-abroad" {
		t.Errorf("stub-abroad merged without acrossBorders")
	}
	if len(n.Buses) != 4 {
		t.Errorf("got %d buses, want 4", len(n.Buses))
	}
}

func TestRemoveStubs_AcrossBorders(t *testing.T) {
	n := starNetwork()
	mapping := identityMapping(n)

	removeStubs(n, true, mapping)

	if mapping["stub-abroad"] != "core1" {
		t.Errorf("stub-abroad maps to %s, want core1", mapping["stub-abroad"])
	}
	if n.Loads[0].Bus != "core1" {
		t.Errorf("stub load on %s, want core1", n.Loads[0].Bus)
	}
	if len(n.Buses) != 3 {
		t.Errorf("got %d buses, want 3", len(n.Buses))
	}
}

func TestRemoveStubs_Idempotent(t *testing.T) {
	n := starNetwork()
	mapping := identityMapping(n)

	removeStubs(n, true, mapping)
	buses := len(n.Buses)
	lines := len(n.Lines)

	removeStubs(n, true, mapping)
	if len(n.Buses) != buses || len(n.Lines) != lines {
		t.Errorf("second invocation changed the network: %d buses, %d lines", len(n.Buses), len(n.Lines))
	}
}

func TestRemoveStubs_CollapsesChains(t *testing.T) {
	// A dangling chain core-x-y: removing y exposes x as the next stub.
	n := starNetwork()
	n.Buses = append(n.Buses, grid.Bus{ID: "tail", VNom: 220, Country: "NG", Carrier: grid.CarrierAC})
	n.Lines = append(n.Lines, grid.Line{ID: "s2", Bus0: "stub-home", Bus1: "tail", X: 0.1, SNom: 20, SMaxPu: 1})
	mapping := identityMapping(n)

	removeStubs(n, false, mapping)

	if mapping["tail"] != "core0" {
		t.Errorf("tail maps to %s, want core0 after chain collapse", mapping["tail"])
	}
	if mapping["stub-home"] != "core0" {
		t.Errorf("stub-home maps to %s, want core0", mapping["stub-home"])
	}
}

func TestIsolatedBusPolicy_DropAndMerge(t *testing.T) {
	n := starNetwork()
	// Two islands: one negligible, one with real generation.
	n.Buses = append(n.Buses,
		grid.Bus{ID: "island-small", VNom: 33, Country: "NG", Carrier: grid.CarrierAC},
		grid.Bus{ID: "island-big", VNom: 132, Country: "NG", Carrier: grid.CarrierAC},
	)
	n.Generators = append(n.Generators,
		grid.Generator{ID: "small gen", Bus: "island-small", Carrier: "solar", PNom: 0.5},
		grid.Generator{ID: "big gen", Bus: "island-big", Carrier: "gas", PNom: 80},
	)
	mapping := identityMapping(n)

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps, err := grid.NewSnapshots(start, start.Add(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshots: %v", err)
	}

	cfg := grid.IsolatedBusConfig{DropThresholdMW: 1, MergeThresholdMW: 10}
	applyIsolatedBusPolicy(n, snaps, cfg, mapping)

	if _, ok := mapping["island-small"]; ok {
		t.Error("dropped bus still present in mapping")
	}
	if mapping["island-big"] != SyntheticIsolatedBus {
		t.Errorf("island-big maps to %s, want %s", mapping["island-big"], SyntheticIsolatedBus)
	}

	idx := n.BusIndex()
	if _, ok := idx["island-small"]; ok {
		t.Error("island-small still in the network")
	}
	if _, ok := idx[SyntheticIsolatedBus]; !ok {
		t.Error("synthetic isolated bus missing")
	}
	// The big island's generator now sits on the synthetic bus.
	for _, g := range n.Generators {
		if g.ID == "big gen" && g.Bus != SyntheticIsolatedBus {
			t.Errorf("big gen on %s, want %s", g.Bus, SyntheticIsolatedBus)
		}
	}
	// The main component is untouched.
	if mapping["core0"] != "core0" {
		t.Errorf("core0 maps to %s, want itself", mapping["core0"])
	}
}

func TestIsolatedBusPolicy_KeepBetweenThresholds(t *testing.T) {
	n := starNetwork()
	n.Buses = append(n.Buses, grid.Bus{ID: "island-mid", VNom: 66, Country: "NG", Carrier: grid.CarrierAC})
	n.Generators = append(n.Generators,
		grid.Generator{ID: "mid gen", Bus: "island-mid", Carrier: "gas", PNom: 5})
	mapping := identityMapping(n)

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps, _ := grid.NewSnapshots(start, start.Add(time.Hour), time.Hour)

	cfg := grid.IsolatedBusConfig{DropThresholdMW: 1, MergeThresholdMW: 10}
	applyIsolatedBusPolicy(n, snaps, cfg, mapping)

	if mapping["island-mid"] != "island-mid" {
		t.Errorf("island-mid maps to %s, want itself between thresholds", mapping["island-mid"])
	}
	if _, ok := n.BusIndex()["island-mid"]; !ok {
		t.Error("island-mid removed despite sitting between thresholds")
	}
}
