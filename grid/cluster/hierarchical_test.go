package cluster

import (
	"errors"
	"math"
	"testing"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

func TestHierarchicalAssign_MergesClosestPairFirst(t *testing.T) {
	// b00-b01 is electrically tight, b01-b02 loose: at k=2 the tight pair
	// forms one cluster.
	n := &grid.Network{
		Buses: []grid.Bus{
			{ID: "b00", VNom: 220, Carrier: grid.CarrierAC},
			{ID: "b01", VNom: 220, Carrier: grid.CarrierAC},
			{ID: "b02", VNom: 220, Carrier: grid.CarrierAC},
		},
		Lines: []grid.Line{
			{ID: "tight", Bus0: "b00", Bus1: "b01", X: 0.01, SNom: 100, SMaxPu: 1},
			{ID: "loose", Bus0: "b01", Bus1: "b02", X: 1.0, SNom: 100, SMaxPu: 1},
		},
	}
	comp := []string{"b00", "b01", "b02"}

	assign, err := hierarchicalAssign(n, comp, 2)
	if err != nil {
		t.Fatalf("hierarchicalAssign: %v", err)
	}
	if assign[0] != assign[1] {
		t.Errorf("tight pair split: %v", assign)
	}
	if assign[2] == assign[0] {
		t.Errorf("loose bus absorbed: %v", assign)
	}
}

func TestHierarchicalAssign_TieBreakIsDeterministic(t *testing.T) {
	// All distances equal: the tie breaks on the lowest head pair, so b00-b01
	// merges first every time.
	n := &grid.Network{
		Buses: []grid.Bus{
			{ID: "b00", VNom: 220, Carrier: grid.CarrierAC},
			{ID: "b01", VNom: 220, Carrier: grid.CarrierAC},
			{ID: "b02", VNom: 220, Carrier: grid.CarrierAC},
			{ID: "b03", VNom: 220, Carrier: grid.CarrierAC},
		},
		Lines: []grid.Line{
			{ID: "e0", Bus0: "b00", Bus1: "b01", X: 0.1, SNom: 100, SMaxPu: 1},
			{ID: "e1", Bus0: "b01", Bus1: "b02", X: 0.1, SNom: 100, SMaxPu: 1},
			{ID: "e2", Bus0: "b02", Bus1: "b03", X: 0.1, SNom: 100, SMaxPu: 1},
		},
	}
	comp := []string{"b00", "b01", "b02", "b03"}

	var first []int
	for run := 0; run < 5; run++ {
		assign, err := hierarchicalAssign(n, comp, 3)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if first == nil {
			first = assign
			// The lowest head pair merges: b00 and b01 share a cluster.
			if assign[0] != assign[1] {
				t.Errorf("tie broke away from lowest pair: %v", assign)
			}
			continue
		}
		for i := range assign {
			if assign[i] != first[i] {
				t.Fatalf("run %d diverged at bus %d: %v vs %v", run, i, assign, first)
			}
		}
	}
}

func TestHierarchicalAssign_ClustersStayContiguous(t *testing.T) {
	n := chainNetwork(8)
	comp := sortedComponent(n)

	assign, err := hierarchicalAssign(n, comp, 3)
	if err != nil {
		t.Fatalf("hierarchicalAssign: %v", err)
	}
	// On a chain with uniform reactance, contiguity means every cluster is a
	// run of consecutive positions.
	seen := map[int]int{} // cluster -> last position
	for i, c := range assign {
		if last, ok := seen[c]; ok && last != i-1 {
			t.Errorf("cluster %d not contiguous at position %d: %v", c, i, assign)
		}
		seen[c] = i
	}
}

func TestHierarchicalAssign_IdentityWhenKCoversComponent(t *testing.T) {
	n := chainNetwork(3)
	comp := sortedComponent(n)

	assign, err := hierarchicalAssign(n, comp, 5)
	if err != nil {
		t.Fatalf("hierarchicalAssign: %v", err)
	}
	for i, c := range assign {
		if c != i {
			t.Errorf("bus %d assigned to %d, want identity", i, c)
		}
	}
}

func TestHierarchicalAssign_DisconnectedComponentFails(t *testing.T) {
	// Two buses with no branch between them cannot merge to one cluster.
	n := &grid.Network{
		Buses: []grid.Bus{
			{ID: "b00", VNom: 220, Carrier: grid.CarrierAC},
			{ID: "b01", VNom: 220, Carrier: grid.CarrierAC},
		},
	}
	_, err := hierarchicalAssign(n, []string{"b00", "b01"}, 1)
	if !errors.Is(err, grid.ErrDisconnectedNetwork) {
		t.Fatalf("got %v, want ErrDisconnectedNetwork", err)
	}
}

func TestHierarchicalAssign_InfiniteDistanceEdgeStillMerges(t *testing.T) {
	// An edge whose distance is +Inf is still an edge: the pair merges
	// rather than tripping the disconnected-network error (or worse).
	n := &grid.Network{
		Buses: []grid.Bus{
			{ID: "b00", VNom: 220, Carrier: grid.CarrierAC},
			{ID: "b01", VNom: 220, Carrier: grid.CarrierAC},
		},
		Lines: []grid.Line{
			{ID: "far", Bus0: "b00", Bus1: "b01", X: math.Inf(1), SNom: 100, SMaxPu: 1},
		},
	}

	assign, err := hierarchicalAssign(n, []string{"b00", "b01"}, 1)
	if err != nil {
		t.Fatalf("hierarchicalAssign: %v", err)
	}
	if assign[0] != assign[1] {
		t.Errorf("pair not merged: %v", assign)
	}
}
