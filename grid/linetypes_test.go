package grid

import (
	"math"
	"testing"
)

func TestApplyLineDefaults_DerivesElectricalParameters(t *testing.T) {
	n := &Network{
		Buses: []Bus{
			{ID: "a", VNom: 220, Carrier: CarrierAC},
			{ID: "b", VNom: 220, Carrier: CarrierAC},
		},
		Lines: []Line{
			{ID: "l1", Bus0: "a", Bus1: "b", LengthKm: 100, NumParallel: 2},
		},
	}
	types := map[float64]string{220: "Al/St 240/40 2-bundle 220.0"}

	if err := n.ApplyLineDefaults(types, 0.7, 1.25); err != nil {
		t.Fatalf("ApplyLineDefaults: %v", err)
	}

	l := n.Lines[0]
	lt := LineTypes["Al/St 240/40 2-bundle 220.0"]

	wantSNom := math.Sqrt(3) * lt.INomKA * 220 * 2
	if math.Abs(l.SNom-wantSNom) > 1e-9 {
		t.Errorf("SNom = %f, want %f", l.SNom, wantSNom)
	}
	wantX := lt.XPerKm * 100 * 1.25 / 2
	if math.Abs(l.X-wantX) > 1e-9 {
		t.Errorf("X = %f, want %f", l.X, wantX)
	}
	wantR := lt.RPerKm * 100 * 1.25 / 2
	if math.Abs(l.R-wantR) > 1e-9 {
		t.Errorf("R = %f, want %f", l.R, wantR)
	}
	if l.SMaxPu != 0.7 {
		t.Errorf("SMaxPu = %f, want 0.7", l.SMaxPu)
	}
	if l.Type != "Al/St 240/40 2-bundle 220.0" {
		t.Errorf("Type = %q, want assigned conductor type", l.Type)
	}
}

func TestApplyLineDefaults_UntypedVoltageKeepsParameters(t *testing.T) {
	n := &Network{
		Buses: []Bus{
			{ID: "a", VNom: 110, Carrier: CarrierAC},
			{ID: "b", VNom: 110, Carrier: CarrierAC},
		},
		Lines: []Line{
			{ID: "l1", Bus0: "a", Bus1: "b", LengthKm: 10, R: 0.5, X: 1.5, SNom: 80},
		},
	}
	if err := n.ApplyLineDefaults(map[float64]string{220: "Al/St 240/40 2-bundle 220.0"}, 0.7, 1.25); err != nil {
		t.Fatalf("ApplyLineDefaults: %v", err)
	}
	l := n.Lines[0]
	if l.SNom != 80 || l.X != 1.5 || l.R != 0.5 {
		t.Errorf("explicit parameters overwritten: %+v", l)
	}
	if l.SMaxPu != 0.7 {
		t.Errorf("SMaxPu = %f, want 0.7 applied to every line", l.SMaxPu)
	}
}

func TestApplyLineDefaults_UnknownType(t *testing.T) {
	n := &Network{
		Buses: []Bus{
			{ID: "a", VNom: 220, Carrier: CarrierAC},
			{ID: "b", VNom: 220, Carrier: CarrierAC},
		},
		Lines: []Line{{ID: "l1", Bus0: "a", Bus1: "b", LengthKm: 10}},
	}
	if err := n.ApplyLineDefaults(map[float64]string{220: "no such conductor"}, 0.7, 1.0); err == nil {
		t.Error("unknown conductor type accepted, want error")
	}
}
