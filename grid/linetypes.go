package grid

import (
	"fmt"
	"math"
)

// LineType describes a standard overhead conductor.
// INomKA is the nominal current in kA, RPerKm/XPerKm in ohm per km.
type LineType struct {
	Name   string
	INomKA float64
	RPerKm float64
	XPerKm float64
	CPerKm float64 // shunt capacitance, nF per km (unused by the linear model)
}

// LineTypes is the standard conductor catalogue, keyed by type name.
// Values follow the pandapower standard type register.
var LineTypes = map[string]LineType{
	"Al/St 240/40 2-bundle 220.0": {
		Name: "Al/St 240/40 2-bundle 220.0", INomKA: 1.29, RPerKm: 0.06, XPerKm: 0.301, CPerKm: 12.5,
	},
	"Al/St 240/40 3-bundle 300.0": {
		Name: "Al/St 240/40 3-bundle 300.0", INomKA: 1.935, RPerKm: 0.04, XPerKm: 0.265, CPerKm: 13.2,
	},
	"Al/St 240/40 4-bundle 380.0": {
		Name: "Al/St 240/40 4-bundle 380.0", INomKA: 2.58, RPerKm: 0.03, XPerKm: 0.246, CPerKm: 13.8,
	},
	"Al/St 560/50 4-bundle 750.0": {
		Name: "Al/St 560/50 4-bundle 750.0", INomKA: 4.14, RPerKm: 0.0175, XPerKm: 0.235, CPerKm: 14.4,
	},
}

// ApplyLineDefaults assigns conductor types by voltage level and derives the
// electrical parameters of every typed line:
//
//	s_nom = sqrt(3) * i_nom * v_nom * num_parallel
//	r, x  = per-km values * length * lengthFactor / num_parallel
//
// typesByVoltage maps nominal voltage in kV to a conductor type name. Lines
// whose voltage has no entry keep their explicit parameters. sMaxPu is applied
// to every line.
func (n *Network) ApplyLineDefaults(typesByVoltage map[float64]string, sMaxPu, lengthFactor float64) error {
	busIdx := n.BusIndex()
	for i := range n.Lines {
		l := &n.Lines[i]
		l.SMaxPu = sMaxPu
		vnom := n.Buses[busIdx[l.Bus0]].VNom
		typeName, ok := typesByVoltage[vnom]
		if !ok && l.Type == "" {
			continue
		}
		if ok {
			l.Type = typeName
		}
		lt, ok := LineTypes[l.Type]
		if !ok {
			return fmt.Errorf("line %s: unknown conductor type %q", l.ID, l.Type)
		}
		np := l.NumParallel
		if np <= 0 {
			np = 1
		}
		length := l.LengthKm * lengthFactor
		l.SNom = math.Sqrt(3) * lt.INomKA * vnom * np
		l.R = lt.RPerKm * length / np
		l.X = lt.XPerKm * length / np
	}
	return nil
}
