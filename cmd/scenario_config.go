package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// LoadScenarioConfig reads and validates a YAML scenario document.
// Unrecognized keys are ignored for forward compatibility; recognized keys
// with out-of-range values fail here, before any clustering or solving.
func LoadScenarioConfig(path string) (*grid.ScenarioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario config: %w", err)
	}
	cfg := DefaultScenarioConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing scenario config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultScenarioConfig returns the baseline scenario every YAML document
// overlays: a single-shot solve with conservative electrical defaults.
func DefaultScenarioConfig() *grid.ScenarioConfig {
	return &grid.ScenarioConfig{
		Snapshots: grid.SnapshotsConfig{StepHours: 1},
		Clustering: grid.ClusteringConfig{
			Algorithm: "kmeans",
			Feature:   "cf-solar+wind",
			Weighting: "uniform",
		},
		Solving: grid.SolvingConfig{
			Backend:          "simplex",
			MinIterations:    1,
			MaxIterations:    6,
			Tolerance:        1e-2,
			ClipPMaxPu:       1e-2,
			LoadSheddingCost: 1e5,
			Seed:             42,
		},
		Lines: grid.LinesConfig{
			SMaxPu:            0.7,
			LengthFactor:      1.25,
			UnderConstruction: grid.UnderConstructionZero,
		},
		Links: grid.LinksConfig{
			PMaxPu:            1.0,
			UnderConstruction: grid.UnderConstructionZero,
		},
	}
}
