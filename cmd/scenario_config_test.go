package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

func writeScenario(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadScenarioConfig_OverlaysDefaults(t *testing.T) {
	path := writeScenario(t, `
scenario:
  id: ng-2030
snapshots:
  start: 2030-01-01T00:00:00Z
  end: 2030-01-02T00:00:00Z
clustering:
  clusters: 10
  algorithm: hierarchical
solving:
  max_iterations: 4
  noisy_costs: true
`)
	cfg, err := LoadScenarioConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ng-2030", cfg.Scenario.ID)
	assert.Equal(t, 10, cfg.Clustering.Clusters)
	assert.Equal(t, "hierarchical", cfg.Clustering.Algorithm)
	assert.Equal(t, 4, cfg.Solving.MaxIterations)
	assert.True(t, cfg.Solving.NoisyCosts)

	// Untouched keys keep their defaults.
	assert.Equal(t, 1.0, cfg.Snapshots.StepHours)
	assert.Equal(t, "cf-solar+wind", cfg.Clustering.Feature)
	assert.Equal(t, "simplex", cfg.Solving.Backend)
	assert.Equal(t, int64(42), cfg.Solving.Seed)
	assert.Equal(t, 0.7, cfg.Lines.SMaxPu)
	assert.Equal(t, grid.UnderConstructionZero, cfg.Lines.UnderConstruction)
}

func TestLoadScenarioConfig_IgnoresUnknownKeys(t *testing.T) {
	path := writeScenario(t, `
snapshots:
  start: 2030-01-01T00:00:00Z
  end: 2030-01-01T06:00:00Z
future_section:
  anything: goes
`)
	_, err := LoadScenarioConfig(path)
	assert.NoError(t, err)
}

func TestLoadScenarioConfig_RejectsOutOfRangeValues(t *testing.T) {
	path := writeScenario(t, `
snapshots:
  start: 2030-01-01T00:00:00Z
  end: 2030-01-02T00:00:00Z
solving:
  clip_p_max_pu: 1.5
`)
	_, err := LoadScenarioConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clip_p_max_pu")
}

func TestLoadScenarioConfig_RejectsMalformedYAML(t *testing.T) {
	path := writeScenario(t, "solving: [not a mapping")
	_, err := LoadScenarioConfig(path)
	assert.Error(t, err)
}

func TestLoadScenarioConfig_MissingFile(t *testing.T) {
	_, err := LoadScenarioConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefaultScenarioConfig_IsInvalidWithoutWindow(t *testing.T) {
	// The baseline alone declares no snapshot window; a document must supply
	// one.
	err := DefaultScenarioConfig().Validate()
	assert.Error(t, err)
}
