package grid

import (
	"fmt"
	"time"
)

// ScenarioConfig is the structured scenario document consumed by both the
// topology reducer and the iterative solver. Unrecognized YAML keys are
// ignored for forward compatibility; recognized keys with out-of-range values
// fail Validate before any clustering or solving begins.
type ScenarioConfig struct {
	Scenario   ScenarioMeta     `yaml:"scenario"`
	Snapshots  SnapshotsConfig  `yaml:"snapshots"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Solving    SolvingConfig    `yaml:"solving"`
	Lines      LinesConfig      `yaml:"lines"`
	Links      LinksConfig      `yaml:"links"`
}

// ScenarioMeta identifies a scenario run.
type ScenarioMeta struct {
	ID string `yaml:"id"`
}

// SnapshotsConfig declares the half-open time window and step.
type SnapshotsConfig struct {
	Start     time.Time `yaml:"start"`
	End       time.Time `yaml:"end"`
	StepHours float64   `yaml:"step_hours"`
}

// Build converts the declared window into a Snapshots sequence.
func (c SnapshotsConfig) Build() (Snapshots, error) {
	step := time.Duration(c.StepHours * float64(time.Hour))
	return NewSnapshots(c.Start, c.End, step)
}

// ClusteringConfig declares the topology-reduction stage.
type ClusteringConfig struct {
	Clusters                 int               `yaml:"clusters"`
	Algorithm                string            `yaml:"algorithm"` // "kmeans" or "hierarchical"
	Feature                  string            `yaml:"feature"`
	Weighting                string            `yaml:"weighting"` // "uniform" or "load"
	ExcludeCarriers          []string          `yaml:"exclude_carriers"`
	RemoveStubs              bool              `yaml:"remove_stubs"`
	RemoveStubsAcrossBorders bool              `yaml:"remove_stubs_across_borders"`
	IsolatedBuses            IsolatedBusConfig `yaml:"isolated_buses"`
	AggregationStrategies    map[string]string `yaml:"aggregation_strategies"`
	MaxKmeansIterations      int               `yaml:"max_kmeans_iterations"`
}

// IsolatedBusConfig declares thresholds for small disconnected components.
// Buses with mean injected power below DropThresholdMW are dropped; buses at
// or above it but below MergeThresholdMW are merged onto one synthetic bus.
type IsolatedBusConfig struct {
	DropThresholdMW  float64 `yaml:"drop_threshold_mw"`
	MergeThresholdMW float64 `yaml:"merge_threshold_mw"`
}

// SolvingConfig declares the iterative solve loop.
type SolvingConfig struct {
	Backend          string  `yaml:"backend"` // "simplex" (default)
	MinIterations    int     `yaml:"min_iterations"`
	MaxIterations    int     `yaml:"max_iterations"`
	Tolerance        float64 `yaml:"tolerance"`
	ClipPMaxPu       float64 `yaml:"clip_p_max_pu"`
	LoadShedding     bool    `yaml:"load_shedding"`
	LoadSheddingCost float64 `yaml:"load_shedding_cost"` // per MWh unmet; default 1e5
	NoisyCosts       bool    `yaml:"noisy_costs"`
	Seed             int64   `yaml:"seed"`
	SkipIterations   bool    `yaml:"skip_iterations"`
	TrackIterations  bool    `yaml:"track_iterations"`
}

// LinesConfig declares electrical defaults for AC lines.
type LinesConfig struct {
	// Types maps nominal voltage (kV) to a conductor type name.
	Types             map[float64]string      `yaml:"types"`
	SMaxPu            float64                 `yaml:"s_max_pu"`
	LengthFactor      float64                 `yaml:"length_factor"`
	UnderConstruction UnderConstructionPolicy `yaml:"under_construction"`
}

// LinksConfig declares defaults for controllable links.
type LinksConfig struct {
	PMaxPu            float64                 `yaml:"p_max_pu"`
	UnderConstruction UnderConstructionPolicy `yaml:"under_construction"`
}

// knownAlgorithms, knownFeatures and knownStrategies gate the recognized
// option values.
var (
	knownAlgorithms = map[string]bool{"": true, "kmeans": true, "hierarchical": true}
	knownFeatures   = map[string]bool{
		"": true, "cf-solar+wind": true, "cf-solar": true, "cf-wind": true, "geographic": true,
	}
	knownWeightings = map[string]bool{"": true, "uniform": true, "load": true}
	knownStrategies = map[string]bool{"sum": true, "mean": true, "max": true, "any": true, "first": true}
	knownPolicies   = map[UnderConstructionPolicy]bool{
		"": true, UnderConstructionZero: true, UnderConstructionRemove: true, UnderConstructionKeep: true,
	}
)

// Validate checks every recognized option for range errors.
func (c *ScenarioConfig) Validate() error {
	if c.Snapshots.StepHours <= 0 {
		return fmt.Errorf("snapshots.step_hours must be positive, got %f", c.Snapshots.StepHours)
	}
	if !c.Snapshots.End.After(c.Snapshots.Start) {
		return fmt.Errorf("snapshots window [%v, %v) is empty", c.Snapshots.Start, c.Snapshots.End)
	}
	if err := c.Clustering.Validate(); err != nil {
		return err
	}
	if err := c.Solving.Validate(); err != nil {
		return err
	}
	if err := c.Lines.Validate(); err != nil {
		return err
	}
	if !knownPolicies[c.Links.UnderConstruction] {
		return fmt.Errorf("links.under_construction: unknown policy %q", c.Links.UnderConstruction)
	}
	return nil
}

// Validate checks the clustering options.
func (c *ClusteringConfig) Validate() error {
	if c.Clusters < 0 {
		return fmt.Errorf("clustering.clusters must be non-negative, got %d", c.Clusters)
	}
	if !knownAlgorithms[c.Algorithm] {
		return fmt.Errorf("clustering.algorithm: unknown algorithm %q", c.Algorithm)
	}
	if !knownFeatures[c.Feature] {
		return fmt.Errorf("clustering.feature: unknown feature %q", c.Feature)
	}
	if !knownWeightings[c.Weighting] {
		return fmt.Errorf("clustering.weighting: unknown weighting %q", c.Weighting)
	}
	for attr, strategy := range c.AggregationStrategies {
		if !knownStrategies[strategy] {
			return fmt.Errorf("clustering.aggregation_strategies.%s: unknown strategy %q", attr, strategy)
		}
	}
	if c.IsolatedBuses.MergeThresholdMW < c.IsolatedBuses.DropThresholdMW {
		return fmt.Errorf("clustering.isolated_buses: merge threshold %f below drop threshold %f",
			c.IsolatedBuses.MergeThresholdMW, c.IsolatedBuses.DropThresholdMW)
	}
	if c.MaxKmeansIterations < 0 {
		return fmt.Errorf("clustering.max_kmeans_iterations must be non-negative, got %d", c.MaxKmeansIterations)
	}
	return nil
}

// Validate checks the solve-loop options.
func (c *SolvingConfig) Validate() error {
	if c.MinIterations < 0 {
		return fmt.Errorf("solving.min_iterations must be non-negative, got %d", c.MinIterations)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("solving.max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.MinIterations > c.MaxIterations {
		return fmt.Errorf("solving.min_iterations %d exceeds max_iterations %d", c.MinIterations, c.MaxIterations)
	}
	if c.ClipPMaxPu < 0 || c.ClipPMaxPu >= 1 {
		return fmt.Errorf("solving.clip_p_max_pu must be in [0, 1), got %f", c.ClipPMaxPu)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("solving.tolerance must be non-negative, got %f", c.Tolerance)
	}
	if c.LoadSheddingCost < 0 {
		return fmt.Errorf("solving.load_shedding_cost must be non-negative, got %f", c.LoadSheddingCost)
	}
	return nil
}

// Validate checks the line defaults.
func (c *LinesConfig) Validate() error {
	if c.SMaxPu < 0 || c.SMaxPu > 1 {
		return fmt.Errorf("lines.s_max_pu must be in [0, 1], got %f", c.SMaxPu)
	}
	if c.LengthFactor < 0 {
		return fmt.Errorf("lines.length_factor must be non-negative, got %f", c.LengthFactor)
	}
	for vnom, name := range c.Types {
		if _, ok := LineTypes[name]; !ok {
			return fmt.Errorf("lines.types.%g: unknown conductor type %q", vnom, name)
		}
	}
	if !knownPolicies[c.UnderConstruction] {
		return fmt.Errorf("lines.under_construction: unknown policy %q", c.UnderConstruction)
	}
	return nil
}
