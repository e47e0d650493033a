package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gridflow-sim/gridflow-sim/grid"
	"github.com/gridflow-sim/gridflow-sim/grid/cluster"
	"github.com/gridflow-sim/gridflow-sim/grid/lopf"
)

var (
	scenarioPath string // Path to the YAML scenario document
	networkDir   string // Directory holding the CSV network dataset
	outputDir    string // Directory for solution and trace output
	logLevel     string // Log verbosity level
	clusterSweep []int  // Cluster counts for a parallel scenario sweep
	sweepWorkers int    // Concurrent scenario runs in a sweep
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "gridflow",
	Short: "Network clustering and iterative linear optimal power flow",
}

// runCmd clusters (when configured) and solves one or more scenarios.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the clustering and solve pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		setUpLogging()
		cfg, n, snaps := loadInputs()

		counts := clusterSweep
		if len(counts) == 0 {
			counts = []int{cfg.Clustering.Clusters}
		}

		startTime := time.Now()
		// Independent scenario runs share no mutable state; sweep them on a
		// bounded worker pool.
		var wg sync.WaitGroup
		sem := make(chan struct{}, sweepWorkers)
		failed := make([]error, len(counts))
		for i, k := range counts {
			wg.Add(1)
			sem <- struct{}{}
			go func(i, k int) {
				defer wg.Done()
				defer func() { <-sem }()
				failed[i] = runScenario(cfg, n.Copy(), snaps, k)
			}(i, k)
		}
		wg.Wait()
		for _, err := range failed {
			if err != nil {
				logrus.Fatalf("scenario run failed: %v", err)
			}
		}
		logrus.Infof("completed %d scenario run(s) in %v", len(counts), time.Since(startTime))
	},
}

// clusterCmd runs the topology reducer only.
var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Reduce the network topology without solving",
	Run: func(cmd *cobra.Command, args []string) {
		setUpLogging()
		cfg, n, snaps := loadInputs()

		reduced, mapping, err := cluster.Reduce(n, snaps, clusterOptions(cfg))
		if err != nil {
			logrus.Fatalf("clustering failed: %v", err)
		}
		dir := filepath.Join(outputDir, "clustered")
		if err := grid.WriteNetworkDir(reduced, dir); err != nil {
			logrus.Fatalf("writing reduced network: %v", err)
		}
		if err := writeBusMapping(filepath.Join(dir, "busmap.csv"), mapping); err != nil {
			logrus.Fatalf("writing bus mapping: %v", err)
		}
		logrus.Infof("wrote reduced network with %d buses to %s", len(reduced.Buses), dir)
	},
}

// loadInputs loads the scenario config and the network dataset, and applies
// the electrical defaults and under-construction policies.
func loadInputs() (*grid.ScenarioConfig, *grid.Network, grid.Snapshots) {
	cfg, err := LoadScenarioConfig(scenarioPath)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	n, err := grid.ReadNetworkDir(networkDir)
	if err != nil {
		logrus.Fatalf("loading network: %v", err)
	}
	if err := n.ApplyLineDefaults(cfg.Lines.Types, cfg.Lines.SMaxPu, cfg.Lines.LengthFactor); err != nil {
		logrus.Fatalf("applying line defaults: %v", err)
	}
	for i := range n.Links {
		n.Links[i].PMaxPu = cfg.Links.PMaxPu
	}
	n.ApplyUnderConstructionPolicy(cfg.Lines.UnderConstruction, cfg.Links.UnderConstruction)

	snaps, err := cfg.Snapshots.Build()
	if err != nil {
		logrus.Fatalf("building snapshots: %v", err)
	}
	logrus.Infof("loaded network: %d buses, %d lines, %d links, %d generators over %d snapshots",
		len(n.Buses), len(n.Lines), len(n.Links), len(n.Generators), snaps.Len())
	return cfg, n, snaps
}

// runScenario executes one reduce-and-solve pipeline for a cluster count.
// k = 0 solves the unreduced network.
func runScenario(cfg *grid.ScenarioConfig, n *grid.Network, snaps grid.Snapshots, k int) error {
	label := "full"
	var mapping cluster.BusMapping
	if k > 0 {
		opts := clusterOptions(cfg)
		opts.TargetClusters = k
		var err error
		n, mapping, err = cluster.Reduce(n, snaps, opts)
		if err != nil {
			return fmt.Errorf("clustering to %d: %w", k, err)
		}
		label = fmt.Sprintf("k%d", k)
	}

	sol, tr, err := lopf.Solve(n, snaps, lopf.OptionsFromConfig(cfg.Solving))
	if err != nil {
		return fmt.Errorf("solving %s: %w", label, err)
	}
	logrus.Infof("%s: %s after %d iteration(s), objective %.4f",
		label, sol.Status, sol.Iterations, sol.Objective)

	dir := filepath.Join(outputDir, label)
	if err := writeSolution(dir, sol, tr); err != nil {
		return fmt.Errorf("writing solution %s: %w", label, err)
	}
	if mapping != nil {
		if err := writeBusMapping(filepath.Join(dir, "busmap.csv"), mapping); err != nil {
			return err
		}
	}
	return nil
}

// clusterOptions maps the scenario clustering section onto reducer options,
// overlaying the declared aggregation strategies on the standard table.
func clusterOptions(cfg *grid.ScenarioConfig) cluster.Options {
	strategies := cluster.DefaultStrategies()
	for attr, s := range cfg.Clustering.AggregationStrategies {
		strategies[attr] = cluster.Strategy(s)
	}
	return cluster.Options{
		TargetClusters:           cfg.Clustering.Clusters,
		Algorithm:                cluster.Algorithm(cfg.Clustering.Algorithm),
		Feature:                  cluster.Feature(cfg.Clustering.Feature),
		Weighting:                cfg.Clustering.Weighting,
		ExcludeCarriers:          cfg.Clustering.ExcludeCarriers,
		Strategies:               strategies,
		RemoveStubs:              cfg.Clustering.RemoveStubs,
		RemoveStubsAcrossBorders: cfg.Clustering.RemoveStubsAcrossBorders,
		IsolatedBuses:            cfg.Clustering.IsolatedBuses,
		Seed:                     cfg.Solving.Seed,
		MaxKmeansIterations:      cfg.Clustering.MaxKmeansIterations,
	}
}

func setUpLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, clusterCmd} {
		c.Flags().StringVar(&scenarioPath, "scenario", "scenario.yaml", "Path to the YAML scenario document")
		c.Flags().StringVar(&networkDir, "network", "network", "Directory holding the CSV network dataset")
		c.Flags().StringVar(&outputDir, "output", "results", "Directory for solution and trace output")
		c.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	}
	runCmd.Flags().IntSliceVar(&clusterSweep, "clusters", nil, "Cluster counts to sweep (overrides the scenario value)")
	runCmd.Flags().IntVar(&sweepWorkers, "workers", 4, "Concurrent scenario runs in a sweep")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(clusterCmd)
}
