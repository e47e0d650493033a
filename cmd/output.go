package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/gridflow-sim/gridflow-sim/grid/lopf"
	"github.com/gridflow-sim/gridflow-sim/grid/trace"
)

// writeSolution persists a solver result as CSV tables: per-snapshot series
// for dispatch, flows and shed demand, plus a one-row summary and, when
// tracing was enabled, the per-iteration convergence trace.
func writeSolution(dir string, sol *lopf.Solution, tr *trace.SolveTrace) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeSeries(filepath.Join(dir, "dispatch.csv"), sol.Dispatch); err != nil {
		return err
	}
	if err := writeSeries(filepath.Join(dir, "flows.csv"), mergeSeries(sol.BranchFlow, sol.LinkFlow)); err != nil {
		return err
	}
	if err := writeSeries(filepath.Join(dir, "shed.csv"), sol.Shed); err != nil {
		return err
	}
	if err := writeSeries(filepath.Join(dir, "state_of_charge.csv"), sol.StateOfCharge); err != nil {
		return err
	}

	summary := [][]string{
		{"run_id", "status", "iterations", "objective", "shed_mwh"},
		{tr.RunID, string(sol.Status), strconv.Itoa(sol.Iterations),
			fmtFloat(sol.Objective), fmtFloat(sol.ShedTotalMWh)},
	}
	if err := writeCSV(filepath.Join(dir, "summary.csv"), summary); err != nil {
		return err
	}

	caps := [][]string{{"component", "capacity_added"}}
	ids := make([]string, 0, len(sol.CapacityAdditions))
	for id := range sol.CapacityAdditions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		caps = append(caps, []string{id, fmtFloat(sol.CapacityAdditions[id])})
	}
	if err := writeCSV(filepath.Join(dir, "capacity_additions.csv"), caps); err != nil {
		return err
	}

	if tr.Enabled() {
		rows := [][]string{{"iteration", "objective", "max_delta", "shed_mwh"}}
		for _, rec := range tr.Iterations {
			rows = append(rows, []string{
				strconv.Itoa(rec.Index), fmtFloat(rec.Objective),
				fmtFloat(rec.MaxDelta), fmtFloat(rec.ShedMWh),
			})
		}
		if err := writeCSV(filepath.Join(dir, "iterations.csv"), rows); err != nil {
			return err
		}
	}
	return nil
}

// writeBusMapping persists the original-to-cluster bus mapping.
func writeBusMapping(path string, mapping map[string]string) error {
	rows := [][]string{{"bus", "cluster_bus"}}
	ids := make([]string, 0, len(mapping))
	for id := range mapping {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rows = append(rows, []string{id, mapping[id]})
	}
	return writeCSV(path, rows)
}

// writeSeries writes a wide per-snapshot table, columns sorted by ID.
func writeSeries(path string, series map[string][]float64) error {
	if len(series) == 0 {
		return nil
	}
	ids := make([]string, 0, len(series))
	T := 0
	for id, s := range series {
		ids = append(ids, id)
		if len(s) > T {
			T = len(s)
		}
	}
	sort.Strings(ids)
	rows := [][]string{append([]string{"snapshot"}, ids...)}
	for t := 0; t < T; t++ {
		row := []string{strconv.Itoa(t)}
		for _, id := range ids {
			s := series[id]
			if t < len(s) {
				row = append(row, fmtFloat(s[t]))
			} else {
				row = append(row, "0")
			}
		}
		rows = append(rows, row)
	}
	return writeCSV(path, rows)
}

func mergeSeries(a, b map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(a)+len(b))
	for id, s := range a {
		out[id] = s
	}
	for id, s := range b {
		out[id] = s
	}
	return out
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		file.Close() //nolint:errcheck
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
