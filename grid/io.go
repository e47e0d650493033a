package grid

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// The network dataset is a directory of CSV tables, one per component type,
// plus wide per-snapshot profile tables keyed by component ID.
const (
	busesFile        = "buses.csv"
	linesFile        = "lines.csv"
	linksFile        = "links.csv"
	transformersFile = "transformers.csv"
	generatorsFile   = "generators.csv"
	storageFile      = "storage_units.csv"
	loadsFile        = "loads.csv"
	genProfileFile   = "generators-p_max_pu.csv"
	loadProfileFile  = "loads-p_set.csv"
	inflowFile       = "storage_units-inflow.csv"
)

// ReadNetworkDir loads a network dataset from dir. Component tables other
// than buses.csv are optional; profile tables are optional.
func ReadNetworkDir(dir string) (*Network, error) {
	n := &Network{}

	rows, header, err := readTable(filepath.Join(dir, busesFile))
	if err != nil {
		return nil, err
	}
	for i, rec := range rows {
		row := namedRow{header, rec, busesFile, i}
		b := Bus{
			ID:      row.str("id"),
			Country: row.str("country"),
			Carrier: row.strDefault("carrier", CarrierAC),
		}
		if b.VNom, err = row.float("v_nom"); err != nil {
			return nil, err
		}
		if b.X, err = row.floatDefault("x", 0); err != nil {
			return nil, err
		}
		if b.Y, err = row.floatDefault("y", 0); err != nil {
			return nil, err
		}
		if b.UnderConstruction, err = row.boolDefault("under_construction"); err != nil {
			return nil, err
		}
		n.Buses = append(n.Buses, b)
	}

	if rows, header, err = readOptionalTable(filepath.Join(dir, linesFile)); err != nil {
		return nil, err
	}
	for i, rec := range rows {
		row := namedRow{header, rec, linesFile, i}
		l := Line{
			ID:   row.str("id"),
			Bus0: row.str("bus0"),
			Bus1: row.str("bus1"),
			Type: row.str("type"),
		}
		if l.LengthKm, err = row.floatDefault("length_km", 0); err != nil {
			return nil, err
		}
		if l.R, err = row.floatDefault("r", 0); err != nil {
			return nil, err
		}
		if l.X, err = row.floatDefault("x", 0); err != nil {
			return nil, err
		}
		if l.SNom, err = row.floatDefault("s_nom", 0); err != nil {
			return nil, err
		}
		if l.SMaxPu, err = row.floatDefault("s_max_pu", 1); err != nil {
			return nil, err
		}
		if l.NumParallel, err = row.floatDefault("num_parallel", 1); err != nil {
			return nil, err
		}
		if l.SNomExtendable, err = row.boolDefault("s_nom_extendable"); err != nil {
			return nil, err
		}
		if l.SNomMax, err = row.floatDefault("s_nom_max", 0); err != nil {
			return nil, err
		}
		if l.CapitalCost, err = row.floatDefault("capital_cost", 0); err != nil {
			return nil, err
		}
		if l.UnderConstruction, err = row.boolDefault("under_construction"); err != nil {
			return nil, err
		}
		if l.Underground, err = row.boolDefault("underground"); err != nil {
			return nil, err
		}
		n.Lines = append(n.Lines, l)
	}

	if rows, header, err = readOptionalTable(filepath.Join(dir, linksFile)); err != nil {
		return nil, err
	}
	for i, rec := range rows {
		row := namedRow{header, rec, linksFile, i}
		k := Link{
			ID:   row.str("id"),
			Bus0: row.str("bus0"),
			Bus1: row.str("bus1"),
		}
		if k.LengthKm, err = row.floatDefault("length_km", 0); err != nil {
			return nil, err
		}
		if k.PNom, err = row.floatDefault("p_nom", 0); err != nil {
			return nil, err
		}
		if k.PMaxPu, err = row.floatDefault("p_max_pu", 1); err != nil {
			return nil, err
		}
		if k.PMinPu, err = row.floatDefault("p_min_pu", 0); err != nil {
			return nil, err
		}
		if k.Efficiency, err = row.floatDefault("efficiency", 1); err != nil {
			return nil, err
		}
		if k.MarginalCost, err = row.floatDefault("marginal_cost", 0); err != nil {
			return nil, err
		}
		if k.PNomExtendable, err = row.boolDefault("p_nom_extendable"); err != nil {
			return nil, err
		}
		if k.PNomMax, err = row.floatDefault("p_nom_max", 0); err != nil {
			return nil, err
		}
		if k.CapitalCost, err = row.floatDefault("capital_cost", 0); err != nil {
			return nil, err
		}
		if k.UnderConstruction, err = row.boolDefault("under_construction"); err != nil {
			return nil, err
		}
		n.Links = append(n.Links, k)
	}

	if rows, header, err = readOptionalTable(filepath.Join(dir, transformersFile)); err != nil {
		return nil, err
	}
	for i, rec := range rows {
		row := namedRow{header, rec, transformersFile, i}
		tr := Transformer{
			ID:   row.str("id"),
			Bus0: row.str("bus0"),
			Bus1: row.str("bus1"),
			Type: row.str("type"),
		}
		if tr.X, err = row.floatDefault("x", 0.1); err != nil {
			return nil, err
		}
		if tr.SNom, err = row.floatDefault("s_nom", 2000); err != nil {
			return nil, err
		}
		n.Transformers = append(n.Transformers, tr)
	}

	if rows, header, err = readOptionalTable(filepath.Join(dir, generatorsFile)); err != nil {
		return nil, err
	}
	for i, rec := range rows {
		row := namedRow{header, rec, generatorsFile, i}
		g := Generator{
			ID:      row.str("id"),
			Bus:     row.str("bus"),
			Carrier: row.str("carrier"),
		}
		if g.PNom, err = row.floatDefault("p_nom", 0); err != nil {
			return nil, err
		}
		if g.PNomExtendable, err = row.boolDefault("p_nom_extendable"); err != nil {
			return nil, err
		}
		if g.PNomMax, err = row.floatDefault("p_nom_max", 0); err != nil {
			return nil, err
		}
		if g.MarginalCost, err = row.floatDefault("marginal_cost", 0); err != nil {
			return nil, err
		}
		if g.CapitalCost, err = row.floatDefault("capital_cost", 0); err != nil {
			return nil, err
		}
		if g.Efficiency, err = row.floatDefault("efficiency", 1); err != nil {
			return nil, err
		}
		if g.RampLimitUp, err = row.floatDefault("ramp_limit_up", 0); err != nil {
			return nil, err
		}
		if g.RampLimitDown, err = row.floatDefault("ramp_limit_down", 0); err != nil {
			return nil, err
		}
		if g.Committable, err = row.boolDefault("committable"); err != nil {
			return nil, err
		}
		n.Generators = append(n.Generators, g)
	}

	if rows, header, err = readOptionalTable(filepath.Join(dir, storageFile)); err != nil {
		return nil, err
	}
	for i, rec := range rows {
		row := namedRow{header, rec, storageFile, i}
		s := StorageUnit{
			ID:      row.str("id"),
			Bus:     row.str("bus"),
			Carrier: row.str("carrier"),
		}
		if s.PNom, err = row.floatDefault("p_nom", 0); err != nil {
			return nil, err
		}
		if s.MaxHours, err = row.floatDefault("max_hours", 6); err != nil {
			return nil, err
		}
		if s.EfficiencyStore, err = row.floatDefault("efficiency_store", 1); err != nil {
			return nil, err
		}
		if s.EfficiencyDispatch, err = row.floatDefault("efficiency_dispatch", 1); err != nil {
			return nil, err
		}
		if s.MarginalCost, err = row.floatDefault("marginal_cost", 0); err != nil {
			return nil, err
		}
		if s.CapitalCost, err = row.floatDefault("capital_cost", 0); err != nil {
			return nil, err
		}
		if s.CyclicSOC, err = row.boolDefault("cyclic_soc"); err != nil {
			return nil, err
		}
		n.StorageUnits = append(n.StorageUnits, s)
	}

	if rows, header, err = readOptionalTable(filepath.Join(dir, loadsFile)); err != nil {
		return nil, err
	}
	for i, rec := range rows {
		row := namedRow{header, rec, loadsFile, i}
		n.Loads = append(n.Loads, Load{ID: row.str("id"), Bus: row.str("bus")})
	}

	if err := readProfile(filepath.Join(dir, genProfileFile), func(id string, series []float64) {
		for i := range n.Generators {
			if n.Generators[i].ID == id {
				n.Generators[i].PMaxPu = series
			}
		}
	}); err != nil {
		return nil, err
	}
	if err := readProfile(filepath.Join(dir, loadProfileFile), func(id string, series []float64) {
		for i := range n.Loads {
			if n.Loads[i].ID == id {
				n.Loads[i].PSet = series
			}
		}
	}); err != nil {
		return nil, err
	}
	if err := readProfile(filepath.Join(dir, inflowFile), func(id string, series []float64) {
		for i := range n.StorageUnits {
			if n.StorageUnits[i].ID == id {
				n.StorageUnits[i].Inflow = series
			}
		}
	}); err != nil {
		return nil, err
	}

	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("network dataset %s: %w", dir, err)
	}
	return n, nil
}

// WriteNetworkDir persists the network as a CSV dataset directory.
func WriteNetworkDir(n *Network, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}

	busRows := [][]string{{"id", "v_nom", "x", "y", "country", "carrier", "under_construction"}}
	for _, b := range n.Buses {
		busRows = append(busRows, []string{
			b.ID, ftoa(b.VNom), ftoa(b.X), ftoa(b.Y), b.Country, b.Carrier, btoa(b.UnderConstruction),
		})
	}
	if err := writeTable(filepath.Join(dir, busesFile), busRows); err != nil {
		return err
	}

	lineRows := [][]string{{
		"id", "bus0", "bus1", "length_km", "r", "x", "s_nom", "s_max_pu", "num_parallel",
		"type", "s_nom_extendable", "s_nom_max", "capital_cost", "under_construction", "underground",
	}}
	for _, l := range n.Lines {
		lineRows = append(lineRows, []string{
			l.ID, l.Bus0, l.Bus1, ftoa(l.LengthKm), ftoa(l.R), ftoa(l.X), ftoa(l.SNom), ftoa(l.SMaxPu),
			ftoa(l.NumParallel), l.Type, btoa(l.SNomExtendable), ftoa(l.SNomMax), ftoa(l.CapitalCost),
			btoa(l.UnderConstruction), btoa(l.Underground),
		})
	}
	if err := writeTable(filepath.Join(dir, linesFile), lineRows); err != nil {
		return err
	}

	linkRows := [][]string{{
		"id", "bus0", "bus1", "length_km", "p_nom", "p_max_pu", "p_min_pu", "efficiency",
		"marginal_cost", "p_nom_extendable", "p_nom_max", "capital_cost", "under_construction",
	}}
	for _, k := range n.Links {
		linkRows = append(linkRows, []string{
			k.ID, k.Bus0, k.Bus1, ftoa(k.LengthKm), ftoa(k.PNom), ftoa(k.PMaxPu), ftoa(k.PMinPu),
			ftoa(k.Efficiency), ftoa(k.MarginalCost), btoa(k.PNomExtendable), ftoa(k.PNomMax),
			ftoa(k.CapitalCost), btoa(k.UnderConstruction),
		})
	}
	if err := writeTable(filepath.Join(dir, linksFile), linkRows); err != nil {
		return err
	}

	trRows := [][]string{{"id", "bus0", "bus1", "x", "s_nom", "type"}}
	for _, tr := range n.Transformers {
		trRows = append(trRows, []string{tr.ID, tr.Bus0, tr.Bus1, ftoa(tr.X), ftoa(tr.SNom), tr.Type})
	}
	if err := writeTable(filepath.Join(dir, transformersFile), trRows); err != nil {
		return err
	}

	genRows := [][]string{{
		"id", "bus", "carrier", "p_nom", "p_nom_extendable", "p_nom_max", "marginal_cost",
		"capital_cost", "efficiency", "ramp_limit_up", "ramp_limit_down", "committable",
	}}
	for _, g := range n.Generators {
		genRows = append(genRows, []string{
			g.ID, g.Bus, g.Carrier, ftoa(g.PNom), btoa(g.PNomExtendable), ftoa(g.PNomMax),
			ftoa(g.MarginalCost), ftoa(g.CapitalCost), ftoa(g.Efficiency),
			ftoa(g.RampLimitUp), ftoa(g.RampLimitDown), btoa(g.Committable),
		})
	}
	if err := writeTable(filepath.Join(dir, generatorsFile), genRows); err != nil {
		return err
	}

	stRows := [][]string{{
		"id", "bus", "carrier", "p_nom", "max_hours", "efficiency_store",
		"efficiency_dispatch", "marginal_cost", "capital_cost", "cyclic_soc",
	}}
	for _, s := range n.StorageUnits {
		stRows = append(stRows, []string{
			s.ID, s.Bus, s.Carrier, ftoa(s.PNom), ftoa(s.MaxHours), ftoa(s.EfficiencyStore),
			ftoa(s.EfficiencyDispatch), ftoa(s.MarginalCost), ftoa(s.CapitalCost), btoa(s.CyclicSOC),
		})
	}
	if err := writeTable(filepath.Join(dir, storageFile), stRows); err != nil {
		return err
	}

	loadRows := [][]string{{"id", "bus"}}
	for _, ld := range n.Loads {
		loadRows = append(loadRows, []string{ld.ID, ld.Bus})
	}
	if err := writeTable(filepath.Join(dir, loadsFile), loadRows); err != nil {
		return err
	}

	genProfiles := map[string][]float64{}
	for _, g := range n.Generators {
		if g.PMaxPu != nil {
			genProfiles[g.ID] = g.PMaxPu
		}
	}
	if err := writeProfile(filepath.Join(dir, genProfileFile), genProfiles); err != nil {
		return err
	}
	loadProfiles := map[string][]float64{}
	for _, ld := range n.Loads {
		if ld.PSet != nil {
			loadProfiles[ld.ID] = ld.PSet
		}
	}
	if err := writeProfile(filepath.Join(dir, loadProfileFile), loadProfiles); err != nil {
		return err
	}
	inflows := map[string][]float64{}
	for _, s := range n.StorageUnits {
		if s.Inflow != nil {
			inflows[s.ID] = s.Inflow
		}
	}
	return writeProfile(filepath.Join(dir, inflowFile), inflows)
}

// namedRow resolves CSV cells by header name with positional error context.
type namedRow struct {
	header []string
	rec    []string
	file   string
	row    int
}

func (r namedRow) cell(name string) (string, bool) {
	for i, h := range r.header {
		if h == name && i < len(r.rec) {
			return r.rec[i], true
		}
	}
	return "", false
}

func (r namedRow) str(name string) string {
	v, _ := r.cell(name)
	return v
}

func (r namedRow) strDefault(name, def string) string {
	if v, ok := r.cell(name); ok && v != "" {
		return v
	}
	return def
}

func (r namedRow) float(name string) (float64, error) {
	v, ok := r.cell(name)
	if !ok || v == "" {
		return 0, fmt.Errorf("%s row %d: missing required column %q", r.file, r.row+2, name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s row %d: invalid %s: %w", r.file, r.row+2, name, err)
	}
	return f, nil
}

func (r namedRow) floatDefault(name string, def float64) (float64, error) {
	v, ok := r.cell(name)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s row %d: invalid %s: %w", r.file, r.row+2, name, err)
	}
	return f, nil
}

func (r namedRow) boolDefault(name string) (bool, error) {
	v, ok := r.cell(name)
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s row %d: invalid %s: %w", r.file, r.row+2, name, err)
	}
	return b, nil
}

// readTable reads a CSV file, returning data rows and the header.
func readTable(path string) ([][]string, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck // read-only file; close error is not actionable

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	all, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%s is empty or missing a header", path)
	}
	return all[1:], all[0], nil
}

// readOptionalTable is readTable for files that may legitimately be absent.
func readOptionalTable(path string) ([][]string, []string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil, nil
	}
	return readTable(path)
}

// readProfile reads a wide per-snapshot CSV (first column is the snapshot
// index, remaining columns are component IDs) and hands each series to assign.
func readProfile(path string, assign func(id string, series []float64)) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	rows, header, err := readTable(path)
	if err != nil {
		return err
	}
	if len(header) < 2 {
		return nil
	}
	for col := 1; col < len(header); col++ {
		series := make([]float64, 0, len(rows))
		for i, rec := range rows {
			if col >= len(rec) {
				return fmt.Errorf("%s row %d: missing column %s", path, i+2, header[col])
			}
			v, err := strconv.ParseFloat(rec[col], 64)
			if err != nil {
				return fmt.Errorf("%s row %d: invalid %s: %w", path, i+2, header[col], err)
			}
			series = append(series, v)
		}
		assign(header[col], series)
	}
	return nil
}

func writeTable(path string, rows [][]string) error {
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

func writeProfile(path string, series map[string][]float64) error {
	if len(series) == 0 {
		return nil
	}
	ids := make([]string, 0, len(series))
	maxLen := 0
	for id, s := range series {
		ids = append(ids, id)
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	sort.Strings(ids)
	rows := [][]string{append([]string{"snapshot"}, ids...)}
	for t := 0; t < maxLen; t++ {
		row := []string{strconv.Itoa(t)}
		for _, id := range ids {
			s := series[id]
			if t < len(s) {
				row = append(row, ftoa(s[t]))
			} else {
				row = append(row, "0")
			}
		}
		rows = append(rows, row)
	}
	return writeTable(path, rows)
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func btoa(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
