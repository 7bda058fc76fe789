package selection

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/species"
)

// CombinationDir is the folder holding the data combination tables.
const CombinationDir = "data_combination"

// InstrumentRange is an instrument contributing to a combined record and the
// period it covers.
type InstrumentRange struct {
	Instrument string
	Range      dataset.TimeRange
}

// Combination says, per species, which instruments make up the combined
// record of a site.
type Combination struct {
	Site string

	species []string
	ranges  map[string][]InstrumentRange
}

// CombinationPath returns the data combination file of a site.
func CombinationPath(networkDir, site string) string {
	return filepath.Join(networkDir, CombinationDir, "data_combination_"+strings.ToUpper(site)+".csv")
}

// CombinationSites returns the sites that have a data combination table,
// sorted.
func CombinationSites(networkDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(networkDir, CombinationDir, "*.csv"))
	if err != nil {
		return nil, err
	}
	var sites []string
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".csv")
		sites = append(sites, name[strings.LastIndex(name, "_")+1:])
	}
	sort.Strings(sites)
	return sites, nil
}

// LoadCombination reads the data combination table of a site. A site
// without a table has an empty combination.
func LoadCombination(networkDir, site string) (*Combination, error) {
	c := &Combination{Site: strings.ToUpper(site), ranges: make(map[string][]InstrumentRange)}
	path := CombinationPath(networkDir, site)
	if !exists(path) {
		return c, nil
	}
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	sc := t.column("Species")
	if sc < 0 {
		return nil, fmt.Errorf("%s has no Species column", path)
	}
	for _, row := range t.rows {
		sp := species.Format(row[sc])
		if sp == "" {
			continue
		}
		var ranges []InstrumentRange
		for i, instr := range t.header {
			if i == sc || instr == "" || notUsed(row[i]) {
				continue
			}
			start, end, ok := strings.Cut(row[i], ":")
			if !ok {
				return nil, fmt.Errorf("%s: %s %s: dates must be given as start:end, got %q", path, sp, instr, row[i])
			}
			r, err := dataset.ParseRange(start, end)
			if err != nil {
				return nil, fmt.Errorf("%s: %s %s: %w", path, sp, instr, err)
			}
			ranges = append(ranges, InstrumentRange{Instrument: instr, Range: r})
		}
		if _, ok := c.ranges[sp]; !ok {
			c.species = append(c.species, sp)
		}
		c.ranges[sp] = ranges
	}
	return c, nil
}

// Species returns the species of the table in file order.
func (c *Combination) Species() []string {
	return slices.Clone(c.species)
}

// Instruments returns the instruments combined for a species, in column
// order. A species missing from the table has none.
func (c *Combination) Instruments(sp string) []InstrumentRange {
	return slices.Clone(c.ranges[species.Format(sp)])
}
