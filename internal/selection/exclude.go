package selection

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/species"
)

// ExcludeDir is the folder holding the data exclusion tables.
const ExcludeDir = "data_exclude"

// Exclusion is a period of data to remove.
type Exclusion struct {
	// Species is a formatted species name or "all".
	Species    string
	Instrument string
	Range      dataset.TimeRange
	// Combined exclusions only apply to combined records.
	Combined bool
	Comment  string
}

// Exclusions are the exclusion rows of a site.
type Exclusions []Exclusion

// ExcludePath returns the data exclusion file of a site.
func ExcludePath(networkDir, site string) string {
	return filepath.Join(networkDir, ExcludeDir, "data_exclude_"+strings.ToUpper(site)+".csv")
}

// LoadExclusions reads the exclusion table of a site. A site without a table
// has no exclusions.
func LoadExclusions(networkDir, site string) (Exclusions, error) {
	path := ExcludePath(networkDir, site)
	if !exists(path) {
		return nil, nil
	}
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int)
	for _, name := range []string{"Species", "Instrument", "Start", "End"} {
		i := t.column(name)
		if i < 0 {
			return nil, fmt.Errorf("%s has no %s column", path, name)
		}
		cols[name] = i
	}
	combined, comment := t.column("Combined"), t.column("Comment")

	var out Exclusions
	for n, row := range t.rows {
		r, err := dataset.ParseRange(row[cols["Start"]], row[cols["End"]])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, n+1, err)
		}
		e := Exclusion{
			Species:    species.Format(row[cols["Species"]]),
			Instrument: row[cols["Instrument"]],
			Range:      r,
		}
		if combined >= 0 {
			switch strings.ToLower(row[combined]) {
			case "yes", "y", "true", "1":
				e.Combined = true
			}
		}
		if comment >= 0 {
			e.Comment = row[comment]
		}
		out = append(out, e)
	}
	return out, nil
}

// Matching returns the exclusions for a species and instrument. Rows for
// combined records are only returned when combined is set, and then only
// those.
func (ex Exclusions) Matching(sp, instrument string, combined bool) Exclusions {
	sp = species.Format(sp)
	var out Exclusions
	for _, e := range ex {
		if e.Combined != combined {
			continue
		}
		if e.Species != "all" && e.Species != sp {
			continue
		}
		if !strings.EqualFold(e.Instrument, instrument) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Apply removes every time point within an exclusion period.
func (ex Exclusions) Apply(ds *dataset.Dataset) *dataset.Dataset {
	if len(ex) == 0 {
		return ds
	}
	return ds.Filter(func(i int) bool {
		for _, e := range ex {
			if e.Range.Contains(ds.Time[i]) {
				return false
			}
		}
		return true
	})
}
