package schema

import (
	"math"
	"slices"
	"strings"

	"github.com/rtm0/agage/internal/dataset"
)

// UnitTranslator maps instrument unit spellings to the CF unit strings
// written to files.
var UnitTranslator = map[string]string{
	"ppm":        "1e-6",
	"ppb":        "1e-9",
	"ppt":        "1e-12",
	"ppq":        "1e-15",
	"nmol/mol":   "1e-9",
	"nmol mol-1": "1e-9",
	"pmol/mol":   "1e-12",
	"pmol mol-1": "1e-12",
}

// TranslateUnits returns the CF spelling of units, or units unchanged.
func TranslateUnits(units string) string {
	if u, ok := UnitTranslator[strings.TrimSpace(units)]; ok {
		return u
	}
	return units
}

// calibrated lists variables carrying the calibration_scale attribute.
var calibrated = []string{MoleFraction, "mf_repeatability", "mf_variability"}

// FormatOptions override what FormatVariables would otherwise take from the
// dataset itself.
type FormatOptions struct {
	Species          string
	Units            string
	CalibrationScale string
}

// FormatVariables keeps only the table's variables, in table order, and sets
// their attributes. Placeholders {species} and {units} are filled from opts,
// or from the dataset's global species attribute and the mole fraction's
// units. Attributes already on a variable that the table does not define
// are kept.
func (t *Table) FormatVariables(ds *dataset.Dataset, opts FormatOptions) *dataset.Dataset {
	out := ds.Copy()

	species := opts.Species
	if species == "" {
		species = out.Attrs.String("species")
	}
	units := opts.Units
	if units == "" {
		if mf := out.Var(MoleFraction); mf != nil {
			units = mf.Attrs.String("units")
		}
	}
	units = TranslateUnits(units)
	scale := opts.CalibrationScale
	if scale == "" {
		scale = out.Attrs.String("calibration_scale")
	}

	var drop []string
	for _, n := range out.Names() {
		if _, ok := t.defs[n]; !ok || n == Time {
			drop = append(drop, n)
		}
	}
	out.Drop(drop...)
	out.Reorder(t.DataNames())

	fill := func(s string) (string, bool) {
		if strings.Contains(s, "{species}") {
			if species == "" {
				return "", false
			}
			s = strings.ReplaceAll(s, "{species}", species)
		}
		if strings.Contains(s, "{units}") {
			if units == "" {
				return "", false
			}
			s = strings.ReplaceAll(s, "{units}", units)
		}
		return s, true
	}

	for _, n := range out.Names() {
		v := out.Var(n)
		def := t.defs[n]
		for _, k := range attrKeys(def.Attrs) {
			if s, ok := fill(def.Attrs[k]); ok {
				v.Attrs.Set(k, s)
			}
		}
		if scale != "" && slices.Contains(calibrated, n) {
			v.Attrs.Set("calibration_scale", scale)
		}
	}

	ts := t.defs[Time]
	for _, k := range attrKeys(ts.Attrs) {
		out.TimeAttrs.Set(k, ts.Attrs[k])
	}
	return out
}

// attrKeys orders attribute names the way CF files usually list them.
func attrKeys(attrs map[string]string) []string {
	lead := []string{"long_name", "standard_name", "units", "comment"}
	var keys []string
	for _, k := range lead {
		if _, ok := attrs[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range attrs {
		if !slices.Contains(lead, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

// Flagged returns, for every time point, whether the mole fraction is
// flagged or missing.
func Flagged(ds *dataset.Dataset) []bool {
	flags := make([]bool, ds.Len())
	mf := ds.Values(MoleFraction)
	if mf == nil {
		return flags
	}
	for i, v := range mf {
		flags[i] = math.IsNaN(v)
	}
	return flags
}

// MaskFlagged applies the nan and zero policies in place: at every time point
// where the mole fraction is missing, variables with those policies are set
// to NaN or 0. The time axis is unchanged.
func (t *Table) MaskFlagged(ds *dataset.Dataset) {
	flags := Flagged(ds)
	for _, n := range ds.Names() {
		def, ok := t.defs[n]
		if !ok {
			continue
		}
		var repl float64
		switch def.Flagged {
		case PolicyNaN:
			repl = math.NaN()
		case PolicyZero:
			repl = 0
		default:
			continue
		}
		vals := ds.Values(n)
		for i, f := range flags {
			if f {
				vals[i] = repl
			}
		}
	}
}

// DropFlagged removes every time point where a variable with the drop policy
// is missing.
func (t *Table) DropFlagged(ds *dataset.Dataset) *dataset.Dataset {
	var cols [][]float64
	for _, n := range ds.Names() {
		if def, ok := t.defs[n]; ok && def.Flagged == PolicyDrop {
			cols = append(cols, ds.Values(n))
		}
	}
	if len(cols) == 0 {
		return ds
	}
	return ds.Filter(func(i int) bool {
		for _, c := range cols {
			if math.IsNaN(c[i]) {
				return false
			}
		}
		return true
	})
}

// ApplyFlags enforces every variable's flagged policy and returns the
// resulting dataset: nan and zero columns are masked in place, then time
// points missing a drop variable are removed.
func (t *Table) ApplyFlags(ds *dataset.Dataset) *dataset.Dataset {
	t.MaskFlagged(ds)
	return t.DropFlagged(ds)
}
