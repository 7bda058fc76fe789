package selection

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rtm0/agage/internal/species"
)

// DefaultScales is the scale argument selecting the default scales file.
const DefaultScales = "defaults"

// ChooseScaleDefaults returns "defaults-<instrument>" when the network has a
// scale_defaults-<instrument>.csv file, and "defaults" otherwise.
func ChooseScaleDefaults(networkDir, instrument string) string {
	name := DefaultScales + "-" + instrument
	if exists(scaleDefaultsPath(networkDir, name)) {
		return name
	}
	return DefaultScales
}

// IsDefaults reports whether a scale argument names a scale defaults file.
func IsDefaults(scale string) bool {
	return scale == DefaultScales || strings.HasPrefix(scale, DefaultScales+"-")
}

func scaleDefaultsPath(networkDir, name string) string {
	return filepath.Join(networkDir, "scale_"+name+".csv")
}

// ScaleDefault returns the scale of a species in a defaults file
// ("defaults" or "defaults-<suffix>").
func ScaleDefault(networkDir, defaults, sp string) (string, error) {
	path := scaleDefaultsPath(networkDir, defaults)
	t, err := readTable(path)
	if err != nil {
		return "", err
	}
	sc, scale := t.column("Species"), t.column("Scale")
	if sc < 0 || scale < 0 {
		return "", fmt.Errorf("%s must have Species and Scale columns", path)
	}
	sp = species.Format(sp)
	for _, row := range t.rows {
		if species.Format(row[sc]) == sp {
			return row[scale], nil
		}
	}
	return "", fmt.Errorf("species %s not found in %s", sp, path)
}

// Conversion is a multiplicative calibration scale conversion.
type Conversion struct {
	Species string
	From    string
	To      string
	Factor  float64
}

// Conversions are the rows of scale_convert.csv.
type Conversions []Conversion

// LoadConversions reads scale_convert.csv. A network without the file has no
// conversions.
func LoadConversions(networkDir string) (Conversions, error) {
	path := filepath.Join(networkDir, "scale_convert.csv")
	if !exists(path) {
		return nil, nil
	}
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	idx := make([]int, 4)
	for i, name := range []string{"Species", "From", "To", "Factor"} {
		if idx[i] = t.column(name); idx[i] < 0 {
			return nil, fmt.Errorf("%s has no %s column", path, name)
		}
	}
	var out Conversions
	for n, row := range t.rows {
		f, err := strconv.ParseFloat(row[idx[3]], 64)
		if err != nil || f == 0 {
			return nil, fmt.Errorf("%s row %d: invalid factor %q", path, n+1, row[idx[3]])
		}
		out = append(out, Conversion{
			Species: species.Format(row[idx[0]]),
			From:    row[idx[1]],
			To:      row[idx[2]],
			Factor:  f,
		})
	}
	return out, nil
}

// Factor returns the factor converting a species from one scale to another.
// Conversions apply in both directions.
func (cs Conversions) Factor(sp, from, to string) (float64, bool) {
	if from == to {
		return 1, true
	}
	sp = species.Format(sp)
	for _, c := range cs {
		if c.Species != sp {
			continue
		}
		switch {
		case c.From == from && c.To == to:
			return c.Factor, true
		case c.From == to && c.To == from:
			return 1 / c.Factor, true
		}
	}
	return 0, false
}
