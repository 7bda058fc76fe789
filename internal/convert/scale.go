package convert

import (
	"fmt"
	"strings"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/selection"
)

// scaleNames maps calibration scale spellings found in instrument files to
// the names used in the scale tables.
var scaleNames = map[string]string{
	"TU1987":    "TU-87",
	"TU 1987":   "TU-87",
	"SIO1998":   "SIO-98",
	"SIO2005":   "SIO-05",
	"SIO2016":   "SIO-16",
	"NOAA2004A": "NOAA-2004A",
	"NOAA2004":  "NOAA-2004",
}

// ScaleName returns the canonical spelling of a calibration scale.
func ScaleName(scale string) string {
	scale = strings.TrimSpace(scale)
	if s, ok := scaleNames[strings.ToUpper(scale)]; ok {
		return s
	}
	return scale
}

// scaled lists the variables that are multiplied by a conversion factor.
var scaled = []string{schema.MoleFraction, "mf_repeatability", "mf_variability"}

// Scaler converts records between calibration scales using the scale tables
// of a network.
type Scaler struct {
	dir  string
	conv selection.Conversions
}

// NewScaler reads the scale conversions of a network data directory.
func NewScaler(networkDir string) (*Scaler, error) {
	conv, err := selection.LoadConversions(networkDir)
	if err != nil {
		return nil, err
	}
	return &Scaler{dir: networkDir, conv: conv}, nil
}

// Target resolves a scale argument for a species: "" keeps the record's
// scale, "defaults" and "defaults-<suffix>" look the scale up in the scale
// defaults files, anything else is a scale name.
func (s *Scaler) Target(scale, species string) (string, error) {
	if !selection.IsDefaults(scale) {
		return ScaleName(scale), nil
	}
	target, err := selection.ScaleDefault(s.dir, scale, species)
	if err != nil {
		return "", err
	}
	return ScaleName(target), nil
}

// Convert returns the record on the scale named by the scale argument (see
// Target). The dataset's calibration_scale global attribute names its
// current scale.
func (s *Scaler) Convert(ds *dataset.Dataset, scale string) (*dataset.Dataset, error) {
	if scale == "" {
		return ds, nil
	}
	sp := ds.Attrs.String("species")
	target, err := s.Target(scale, sp)
	if err != nil {
		return nil, err
	}
	current := ScaleName(ds.Attrs.String("calibration_scale"))
	if current == "" {
		return nil, fmt.Errorf("%s has no calibration_scale attribute", sp)
	}
	if current == target {
		return ds, nil
	}
	factor, ok := s.conv.Factor(sp, current, target)
	if !ok {
		return nil, fmt.Errorf("no conversion of %s from scale %s to %s", sp, current, target)
	}

	out := ds.Copy()
	for _, n := range scaled {
		v := out.Var(n)
		if v == nil {
			continue
		}
		for i := range v.Values {
			v.Values[i] *= factor
		}
		if v.Attrs.Has("calibration_scale") {
			v.Attrs.Set("calibration_scale", target)
		}
	}
	out.Attrs.Set("calibration_scale", target)
	out.Attrs.Set("calibration_scale_converted_from", current)
	return out, nil
}
