package reader

import (
	"fmt"
	"strings"

	"github.com/rtm0/agage/internal/convert"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/selection"
	"github.com/rtm0/agage/internal/species"
)

// Baseline flag variables of GCWerks files.
const (
	GitPollutionFlag = "git_pollution_flag"
	MetOfficeFlag    = "met_office_baseline_flag"
)

// baselineAttrs are the global attributes describing each baseline flag.
var baselineAttrs = map[string][]any{
	GitPollutionFlag: {
		"comment", "Baseline flag from the Georgia Tech statistical filtering algorithm.",
		"citation", "O'Doherty et al. (2001)",
		"contact", "Ray Wang, Georgia Tech",
		"contact_email", "raywang@eas.gatech.edu",
	},
	MetOfficeFlag: {
		"comment", "Baseline flag from the Met Office using the NAME model.",
		"citation", "",
		"contact", "Alistair Manning, Met Office",
		"contact_email", "alistair.manning@metoffice.gov.uk",
	},
}

// copiedBaselineAttrs are taken over from the data file.
var copiedBaselineAttrs = []string{
	"inlet_latitude", "inlet_longitude", "inlet_base_elevation_masl",
	"doi", "file_created_by", "station_long_name",
	"processing_code_url", "processing_code_version",
}

// ReadBaseline reads the baseline flags of an instrument record: 1 where a
// point is baseline, 0 otherwise. ALE/GAGE and Magnum records only carry the
// Georgia Tech flag. resample must match the data read, so that GCWerks
// flags land on the same averaging periods as the mole fractions.
func (r *Reader) ReadBaseline(sp, site, instr, flagName string, resample, dropNaN bool) (*dataset.Dataset, error) {
	kv, ok := baselineAttrs[flagName]
	if !ok {
		return nil, fmt.Errorf("unknown baseline flag %s", flagName)
	}
	opts := Options{Exclude: true, DropNaN: dropNaN, Scale: selection.DefaultScales}

	var (
		ds  *dataset.Dataset
		err error
	)
	switch KindOf(instr) {
	case KindALEGAGE:
		if flagName != GitPollutionFlag {
			return nil, fmt.Errorf("only %s is available for ALE/GAGE data", GitPollutionFlag)
		}
		_, ds, err = r.readALEGAGE(sp, site, instr, opts)
	case KindMagnum:
		if flagName != GitPollutionFlag {
			return nil, fmt.Errorf("only %s is available for GCMS-Magnum data", GitPollutionFlag)
		}
		opts.Exclude = false
		_, ds, err = r.readMagnum(sp, site, instr, opts)
	case KindFlask:
		return nil, fmt.Errorf("no baseline flags for %s", instr)
	default:
		ds, err = r.readNC(sp, site, instr, Options{Exclude: true, Resample: resample, DropNaN: dropNaN}, flagName)
	}
	if err != nil {
		return nil, err
	}

	if b := ds.Var(convert.BaselineFlag); b != nil {
		b.Attrs = dataset.AttrsOf(
			"long_name", "baseline_flag",
			"flag_values", "0, 1",
			"flag_meanings", "not_baseline, baseline",
		)
	}
	ds.TimeAttrs.Delete("sampling_time_seconds")

	old := ds.Attrs
	attrs := dataset.AttrsOf(kv...)
	for _, k := range copiedBaselineAttrs {
		v, _ := old.Get(k)
		if v == nil {
			v = ""
		}
		attrs.Set(k, v)
	}
	typ, err := r.instruments.TypeOf(instr)
	if err != nil {
		return nil, err
	}
	attrs.Update(dataset.AttrsOf(
		"baseline_flag", flagName,
		"site_code", strings.ToUpper(site),
		"species", species.Format(sp),
		"instrument", instr,
		"instrument_type", typ,
		"network", r.paths.Network,
		"product_type", ProductBaselineFlag,
		"instrument_selection", IndividualSelection,
		"frequency", FrequencyHigh,
		"version", r.formatter.Version(),
		"start_date", ds.StartDate(),
		"end_date", ds.EndDate(),
	))
	ds.Attrs = attrs
	return ds, nil
}
