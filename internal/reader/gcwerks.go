package reader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/convert"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/formatting"
	"github.com/rtm0/agage/internal/ncio"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/species"
)

// families maps instrument name fragments to the input path holding their
// files. Later entries win.
var families = []struct {
	key   string
	names []string
}{
	{config.MDPath, []string{"GCMD", "GCECD", "GCPDD"}},
	{config.OpticalPath, []string{"Picarro", "LGR"}},
	{config.GCMSPath, []string{"GCMS-ADS", "GCMS-Medusa", "GCMS-MteCimone", "GCTOFMS", "GCMS"}},
}

// baselineByte is the character marking baseline points in GCWerks flag
// variables.
const baselineByte = 'B'

// NCPath finds the GCWerks file of a species at a site, returning the input
// source and the file's name within it.
func (r *Reader) NCPath(sp, site, instr string) (*archive.Source, string, error) {
	key := ""
	for _, f := range families {
		for _, n := range f.names {
			if strings.Contains(instr, n) {
				key = f.key
			}
		}
	}
	if key == "" {
		return nil, "", fmt.Errorf("instrument %s is not a GCWerks instrument", instr)
	}
	sub, err := r.paths.Input(key, site)
	if err != nil {
		return nil, "", err
	}
	src := archive.NewSource(r.paths.Abs(sub))
	pattern := fmt.Sprintf("*-%s*_%s_%s.nc", instr, site, species.GCWerks(sp))
	files, err := src.List(pattern, true)
	if err != nil {
		return nil, "", err
	}
	switch len(files) {
	case 0:
		return nil, "", fmt.Errorf("%w: no file matching %s in %s", archive.ErrNotFound, pattern, src.Path())
	case 1:
		return src, files[0], nil
	}
	return nil, "", fmt.Errorf("found more than one file matching %s in %s", pattern, src.Path())
}

// ReadNC reads a GCWerks netCDF record.
func (r *Reader) ReadNC(sp, site, instr string, opts Options) (*dataset.Dataset, error) {
	return r.readNC(sp, site, instr, opts, "")
}

// readNC reads a GCWerks record. With a baseline flag variable name, the
// flag dataset is returned instead of the data.
func (r *Reader) readNC(sp, site, instr string, opts Options, baseline string) (*dataset.Dataset, error) {
	src, name, err := r.NCPath(sp, site, instr)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("reading file", zap.String("file", name), zap.String("source", src.Path()))
	local, cleanup, err := src.LocalPath(name)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	ds, err := ncio.ReadFile(local)
	if err != nil {
		return nil, err
	}

	// GCWerks timestamps are the middle of the sampling period. Files
	// without sampling_time_seconds are sampled over 1 s.
	samplingPeriod := 1.0
	if v := ds.TimeAttrs.String("sampling_time_seconds"); v != "" {
		if samplingPeriod, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("%s: invalid sampling_time_seconds %q", name, v)
		}
		shift := time.Duration(samplingPeriod / 2 * float64(time.Second))
		for i := range ds.Time {
			ds.Time[i] = ds.Time[i].Add(-shift)
		}
	}
	ds.TimeAttrs.Set("comment", timeComment)
	ds.Fill("sampling_period", math.Trunc(samplingPeriod), nil)

	if baseline != "" {
		flag := ds.Values(baseline)
		if flag == nil {
			return nil, fmt.Errorf("%s has no baseline flag %s", name, baseline)
		}
		b := make([]float64, len(flag))
		for i, f := range flag {
			if f == baselineByte {
				b[i] = 1
			}
		}
		if err := ds.Set(convert.BaselineFlag, b, nil); err != nil {
			return nil, err
		}
	}

	ds.Attrs.Set("site_code", strings.ToUpper(site))
	var instruments []formatting.Instrument
	if !ds.Attrs.Has("instrument") {
		instruments = []formatting.Instrument{{Name: instr}}
	}
	r.formatter.Format(ds, formatting.Options{
		Instruments: instruments,
		Species:     sp,
		Extra: dataset.AttrsOf(
			"product_type", ProductMoleFraction,
			"instrument_selection", IndividualSelection,
			"frequency", FrequencyHigh,
		),
	})

	if opts.Exclude {
		if ds, err = r.Exclude(ds, sp, site, instr, false); err != nil {
			return nil, err
		}
	}
	if ds, err = r.releaseCut(ds, sp, site, instr); err != nil {
		return nil, err
	}

	ds.Rename("mf_mean_N", "mf_count")
	ds.Rename("mf_mean_stdev", "mf_variability")
	if err := r.setInstrumentType(ds, instr); err != nil {
		return nil, err
	}

	if opts.Resample {
		if ds, err = convert.Resample(ds, r.table, convert.Period(ds.Attrs.String("instrument_type"))); err != nil {
			return nil, fmt.Errorf("%s: resampling: %w", name, err)
		}
	}
	ds = ds.SortByTime().DropDuplicateTimes()
	ds = r.flags(ds, opts.DropNaN)

	if baseline != "" {
		flags := dataset.New(ds.Time)
		flags.TimeAttrs = ds.TimeAttrs
		flags.Attrs = ds.Attrs
		if err := flags.Set(convert.BaselineFlag, ds.Values(convert.BaselineFlag), nil); err != nil {
			return nil, err
		}
		return flags, nil
	}

	ds = r.table.FormatVariables(ds, schema.FormatOptions{})
	return r.scaler.Convert(ds, opts.Scale)
}
