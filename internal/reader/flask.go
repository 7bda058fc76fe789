package reader

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/formatting"
	"github.com/rtm0/agage/internal/ncio"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/selection"
	"github.com/rtm0/agage/internal/species"
)

const flaskInstrument = "GCMS-Medusa-flask"

// FlaskPath finds the flask file of a species at a site.
func (r *Reader) FlaskPath(sp, site string) (*archive.Source, string, error) {
	sub, err := r.paths.Input(config.GCMSFlaskPath, site)
	if err != nil {
		return nil, "", err
	}
	src := archive.NewSource(r.paths.Abs(sub))
	pattern := fmt.Sprintf("%s_air.nc", species.Flask(sp))
	files, err := src.List("*"+strings.ToLower(pattern), true)
	if err != nil {
		return nil, "", err
	}
	switch len(files) {
	case 0:
		return nil, "", fmt.Errorf("%w: no flask file for %s in %s", archive.ErrNotFound, sp, src.Path())
	case 1:
		return src, files[0], nil
	}
	return nil, "", fmt.Errorf("found more than one flask file for %s in %s", sp, src.Path())
}

// ReadFlask reads GCMS-Medusa flask measurements. Sample times are the
// middle of the sampling period; flasks sampled at the same time are
// averaged. Flask records always use the scale defaults.
func (r *Reader) ReadFlask(sp, site, instr string, opts Options) (*dataset.Dataset, error) {
	if instr != flaskInstrument {
		return nil, fmt.Errorf("only valid for instrument %s, not %s", flaskInstrument, instr)
	}
	sites := r.formatter.Sites()
	period, err := sites.Float(site, "sampling_period")
	if err != nil {
		return nil, err
	}
	height, err := sites.Float(site, "inlet_height")
	if err != nil {
		return nil, err
	}
	if opts.Scale != "" && !selection.IsDefaults(opts.Scale) {
		return nil, fmt.Errorf("flask data must use a scale defaults file, not %s", opts.Scale)
	}
	scale, err := selection.ScaleDefault(r.paths.Dir, selection.DefaultScales, sp)
	if err != nil {
		return nil, err
	}

	src, name, err := r.FlaskPath(sp, site)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("reading file", zap.String("file", name), zap.String("source", src.Path()))
	local, cleanup, err := src.LocalPath(name)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	f, err := ncio.Open(local)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fsp := species.Flask(sp)
	mfCol, err := f.Column(fsp + "_C")
	if err != nil {
		return nil, err
	}
	repCol, err := f.Column(fsp + "_std_stdev")
	if err != nil {
		return nil, err
	}
	tCol, err := f.Column("sample_time")
	if err != nil {
		return nil, err
	}
	if len(tCol.Values) != len(mfCol.Values) || len(repCol.Values) != len(mfCol.Values) {
		return nil, fmt.Errorf("%s: variables of different lengths", name)
	}

	t := make([]time.Time, len(tCol.Values))
	for i, s := range tCol.Values {
		t[i] = time.UnixMilli(int64(math.Round((s - period/2) * 1000))).UTC()
	}
	ds := dataset.New(t)
	if err := ds.Set(schema.MoleFraction, mfCol.Values, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := ds.Set("mf_repeatability", repCol.Values, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	ds.Fill("inlet_height", height, nil)
	ds.Fill("sampling_period", period, nil)
	ds.Fill("mf_count", 1, nil)
	ds.TimeAttrs.Set("comment", timeComment)
	ds.Attrs = dataset.AttrsOf(
		"comment", fmt.Sprintf("GCMS Medusa flask data for %s at %s.", species.Format(sp), sites[strings.ToUpper(site)].String("station_long_name")),
		"site_code", site,
	)

	if ds, err = averageFlasks(ds.SortByTime()); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if err := r.setInstrumentType(ds, instr); err != nil {
		return nil, err
	}
	r.formatter.Format(ds, formatting.Options{
		Species:          sp,
		CalibrationScale: scale,
		Site:             true,
	})
	ds = r.table.FormatVariables(ds, schema.FormatOptions{Species: sp, Units: "ppt", CalibrationScale: scale})
	if err := r.setInstrumentType(ds, instr); err != nil {
		return nil, err
	}
	if opts.DropNaN {
		ds = ds.DropNaN(schema.MoleFraction)
	}
	return ds, nil
}

// averageFlasks averages rows of a sorted dataset sharing a timestamp.
// mf_count becomes the number of valid mole fractions and mf_variability
// their standard deviation when more than two were averaged.
func averageFlasks(ds *dataset.Dataset) (*dataset.Dataset, error) {
	if len(ds.DuplicateTimes()) == 0 {
		return ds, nil
	}
	var groups [][]int
	for i := range ds.Time {
		if i > 0 && ds.Time[i].Equal(ds.Time[i-1]) {
			groups[len(groups)-1] = append(groups[len(groups)-1], i)
			continue
		}
		groups = append(groups, []int{i})
	}

	t := make([]time.Time, len(groups))
	for g, idx := range groups {
		t[g] = ds.Time[idx[0]]
	}
	out := dataset.New(t)
	out.TimeAttrs = ds.TimeAttrs.Copy()
	out.Attrs = ds.Attrs.Copy()
	for _, n := range ds.Names() {
		v := ds.Var(n)
		vals := make([]float64, len(groups))
		for g, idx := range groups {
			x := valid(v.Values, idx)
			if len(x) == 0 {
				vals[g] = math.NaN()
				continue
			}
			vals[g] = stat.Mean(x, nil)
		}
		if err := out.Set(n, vals, v.Attrs.Copy()); err != nil {
			return nil, err
		}
	}

	mf := ds.Values(schema.MoleFraction)
	count := make([]float64, len(groups))
	std := make([]float64, len(groups))
	for g, idx := range groups {
		x := valid(mf, idx)
		count[g] = float64(len(x))
		if len(x) > 2 {
			std[g] = stat.StdDev(x, nil)
		}
	}
	if err := out.Set("mf_count", count, nil); err != nil {
		return nil, err
	}
	if err := out.Set("mf_variability", std, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func valid(values []float64, idx []int) []float64 {
	var x []float64
	for _, i := range idx {
		if !math.IsNaN(values[i]) {
			x = append(x, values[i])
		}
	}
	return x
}
