package reader

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/convert"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/formatting"
	"github.com/rtm0/agage/internal/fortran"
	"github.com/rtm0/agage/internal/schema"
)

// magnumFormatMarker precedes the Fortran format of the columns in the
// header of a Magnum file.
const magnumFormatMarker = "You can use the following format in Fortran to read data in different columns,"

const (
	magnumSamplingPeriod = 2400
	magnumComment        = "GCMS ADS with Finnigan Magnum Iron Trap"
)

// magnumFile holds one species of a Magnum file.
type magnumFile struct {
	times    []time.Time
	mf       []float64
	baseline []float64
	scale    string
}

// magnumColumns names the columns of a Magnum file. Unnamed columns
// following another unnamed column are "missing<i>"; an unnamed column
// following a named one holds that column's pollution flag.
func magnumColumns(names []string) []string {
	out := slices.Clone(names)
	for i := 1; i < len(out); i++ {
		if out[i] == "" && out[i-1] == "" {
			out[i] = fmt.Sprintf("missing%d", i)
		}
	}
	for i := 1; i < len(out); i++ {
		if out[i] == "" && out[i-1] != "" {
			out[i] = out[i-1] + "_pollution"
		}
	}
	return out
}

// parseMagnumFile reads the record of one species from a Magnum file.
// The line holding magnumFormatMarker gives the column format; the scales
// follow on the next line and the column names two lines further down, then
// the data. Values of zero in the species columns are missing, and rows
// without a valid date are dropped.
func parseMagnumFile(r io.Reader, sp string) (*magnumFile, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	id := slices.IndexFunc(lines, func(l string) bool { return strings.Contains(l, magnumFormatMarker) })
	if id < 0 {
		return nil, fmt.Errorf("no column format found")
	}
	if len(lines) < id+4 {
		return nil, fmt.Errorf("header incomplete")
	}
	_, format, _ := strings.Cut(lines[id], magnumFormatMarker)
	format, _, _ = strings.Cut(strings.TrimSpace(format), `\`)
	cols, err := fortran.Parse(format)
	if err != nil {
		return nil, err
	}

	scales := fortran.Split(lines[id+1], cols)
	names := magnumColumns(fortran.Split(lines[id+3], cols))
	col := func(name string) (int, error) {
		i := slices.Index(names, name)
		if i < 0 {
			return 0, fmt.Errorf("column %s not found", name)
		}
		return i, nil
	}
	dateCols := make([]int, 5)
	for k, n := range []string{"YYYY", "MM", "DD", "hh", "min"} {
		if dateCols[k], err = col(n); err != nil {
			return nil, err
		}
	}
	absda, err := col("ABSDA")
	if err != nil {
		return nil, err
	}
	ci, err := col(sp)
	if err != nil {
		return nil, err
	}
	pi, err := col(sp + "_pollution")
	if err != nil {
		return nil, err
	}

	f := &magnumFile{scale: scales[ci]}
	for _, line := range lines[id+4:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := fortran.Split(line, cols)
		t, ok := magnumTime(fields, dateCols)
		if !ok {
			continue
		}
		v := math.NaN()
		if x, err := strconv.ParseFloat(fields[ci], 64); err == nil && !(ci > absda && x == 0) {
			v = x
		}
		b := 1.0
		if fields[pi] == "P" {
			b = 0
		}
		f.times = append(f.times, t)
		f.mf = append(f.mf, v)
		f.baseline = append(f.baseline, b)
	}
	return f, nil
}

// magnumTime builds the UTC time of a row, rejecting impossible dates.
func magnumTime(fields []string, dateCols []int) (time.Time, bool) {
	var p [5]int
	for k, c := range dateCols {
		n, err := strconv.Atoi(fields[c])
		if err != nil {
			return time.Time{}, false
		}
		p[k] = n
	}
	t := time.Date(p[0], time.Month(p[1]), p[2], p[3], p[4], 0, 0, time.UTC)
	if t.Year() != p[0] || int(t.Month()) != p[1] || t.Day() != p[2] || t.Hour() != p[3] || t.Minute() != p[4] {
		return time.Time{}, false
	}
	return t, true
}

// ReadMagnum reads the GCMS Magnum record of a species.
func (r *Reader) ReadMagnum(sp, site, instr string, opts Options) (*dataset.Dataset, error) {
	ds, _, err := r.readMagnum(sp, site, instr, opts)
	return ds, err
}

func (r *Reader) readMagnum(sp, site, instr string, opts Options) (data, flags *dataset.Dataset, err error) {
	sites, err := formatting.LoadSites(r.paths.Dir)
	if err != nil {
		return nil, nil, err
	}
	info, ok := sites[site]
	if !ok {
		return nil, nil, fmt.Errorf("site %s not found in %s", site, formatting.ALEGAGESitesFile)
	}
	spInfo, err := formatting.LoadSpecies(r.paths.Dir, formatting.MagnumSpeciesFile, sp)
	if err != nil {
		return nil, nil, err
	}
	name := spInfo.NameGatech
	if name == "" {
		name = sp
	}

	sub, err := r.paths.Input(config.MagnumPath, site)
	if err != nil {
		return nil, nil, err
	}
	abs := r.paths.Abs(sub)
	src := archive.NewSource(filepath.Dir(abs))
	rc, err := src.Open(filepath.Base(abs))
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	r.logger.Debug("reading archive", zap.String("file", abs))

	var (
		times         []time.Time
		mf, baselines []float64
		scale         string
	)
	err = archive.WalkTarGz(rc, func(_ string, fr io.Reader) error {
		f, err := parseMagnumFile(fr, name)
		if err != nil {
			return err
		}
		times = append(times, f.times...)
		mf = append(mf, f.mf...)
		baselines = append(baselines, f.baseline...)
		scale = f.scale
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	ds := dataset.New(times)
	if err := ds.Set(schema.MoleFraction, mf, nil); err != nil {
		return nil, nil, err
	}
	if err := ds.Set(convert.BaselineFlag, baselines, nil); err != nil {
		return nil, nil, err
	}
	ds = ds.SortByTime()
	if dups := ds.DuplicateTimes(); len(dups) > 0 {
		return nil, nil, fmt.Errorf("duplicate timestamps found, check timestamp issues: %s", formatTimes(dups))
	}
	baseline := ds.Values(convert.BaselineFlag)
	ds.Drop(convert.BaselineFlag)

	mf = ds.Values(schema.MoleFraction)
	rep := make([]float64, len(mf))
	for i, v := range mf {
		rep[i] = v * spInfo.Repeatability(instr)
	}
	if err := ds.Set("mf_repeatability", rep, nil); err != nil {
		return nil, nil, err
	}
	ds.Fill("inlet_height", info.InletHeight, nil)
	ds.Fill("sampling_period", magnumSamplingPeriod, nil)
	ds.TimeAttrs.Set("comment", timeComment)

	ds.Attrs = dataset.AttrsOf(
		"comment", fmt.Sprintf("%s %s data from %s. %s", instr, sp, site, gatechCommentPostfix),
		"calibration_scale", scale,
	)
	if err := r.setInstrumentType(ds, instr); err != nil {
		return nil, nil, err
	}
	extra := dataset.AttrsOf(
		"gcwerks_name", info.GCWerksName,
		"inlet_height", info.InletHeight,
	)
	extra.Update(info.Attrs())
	extra.Update(dataset.AttrsOf(
		"product_type", ProductMoleFraction,
		"instrument_selection", IndividualSelection,
		"frequency", FrequencyHigh,
		"instrument_type", ds.Attrs.String("instrument_type"),
		"site_code", site,
	))
	date := ""
	if ds.Len() > 0 {
		date = ds.Time[0].Format("2006-01-02")
	}
	r.formatter.Format(ds, formatting.Options{
		Instruments: []formatting.Instrument{{Name: instr, Comment: magnumComment, Date: date}},
		Species:     sp,
		Extra:       extra,
	})
	ds = r.table.FormatVariables(ds, schema.FormatOptions{Units: spInfo.Units})
	if err := ds.Set(convert.BaselineFlag, baseline, nil); err != nil {
		return nil, nil, err
	}

	if ds, err = r.releaseCut(ds, sp, site, instr); err != nil {
		return nil, nil, err
	}
	if opts.DropNaN {
		ds = ds.DropNaN(schema.MoleFraction)
	}
	if data, flags, err = splitBaseline(ds); err != nil {
		return nil, nil, err
	}
	if data, err = r.scaler.Convert(data, opts.Scale); err != nil {
		return nil, nil, err
	}
	return data, flags, nil
}
