// Package combine merges the records of the instruments listed in a site's
// data combination table into one continuous record.
package combine

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/formatting"
	"github.com/rtm0/agage/internal/instrument"
	"github.com/rtm0/agage/internal/reader"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/selection"
)

// ErrNoData is returned when an instrument has no data within its
// combination period.
var ErrNoData = errors.New("no data retained")

const (
	instrumentType  = "instrument_type"
	combinedHeading = "Combined AGAGE/GAGE/ALE dataset from the following individual sources:\n"
)

// Combiner builds combined records.
type Combiner struct {
	logger *zap.Logger
	reader *reader.Reader
}

// New creates a combiner reading through r.
func New(logger *zap.Logger, r *reader.Reader) *Combiner {
	return &Combiner{logger: logger, reader: r}
}

// Instruments returns the instruments combined for a species at a site.
func (c *Combiner) Instruments(sp, site string) ([]selection.InstrumentRange, error) {
	comb, err := selection.LoadCombination(c.reader.Paths().Dir, site)
	if err != nil {
		return nil, err
	}
	ranges := comb.Instruments(sp)
	if len(ranges) == 0 {
		return nil, fmt.Errorf("no instruments to combine for %s at %s", sp, site)
	}
	return ranges, nil
}

// CombineDatasets reads every instrument of the data combination of a
// species at a site, cuts each to its period and merges them. Where
// instruments overlap, DropDuplicates decides which point is kept.
func (c *Combiner) CombineDatasets(sp, site string, opts reader.Options) (*dataset.Dataset, error) {
	ranges, err := c.Instruments(sp, site)
	if err != nil {
		return nil, err
	}

	var (
		dss         []*dataset.Dataset
		comments    []string
		networks    []string
		scales      []string
		instruments []formatting.Instrument
	)
	for _, ir := range ranges {
		c.logger.Debug("combining", zap.String("species", sp), zap.String("site", site), zap.String("instrument", ir.Instrument))
		ds, err := c.reader.Read(sp, site, ir.Instrument, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ir.Instrument, err)
		}
		if ds, err = c.reader.Exclude(ds, sp, site, ir.Instrument, true); err != nil {
			return nil, err
		}
		comments = append(comments, ds.Attrs.String("comment"))
		networks = append(networks, ds.Attrs.String("network"))

		ds = ds.Sel(ir.Range)
		if ds.Len() == 0 {
			return nil, fmt.Errorf("%w for %s %s %s, check dates in data_combination or omit this instrument",
				ErrNoData, sp, site, ir.Instrument)
		}
		instruments = append(instruments, formatting.Instruments(ds.Attrs)...)

		if !ds.Has("mf_count") {
			ds.Fill("mf_count", 1, dataset.AttrsOf("long_name", "Number of data points in mean", "units", ""))
		}
		scales = append(scales, ds.Attrs.String("calibration_scale"))
		if !ds.Has(instrumentType) {
			return nil, fmt.Errorf("%s has no %s variable", ir.Instrument, instrumentType)
		}
		dss = append(dss, ds)
	}

	if len(unique(scales)) > 1 {
		msg := "Can't combine scales that do not match. Either specify a scale, or add to scale_defaults.csv. "
		for i, ir := range ranges {
			msg += fmt.Sprintf("%s:%s, ", ir.Instrument, scales[i])
		}
		return nil, errors.New(strings.TrimSuffix(msg, ", "))
	}

	ds, err := dataset.Concat(dss...)
	if err != nil {
		return nil, err
	}
	ds = ds.SortByTime()

	c.reader.Formatter().Format(ds, formatting.Options{
		Instruments: instruments,
		Extra:       dataset.AttrsOf("instrument_selection", instrument.SelectionText),
	})
	comment := comments[0]
	if len(comments) > 1 {
		var b strings.Builder
		b.WriteString(combinedHeading)
		for i, cm := range comments {
			fmt.Fprintf(&b, "%d) %s\n", i, cm)
		}
		comment = b.String()
	}
	ds.Attrs.Set("comment", comment)

	ds = c.reader.Table().FormatVariables(ds, schema.FormatOptions{})
	ds = DropDuplicates(ds)
	if opts.DropNaN {
		ds = ds.DropNaN(schema.MoleFraction)
	}

	ds.Attrs.Set(instrumentType, strings.Join(c.reader.Instruments().Types(typeNumbers(ds, nil)), "/"))
	ds.Attrs.Set("network", strings.Join(unique(networks), "/"))
	ds.Attrs.Set("start_date", ds.StartDate())
	ds.Attrs.Set("end_date", ds.EndDate())
	return ds, nil
}

// CombineBaseline merges the Georgia Tech baseline flags of the instruments
// of a data combination. Overlaps are resolved as in DropDuplicates, so that
// the flags stay aligned with the combined record.
func (c *Combiner) CombineBaseline(sp, site string, resample, dropNaN bool) (*dataset.Dataset, error) {
	ranges, err := c.Instruments(sp, site)
	if err != nil {
		return nil, err
	}
	var dss []*dataset.Dataset
	for _, ir := range ranges {
		ds, err := c.reader.ReadBaseline(sp, site, ir.Instrument, reader.GitPollutionFlag, resample, dropNaN)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ir.Instrument, err)
		}
		if ds, err = c.reader.Exclude(ds, sp, site, ir.Instrument, true); err != nil {
			return nil, err
		}
		ds = ds.Sel(ir.Range)
		if ds.Len() == 0 {
			return nil, fmt.Errorf("%w for %s %s %s, check dates in data_combination or omit this instrument",
				ErrNoData, sp, site, ir.Instrument)
		}
		n, err := c.reader.Instruments().Number(ir.Instrument)
		if err != nil {
			return nil, err
		}
		ds.Fill(instrumentType, float64(n), nil)
		dss = append(dss, ds)
	}

	ds, err := dataset.Concat(dss...)
	if err != nil {
		return nil, err
	}
	ds = DropDuplicates(ds.SortByTime())
	ds.Drop(instrumentType)
	ds.Attrs.Set("instrument_selection", instrument.SelectionText)
	ds.Attrs.Set("start_date", ds.StartDate())
	ds.Attrs.Set("end_date", ds.EndDate())
	return ds, nil
}

// DropDuplicates resolves rows sharing a timestamp. Rows with a missing mole
// fraction go first (one is kept if all are missing); of the remaining rows,
// the one whose instrument type appears earliest in the dataset is kept.
// Datasets without a mole fraction treat every row as valid.
func DropDuplicates(ds *dataset.Dataset) *dataset.Dataset {
	if len(ds.DuplicateTimes()) == 0 {
		return ds
	}
	mf := ds.Values(schema.MoleFraction)
	types := ds.Values(instrumentType)
	isNaN := func(i int) bool { return mf != nil && math.IsNaN(mf[i]) }
	typeOf := func(i int) float64 {
		if types == nil {
			return 0
		}
		return types[i]
	}

	rank := make(map[float64]int)
	groups := make(map[int64][]int)
	var keys []int64
	for i, t := range ds.Time {
		if _, ok := rank[typeOf(i)]; !ok {
			rank[typeOf(i)] = len(rank)
		}
		k := t.UnixNano()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}

	drop := make([]bool, ds.Len())
	for _, k := range keys {
		g := groups[k]
		if len(g) < 2 {
			continue
		}
		var valid []int
		for _, i := range g {
			if !isNaN(i) {
				valid = append(valid, i)
			}
		}
		if len(valid) == 0 {
			for _, i := range g[1:] {
				drop[i] = true
			}
			continue
		}
		for _, i := range g {
			drop[i] = isNaN(i)
		}
		keep := valid[0]
		for _, i := range valid[1:] {
			if rank[typeOf(i)] < rank[typeOf(keep)] {
				keep = i
			}
		}
		for _, i := range valid {
			drop[i] = i != keep
		}
	}
	return ds.Filter(func(i int) bool { return !drop[i] })
}

// TimestampChecks verifies that a record has unique timestamps and, when
// flags are given, that the baseline flags share its time axis.
func TimestampChecks(ds, flags *dataset.Dataset, defs *instrument.Definition, sp, site string) error {
	if dups := ds.DuplicateTimes(); len(dups) > 0 {
		return fmt.Errorf("duplicate timestamps in %s at %s: %s for instrument %s",
			sp, site, joinTimes(dups), strings.Join(defs.Types(typeNumbers(ds, ds.DuplicateMask())), ", "))
	}
	if flags == nil {
		return nil
	}
	if len(flags.DuplicateTimes()) > 0 {
		return fmt.Errorf("duplicate timestamps in baseline for %s at %s", sp, site)
	}
	if !slices.EqualFunc(ds.Time, flags.Time, time.Time.Equal) {
		return fmt.Errorf("data and baseline files for %s at %s have different timestamps", sp, site)
	}
	return nil
}

func joinTimes(ts []time.Time) string {
	s := make([]string, len(ts))
	for i, t := range ts {
		s[i] = t.UTC().Format(dataset.DateLayout)
	}
	return strings.Join(s, ", ")
}

// unique returns the distinct non-empty strings, sorted.
func unique(ss []string) []string {
	var out []string
	for _, s := range ss {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// typeNumbers returns the distinct instrument type numbers of the rows
// selected by mask, or of every row when mask is nil.
func typeNumbers(ds *dataset.Dataset, mask []bool) []int {
	var out []int
	for i, v := range ds.Values(instrumentType) {
		if math.IsNaN(v) || (mask != nil && !mask[i]) {
			continue
		}
		if n := int(v); !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
