// Package reader reads the instrument records of a network into
// standardised datasets: GCWerks netCDF files, the ALE/GAGE fixed-width
// archives, the GCMS Magnum archive and GCMS-Medusa flask files.
package reader

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/convert"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/formatting"
	"github.com/rtm0/agage/internal/instrument"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/selection"
)

// Attribute values shared by the readers.
const (
	ProductMoleFraction  = "mole fraction"
	ProductBaselineFlag  = "baseline flag"
	IndividualSelection  = "Individual instruments"
	FrequencyHigh        = "high-frequency"
	timeComment          = "Timestamp is the start of the sampling period in UTC"
	gatechCommentPostfix = "This data was originally processed by Georgia Institute of Technology, " +
		"from the original files and has now been reprocessed into netCDF format."
)

// Options control how a record is read.
type Options struct {
	// Exclude removes the periods listed in the site's data_exclude table.
	Exclude bool
	// Resample averages instruments with a minimum averaging period.
	Resample bool
	// Scale is the target calibration scale: "" keeps the record's scale,
	// "defaults" or "defaults-<suffix>" use a scale defaults file.
	Scale string
	// DropNaN removes time points without a mole fraction.
	DropNaN bool
}

// DefaultOptions returns the options used to build the archive.
func DefaultOptions() Options {
	return Options{Exclude: true, Resample: true, Scale: selection.DefaultScales, DropNaN: true}
}

// Kind is the file format family of an instrument.
type Kind int

const (
	KindGCWerks Kind = iota
	KindALEGAGE
	KindMagnum
	KindFlask
)

// KindOf returns the format family of an instrument.
func KindOf(instr string) Kind {
	switch strings.ToUpper(instr) {
	case "ALE", "GAGE":
		return KindALEGAGE
	case "GCMS-MAGNUM":
		return KindMagnum
	case "GCMS-MEDUSA-FLASK":
		return KindFlask
	}
	return KindGCWerks
}

// OutputName returns the instrument part of output file names.
func OutputName(instr string) string {
	if KindOf(instr) == KindALEGAGE {
		return strings.ToLower(instr) + "-gcmd"
	}
	return strings.ToLower(instr)
}

// HasBaseline reports whether baseline flags exist for an instrument.
func HasBaseline(instr string) bool {
	return KindOf(instr) != KindFlask
}

// Reader reads the records of one network.
type Reader struct {
	logger      *zap.Logger
	paths       *config.Paths
	table       *schema.Table
	instruments *instrument.Definition
	formatter   *formatting.Formatter
	scaler      *convert.Scaler
}

// New creates a reader.
func New(logger *zap.Logger, paths *config.Paths, table *schema.Table, instruments *instrument.Definition, formatter *formatting.Formatter) (*Reader, error) {
	scaler, err := convert.NewScaler(paths.Dir)
	if err != nil {
		return nil, err
	}
	return &Reader{
		logger:      logger,
		paths:       paths,
		table:       table,
		instruments: instruments,
		formatter:   formatter,
		scaler:      scaler,
	}, nil
}

// Instruments returns the instrument numbering of the network.
func (r *Reader) Instruments() *instrument.Definition {
	return r.instruments
}

// Table returns the variable table.
func (r *Reader) Table() *schema.Table {
	return r.table
}

// Formatter returns the attribute formatter.
func (r *Reader) Formatter() *formatting.Formatter {
	return r.formatter
}

// Paths returns the network paths.
func (r *Reader) Paths() *config.Paths {
	return r.paths
}

// Read reads the record of a species at a site from an instrument, choosing
// the reader from the instrument name.
func (r *Reader) Read(sp, site, instr string, opts Options) (*dataset.Dataset, error) {
	r.logger.Debug("reading", zap.String("species", sp), zap.String("site", site), zap.String("instrument", instr))
	switch KindOf(instr) {
	case KindALEGAGE:
		ds, _, err := r.readALEGAGE(sp, site, instr, opts)
		return ds, err
	case KindMagnum:
		ds, _, err := r.readMagnum(sp, site, instr, opts)
		return ds, err
	case KindFlask:
		return r.ReadFlask(sp, site, instr, opts)
	}
	return r.ReadNC(sp, site, instr, opts)
}

// ScaleDefaults returns the scale argument used for an instrument: its own
// scale defaults file if the network has one.
func (r *Reader) ScaleDefaults(instr string) string {
	return selection.ChooseScaleDefaults(r.paths.Dir, instr)
}

// setInstrumentType adds the instrument_type variable.
func (r *Reader) setInstrumentType(ds *dataset.Dataset, instr string) error {
	n, err := r.instruments.Number(instr)
	if err != nil {
		return err
	}
	ds.Fill("instrument_type", float64(n), dataset.AttrsOf(
		"long_name", "ALE/GAGE/AGAGE instrument type",
		"comment", r.instruments.String(),
	))
	t, err := r.instruments.Type(n)
	if err != nil {
		return err
	}
	ds.Attrs.Set("instrument_type", t)
	return nil
}

// Exclude removes the excluded periods of a record.
func (r *Reader) Exclude(ds *dataset.Dataset, sp, site, instr string, combined bool) (*dataset.Dataset, error) {
	ex, err := selection.LoadExclusions(r.paths.Dir, site)
	if err != nil {
		return nil, err
	}
	return ex.Matching(sp, instr, combined).Apply(ds), nil
}

// releaseCut removes data after the release end date of the instrument.
func (r *Reader) releaseCut(ds *dataset.Dataset, sp, site, instr string) (*dataset.Dataset, error) {
	s, err := selection.LoadSchedule(r.paths.Dir, instr)
	if err != nil {
		return nil, err
	}
	rng, err := s.Range(sp, site)
	if err != nil {
		return nil, err
	}
	return ds.Sel(rng), nil
}

// flags applies the table's flag policies, dropping time points without a
// mole fraction when dropNaN is set.
func (r *Reader) flags(ds *dataset.Dataset, dropNaN bool) *dataset.Dataset {
	if dropNaN {
		return r.table.ApplyFlags(ds)
	}
	r.table.MaskFlagged(ds)
	return ds
}

// splitBaseline moves the baseline variable into its own dataset.
func splitBaseline(ds *dataset.Dataset) (data, flags *dataset.Dataset, err error) {
	b := ds.Var(convert.BaselineFlag)
	if b == nil {
		return nil, nil, fmt.Errorf("no %s variable", convert.BaselineFlag)
	}
	flags = dataset.New(ds.Time)
	flags.TimeAttrs = ds.TimeAttrs.Copy()
	flags.Attrs = ds.Attrs.Copy()
	if err := flags.Set(convert.BaselineFlag, b.Values, b.Attrs); err != nil {
		return nil, nil, err
	}
	data = ds.Copy()
	data.Drop(convert.BaselineFlag)
	return data, flags, nil
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
