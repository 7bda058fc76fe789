package ncio

import (
	"fmt"
	"math"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of timestamps read by a single Scan.
const DefaultBatchSize = 10000

// Record is a set of readings taken at a given time.
type Record struct {
	// Timestamp is in milliseconds since the Unix epoch.
	Timestamp int64
	// Values are in the order of Scanner.Names. Missing values are NaN.
	Values []float64
}

type column struct {
	name  string
	vg    api.VarGetter
	fills []float64
}

// Scanner retrieves the records of an archive file a batch of timestamps at
// a time, so that large files need not be held in memory.
type Scanner struct {
	nc     api.Group
	labels map[string]string
	ts     []int64
	cols   []column
	batch  int
	pos    int
	recs   []Record
	err    error
}

// NewScanner creates a scanner over every numeric time-series variable of a
// file written by WriteFile (or a GCWerks file).
func NewScanner(filePath string, batch int) (*Scanner, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	s, err := newScanner(nc, batch)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("cannot scan %s: %w", filePath, err)
	}
	return s, nil
}

func newScanner(nc api.Group, batch int) (*Scanner, error) {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	s := &Scanner{nc: nc, batch: batch}

	f := &File{nc: nc}
	tc, err := f.Column("time")
	if err != nil {
		return nil, err
	}
	t, err := decodeTime(tc.Values, tc.Attrs.String("units"))
	if err != nil {
		return nil, err
	}
	s.ts = make([]int64, len(t))
	for i, ts := range t {
		s.ts[i] = ts.UnixMilli()
	}

	for _, name := range nc.ListVariables() {
		if name == "time" {
			continue
		}
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, err
		}
		if dims := vg.Dimensions(); len(dims) != 1 || dims[0] != tc.Dimensions[0] {
			continue
		}
		switch vg.GoType() {
		case "string", "[]string":
			continue
		}
		c := column{name: name, vg: vg}
		attrs := attrsFrom(vg.Attributes())
		for _, k := range []string{"_FillValue", "missing_value"} {
			if v, ok := attrs.Get(k); ok {
				if fv, ok := scalarFloat(v); ok {
					c.fills = append(c.fills, fv)
				}
			}
		}
		s.cols = append(s.cols, c)
	}

	s.labels = make(map[string]string)
	global := f.Attrs()
	for _, k := range []string{"site_code", "species", "network", "instrument", "calibration_scale", "units"} {
		if v := global.String(k); v != "" {
			s.labels[k] = v
		}
	}
	return s, nil
}

// Close closes the scanner.
func (s *Scanner) Close() {
	s.nc.Close()
}

// Names returns the variable names in the order of Record.Values.
func (s *Scanner) Names() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.name
	}
	return names
}

// Labels returns identifying global attributes of the file (site code,
// species, network...) suitable as time-series labels.
func (s *Scanner) Labels() map[string]string {
	return s.labels
}

// Summary returns the summary information about the file suitable for
// logging.
func (s *Scanner) Summary() []zap.Field {
	var first, last string
	if len(s.ts) > 0 {
		first = time.UnixMilli(s.ts[0]).UTC().Format(time.RFC3339)
		last = time.UnixMilli(s.ts[len(s.ts)-1]).UTC().Format(time.RFC3339)
	}
	return []zap.Field{
		zap.Strings("metrics", s.Names()),
		zap.Any("labels", s.labels),
		zap.Int("tsCnt", len(s.ts)),
		zap.String("first", first),
		zap.String("last", last),
		zap.Int("totalRecCnt", s.TotalRecCount()),
	}
}

// TotalRecCount returns the total number of values within the file.
func (s *Scanner) TotalRecCount() int {
	return len(s.ts) * len(s.cols)
}

// Scan reads the records of the next batch of timestamps.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.pos >= len(s.ts) {
		return false
	}
	begin := s.pos
	limit := min(begin+s.batch, len(s.ts))

	s.recs = make([]Record, limit-begin)
	for i := range s.recs {
		s.recs[i].Timestamp = s.ts[begin+i]
		s.recs[i].Values = make([]float64, len(s.cols))
	}
	for j, c := range s.cols {
		v, err := c.vg.GetSlice(int64(begin), int64(limit))
		if err != nil {
			s.err = fmt.Errorf("variable %s: %w", c.name, err)
			s.recs = nil
			return false
		}
		vals, err := toFloat64(v)
		if err != nil {
			s.err = fmt.Errorf("variable %s: %w", c.name, err)
			s.recs = nil
			return false
		}
		for i, x := range vals {
			for _, fv := range c.fills {
				if x == fv {
					x = math.NaN()
				}
			}
			s.recs[i].Values[j] = x
		}
	}
	s.pos = limit
	return true
}

// Err returns the error that stopped Scan, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Records returns the records that have been read by the last Scan() operation.
// The function transfers ownership of records to the caller and the subsequent
// calls to this function without prior invocation of Scan() will return nil.
func (s *Scanner) Records() []Record {
	recs := s.recs
	s.recs = nil
	return recs
}
