// Package convert derives new timeseries from a dataset: resampled records,
// records on another calibration scale and monthly baseline means.
package convert

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/schema"
)

// bins splits a dataset into consecutive groups of time points. start maps
// a time to the start of its bin and next maps a bin start to the following
// one. The dataset must be sorted.
type bins struct {
	starts []time.Time
	ends   []time.Time
	idx    [][]int
}

func binBy(ds *dataset.Dataset, start func(time.Time) time.Time, next func(time.Time) time.Time) *bins {
	b := &bins{}
	for i, t := range ds.Time {
		s := start(t)
		if n := len(b.starts); n > 0 && b.starts[n-1].Equal(s) {
			b.idx[n-1] = append(b.idx[n-1], i)
			continue
		}
		b.starts = append(b.starts, s)
		b.ends = append(b.ends, next(s))
		b.idx = append(b.idx, []int{i})
	}
	return b
}

// aggregate reduces every bin to one time point, using each variable's
// resample method. Variables missing from the table are averaged.
func aggregate(ds *dataset.Dataset, table *schema.Table, b *bins) (*dataset.Dataset, error) {
	out := dataset.New(b.starts)
	out.TimeAttrs = ds.TimeAttrs.Copy()
	out.Attrs = ds.Attrs.Copy()

	mf := ds.Values(schema.MoleFraction)
	for _, name := range ds.Names() {
		method := schema.MethodMean
		if def, ok := table.Lookup(name); ok {
			method = def.Resample
		}
		v := ds.Var(name)
		vals := make([]float64, len(b.starts))
		for k, idx := range b.idx {
			period := b.ends[k].Sub(b.starts[k])
			vals[k] = reduce(method, pick(v.Values, idx), pick(mf, idx), period)
		}
		if err := out.Set(name, vals, v.Attrs.Copy()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func pick(values []float64, idx []int) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

func valid(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// reduce applies a resample method to the values of one bin. mf holds the
// mole fractions of the same time points.
func reduce(method schema.Method, x, mf []float64, period time.Duration) float64 {
	switch method {
	case schema.MethodPeriod:
		return period.Seconds()
	case schema.MethodCount:
		return float64(len(valid(mf)))
	case schema.MethodStd:
		m := valid(mf)
		if len(m) < 2 {
			return 0
		}
		return stat.StdDev(m, nil)
	}

	x = valid(x)
	if len(x) == 0 {
		if method == schema.MethodSum {
			return 0
		}
		return math.NaN()
	}
	switch method {
	case schema.MethodMedian:
		return median(x)
	case schema.MethodSum:
		return floats.Sum(x)
	case schema.MethodMin:
		return floats.Min(x)
	case schema.MethodMax:
		return floats.Max(x)
	case schema.MethodFirst:
		return x[0]
	case schema.MethodLast:
		return x[len(x)-1]
	case schema.MethodQuadrature:
		return math.Sqrt(floats.Dot(x, x)) / float64(len(x))
	}
	return stat.Mean(x, nil)
}

func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
