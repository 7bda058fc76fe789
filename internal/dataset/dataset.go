// Package dataset holds a single-dimension (time) timeseries dataset: a time
// axis, named float64 columns with attributes, and global attributes.
package dataset

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

// DateLayout is the layout of the start_date and end_date attributes.
const DateLayout = "2006-01-02 15:04:05"

// Variable is a column of the dataset. Missing values are NaN.
type Variable struct {
	Values []float64
	Attrs  *Attrs
}

// Dataset is a collection of variables sharing a time axis.
type Dataset struct {
	Time      []time.Time
	TimeAttrs *Attrs
	Attrs     *Attrs

	vars  map[string]*Variable
	order []string
}

// New creates an empty dataset on the given time axis.
func New(t []time.Time) *Dataset {
	return &Dataset{
		Time:      t,
		TimeAttrs: NewAttrs(),
		Attrs:     NewAttrs(),
		vars:      make(map[string]*Variable),
	}
}

// Len returns the number of time points.
func (ds *Dataset) Len() int {
	return len(ds.Time)
}

// Names returns the variable names in the order they were added.
func (ds *Dataset) Names() []string {
	return slices.Clone(ds.order)
}

// Has reports whether the variable exists.
func (ds *Dataset) Has(name string) bool {
	_, ok := ds.vars[name]
	return ok
}

// Var returns the variable or nil.
func (ds *Dataset) Var(name string) *Variable {
	return ds.vars[name]
}

// Values returns the values of a variable or nil.
func (ds *Dataset) Values(name string) []float64 {
	if v := ds.vars[name]; v != nil {
		return v.Values
	}
	return nil
}

// Set adds or replaces a variable. values must be as long as the time axis.
func (ds *Dataset) Set(name string, values []float64, attrs *Attrs) error {
	if len(values) != len(ds.Time) {
		return fmt.Errorf("variable %q has %d values, time axis has %d", name, len(values), len(ds.Time))
	}
	if attrs == nil {
		attrs = NewAttrs()
	}
	if _, ok := ds.vars[name]; !ok {
		ds.order = append(ds.order, name)
	}
	ds.vars[name] = &Variable{Values: values, Attrs: attrs}
	return nil
}

// Fill adds or replaces a variable holding the same value at every time.
func (ds *Dataset) Fill(name string, v float64, attrs *Attrs) {
	values := make([]float64, len(ds.Time))
	for i := range values {
		values[i] = v
	}
	// Cannot fail: values has the length of the time axis.
	_ = ds.Set(name, values, attrs)
}

// Drop removes variables. Unknown names are ignored.
func (ds *Dataset) Drop(names ...string) {
	for _, name := range names {
		if _, ok := ds.vars[name]; !ok {
			continue
		}
		delete(ds.vars, name)
		ds.order = slices.DeleteFunc(ds.order, func(n string) bool { return n == name })
	}
}

// Rename renames a variable if it exists. An existing variable called to is
// replaced.
func (ds *Dataset) Rename(from, to string) {
	v, ok := ds.vars[from]
	if !ok || from == to {
		return
	}
	ds.Drop(to)
	delete(ds.vars, from)
	ds.vars[to] = v
	for i, n := range ds.order {
		if n == from {
			ds.order[i] = to
		}
	}
}

// Reorder moves the named variables to the front, in the given order.
func (ds *Dataset) Reorder(names []string) {
	var order []string
	for _, n := range names {
		if ds.Has(n) && !slices.Contains(order, n) {
			order = append(order, n)
		}
	}
	for _, n := range ds.order {
		if !slices.Contains(order, n) {
			order = append(order, n)
		}
	}
	ds.order = order
}

// Copy returns a deep copy of the dataset.
func (ds *Dataset) Copy() *Dataset {
	c := New(slices.Clone(ds.Time))
	c.TimeAttrs = ds.TimeAttrs.Copy()
	c.Attrs = ds.Attrs.Copy()
	for _, n := range ds.order {
		v := ds.vars[n]
		c.vars[n] = &Variable{Values: slices.Clone(v.Values), Attrs: v.Attrs.Copy()}
		c.order = append(c.order, n)
	}
	return c
}

// Take returns a new dataset holding the rows at the given indices, in that
// order.
func (ds *Dataset) Take(idx []int) *Dataset {
	t := make([]time.Time, len(idx))
	for i, j := range idx {
		t[i] = ds.Time[j]
	}
	c := New(t)
	c.TimeAttrs = ds.TimeAttrs.Copy()
	c.Attrs = ds.Attrs.Copy()
	for _, n := range ds.order {
		v := ds.vars[n]
		vals := make([]float64, len(idx))
		for i, j := range idx {
			vals[i] = v.Values[j]
		}
		c.vars[n] = &Variable{Values: vals, Attrs: v.Attrs.Copy()}
		c.order = append(c.order, n)
	}
	return c
}

// Filter returns a new dataset holding the rows for which keep is true.
func (ds *Dataset) Filter(keep func(i int) bool) *Dataset {
	idx := make([]int, 0, len(ds.Time))
	for i := range ds.Time {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return ds.Take(idx)
}

// Sel returns the rows within the time range.
func (ds *Dataset) Sel(r TimeRange) *Dataset {
	return ds.Filter(func(i int) bool { return r.Contains(ds.Time[i]) })
}

// DropNaN returns the rows where the variable is not NaN. A missing variable
// leaves the dataset unchanged.
func (ds *Dataset) DropNaN(name string) *Dataset {
	v := ds.vars[name]
	if v == nil {
		return ds
	}
	return ds.Filter(func(i int) bool { return !math.IsNaN(v.Values[i]) })
}

// IsSorted reports whether the time axis is monotonically increasing
// (duplicates allowed).
func (ds *Dataset) IsSorted() bool {
	return sort.SliceIsSorted(ds.Time, func(i, j int) bool { return ds.Time[i].Before(ds.Time[j]) })
}

// SortByTime returns the dataset sorted by time. The sort is stable, so rows
// sharing a timestamp keep their relative order.
func (ds *Dataset) SortByTime() *Dataset {
	if ds.IsSorted() {
		return ds
	}
	idx := make([]int, len(ds.Time))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return ds.Time[idx[a]].Before(ds.Time[idx[b]]) })
	return ds.Take(idx)
}

// DuplicateTimes returns every timestamp that occurs more than once, in order
// of first repetition.
func (ds *Dataset) DuplicateTimes() []time.Time {
	seen := make(map[int64]int, len(ds.Time))
	var dups []time.Time
	for _, t := range ds.Time {
		k := t.UnixNano()
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, t)
		}
	}
	return dups
}

// DuplicateMask marks every row whose timestamp was already seen earlier.
func (ds *Dataset) DuplicateMask() []bool {
	seen := make(map[int64]bool, len(ds.Time))
	mask := make([]bool, len(ds.Time))
	for i, t := range ds.Time {
		k := t.UnixNano()
		mask[i] = seen[k]
		seen[k] = true
	}
	return mask
}

// DropDuplicateTimes keeps the first row of every timestamp.
func (ds *Dataset) DropDuplicateTimes() *Dataset {
	mask := ds.DuplicateMask()
	if !slices.Contains(mask, true) {
		return ds
	}
	return ds.Filter(func(i int) bool { return !mask[i] })
}

// StartDate returns the first timestamp formatted with DateLayout, or "".
func (ds *Dataset) StartDate() string {
	if len(ds.Time) == 0 {
		return ""
	}
	return ds.Time[0].UTC().Format(DateLayout)
}

// EndDate returns the last timestamp formatted with DateLayout, or "".
func (ds *Dataset) EndDate() string {
	if len(ds.Time) == 0 {
		return ""
	}
	return ds.Time[len(ds.Time)-1].UTC().Format(DateLayout)
}

// Concat stacks datasets along time. Variables missing from a dataset are
// filled with NaN. Global and time attributes are taken from the first
// dataset; variable attributes from the first dataset holding the variable.
func Concat(dss ...*Dataset) (*Dataset, error) {
	if len(dss) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}
	var (
		t     []time.Time
		order []string
		attrs = make(map[string]*Attrs)
	)
	for _, ds := range dss {
		t = append(t, ds.Time...)
		for _, n := range ds.order {
			if _, ok := attrs[n]; !ok {
				order = append(order, n)
				attrs[n] = ds.vars[n].Attrs.Copy()
			}
		}
	}
	c := New(t)
	c.TimeAttrs = dss[0].TimeAttrs.Copy()
	c.Attrs = dss[0].Attrs.Copy()
	for _, n := range order {
		vals := make([]float64, 0, len(t))
		for _, ds := range dss {
			if v := ds.vars[n]; v != nil {
				vals = append(vals, v.Values...)
				continue
			}
			for range ds.Time {
				vals = append(vals, math.NaN())
			}
		}
		c.vars[n] = &Variable{Values: vals, Attrs: attrs[n]}
		c.order = append(c.order, n)
	}
	return c, nil
}
