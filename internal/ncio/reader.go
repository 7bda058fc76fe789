// Package ncio reads and writes netCDF files as datasets.
package ncio

import (
	"fmt"
	"math"
	"slices"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/rtm0/agage/internal/dataset"
)

// File is an open netCDF file (classic CDF or HDF5-based netCDF4).
type File struct {
	nc api.Group
}

// Open opens a netCDF file.
func Open(path string) (*File, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return &File{nc: nc}, nil
}

// Close closes the file.
func (f *File) Close() {
	f.nc.Close()
}

// Attrs returns the global attributes.
func (f *File) Attrs() *dataset.Attrs {
	return attrsFrom(f.nc.Attributes())
}

// Has reports whether the file holds a variable.
func (f *File) Has(name string) bool {
	return slices.Contains(f.nc.ListVariables(), name)
}

// Column is a one-dimensional variable.
type Column struct {
	Values     []float64
	Attrs      *dataset.Attrs
	Dimensions []string
}

// Column reads a variable. _FillValue and missing_value entries become NaN
// and the attributes are dropped, since the writer derives them from the
// variable table.
func (f *File) Column(name string) (*Column, error) {
	v, err := f.nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	vals, err := toFloat64(v.Values)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	attrs := attrsFrom(v.Attributes)
	for _, k := range []string{"_FillValue", "missing_value"} {
		fv, ok := attrs.Get(k)
		if !ok {
			continue
		}
		if fill, ok := scalarFloat(fv); ok {
			for i, x := range vals {
				if x == fill || (math.IsNaN(fill) && math.IsNaN(x)) {
					vals[i] = math.NaN()
				}
			}
		}
		attrs.Delete(k)
	}
	return &Column{Values: vals, Attrs: attrs, Dimensions: v.Dimensions}, nil
}

// Dataset reads the time variable and every other variable along the same
// single dimension. Variables of other shapes are skipped.
func (f *File) Dataset(timeName string) (*dataset.Dataset, error) {
	tc, err := f.Column(timeName)
	if err != nil {
		return nil, err
	}
	if len(tc.Dimensions) != 1 {
		return nil, fmt.Errorf("time variable %s must have one dimension, has %d", timeName, len(tc.Dimensions))
	}
	t, err := decodeTime(tc.Values, tc.Attrs.String("units"))
	if err != nil {
		return nil, err
	}
	ds := dataset.New(t)
	ds.TimeAttrs = tc.Attrs
	ds.Attrs = f.Attrs()
	for _, name := range f.nc.ListVariables() {
		if name == timeName {
			continue
		}
		vg, err := f.nc.GetVarGetter(name)
		if err != nil {
			return nil, err
		}
		dims := vg.Dimensions()
		if len(dims) != 1 || dims[0] != tc.Dimensions[0] {
			continue
		}
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		if err := ds.Set(name, c.Values, c.Attrs); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// ReadFile reads a netCDF file with a "time" coordinate into a dataset.
func ReadFile(path string) (*dataset.Dataset, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Dataset("time")
}
