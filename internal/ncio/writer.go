package ncio

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/schema"
)

// fallback is the encoding of variables missing from the table.
var fallback = schema.Encoding{Dtype: "f8"}

// WriteFile writes a dataset to a netCDF file, encoding each variable as the
// table says. The time coordinate is written with the table's time units
// and calendar, whatever the dataset's time attributes say.
func WriteFile(path string, ds *dataset.Dataset, table *schema.Table) error {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	if err := write(cw, ds, table); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

func write(cw *cdf.CDFWriter, ds *dataset.Dataset, table *schema.Table) error {
	dims := []string{schema.Time}

	ts, _ := table.Lookup(schema.Time)
	tvals, err := encodeTime(ds.Time, ts.Encoding.Units)
	if err != nil {
		return err
	}
	tattrs := ds.TimeAttrs.Copy()
	tattrs.Delete("units")
	tattrs.Delete("calendar")
	tattrs.Set("units", ts.Encoding.Units)
	if ts.Encoding.Calendar != "" {
		tattrs.Set("calendar", ts.Encoding.Calendar)
	}
	if err := addVar(cw, schema.Time, tvals, tattrs, ts.Encoding, dims); err != nil {
		return err
	}

	for _, name := range ds.Names() {
		enc := fallback
		if def, ok := table.Lookup(name); ok {
			enc = def.Encoding
		}
		v := ds.Var(name)
		if err := addVar(cw, name, v.Values, v.Attrs, enc, dims); err != nil {
			return err
		}
	}

	global, err := orderedMap(ds.Attrs)
	if err != nil {
		return err
	}
	return cw.AddGlobalAttrs(global)
}

func addVar(cw *cdf.CDFWriter, name string, values []float64, attrs *dataset.Attrs, enc schema.Encoding, dims []string) error {
	data, err := enc.Encode(values)
	if err != nil {
		return fmt.Errorf("variable %s: %w", name, err)
	}
	a := attrs.Copy()
	a.Delete("_FillValue")
	if enc.HasFill() {
		a.Set("_FillValue", enc.FillAttr())
	}
	om, err := orderedMap(a)
	if err != nil {
		return fmt.Errorf("variable %s: %w", name, err)
	}
	if err := cw.AddVar(name, api.Variable{
		Values:     data,
		Dimensions: dims,
		Attributes: om,
	}); err != nil {
		return fmt.Errorf("variable %s: %w", name, err)
	}
	return nil
}

func orderedMap(a *dataset.Attrs) (*util.OrderedMap, error) {
	keys := a.Keys()
	vals := make(map[string]any, len(keys))
	for _, k := range keys {
		v, _ := a.Get(k)
		vals[k] = normaliseAttr(v)
	}
	return util.NewOrderedMap(keys, vals)
}
