package schema

import (
	"fmt"
	"math"
)

// Encoding is the on-disk representation of a variable.
type Encoding struct {
	Dtype     string   `json:"dtype"`
	FillValue *float64 `json:"fill_value,omitempty"`
	Units     string   `json:"units,omitempty"`
	Calendar  string   `json:"calendar,omitempty"`
}

type dtype struct {
	goType   string
	min, max float64
	fill     float64 // netCDF default fill value
	integer  bool
}

// dtypes maps netCDF4 type codes to their Go representation.
var dtypes = map[string]dtype{
	"f4": {goType: "float32", min: -math.MaxFloat32, max: math.MaxFloat32, fill: math.NaN()},
	"f8": {goType: "float64", min: -math.MaxFloat64, max: math.MaxFloat64, fill: math.NaN()},
	"i1": {goType: "int8", min: math.MinInt8, max: math.MaxInt8, fill: -127, integer: true},
	"i2": {goType: "int16", min: math.MinInt16, max: math.MaxInt16, fill: -32767, integer: true},
	"i4": {goType: "int32", min: math.MinInt32, max: math.MaxInt32, fill: -2147483647, integer: true},
}

// GoType returns the Go element type of the encoding, e.g. "int16".
func (e Encoding) GoType() string {
	return dtypes[e.Dtype].goType
}

// Fill returns the value written in place of NaN.
func (e Encoding) Fill() float64 {
	if e.FillValue != nil {
		return *e.FillValue
	}
	return dtypes[e.Dtype].fill
}

// HasFill reports whether missing values are written as a sentinel rather
// than NaN.
func (e Encoding) HasFill() bool {
	return e.FillValue != nil || dtypes[e.Dtype].integer
}

// FillAttr returns the fill value typed like the variable, for the
// _FillValue attribute.
func (e Encoding) FillAttr() any {
	v, _ := e.scalar(e.Fill())
	return v
}

// Encode converts a column to a typed slice of the encoding's dtype. NaN
// becomes the fill value; integer types round to the nearest integer and
// reject values out of range.
func (e Encoding) Encode(values []float64) (any, error) {
	d, ok := dtypes[e.Dtype]
	if !ok {
		return nil, fmt.Errorf("unsupported dtype %q", e.Dtype)
	}
	fill := e.Fill()
	conv := func(v float64) (float64, error) {
		if math.IsNaN(v) {
			return fill, nil
		}
		if d.integer {
			v = math.Round(v)
		}
		if v < d.min || v > d.max {
			return 0, fmt.Errorf("value %v out of range for dtype %s", v, e.Dtype)
		}
		return v, nil
	}
	switch e.Dtype {
	case "f4":
		out := make([]float32, len(values))
		for i, v := range values {
			c, err := conv(v)
			if err != nil {
				return nil, err
			}
			out[i] = float32(c)
		}
		return out, nil
	case "f8":
		out := make([]float64, len(values))
		for i, v := range values {
			c, err := conv(v)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case "i1":
		out := make([]int8, len(values))
		for i, v := range values {
			c, err := conv(v)
			if err != nil {
				return nil, err
			}
			out[i] = int8(c)
		}
		return out, nil
	case "i2":
		out := make([]int16, len(values))
		for i, v := range values {
			c, err := conv(v)
			if err != nil {
				return nil, err
			}
			out[i] = int16(c)
		}
		return out, nil
	case "i4":
		out := make([]int32, len(values))
		for i, v := range values {
			c, err := conv(v)
			if err != nil {
				return nil, err
			}
			out[i] = int32(c)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported dtype %q", e.Dtype)
}

func (e Encoding) scalar(v float64) (any, error) {
	switch e.Dtype {
	case "f4":
		return float32(v), nil
	case "f8":
		return v, nil
	case "i1":
		return int8(v), nil
	case "i2":
		return int16(v), nil
	case "i4":
		return int32(v), nil
	}
	return nil, fmt.Errorf("unsupported dtype %q", e.Dtype)
}

// Decode replaces fill values with NaN, undoing Encode for values read back
// as float64.
func (e Encoding) Decode(values []float64) []float64 {
	if !e.HasFill() {
		return values
	}
	fill := e.Fill()
	out := make([]float64, len(values))
	for i, v := range values {
		if v == fill {
			out[i] = math.NaN()
		} else {
			out[i] = v
		}
	}
	return out
}
