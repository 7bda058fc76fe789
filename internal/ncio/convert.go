package ncio

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/rtm0/agage/internal/dataset"
)

// toFloat64 converts the values of a one-dimensional variable. Character
// variables become the byte value of each character.
func toFloat64(v any) ([]float64, error) {
	switch vv := v.(type) {
	case []float64:
		return append([]float64(nil), vv...), nil
	case []float32:
		return convertSlice(vv), nil
	case []int8:
		return convertSlice(vv), nil
	case []int16:
		return convertSlice(vv), nil
	case []int32:
		return convertSlice(vv), nil
	case []int64:
		return convertSlice(vv), nil
	case []uint8:
		return convertSlice(vv), nil
	case []uint16:
		return convertSlice(vv), nil
	case []uint32:
		return convertSlice(vv), nil
	case []uint64:
		return convertSlice(vv), nil
	case string:
		out := make([]float64, len(vv))
		for i := 0; i < len(vv); i++ {
			out[i] = float64(vv[i])
		}
		return out, nil
	case []string:
		out := make([]float64, len(vv))
		for i, s := range vv {
			if s != "" {
				out[i] = float64(s[0])
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported variable type %T", v)
}

func convertSlice[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// scalarFloat converts a numeric attribute value.
func scalarFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int8:
		return float64(vv), true
	case int16:
		return float64(vv), true
	case int32:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case uint8:
		return float64(vv), true
	case uint16:
		return float64(vv), true
	case uint32:
		return float64(vv), true
	case int:
		return float64(vv), true
	}
	if s, err := toFloat64(v); err == nil && len(s) == 1 {
		if _, isString := v.(string); !isString {
			return s[0], true
		}
	}
	return 0, false
}

// attrsFrom copies a netCDF attribute map. Single-element numeric arrays are
// stored as scalars.
func attrsFrom(m api.AttributeMap) *dataset.Attrs {
	a := dataset.NewAttrs()
	if m == nil {
		return a
	}
	for _, k := range m.Keys() {
		v, ok := m.Get(k)
		if !ok {
			continue
		}
		if _, isString := v.(string); !isString {
			if f, ok := scalarFloat(v); ok {
				v = f
			}
		}
		a.Set(k, v)
	}
	return a
}

// normaliseAttr converts an attribute value to a type the netCDF writer
// accepts.
func normaliseAttr(v any) any {
	switch vv := v.(type) {
	case string, float64, float32, int8, int16, int32:
		return vv
	case int:
		if vv >= math.MinInt32 && vv <= math.MaxInt32 {
			return int32(vv)
		}
		return float64(vv)
	case int64:
		if vv >= math.MinInt32 && vv <= math.MaxInt32 {
			return int32(vv)
		}
		return float64(vv)
	case bool:
		if vv {
			return "true"
		}
		return "false"
	case []string:
		return strings.Join(vv, "; ")
	case []float64:
		return vv
	}
	return fmt.Sprint(v)
}

// parseTimeUnits splits CF time units ("seconds since 1970-01-01 00:00:00")
// into the step and the reference time.
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("cannot interpret time units %q", units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", unit)
	}
	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(ref, " UTC")
	ref = strings.TrimSuffix(ref, "Z")
	ref = strings.TrimSuffix(ref, "+00:00")
	if i := strings.IndexByte(ref, '.'); i > 0 {
		ref = ref[:i]
	}
	epoch, err := dataset.ParseTime(ref)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("cannot interpret time units %q: %w", units, err)
	}
	return step, epoch, nil
}

// decodeTime converts time values with CF units to timestamps.
func decodeTime(values []float64, units string) ([]time.Time, error) {
	step, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("missing time value at index %d", i)
		}
		out[i] = epoch.Add(time.Duration(math.Round(v * float64(step))))
	}
	return out, nil
}

// encodeTime converts timestamps to values with CF units.
func encodeTime(t []time.Time, units string) ([]float64, error) {
	step, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t))
	for i, ts := range t {
		out[i] = float64(ts.Sub(epoch)) / float64(step)
	}
	return out, nil
}
