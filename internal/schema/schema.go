// Package schema holds the variable table every output file is built from:
// which variables an archive file carries, their attributes, their on-disk
// encoding, how each is aggregated when a timeseries is resampled, and what
// happens to it when the mole fraction at a time point is flagged or missing.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
)

//go:embed variables.json
var defaultTable []byte

// Method is the statistic used for a variable when several time points are
// aggregated into one.
type Method string

const (
	MethodMean       Method = "mean"
	MethodMedian     Method = "median"
	MethodSum        Method = "sum"
	MethodMin        Method = "min"
	MethodMax        Method = "max"
	MethodFirst      Method = "first"
	MethodLast       Method = "last"
	MethodCount      Method = "count"      // valid mole fractions in the bin
	MethodStd        Method = "std"        // standard deviation of the mole fractions in the bin
	MethodQuadrature Method = "quadrature" // sqrt(sum(x^2))/n
	MethodPeriod     Method = "period"     // bin length in seconds
)

var methods = []Method{
	MethodMean, MethodMedian, MethodSum, MethodMin, MethodMax, MethodFirst,
	MethodLast, MethodCount, MethodStd, MethodQuadrature, MethodPeriod,
}

// Policy is the treatment of a variable at time points where the mole
// fraction is flagged or missing.
type Policy string

const (
	PolicyNaN  Policy = "nan"  // value becomes NaN
	PolicyZero Policy = "zero" // value becomes 0
	PolicyKeep Policy = "keep" // value is left alone
	PolicyDrop Policy = "drop" // time point is removed where this variable is missing
)

// MoleFraction is the name of the primary measured variable.
const MoleFraction = "mf"

// Time is the name of the time coordinate.
const Time = "time"

// VarDef describes one variable of the table.
type VarDef struct {
	Name     string            `json:"-"`
	Attrs    map[string]string `json:"attrs"`
	Encoding Encoding          `json:"encoding"`
	Resample Method            `json:"resample_method"`
	Flagged  Policy            `json:"flagged"`
}

// Table is the ordered variable table.
type Table struct {
	defs  map[string]*VarDef
	order []string
}

// Default returns the built-in table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in variable table: %s", err))
	}
	return t
}

// LoadFile reads a table from a JSON file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load reads a table from JSON. The order of the variables in the JSON
// object is the order of the variables in output files.
func Load(r io.Reader) (*Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a JSON table.
func Parse(b []byte) (*Table, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("cannot decode variable table: %w", err)
	}
	order, err := objectKeys(b)
	if err != nil {
		return nil, err
	}
	t := &Table{defs: make(map[string]*VarDef, len(raw))}
	for _, name := range order {
		s := &VarDef{Name: name}
		if err := json.Unmarshal(raw[name], s); err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		t.defs[name] = s
		t.order = append(t.order, name)
	}
	if t.defs[Time] == nil {
		return nil, fmt.Errorf("variable table has no %q entry", Time)
	}
	if t.defs[MoleFraction] == nil {
		return nil, fmt.Errorf("variable table has no %q entry", MoleFraction)
	}
	return t, nil
}

// objectKeys returns the keys of the top-level JSON object in document order.
func objectKeys(b []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("variable table must be a JSON object")
	}
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in variable table", tok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		order = append(order, key)
	}
	return order, nil
}

func (s *VarDef) validate() error {
	if !slices.Contains(methods, s.Resample) {
		return fmt.Errorf("variable %q: unknown resample method %q", s.Name, s.Resample)
	}
	switch s.Flagged {
	case PolicyNaN, PolicyZero, PolicyKeep, PolicyDrop:
	case "":
		s.Flagged = PolicyKeep
	default:
		return fmt.Errorf("variable %q: unknown flag policy %q", s.Name, s.Flagged)
	}
	if _, ok := dtypes[s.Encoding.Dtype]; !ok {
		return fmt.Errorf("variable %q: unsupported dtype %q", s.Name, s.Encoding.Dtype)
	}
	return nil
}

// Lookup returns the definition of a variable.
func (t *Table) Lookup(name string) (*VarDef, bool) {
	s, ok := t.defs[name]
	return s, ok
}

// Names returns the variable names in table order, time included.
func (t *Table) Names() []string {
	return slices.Clone(t.order)
}

// DataNames returns the variable names in table order, without time.
func (t *Table) DataNames() []string {
	names := make([]string, 0, len(t.order))
	for _, n := range t.order {
		if n != Time {
			names = append(names, n)
		}
	}
	return names
}
