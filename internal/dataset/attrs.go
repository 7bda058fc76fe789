package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Attrs is an attribute map that remembers insertion order, so that files
// written from it list attributes the way they were added.
type Attrs struct {
	keys []string
	vals map[string]any
}

// NewAttrs creates an empty attribute map.
func NewAttrs() *Attrs {
	return &Attrs{vals: make(map[string]any)}
}

// AttrsOf builds an attribute map from alternating key/value pairs.
func AttrsOf(kv ...any) *Attrs {
	a := NewAttrs()
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return a
}

// Set adds or replaces an attribute.
func (a *Attrs) Set(key string, val any) {
	if a.vals == nil {
		a.vals = make(map[string]any)
	}
	if _, ok := a.vals[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.vals[key] = val
}

// Get returns the attribute value.
func (a *Attrs) Get(key string) (any, bool) {
	v, ok := a.vals[key]
	return v, ok
}

// Has reports whether the attribute is set.
func (a *Attrs) Has(key string) bool {
	_, ok := a.vals[key]
	return ok
}

// String returns the attribute formatted as a string, or "" if it is not set.
func (a *Attrs) String(key string) string {
	v, ok := a.vals[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Delete removes an attribute.
func (a *Attrs) Delete(key string) {
	if _, ok := a.vals[key]; !ok {
		return
	}
	delete(a.vals, key)
	a.keys = slices.DeleteFunc(a.keys, func(k string) bool { return k == key })
}

// Keys returns the attribute names in insertion order.
func (a *Attrs) Keys() []string {
	return slices.Clone(a.keys)
}

// Len returns the number of attributes.
func (a *Attrs) Len() int {
	return len(a.keys)
}

// Update copies every attribute of b into a.
func (a *Attrs) Update(b *Attrs) {
	if b == nil {
		return
	}
	for _, k := range b.keys {
		a.Set(k, b.vals[k])
	}
}

// Copy returns a shallow copy of the map. Slice values are cloned.
func (a *Attrs) Copy() *Attrs {
	c := &Attrs{
		keys: slices.Clone(a.keys),
		vals: make(map[string]any, len(a.vals)),
	}
	for k, v := range a.vals {
		switch vv := v.(type) {
		case []string:
			c.vals[k] = slices.Clone(vv)
		case []float64:
			c.vals[k] = slices.Clone(vv)
		default:
			c.vals[k] = v
		}
	}
	return c
}

// Map returns the attributes as a plain map.
func (a *Attrs) Map() map[string]any {
	m := make(map[string]any, len(a.vals))
	for k, v := range a.vals {
		m[k] = v
	}
	return m
}

// UnmarshalJSON reads a JSON object, keeping its key order. Integral numbers
// become int64, other numbers float64 and arrays of strings []string.
func (a *Attrs) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attributes must be a JSON object")
	}
	*a = Attrs{vals: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("attribute %q: %w", key, err)
		}
		a.Set(key, jsonValue(v))
	}
	_, err = dec.Token()
	return err
}

func jsonValue(v any) any {
	switch vv := v.(type) {
	case json.Number:
		if i, err := vv.Int64(); err == nil {
			return i
		}
		f, _ := vv.Float64()
		return f
	case []any:
		ss := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return vv
			}
			ss = append(ss, s)
		}
		return ss
	}
	return v
}
