package dataset

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func hours(hs ...int) []time.Time {
	out := make([]time.Time, len(hs))
	for i, h := range hs {
		out[i] = t0.Add(time.Duration(h) * time.Hour)
	}
	return out
}

func newDataset(t *testing.T, hs []int, mf []float64) *Dataset {
	t.Helper()
	ds := New(hours(hs...))
	require.NoError(t, ds.Set("mf", mf, AttrsOf("units", "ppt")))
	ds.Attrs.Set("species", "cfc-11")
	return ds
}

func TestSetDropRename(t *testing.T) {
	ds := newDataset(t, []int{0, 1}, []float64{1, 2})
	assert.Error(t, ds.Set("short", []float64{1}, nil))

	ds.Fill("count", 3, nil)
	require.NoError(t, ds.Set("flag", []float64{0, 1}, nil))
	assert.Equal(t, []string{"mf", "count", "flag"}, ds.Names())
	assert.Equal(t, []float64{3, 3}, ds.Values("count"))
	assert.NotNil(t, ds.Var("count").Attrs)

	ds.Rename("count", "flag")
	assert.Equal(t, []string{"mf", "flag"}, ds.Names())
	assert.Equal(t, []float64{3, 3}, ds.Values("flag"))

	ds.Reorder([]string{"flag", "missing"})
	assert.Equal(t, []string{"flag", "mf"}, ds.Names())

	ds.Drop("flag", "missing")
	assert.Equal(t, []string{"mf"}, ds.Names())
	assert.Nil(t, ds.Values("flag"))
}

func TestCopyIsDeep(t *testing.T) {
	ds := newDataset(t, []int{0, 1}, []float64{1, 2})
	c := ds.Copy()
	c.Values("mf")[0] = 9
	c.Var("mf").Attrs.Set("units", "ppb")
	c.Attrs.Set("species", "ch4")
	assert.Equal(t, []float64{1, 2}, ds.Values("mf"))
	assert.Equal(t, "ppt", ds.Var("mf").Attrs.String("units"))
	assert.Equal(t, "cfc-11", ds.Attrs.String("species"))
}

func TestSelAndDropNaN(t *testing.T) {
	ds := newDataset(t, []int{0, 24, 48, 72}, []float64{1, math.NaN(), 3, 4})

	r, err := ParseRange("2020-01-02", "2020-01-03")
	require.NoError(t, err)
	sel := ds.Sel(r)
	assert.Equal(t, hours(24, 48), sel.Time)

	r, err = Until("2020-01-02")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Sel(r).Len())

	clean := ds.DropNaN("mf")
	assert.Equal(t, []float64{1, 3, 4}, clean.Values("mf"))
	assert.Same(t, ds, ds.DropNaN("missing"))
}

func TestSortAndDuplicates(t *testing.T) {
	ds := newDataset(t, []int{2, 0, 1, 0, 2}, []float64{1, 2, 3, 4, 5})
	assert.False(t, ds.IsSorted())

	s := ds.SortByTime()
	assert.True(t, s.IsSorted())
	assert.Equal(t, []float64{2, 4, 3, 1, 5}, s.Values("mf"))
	assert.Same(t, s, s.SortByTime())

	assert.Equal(t, hours(0, 2), s.DuplicateTimes())
	assert.Equal(t, []bool{false, true, false, false, true}, s.DuplicateMask())
	u := s.DropDuplicateTimes()
	assert.Equal(t, []float64{2, 3, 1}, u.Values("mf"))
	assert.Equal(t, "2020-01-01 00:00:00", u.StartDate())
	assert.Equal(t, "2020-01-01 02:00:00", u.EndDate())
	assert.Equal(t, "", New(nil).StartDate())
}

func TestConcat(t *testing.T) {
	a := newDataset(t, []int{0}, []float64{1})
	b := New(hours(1, 2))
	require.NoError(t, b.Set("flag", []float64{1, 0}, AttrsOf("long_name", "flag")))
	b.Attrs.Set("species", "ch4")

	c, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, hours(0, 1, 2), c.Time)
	assert.Equal(t, []string{"mf", "flag"}, c.Names())
	mf := c.Values("mf")
	assert.Equal(t, 1.0, mf[0])
	assert.True(t, math.IsNaN(mf[1]) && math.IsNaN(mf[2]))
	assert.True(t, math.IsNaN(c.Values("flag")[0]))
	assert.Equal(t, "cfc-11", c.Attrs.String("species"))

	_, err = Concat()
	assert.Error(t, err)
}

func TestParseEnd(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2023", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)},
		{"2023-02", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)},
		{"2023-12-31", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)},
		{"2023-12-31 10:00", time.Date(2023, 12, 31, 10, 1, 0, 0, time.UTC).Add(-time.Nanosecond)},
		{"2023-12-31 10:00:05", time.Date(2023, 12, 31, 10, 0, 5, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEnd(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
	_, err := ParseTime("yesterday")
	assert.Error(t, err)

	r, err := ParseRange("", "")
	require.NoError(t, err)
	assert.True(t, r.Contains(t0))
	assert.Equal(t, ":", r.String())
}

func TestAttrs(t *testing.T) {
	a := AttrsOf("b", 1, "a", "x")
	a.Set("b", 2)
	assert.Equal(t, []string{"b", "a"}, a.Keys())
	assert.Equal(t, "2", a.String("b"))
	assert.Equal(t, "", a.String("missing"))

	c := a.Copy()
	c.Delete("b")
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, c.Len())

	a.Update(AttrsOf("c", []string{"y"}))
	assert.Equal(t, []string{"b", "a", "c"}, a.Keys())

	var j Attrs
	require.NoError(t, json.Unmarshal([]byte(`{"z": 1, "y": 1.5, "x": ["a", "b"], "w": "s"}`), &j))
	assert.Equal(t, []string{"z", "y", "x", "w"}, j.Keys())
	want := map[string]any{"z": int64(1), "y": 1.5, "x": []string{"a", "b"}, "w": "s"}
	if diff := cmp.Diff(want, j.Map()); diff != "" {
		t.Errorf("attrs mismatch (-want +got):\n%s", diff)
	}
}
