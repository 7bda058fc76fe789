package selection

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/agage/internal/dataset"
)

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestSchedule(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, SchedulePath(dir, "GCMD"), `Species,MHD,CGO,SMO
# Release schedule for GCMD
# General release date: 2023-12-31
CFC-11,,2022-06-30,x
N2O,x,,
`)
	writeFile(t, SchedulePath(dir, "ALE"), "Species,MHD\nCFC-11,\n")

	s, err := LoadSchedule(dir, "GCMD")
	require.NoError(t, err)
	assert.Equal(t, []string{"MHD", "CGO", "SMO"}, s.Sites())
	assert.Equal(t, []string{"cfc-11", "n2o"}, s.Species())
	assert.Equal(t, "2023-12-31", s.General)

	end, err := s.EndDate("cfc-11", "mhd")
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", end)

	end, err = s.EndDate("CFC-11", "CGO")
	require.NoError(t, err)
	assert.Equal(t, "2022-06-30", end)

	_, err = s.EndDate("cfc-11", "SMO")
	assert.ErrorIs(t, err, ErrNotReleased)
	_, err = s.EndDate("ch4", "MHD")
	assert.ErrorIs(t, err, ErrNotReleased)
	assert.False(t, s.Released("n2o", "MHD"))
	assert.True(t, s.Released("n2o", "SMO"))

	r, err := s.Range("cfc-11", "MHD")
	require.NoError(t, err)
	assert.True(t, r.Contains(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	instruments, err := Instruments(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALE", "GCMD"}, instruments)
}

func TestCombination(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, CombinationPath(dir, "MHD"), `# Instruments to combine
Species,ALE,GAGE,GCMD
CFC-11,:1983-12-31,1984-01-01:1993-12-31,1994-01-01:
N2O,x,,1994:
`)
	c, err := LoadCombination(dir, "mhd")
	require.NoError(t, err)
	assert.Equal(t, []string{"cfc-11", "n2o"}, c.Species())

	ir := c.Instruments("cfc-11")
	require.Len(t, ir, 3)
	assert.Equal(t, "ALE", ir[0].Instrument)
	assert.True(t, ir[0].Range.Start.IsZero())
	assert.Equal(t, time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC), ir[2].Range.Start)
	assert.True(t, ir[2].Range.End.IsZero())

	ir = c.Instruments("n2o")
	require.Len(t, ir, 1)
	assert.Equal(t, "GCMD", ir[0].Instrument)
	assert.Empty(t, c.Instruments("ch4"))

	empty, err := LoadCombination(dir, "CGO")
	require.NoError(t, err)
	assert.Empty(t, empty.Species())

	sites, err := CombinationSites(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"MHD"}, sites)
}

func TestCombinationBadCell(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, CombinationPath(dir, "MHD"), "Species,GCMD\nCFC-11,1994-01-01\n")
	_, err := LoadCombination(dir, "MHD")
	assert.Error(t, err)
}

func TestExclusions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, ExcludePath(dir, "MHD"), `Species,Instrument,Start,End,Combined,Comment
CFC-11,GCMD,2020-01-01,2020-01-01,,bad day
all,GCMD,2020-01-03 00:00,2020-01-03 06:00,,
CFC-11,GCMD,2020-01-05,2020-01-05,yes,only in combined record
`)
	ex, err := LoadExclusions(dir, "MHD")
	require.NoError(t, err)
	require.Len(t, ex, 3)

	assert.Len(t, ex.Matching("cfc-11", "GCMD", false), 2)
	assert.Len(t, ex.Matching("n2o", "GCMD", false), 1)
	assert.Len(t, ex.Matching("cfc-11", "GCMD", true), 1)
	assert.Empty(t, ex.Matching("cfc-11", "Picarro", false))

	t0 := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{t0, t0.Add(24 * time.Hour), t0.AddDate(0, 0, 2).Add(-9 * time.Hour), t0.AddDate(0, 0, 2)}
	ds := dataset.New(times)
	require.NoError(t, ds.Set("mf", []float64{1, 2, 3, 4}, nil))

	out := ex.Matching("cfc-11", "GCMD", false).Apply(ds)
	assert.Equal(t, []float64{2, 4}, out.Values("mf"))

	none, err := LoadExclusions(dir, "CGO")
	require.NoError(t, err)
	assert.Same(t, ds, none.Apply(ds))
}

func TestScales(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "scale_defaults.csv"), "Species,Scale\nCFC-11,SIO-05\nCH4,TU-87\n")
	writeFile(t, filepath.Join(dir, "scale_defaults-Picarro.csv"), "Species,Scale\nCH4,NOAA-2004A\n")
	writeFile(t, filepath.Join(dir, "scale_convert.csv"), "Species,From,To,Factor\nCH4,TU-87,NOAA-2004A,1.0124\n")

	assert.Equal(t, "defaults-Picarro", ChooseScaleDefaults(dir, "Picarro"))
	assert.Equal(t, "defaults", ChooseScaleDefaults(dir, "GCMD"))
	assert.True(t, IsDefaults("defaults-Picarro"))
	assert.False(t, IsDefaults("SIO-05"))

	s, err := ScaleDefault(dir, "defaults", "cfc-11")
	require.NoError(t, err)
	assert.Equal(t, "SIO-05", s)
	s, err = ScaleDefault(dir, "defaults-Picarro", "ch4")
	require.NoError(t, err)
	assert.Equal(t, "NOAA-2004A", s)
	_, err = ScaleDefault(dir, "defaults", "sf6")
	assert.Error(t, err)

	cs, err := LoadConversions(dir)
	require.NoError(t, err)
	f, ok := cs.Factor("ch4", "TU-87", "NOAA-2004A")
	require.True(t, ok)
	assert.InDelta(t, 1.0124, f, 1e-12)
	f, ok = cs.Factor("ch4", "NOAA-2004A", "TU-87")
	require.True(t, ok)
	assert.InDelta(t, 1/1.0124, f, 1e-12)
	_, ok = cs.Factor("n2o", "SIO-16", "SIO-98")
	assert.False(t, ok)
}
