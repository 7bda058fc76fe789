package combine

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/formatting"
	"github.com/rtm0/agage/internal/instrument"
	"github.com/rtm0/agage/internal/reader"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/selection"
	"github.com/rtm0/agage/internal/testnet"
)

func newTestCombiner(t *testing.T, dir string) *Combiner {
	t.Helper()
	files, err := selection.ScheduleFiles(dir)
	require.NoError(t, err)
	defs, err := instrument.Define(files)
	require.NoError(t, err)
	f, err := formatting.NewFormatter(dir, testnet.Network, "tester")
	require.NoError(t, err)
	r, err := reader.New(zaptest.NewLogger(t), testnet.Paths(t, dir), schema.Default(), defs, f)
	require.NoError(t, err)
	return New(zaptest.NewLogger(t), r)
}

func TestDropDuplicates(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	t1, t2, t3 := t0.Add(time.Hour), t0.Add(2*time.Hour), t0.Add(3*time.Hour)
	nan := math.NaN()
	ds := dataset.New([]time.Time{t0, t0, t1, t1, t2, t2, t3})
	require.NoError(t, ds.Set("mf", []float64{1, 2, nan, 5, nan, nan, 7}, nil))
	require.NoError(t, ds.Set("instrument_type", []float64{2, 0, 0, 2, 0, 2, 0}, nil))

	got := DropDuplicates(ds)
	assert.Equal(t, []time.Time{t0, t1, t2, t3}, got.Time)
	mf := got.Values("mf")
	assert.Equal(t, []float64{1, 5}, mf[:2])
	assert.True(t, math.IsNaN(mf[2]))
	assert.Equal(t, 7.0, mf[3])
	assert.Equal(t, []float64{2, 2, 0, 0}, got.Values("instrument_type"))

	unique := dataset.New([]time.Time{t0, t1})
	assert.Same(t, unique, DropDuplicates(unique))
}

func TestTimestampChecks(t *testing.T) {
	defs, err := instrument.Define([]string{"data_release_schedule_ALE.csv", "data_release_schedule_GCMD.csv"})
	require.NoError(t, err)
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	ds := dataset.New([]time.Time{t0, t0.Add(time.Hour)})
	flags := dataset.New([]time.Time{t0, t0.Add(time.Hour)})
	assert.NoError(t, TimestampChecks(ds, flags, defs, "cfc-11", "MHD"))
	assert.NoError(t, TimestampChecks(ds, nil, defs, "cfc-11", "MHD"))

	other := dataset.New([]time.Time{t0, t0.Add(2 * time.Hour)})
	assert.ErrorContains(t, TimestampChecks(ds, other, defs, "cfc-11", "MHD"), "different timestamps")

	dupFlags := dataset.New([]time.Time{t0, t0})
	assert.ErrorContains(t, TimestampChecks(ds, dupFlags, defs, "cfc-11", "MHD"), "baseline")

	dup := dataset.New([]time.Time{t0, t0})
	require.NoError(t, dup.Set("instrument_type", []float64{0, 1}, nil))
	err = TimestampChecks(dup, nil, defs, "cfc-11", "MHD")
	assert.ErrorContains(t, err, "2020-01-01 00:00:00")
	assert.ErrorContains(t, err, "GCMD")
}

func TestCombineDatasets(t *testing.T) {
	dir := testnet.Dir(t)
	testnet.WriteGCWerks(t, dir, "CGO")
	testnet.WriteFile(t, selection.CombinationPath(dir, "CGO"),
		[]byte("Species,ALE,GCMD\nCFC-11,:1978-01-31,2019-01-01:\n"))
	c := newTestCombiner(t, dir)

	ds, err := c.CombineDatasets("CFC-11", "CGO", reader.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 6, ds.Len())
	assert.True(t, ds.IsSorted())
	assert.Equal(t, []float64{150.5, 151, 152, 240, 241, 243}, ds.Values("mf"))
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1}, ds.Values("mf_count"))
	assert.Equal(t, "ALE/GCMD", ds.Attrs.String("instrument_type"))
	assert.Equal(t, "ALE_GCMD", ds.Attrs.String("instrument"))
	assert.Equal(t, "GCMD", ds.Attrs.String("instrument_1"))
	assert.Equal(t, instrument.SelectionText, ds.Attrs.String("instrument_selection"))
	assert.Equal(t, testnet.Network, ds.Attrs.String("network"))
	assert.Contains(t, ds.Attrs.String("comment"), combinedHeading+"0) ALE CFC-11 data from Cape Grim")
	assert.Contains(t, ds.Attrs.String("comment"), "1) GCMD test data\n")
	assert.Equal(t, "1978-01-01 02:00:00", ds.Attrs.String("start_date"))

	flags, err := c.CombineBaseline("CFC-11", "CGO", true, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 1, 0, 0}, flags.Values("baseline"))
	assert.False(t, flags.Has("instrument_type"))
	assert.Equal(t, instrument.SelectionText, flags.Attrs.String("instrument_selection"))
	assert.NoError(t, TimestampChecks(ds, flags, c.reader.Instruments(), "cfc-11", "CGO"))
}

func TestCombineResampled(t *testing.T) {
	dir := testnet.Dir(t)
	testnet.WritePicarro(t, dir, "MHD")
	testnet.WriteFile(t, selection.CombinationPath(dir, "MHD"),
		[]byte("Species,Picarro\nCH4,2020-01-01:\n"))
	c := newTestCombiner(t, dir)

	ds, err := c.CombineDatasets("CH4", "MHD", reader.DefaultOptions())
	require.NoError(t, err)
	flags, err := c.CombineBaseline("CH4", "MHD", true, true)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC),
	}, ds.Time)
	assert.Equal(t, ds.Time, flags.Time)
	assert.Equal(t, []float64{1, 0}, flags.Values("baseline"))
	assert.NoError(t, TimestampChecks(ds, flags, c.reader.Instruments(), "ch4", "MHD"))
}

func TestCombineNoData(t *testing.T) {
	dir := testnet.Dir(t)
	testnet.WriteGCWerks(t, dir, "CGO")
	testnet.WriteFile(t, filepath.Join(dir, selection.CombinationDir, "data_combination_CGO.csv"),
		[]byte("Species,ALE,GCMD\nCFC-11,:1978-01-31,1990-01-01:1990-12-31\n"))
	c := newTestCombiner(t, dir)

	_, err := c.CombineDatasets("CFC-11", "CGO", reader.DefaultOptions())
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorContains(t, err, "GCMD")

	_, err = c.CombineDatasets("CFC-11", "MHD", reader.DefaultOptions())
	assert.ErrorContains(t, err, "no instruments to combine")
}
