package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/ncio"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/selection"
	"github.com/rtm0/agage/internal/testnet"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	dir := testnet.Dir(t)
	testnet.WriteGCWerks(t, dir, "CGO")
	testnet.WriteGCWerks(t, dir, "MHD")
	testnet.WriteFile(t, selection.CombinationPath(dir, "CGO"),
		[]byte("Species,ALE,GCMD\nCFC-11,:1978-01-31,2019-01-01:\n"))
	testnet.WriteFile(t, filepath.Join(dir, "README.md"), []byte("# Test archive\n"))

	p, err := New(zaptest.NewLogger(t), testnet.Paths(t, dir), schema.Default())
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return p, dir
}

func TestRunAll(t *testing.T) {
	p, dir := newTestPipeline(t)
	opts := DefaultOptions()
	opts.Concurrency = 2
	require.NoError(t, p.RunAll(context.Background(), opts))

	files, err := archive.NewSource(p.paths.OutputAbs()).List("*", true)
	require.NoError(t, err)
	for _, want := range []string{
		"README.md",
		"cfc-11/agage_test_cgo_cfc-11_v1.nc",
		"cfc-11/baseline-flags/agage_test_cgo_cfc-11_git-baseline-v1.nc",
		"cfc-11/monthly-baseline/agage_test_cgo_cfc-11_monthly-baseline-v1.nc",
		"cfc-11/individual-instruments/agage_test-gcmd_cgo_cfc-11_v1.nc",
		"cfc-11/individual-instruments/agage_test-ale-gcmd_cgo_cfc-11_v1.nc",
		"cfc-11/individual-instruments/agage_test-gcmd_mhd_cfc-11_v1.nc",
		"cfc-11/agage_test_mhd_cfc-11_v1.nc",
	} {
		assert.Contains(t, files, want)
	}
	// CGO has a combined record, so no single instrument is recommended
	var cgo []string
	for _, f := range files {
		if archive.Match("cfc-11/agage_test_cgo_*", f) {
			cgo = append(cgo, f)
		}
	}
	assert.Equal(t, []string{"cfc-11/agage_test_cgo_cfc-11_v1.nc"}, cgo)

	ds, err := ncio.ReadFile(filepath.Join(p.paths.OutputAbs(), "cfc-11", "agage_test_mhd_cfc-11_v1.nc"))
	require.NoError(t, err)
	assert.Equal(t, "Recommended instrument(s) selected and combined by station PIs", ds.Attrs.String("instrument_selection"))
	assert.NotEmpty(t, ds.Attrs.String("tracking_id"))

	// GAGE has no data at either site
	b, err := os.ReadFile(filepath.Join(dir, ErrorLogIndividual))
	require.NoError(t, err)
	assert.Contains(t, string(b), "Processing attempted on 2024-05-06 07:08:09\n")
	assert.Contains(t, string(b), "CGO cfc-11: reading GAGE")

	// a second run starts from an empty archive and log
	require.NoError(t, p.RunAll(context.Background(), opts))
	b2, err := os.ReadFile(filepath.Join(dir, ErrorLogIndividual))
	require.NoError(t, err)
	assert.Equal(t, string(b), string(b2))
}

func TestRunIndividualInstrument(t *testing.T) {
	p, _ := newTestPipeline(t)
	opts := DefaultOptions()
	opts.Sites = []string{"mhd"}
	opts.Baseline, opts.Monthly = false, false
	require.NoError(t, p.RunIndividualInstrument(context.Background(), "GCMD", opts))

	files, err := archive.NewSource(p.paths.OutputAbs()).List("*", true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cfc-11/agage_test_mhd_cfc-11_v1.nc",
		"cfc-11/individual-instruments/agage_test-gcmd_mhd_cfc-11_v1.nc",
	}, files)

	opts.Species = []string{"ch4"}
	require.NoError(t, p.RunIndividualInstrument(context.Background(), "GCMD", opts))

	opts.Monthly = true
	assert.Error(t, p.RunIndividualInstrument(context.Background(), "GCMD", opts))
}

func TestRunIndividualInstrumentResampled(t *testing.T) {
	dir := testnet.Dir(t)
	testnet.WritePicarro(t, dir, "MHD")
	p, err := New(zaptest.NewLogger(t), testnet.Paths(t, dir), schema.Default())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Sites = []string{"MHD"}
	require.NoError(t, p.RunIndividualInstrument(context.Background(), "Picarro", opts))
	_, err = os.Stat(filepath.Join(dir, ErrorLogIndividual))
	assert.True(t, os.IsNotExist(err))

	out := p.paths.OutputAbs()
	for _, folder := range []string{"ch4", "ch4/individual-instruments"} {
		name := "agage_test_mhd_ch4"
		if folder != "ch4" {
			name = "agage_test-picarro_mhd_ch4"
		}
		ds, err := ncio.ReadFile(filepath.Join(out, folder, name+"_v1.nc"))
		require.NoError(t, err)
		flags, err := ncio.ReadFile(filepath.Join(out, folder, "baseline-flags", name+"_git-baseline-v1.nc"))
		require.NoError(t, err)

		assert.Equal(t, []time.Time{
			time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC),
		}, ds.Time)
		assert.Equal(t, ds.Time, flags.Time)
		assert.Equal(t, []float64{1, 0}, flags.Values("baseline"))

		monthly, err := ncio.ReadFile(filepath.Join(out, folder, "monthly-baseline", name+"_monthly-baseline-v1.nc"))
		require.NoError(t, err)
		require.Equal(t, 1, monthly.Len())
		assert.InDelta(t, 1901, monthly.Values("mf")[0], 1e-3)
	}
}

func TestRunCombinedInstruments(t *testing.T) {
	p, dir := newTestPipeline(t)
	testnet.WriteFile(t, selection.CombinationPath(dir, "MHD"),
		[]byte("Species,GCMD\nCFC-11,1990-01-01:1990-12-31\n"))
	opts := DefaultOptions()
	require.NoError(t, p.RunCombinedInstruments(context.Background(), opts))

	files, err := archive.NewSource(p.paths.OutputAbs()).List("*.nc", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"cfc-11/agage_test_cgo_cfc-11_v1.nc"}, files)

	b, err := os.ReadFile(filepath.Join(dir, ErrorLogCombined))
	require.NoError(t, err)
	assert.Contains(t, string(b), "MHD cfc-11: combining: no data retained")
}

func TestWriteErrorLog(t *testing.T) {
	p, dir := newTestPipeline(t)
	require.NoError(t, p.writeErrorLog("log.txt", []Result{{Site: "MHD", Species: "ch4"}}))
	_, err := os.Stat(filepath.Join(dir, "log.txt"))
	assert.True(t, os.IsNotExist(err))

	results := []Result{
		{Site: "MHD", Species: "ch4", Err: errors.New("first\nsecond")},
		{Site: "CGO", Species: "ch4"},
	}
	require.NoError(t, p.writeErrorLog("log.txt", results))
	require.NoError(t, p.writeErrorLog("log.txt", results))
	b, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	require.NoError(t, err)
	entry := "Processing attempted on 2024-05-06 07:08:09\nMHD ch4: first / second\n"
	assert.Equal(t, entry+entry, string(b))
}

func TestFilters(t *testing.T) {
	assert.Equal(t, []string{"c2f6"}, filterSpecies([]string{"cfc-11", "c2f6"}, []string{"PFC-116"}))
	assert.Equal(t, []string{"a", "b"}, filterSpecies([]string{"a", "b"}, nil))
	assert.Equal(t, []string{"MHD"}, filterSites([]string{"CGO", "MHD"}, []string{"mhd"}))
}
