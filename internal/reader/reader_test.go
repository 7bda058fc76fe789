package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rtm0/agage/internal/archive"
	"github.com/rtm0/agage/internal/convert"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/formatting"
	"github.com/rtm0/agage/internal/instrument"
	"github.com/rtm0/agage/internal/ncio"
	"github.com/rtm0/agage/internal/schema"
	"github.com/rtm0/agage/internal/selection"
	"github.com/rtm0/agage/internal/testnet"
)

func newTestReader(t *testing.T, dir string) *Reader {
	t.Helper()
	paths := testnet.Paths(t, dir)
	files, err := selection.ScheduleFiles(dir)
	require.NoError(t, err)
	instruments, err := instrument.Define(files)
	require.NoError(t, err)
	formatter, err := formatting.NewFormatter(dir, testnet.Network, "tester")
	require.NoError(t, err)
	r, err := New(zaptest.NewLogger(t), paths, schema.Default(), instruments, formatter)
	require.NoError(t, err)
	return r
}

func TestKind(t *testing.T) {
	assert.Equal(t, KindALEGAGE, KindOf("gage"))
	assert.Equal(t, KindMagnum, KindOf("GCMS-Magnum"))
	assert.Equal(t, KindFlask, KindOf("GCMS-Medusa-flask"))
	assert.Equal(t, KindGCWerks, KindOf("GCMS-Medusa"))
	assert.Equal(t, "ale-gcmd", OutputName("ALE"))
	assert.Equal(t, "picarro-1", OutputName("Picarro-1"))
	assert.False(t, HasBaseline("GCMS-Medusa-flask"))
}

func TestParseALEGAGEFile(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	content := testnet.ALEFile("CG78JAN",
		testnet.ALELine(31, 2400, 150, ""),
		testnet.ALELine(5, 900, 151, "P"),
		testnet.ALELine(5, 900, 152, ""),
	)

	f, err := parseALEGAGEFile(strings.NewReader(content), loc,
		formatting.TimestampIssues{"31-JAN-78 2400": "01-FEB-78 0000", "duplicates": "last"})
	require.NoError(t, err)
	require.Len(t, f.times, 2)
	assert.Equal(t, time.Date(1978, 1, 31, 14, 0, 0, 0, time.UTC), f.times[0])
	assert.Equal(t, time.Date(1978, 1, 4, 23, 0, 0, 0, time.UTC), f.times[1])
	assert.Equal(t, []float64{150, 152}, f.values["F11"])
	assert.Equal(t, []bool{false, false}, f.polluted["F11"])

	_, err = parseALEGAGEFile(strings.NewReader(content), loc, nil)
	assert.ErrorContains(t, err, "timestamp issues")
}

func TestReadALEGAGE(t *testing.T) {
	dir := testnet.Dir(t)
	r := newTestReader(t, dir)

	opts := DefaultOptions()
	opts.Scale = ""
	ds, flags, err := r.readALEGAGE("CFC-11", "CGO", "ALE", opts)
	require.NoError(t, err)

	want := []time.Time{
		time.Date(1978, 1, 1, 2, 0, 0, 0, time.UTC),
		time.Date(1978, 1, 2, 20, 0, 0, 0, time.UTC),
		time.Date(1978, 1, 31, 14, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, ds.Time)
	assert.Equal(t, []float64{150.5, 151, 152}, ds.Values("mf"))
	assert.InDelta(t, 150.5*0.015, ds.Values("mf_repeatability")[0], 1e-9)
	assert.Equal(t, []float64{1, 1, 1}, ds.Values("sampling_period"))
	assert.Equal(t, 70.0, ds.Values("inlet_height")[0])
	assert.False(t, ds.Has(convert.BaselineFlag))

	assert.Equal(t, "ALE_GCMD", ds.Attrs.String("instrument"))
	assert.Contains(t, ds.Attrs.String("instrument_comment"), "Paul Fraser")
	assert.Equal(t, "ALE", ds.Attrs.String("instrument_type"))
	assert.Equal(t, "SIO-05", ds.Attrs.String("calibration_scale"))
	assert.Equal(t, "cfc-11", ds.Attrs.String("species"))
	assert.Equal(t, "CGO", ds.Attrs.String("site_code"))
	assert.Equal(t, "1e-12", ds.Var("mf").Attrs.String("units"))
	assert.Equal(t, "1978-01-01 02:00:00", ds.Attrs.String("start_date"))

	require.NotNil(t, flags)
	assert.Equal(t, ds.Time, flags.Time)
	assert.Equal(t, []float64{1, 0, 1}, flags.Values(convert.BaselineFlag))

	_, _, err = r.readALEGAGE("CFC-11", "CGO", "GCMD", opts)
	assert.Error(t, err)
}

func TestMagnumColumns(t *testing.T) {
	got := magnumColumns([]string{"YYYY", "", "", "F11", "", "F12", ""})
	assert.Equal(t, []string{"YYYY", "YYYY_pollution", "missing2", "F11", "F11_pollution", "F12", "F12_pollution"}, got)
}

func TestReadMagnum(t *testing.T) {
	dir := testnet.Dir(t)
	r := newTestReader(t, dir)

	opts := DefaultOptions()
	opts.Scale = ""
	ds, flags, err := r.readMagnum("CFC-11", "MHD", "GCMS-Magnum", opts)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		time.Date(1998, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1998, 1, 1, 1, 20, 0, 0, time.UTC),
	}, ds.Time)
	assert.Equal(t, []float64{250.5, 251}, ds.Values("mf"))
	assert.InDelta(t, 5.01, ds.Values("mf_repeatability")[0], 1e-9)
	assert.Equal(t, 2400.0, ds.Values("sampling_period")[0])
	assert.Equal(t, "SIO-05", ds.Attrs.String("calibration_scale"))
	assert.Equal(t, magnumComment, ds.Attrs.String("instrument_comment"))
	assert.Equal(t, "1998-01-01", ds.Attrs.String("instrument_date"))
	assert.Equal(t, 53.33, ds.Attrs.Map()["inlet_latitude"])
	assert.Equal(t, []float64{1, 0}, flags.Values(convert.BaselineFlag))
}

func TestReadNC(t *testing.T) {
	dir := testnet.Dir(t)
	ts := testnet.WriteGCWerks(t, dir, "CGO")
	r := newTestReader(t, dir)

	ds, err := r.Read("CFC-11", "CGO", "GCMD", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, ts[0].Add(-30*time.Second), ds.Time[0])
	assert.Equal(t, []float64{240, 241, 243}, ds.Values("mf"))
	assert.Equal(t, []float64{1, 1, 1}, ds.Values("mf_count"))
	assert.Equal(t, 60.0, ds.Values("sampling_period")[0])
	assert.False(t, ds.Has(GitPollutionFlag))
	assert.Equal(t, "GCMD", ds.Attrs.String("instrument"))
	assert.Equal(t, "GCMD", ds.Attrs.String("instrument_type"))
	assert.Equal(t, "cfc-11", ds.Attrs.String("species"))
	assert.Equal(t, "SIO-05", ds.Var("mf").Attrs.String("calibration_scale"))

	_, err = r.Read("CFC-11", "MHD", "GCMD", DefaultOptions())
	assert.ErrorIs(t, err, archive.ErrNotFound)
}

func TestReadBaseline(t *testing.T) {
	dir := testnet.Dir(t)
	testnet.WriteGCWerks(t, dir, "CGO")
	r := newTestReader(t, dir)

	ds, err := r.ReadBaseline("CFC-11", "CGO", "GCMD", GitPollutionFlag, true, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, ds.Values(convert.BaselineFlag))
	assert.Equal(t, "not_baseline, baseline", ds.Var(convert.BaselineFlag).Attrs.String("flag_meanings"))
	assert.False(t, ds.TimeAttrs.Has("sampling_time_seconds"))
	assert.Equal(t, "O'Doherty et al. (2001)", ds.Attrs.String("citation"))
	assert.Equal(t, "10.0000/test", ds.Attrs.String("doi"))
	assert.Equal(t, ProductBaselineFlag, ds.Attrs.String("product_type"))
	assert.Equal(t, "v1", ds.Attrs.String("version"))
	assert.Equal(t, "CGO", ds.Attrs.String("site_code"))

	_, err = r.ReadBaseline("CFC-11", "CGO", "ALE", MetOfficeFlag, true, true)
	assert.ErrorContains(t, err, GitPollutionFlag)
	_, err = r.ReadBaseline("CFC-11", "CGO", "GCMD", "nonsense", true, true)
	assert.Error(t, err)
}

func TestReadBaselineMatchesData(t *testing.T) {
	dir := testnet.Dir(t)
	testnet.WriteGCWerks(t, dir, "MHD")
	testnet.WritePicarro(t, dir, "MHD")
	r := newTestReader(t, dir)

	for _, tc := range []struct {
		sp, instr string
		resample  bool
		times     []time.Time
		flags     []float64
	}{
		{
			sp: "CFC-11", instr: "GCMD", resample: true,
			times: []time.Time{
				testnet.GCWerksStart.Add(-30 * time.Second),
				testnet.GCWerksStart.Add(20*time.Minute - 30*time.Second),
				testnet.GCWerksStart.Add(60*time.Minute - 30*time.Second),
			},
			flags: []float64{1, 0, 0},
		},
		{
			sp: "CH4", instr: "Picarro", resample: true,
			times: []time.Time{
				time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC),
			},
			flags: []float64{1, 0},
		},
		{
			sp: "CH4", instr: "Picarro", resample: false,
			times: []time.Time{
				time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2020, 1, 1, 0, 20, 0, 0, time.UTC),
				time.Date(2020, 1, 1, 0, 40, 0, 0, time.UTC),
				time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC),
				time.Date(2020, 1, 1, 1, 20, 0, 0, time.UTC),
				time.Date(2020, 1, 1, 1, 40, 0, 0, time.UTC),
			},
			flags: []float64{1, 1, 1, 1, 0, 1},
		},
	} {
		t.Run(fmt.Sprintf("%s resample=%t", tc.instr, tc.resample), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Resample = tc.resample
			ds, err := r.Read(tc.sp, "MHD", tc.instr, opts)
			require.NoError(t, err)
			flags, err := r.ReadBaseline(tc.sp, "MHD", tc.instr, GitPollutionFlag, tc.resample, true)
			require.NoError(t, err)

			assert.Equal(t, tc.times, ds.Time)
			assert.Equal(t, ds.Time, flags.Time)
			assert.Equal(t, tc.flags, flags.Values(convert.BaselineFlag))

			_, err = convert.MonthlyBaseline(ds, flags, schema.Default())
			assert.NoError(t, err)
		})
	}
}

func TestReadFlask(t *testing.T) {
	dir := testnet.Dir(t)
	t0 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := dataset.New([]time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour), t0.Add(3 * time.Hour)})
	s1, s2 := 1.6e9, 1.6e9+86400
	require.NoError(t, ds.Set("sample_time", []float64{s2, s1, s1, s1}, nil))
	require.NoError(t, ds.Set("CFC-11_C", []float64{20, 10, 11, 12}, nil))
	require.NoError(t, ds.Set("CFC-11_std_stdev", []float64{0.2, 0.1, 0.1, 0.1}, nil))
	p := filepath.Join(dir, "data-gcms-flask-nc", "mhd", "cfc-11_air.nc")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, ncio.WriteFile(p, ds, schema.Default()))

	r := newTestReader(t, dir)
	got, err := r.Read("CFC-11", "MHD", "GCMS-Medusa-flask", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, time.Unix(int64(s1)-600, 0).UTC(), got.Time[0])
	assert.InDelta(t, 11, got.Values("mf")[0], 1e-9)
	assert.Equal(t, []float64{3, 1}, got.Values("mf_count"))
	assert.InDelta(t, 1, got.Values("mf_variability")[0], 1e-9)
	assert.Equal(t, 0.0, got.Values("mf_variability")[1])
	assert.Equal(t, 1200.0, got.Values("sampling_period")[0])
	assert.Equal(t, "SIO-05", got.Attrs.String("calibration_scale"))
	assert.Equal(t, "Mace Head, Ireland", got.Attrs.String("station_long_name"))
	assert.Equal(t, "GCMS-Medusa-flask", got.Attrs.String("instrument_type"))

	_, err = r.ReadFlask("CFC-11", "MHD", "GCMS-Medusa-flask", Options{Scale: "TU-87"})
	assert.Error(t, err)
}
