// Package testnet lays out small network data directories for tests.
package testnet

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rtm0/agage/internal/config"
	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/ncio"
	"github.com/rtm0/agage/internal/schema"
)

// Network is the name of the test network.
const Network = "agage_test"

// MagnumFormatMarker introduces the column format in Magnum headers.
const MagnumFormatMarker = "You can use the following format in Fortran to read data in different columns,"

// WriteFile writes a file, creating its directory.
func WriteFile(t testing.TB, p string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))
}

// Member is a file of a tarball.
type Member struct {
	Name, Content string
}

// TarGz builds a gzipped tarball.
func TarGz(t testing.TB, members ...Member) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, m := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: m.Name, Mode: 0o644, Size: int64(len(m.Content)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(m.Content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// ALELine formats a row of an ALE/GAGE file with F11 and N2O columns.
func ALELine(day, hhmm int, f11 float64, flag string) string {
	return fmt.Sprintf("%3d%5d%7.1f%7.2f%1s%7.2f%1s", day, hhmm, 0.0, f11, flag, 300.0, "")
}

// ALEFile builds a monthly ALE/GAGE file.
func ALEFile(meta string, rows ...string) string {
	return meta + "\n DA TIME  PRES    F11    N2O\n" + strings.Join(rows, "\n") + "\n"
}

// MagnumLine formats a row of a Magnum file with F11 and F12 columns.
func MagnumLine(y, m, d, h, mi int, f11 float64, flag string) string {
	return fmt.Sprintf("%4d%3d%3d%3d%3d%10.3f%10.3f%1s%10.3f%1s", y, m, d, h, mi, 1.0, f11, flag, 500.0, "")
}

// MagnumFile builds a Magnum file.
func MagnumFile(rows ...string) string {
	var b strings.Builder
	b.WriteString("GCMS Magnum data from Mace Head\n")
	b.WriteString(MagnumFormatMarker + " (I4,I3,I3,I3,I3,F10.3,F10.3,a1,F10.3,a1)\\n\n")
	fmt.Fprintf(&b, "%26s%10s%1s%10s%1s\n", "", "SIO-05", "", "SIO-05", "")
	b.WriteString("units line\n")
	fmt.Fprintf(&b, "%4s%3s%3s%3s%3s%10s%10s%1s%10s%1s\n", "YYYY", "MM", "DD", "hh", "min", "ABSDA", "F11", "", "F12", "")
	for _, r := range rows {
		b.WriteString(r + "\n")
	}
	return b.String()
}

// Instruments are the instruments with a release schedule in the test
// network.
var Instruments = []string{"ALE", "GAGE", "GCMD", "GCMS-Magnum", "GCMS-Medusa-flask"}

// Dir lays out a network data directory for CFC-11 at CGO and MHD: release
// schedules, metadata, an ALE tarball for CGO (January and February 1978)
// and a Magnum tarball for MHD (January 1998). The network directory is
// returned; its parent is the data root.
func Dir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), Network)

	for _, instr := range Instruments {
		WriteFile(t, filepath.Join(dir, "data_release_schedule", "data_release_schedule_"+instr+".csv"),
			[]byte("Species,CGO,MHD\nCFC-11,,\n"))
	}
	WriteFile(t, filepath.Join(dir, "attributes.json"), []byte(`{
  "title": "AGAGE test record",
  "species": "",
  "site_code": "",
  "version": "v1"
}`))
	WriteFile(t, filepath.Join(dir, "attributes_site.json"), []byte(`{
  "MHD": {"station_long_name": "Mace Head, Ireland", "inlet_latitude": 53.33, "inlet_longitude": -9.9, "sampling_period": 1200, "inlet_height": 10}
}`))
	WriteFile(t, filepath.Join(dir, "ale_gage_sites.json"), []byte(`{
  "CGO": {"gcwerks_name": "capegrim", "station_long_name": "Cape Grim, Tasmania", "inlet_height": 70,
          "inlet_base_elevation_masl": 94, "latitude": -40.68, "longitude": 144.69, "tz": "UTC+10",
          "data_owner": "Paul Krummel", "data_owner_email": "paul.krummel@csiro.au"},
  "MHD": {"gcwerks_name": "macehead", "station_long_name": "Mace Head, Ireland", "inlet_height": 10,
          "inlet_base_elevation_masl": 8, "latitude": 53.33, "longitude": -9.9, "tz": "UTC",
          "data_owner": "Simon O'Doherty", "data_owner_email": "s.odoherty@bristol.ac.uk"}
}`))
	WriteFile(t, filepath.Join(dir, "ale_gage_species.json"), []byte(`{
  "cfc-11": {"species_name_gatech": "F11", "scale": "SIO-05", "units": "ppt",
             "ale_repeatability_percent": 1.5, "gage_repeatability_percent": 1.0}
}`))
	WriteFile(t, filepath.Join(dir, "gcms-magnum_species.json"), []byte(`{
  "cfc-11": {"species_name_gatech": "F11", "units": "ppt", "repeatability_percent": 2}
}`))
	WriteFile(t, filepath.Join(dir, "ale_gage_timestamp_issues.json"), []byte(`{
  "ALE": {"CGO": {"31-JAN-78 2400": "01-FEB-78 0000"}},
  "GAGE": {}
}`))
	WriteFile(t, filepath.Join(dir, "scale_defaults.csv"), []byte("Species,Scale\nCFC-11,SIO-05\n"))

	WriteFile(t, filepath.Join(dir, "ale", "capegrim_sio1993.gtar.gz"), TarGz(t,
		Member{"CG78JAN.dat", ALEFile("CG78JAN",
			ALELine(1, 1200, 150.5, ""),
			ALELine(2, 0, -99.9, ""),
			ALELine(1, 1200, 999, ""),
			ALELine(3, 600, 151, "P"),
		)},
		Member{"CG78FEB.dat", ALEFile("CG78FEB",
			ALELine(1, 0, 152, ""),
		)},
	))
	WriteFile(t, filepath.Join(dir, "data-gcms-magnum.tar.gz"), TarGz(t,
		Member{"magnum1998.dat", MagnumFile(
			MagnumLine(1998, 1, 1, 0, 0, 250.5, ""),
			MagnumLine(1998, 1, 1, 0, 40, 0, ""),
			MagnumLine(1998, 1, 1, 1, 20, 251, "P"),
			MagnumLine(1998, 2, 30, 0, 0, 252, ""),
		)},
	))
	return dir
}

// GCWerksStart is the first timestamp of the record written by WriteGCWerks.
var GCWerksStart = time.Date(2020, 1, 1, 0, 0, 30, 0, time.UTC)

// WriteGCWerks writes a GCMD CFC-11 file for a site: four points 20 minutes
// apart, timestamped at the middle of a 60 s sampling period, the third
// without a mole fraction. The git_pollution_flag marks the first and
// third points as baseline.
func WriteGCWerks(t testing.TB, dir, site string) []time.Time {
	t.Helper()
	t0 := GCWerksStart
	ts := []time.Time{t0, t0.Add(20 * time.Minute), t0.Add(40 * time.Minute), t0.Add(60 * time.Minute)}
	ds := dataset.New(ts)
	ds.TimeAttrs.Set("sampling_time_seconds", "60")
	require.NoError(t, ds.Set("mf", []float64{240, 241, math.NaN(), 243}, dataset.AttrsOf("units", "ppt")))
	require.NoError(t, ds.Set("mf_mean_N", []float64{1, 1, 1, 1}, nil))
	require.NoError(t, ds.Set("git_pollution_flag", []float64{'B', 'P', 'B', 0}, nil))
	ds.Attrs = dataset.AttrsOf(
		"comment", "GCMD test data",
		"species", "CFC-11",
		"calibration_scale", "SIO-05",
		"instrument", "GCMD",
		"doi", "10.0000/test",
	)
	p := filepath.Join(dir, "data-nc", fmt.Sprintf("AGAGE-GCMD_%s_cfc-11.nc", strings.ToUpper(site)))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, ncio.WriteFile(p, ds, schema.Default()))
	return ts
}

// PicarroStart is the first timestamp of the record written by
// WritePicarro.
var PicarroStart = time.Date(2020, 1, 1, 0, 0, 30, 0, time.UTC)

// WritePicarro writes a Picarro CH4 file for a site: six points 20 minutes
// apart, timestamped at the middle of a 60 s sampling period, so that they
// fall into two hourly averaging periods. The fifth point is not baseline.
// It also adds the Picarro release schedule and the CH4 default scale.
func WritePicarro(t testing.TB, dir, site string) []time.Time {
	t.Helper()
	t0 := PicarroStart
	ts := make([]time.Time, 6)
	for i := range ts {
		ts[i] = t0.Add(time.Duration(i) * 20 * time.Minute)
	}
	ds := dataset.New(ts)
	ds.TimeAttrs.Set("sampling_time_seconds", "60")
	require.NoError(t, ds.Set("mf", []float64{1900, 1901, 1902, 1903, 1904, 1905}, dataset.AttrsOf("units", "ppb")))
	require.NoError(t, ds.Set("mf_mean_N", []float64{1, 1, 1, 1, 1, 1}, nil))
	require.NoError(t, ds.Set("git_pollution_flag", []float64{'B', 'B', 'B', 'B', 'P', 'B'}, nil))
	ds.Attrs = dataset.AttrsOf(
		"comment", "Picarro test data",
		"species", "CH4",
		"calibration_scale", "NOAA-2004A",
		"instrument", "Picarro",
		"doi", "10.0000/test",
	)
	p := filepath.Join(dir, "data-optical-nc", fmt.Sprintf("AGAGE-Picarro_%s_ch4.nc", strings.ToUpper(site)))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, ncio.WriteFile(p, ds, schema.Default()))

	WriteFile(t, filepath.Join(dir, "data_release_schedule", "data_release_schedule_Picarro.csv"),
		[]byte("Species,CGO,MHD\nCH4,,\n"))
	WriteFile(t, filepath.Join(dir, "scale_defaults.csv"), []byte("Species,Scale\nCFC-11,SIO-05\nCH4,NOAA-2004A\n"))
	return ts
}

// Paths resolves the default test network layout for a directory made by
// Dir.
func Paths(t testing.TB, dir string) *config.Paths {
	t.Helper()
	p, err := config.Default("tester", "").Network(filepath.Dir(dir), Network)
	require.NoError(t, err)
	return p
}
