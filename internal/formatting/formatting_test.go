package formatting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/agage/internal/dataset"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, AttributesFile, `{
  "title": "AGAGE trace gas record",
  "site_code": "",
  "species": "",
  "network": "",
  "comment": "",
  "version": "v20240101"
}`)
	writeFile(t, dir, SiteAttributesFile, `{
  "MHD": {"station_long_name": "Mace Head, Ireland", "inlet_latitude": 53.33, "sampling_period": 1200}
}`)

	f, err := NewFormatter(dir, "agage", "tester")
	require.NoError(t, err)
	f.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	assert.Equal(t, "v20240101", f.Version())

	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := dataset.New([]time.Time{t0, t0.Add(time.Hour)})
	ds.Attrs = dataset.AttrsOf(
		"comment", "raw comment",
		"site_code", "mhd",
		"instrument", "old",
		"instrument_type", "GCMD",
		"extra", 1.5,
	)

	f.Format(ds, Options{
		Instruments: []Instrument{{Name: "GCMD", Date: "1994-01-01"}, {Name: "GCMS-Medusa", Date: "2003-05-01", Comment: "flask"}},
		Species:     "PFC-116",
		Site:        true,
		Extra:       dataset.AttrsOf("frequency", "high-frequency"),
	})

	a := ds.Attrs
	assert.Equal(t, []string{"title", "site_code", "species", "network", "comment", "version"}, a.Keys()[:6])
	assert.Equal(t, "MHD", a.String("site_code"))
	assert.Equal(t, "c2f6", a.String("species"))
	assert.Equal(t, "agage", a.String("network"))
	assert.Equal(t, "raw comment", a.String("comment"))
	assert.Equal(t, "GCMD", a.String("instrument"))
	assert.Equal(t, "GCMS-Medusa", a.String("instrument_1"))
	assert.Equal(t, "flask", a.String("instrument_comment_1"))
	assert.Equal(t, "GCMD", a.String("instrument_type"))
	assert.Equal(t, "Mace Head, Ireland", a.String("station_long_name"))
	assert.False(t, a.Has("sampling_period"))
	assert.Equal(t, "high-frequency", a.String("frequency"))
	assert.Equal(t, "tester", a.String("file_created_by"))
	assert.Equal(t, "2024-01-02 03:04:05", a.String("file_creation_date"))
	assert.Equal(t, "2020-01-01 00:00:00", a.String("start_date"))
	assert.Equal(t, "2020-01-01 01:00:00", a.String("end_date"))

	ins := Instruments(a)
	require.Len(t, ins, 2)
	assert.Equal(t, Instrument{Name: "GCMS-Medusa", Date: "2003-05-01", Comment: "flask"}, ins[1])

	sp, err := f.Sites().Float("mhd", "sampling_period")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, sp)
	_, err = f.Sites().Float("CGO", "sampling_period")
	assert.Error(t, err)
}

func TestMetadata(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ALEGAGESitesFile, `{"SMO": {"gcwerks_name": "samoa", "tz": "UTC-11", "inlet_height": 10, "station_long_name": "Cape Matatula, American Samoa"}}`)
	writeFile(t, dir, ALEGAGESpeciesFile, `{"cfc-11": {"species_name_gatech": "F11", "scale": "SIO-05", "units": "ppt", "ale_repeatability_percent": 1.5, "gage_repeatability_percent": 0.5}}`)
	writeFile(t, dir, TimestampIssuesFile, `{"GAGE": {"SMO": {"31-Apr-85 1200": "30-Apr-85 1200", "duplicates": "last"}}}`)

	sites, err := LoadSites(dir)
	require.NoError(t, err)
	loc, err := sites["SMO"].Location()
	require.NoError(t, err)
	local := time.Date(1985, 1, 1, 0, 0, 0, 0, loc)
	assert.Equal(t, time.Date(1985, 1, 1, 11, 0, 0, 0, time.UTC), local.UTC())

	_, err = Site{TZ: "EST"}.Location()
	assert.Error(t, err)

	info, err := LoadSpecies(dir, ALEGAGESpeciesFile, "CFC-11")
	require.NoError(t, err)
	assert.Equal(t, "F11", info.NameGatech)
	assert.InDelta(t, 0.015, info.Repeatability("ALE"), 1e-12)
	assert.InDelta(t, 0.005, info.Repeatability("GAGE"), 1e-12)
	_, err = LoadSpecies(dir, ALEGAGESpeciesFile, "sf6")
	assert.Error(t, err)

	ti, err := LoadTimestampIssues(dir, "GAGE", "SMO")
	require.NoError(t, err)
	assert.Equal(t, "last", ti.Keep())
	assert.Equal(t, "30-Apr-85 1200", ti["31-Apr-85 1200"])

	ti, err = LoadTimestampIssues(dir, "ALE", "SMO")
	require.NoError(t, err)
	assert.Equal(t, "first", ti.Keep())
}
