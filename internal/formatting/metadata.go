package formatting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/species"
)

// Metadata files of a network data directory.
const (
	AttributesFile      = "attributes.json"
	SiteAttributesFile  = "attributes_site.json"
	ALEGAGESitesFile    = "ale_gage_sites.json"
	ALEGAGESpeciesFile  = "ale_gage_species.json"
	TimestampIssuesFile = "ale_gage_timestamp_issues.json"
	MagnumSpeciesFile   = "gcms-magnum_species.json"
)

// LoadJSON decodes a metadata file of a network data directory.
func LoadJSON(networkDir, name string, v any) error {
	b, err := os.ReadFile(filepath.Join(networkDir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("cannot decode %s: %w", name, err)
	}
	return nil
}

// Site describes a station of the ALE/GAGE record (also used for the
// Magnum record at Mace Head).
type Site struct {
	GCWerksName        string  `json:"gcwerks_name"`
	StationLongName    string  `json:"station_long_name"`
	InletHeight        float64 `json:"inlet_height"`
	InletBaseElevation float64 `json:"inlet_base_elevation_masl"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	// TZ is the fixed offset of local time, e.g. "UTC-10".
	TZ             string `json:"tz"`
	DataOwner      string `json:"data_owner"`
	DataOwnerEmail string `json:"data_owner_email"`
}

// Location returns the fixed-offset zone of the site's local time.
func (s Site) Location() (*time.Location, error) {
	_, off, ok := strings.Cut(strings.ToUpper(s.TZ), "UTC")
	if !ok {
		return nil, fmt.Errorf("cannot interpret time zone %q", s.TZ)
	}
	h := 0
	if off = strings.TrimSpace(off); off != "" {
		var err error
		if h, err = strconv.Atoi(strings.TrimPrefix(off, "+")); err != nil {
			return nil, fmt.Errorf("cannot interpret time zone %q: %w", s.TZ, err)
		}
	}
	return time.FixedZone(s.TZ, h*3600), nil
}

// Attrs returns the site's global attributes.
func (s Site) Attrs() *dataset.Attrs {
	return dataset.AttrsOf(
		"data_owner_email", s.DataOwnerEmail,
		"data_owner", s.DataOwner,
		"station_long_name", s.StationLongName,
		"inlet_base_elevation_masl", s.InletBaseElevation,
		"inlet_latitude", s.Latitude,
		"inlet_longitude", s.Longitude,
	)
}

// LoadSites reads ale_gage_sites.json.
func LoadSites(networkDir string) (map[string]Site, error) {
	var sites map[string]Site
	if err := LoadJSON(networkDir, ALEGAGESitesFile, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// SpeciesInfo describes a species of the Georgia Tech processed records.
type SpeciesInfo struct {
	NameGatech string `json:"species_name_gatech"`
	Scale      string `json:"scale"`
	Units      string `json:"units"`

	ALERepeatability    float64 `json:"ale_repeatability_percent"`
	GAGERepeatability   float64 `json:"gage_repeatability_percent"`
	MagnumRepeatability float64 `json:"repeatability_percent"`
}

// Repeatability returns the relative repeatability of an instrument, as a
// fraction.
func (s SpeciesInfo) Repeatability(instrument string) float64 {
	switch strings.ToUpper(instrument) {
	case "ALE":
		return s.ALERepeatability / 100
	case "GAGE":
		return s.GAGERepeatability / 100
	}
	return s.MagnumRepeatability / 100
}

// LoadSpecies reads a species file (ale_gage_species.json or
// gcms-magnum_species.json) and returns the entry of a species.
func LoadSpecies(networkDir, file, sp string) (SpeciesInfo, error) {
	var all map[string]SpeciesInfo
	if err := LoadJSON(networkDir, file, &all); err != nil {
		return SpeciesInfo{}, err
	}
	info, ok := all[species.Format(sp)]
	if !ok {
		return SpeciesInfo{}, fmt.Errorf("species %s not found in %s", sp, file)
	}
	return info, nil
}

// TimestampIssues are corrections of malformed ALE/GAGE timestamps for one
// instrument and site: raw "dd-Mon-yy HHMM" strings mapped to replacements.
// The "duplicates" key says which duplicate to keep ("first" or "last").
type TimestampIssues map[string]string

// Keep returns which of several rows sharing a timestamp is kept.
func (ti TimestampIssues) Keep() string {
	if k, ok := ti["duplicates"]; ok && k != "" {
		return k
	}
	return "first"
}

// LoadTimestampIssues reads ale_gage_timestamp_issues.json for an instrument
// and site. A missing file or entry has no issues.
func LoadTimestampIssues(networkDir, instrument, site string) (TimestampIssues, error) {
	var all map[string]map[string]TimestampIssues
	err := LoadJSON(networkDir, TimestampIssuesFile, &all)
	if os.IsNotExist(err) {
		return TimestampIssues{}, nil
	}
	if err != nil {
		return nil, err
	}
	if ti, ok := all[instrument][site]; ok {
		return ti, nil
	}
	return TimestampIssues{}, nil
}

// SiteAttributes are the per-site attributes of attributes_site.json,
// keeping the file's order.
type SiteAttributes map[string]*dataset.Attrs

// LoadSiteAttributes reads attributes_site.json. A missing file has no
// sites.
func LoadSiteAttributes(networkDir string) (SiteAttributes, error) {
	sa := SiteAttributes{}
	err := LoadJSON(networkDir, SiteAttributesFile, &sa)
	if os.IsNotExist(err) {
		return sa, nil
	}
	return sa, err
}

// Float returns a numeric site attribute.
func (sa SiteAttributes) Float(site, key string) (float64, error) {
	a, ok := sa[strings.ToUpper(site)]
	if !ok {
		return 0, fmt.Errorf("site %s not found in %s", site, SiteAttributesFile)
	}
	v, ok := a.Get(key)
	if !ok {
		return 0, fmt.Errorf("%s not found in %s for %s", key, SiteAttributesFile, site)
	}
	switch vv := v.(type) {
	case int64:
		return float64(vv), nil
	case float64:
		return vv, nil
	case string:
		return strconv.ParseFloat(vv, 64)
	}
	return 0, fmt.Errorf("%s for %s is not a number", key, site)
}
