// Package formatting sets the global attributes of archive files from the
// metadata of a network data directory.
package formatting

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/species"
)

// Instrument is one entry of the instrument attributes of a file
// (instrument, instrument_date, instrument_comment, then _1, _2... for the
// following entries).
type Instrument struct {
	Name    string
	Date    string
	Comment string
}

// Options select what Format changes.
type Options struct {
	// Instruments replace the instrument attributes of the dataset when not
	// nil.
	Instruments []Instrument
	// Species overrides the species attribute.
	Species string
	// CalibrationScale overrides the calibration_scale attribute.
	CalibrationScale string
	// Site adds the site's attributes from attributes_site.json.
	Site bool
	// Extra attributes are set last.
	Extra *dataset.Attrs
}

// Formatter formats global attributes for one network.
type Formatter struct {
	Network string
	User    string

	defaults *dataset.Attrs
	sites    SiteAttributes
	now      func() time.Time
}

// NewFormatter reads attributes.json and attributes_site.json from a network
// data directory.
func NewFormatter(networkDir, network, user string) (*Formatter, error) {
	f := &Formatter{Network: network, User: user, defaults: dataset.NewAttrs(), now: time.Now}
	err := LoadJSON(networkDir, AttributesFile, f.defaults)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if f.sites, err = LoadSiteAttributes(networkDir); err != nil {
		return nil, err
	}
	return f, nil
}

// Version returns the archive version from attributes.json.
func (f *Formatter) Version() string {
	return f.defaults.String("version")
}

// Sites returns the site attributes.
func (f *Formatter) Sites() SiteAttributes {
	return f.sites
}

// skipSiteKeys are site attributes stored as variables rather than global
// attributes.
var skipSiteKeys = []string{"sampling_period", "inlet_height"}

// Format rebuilds the global attributes of ds in place: keys of
// attributes.json come first, in file order, taking the dataset's value when
// it has a non-empty one, followed by the dataset's other attributes.
func (f *Formatter) Format(ds *dataset.Dataset, opts Options) {
	old := ds.Attrs.Copy()
	old.Update(opts.Extra)

	if opts.Instruments != nil {
		for _, k := range old.Keys() {
			if isInstrumentKey(k) {
				old.Delete(k)
			}
		}
		for i, in := range opts.Instruments {
			suffix := ""
			if i > 0 {
				suffix = fmt.Sprintf("_%d", i)
			}
			old.Set("instrument"+suffix, in.Name)
			old.Set("instrument_date"+suffix, in.Date)
			old.Set("instrument_comment"+suffix, in.Comment)
		}
	}

	if opts.Site {
		site := strings.ToUpper(old.String("site_code"))
		if sa, ok := f.sites[site]; ok {
			for _, k := range sa.Keys() {
				if slices.Contains(skipSiteKeys, k) {
					continue
				}
				if !nonEmpty(old, k) {
					v, _ := sa.Get(k)
					old.Set(k, v)
				}
			}
		}
	}

	if opts.Species != "" {
		old.Set("species", species.Format(opts.Species))
	} else if old.Has("species") {
		old.Set("species", species.Format(old.String("species")))
	}
	if opts.CalibrationScale != "" {
		old.Set("calibration_scale", opts.CalibrationScale)
	}
	if !nonEmpty(old, "network") && f.Network != "" {
		old.Set("network", f.Network)
	}
	if s := old.String("site_code"); s != "" {
		old.Set("site_code", strings.ToUpper(s))
	}

	out := dataset.NewAttrs()
	for _, k := range f.defaults.Keys() {
		if nonEmpty(old, k) {
			v, _ := old.Get(k)
			out.Set(k, v)
			continue
		}
		v, _ := f.defaults.Get(k)
		out.Set(k, v)
	}
	for _, k := range old.Keys() {
		if !out.Has(k) {
			v, _ := old.Get(k)
			out.Set(k, v)
		}
	}

	if v := f.Version(); v != "" {
		out.Set("version", v)
	}
	if f.User != "" {
		out.Set("file_created_by", f.User)
	}
	out.Set("file_creation_date", f.now().UTC().Format(dataset.DateLayout))
	out.Set("start_date", ds.StartDate())
	out.Set("end_date", ds.EndDate())
	ds.Attrs = out
}

func nonEmpty(a *dataset.Attrs, k string) bool {
	v, ok := a.Get(k)
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// isInstrumentKey reports whether an attribute belongs to the instrument
// entries. instrument_type and instrument_selection describe the file.
func isInstrumentKey(k string) bool {
	if !strings.HasPrefix(k, "instrument") {
		return false
	}
	return !strings.HasPrefix(k, "instrument_type") && !strings.HasPrefix(k, "instrument_selection")
}

// Instruments reads back the instrument entries of a set of attributes.
func Instruments(a *dataset.Attrs) []Instrument {
	var out []Instrument
	for i := 0; ; i++ {
		suffix := ""
		if i > 0 {
			suffix = fmt.Sprintf("_%d", i)
		}
		if !a.Has("instrument" + suffix) {
			return out
		}
		out = append(out, Instrument{
			Name:    a.String("instrument" + suffix),
			Date:    a.String("instrument_date" + suffix),
			Comment: a.String("instrument_comment" + suffix),
		})
	}
}
