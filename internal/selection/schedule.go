package selection

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/species"
)

// ScheduleDir is the folder holding the release schedules.
const ScheduleDir = "data_release_schedule"

// Schedule is the release schedule of one instrument: for every species and
// site, whether the data are released and up to which date.
type Schedule struct {
	Instrument string
	// General is the end date used by empty cells.
	General string

	sites   []string
	species []string
	cells   map[string]map[string]string
}

// SchedulePath returns the schedule file of an instrument.
func SchedulePath(networkDir, instrument string) string {
	return filepath.Join(networkDir, ScheduleDir, "data_release_schedule_"+instrument+".csv")
}

// ScheduleFiles lists the release schedule files of a network, sorted.
func ScheduleFiles(networkDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(networkDir, ScheduleDir, "data_release_schedule_*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Instruments returns the instruments that have a release schedule.
func Instruments(networkDir string) ([]string, error) {
	files, err := ScheduleFiles(networkDir)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = strings.TrimPrefix(strings.TrimSuffix(filepath.Base(f), ".csv"), "data_release_schedule_")
	}
	return out, nil
}

// LoadSchedule reads the release schedule of an instrument.
func LoadSchedule(networkDir, instrument string) (*Schedule, error) {
	t, err := readTable(SchedulePath(networkDir, instrument))
	if err != nil {
		return nil, err
	}
	return newSchedule(instrument, t)
}

func newSchedule(instrument string, t *table) (*Schedule, error) {
	sc := t.column("Species")
	if sc < 0 {
		return nil, fmt.Errorf("release schedule %s has no Species column", instrument)
	}
	s := &Schedule{Instrument: instrument, cells: make(map[string]map[string]string)}
	s.General, _ = t.comment("General release date")
	if s.General != "" {
		if _, err := dataset.ParseEnd(s.General); err != nil {
			return nil, fmt.Errorf("release schedule %s: general release date: %w", instrument, err)
		}
	}
	for i, h := range t.header {
		if i != sc && h != "" {
			s.sites = append(s.sites, strings.ToUpper(h))
		}
	}
	for _, row := range t.rows {
		sp := species.Format(row[sc])
		if sp == "" {
			continue
		}
		if _, ok := s.cells[sp]; !ok {
			s.species = append(s.species, sp)
		}
		cells := make(map[string]string)
		for i, h := range t.header {
			if i == sc || h == "" {
				continue
			}
			cells[strings.ToUpper(h)] = row[i]
		}
		s.cells[sp] = cells
	}
	return s, nil
}

// Sites returns the site columns in file order.
func (s *Schedule) Sites() []string {
	return slices.Clone(s.sites)
}

// Species returns the species rows in file order.
func (s *Schedule) Species() []string {
	return slices.Clone(s.species)
}

// Released reports whether a species is released at a site.
func (s *Schedule) Released(sp, site string) bool {
	_, err := s.EndDate(sp, site)
	return err == nil
}

// EndDate returns the release end date of a species at a site. The date is
// empty when the data are released without an end date.
func (s *Schedule) EndDate(sp, site string) (string, error) {
	cells, ok := s.cells[species.Format(sp)]
	if !ok {
		return "", fmt.Errorf("%w: %s is not in the %s release schedule", ErrNotReleased, sp, s.Instrument)
	}
	cell, ok := cells[strings.ToUpper(site)]
	if !ok {
		return "", fmt.Errorf("%w: %s is not in the %s release schedule", ErrNotReleased, site, s.Instrument)
	}
	if strings.EqualFold(cell, "x") {
		return "", fmt.Errorf("%w: %s at %s for %s", ErrNotReleased, sp, site, s.Instrument)
	}
	if cell == "" {
		return s.General, nil
	}
	return cell, nil
}

// Range returns the released time range of a species at a site.
func (s *Schedule) Range(sp, site string) (dataset.TimeRange, error) {
	end, err := s.EndDate(sp, site)
	if err != nil {
		return dataset.TimeRange{}, err
	}
	r, err := dataset.Until(end)
	if err != nil {
		return r, fmt.Errorf("release schedule %s, %s at %s: %w", s.Instrument, sp, site, err)
	}
	return r, nil
}

// exists reports whether a regular file exists.
func exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
