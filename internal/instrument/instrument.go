// Package instrument numbers the instrument types of a network. The numbers
// are stored in the instrument_type variable of every file, so that a
// combined record still says which instrument made each measurement.
package instrument

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"
)

// Undefined is the instrument type of unknown instruments.
const Undefined = "UNDEFINED"

// SelectionText is the instrument_selection attribute of recommended files.
const SelectionText = "Recommended instrument(s) selected and combined by station PIs"

// ErrUnknown is returned when an instrument has no number.
var ErrUnknown = errors.New("unknown instrument")

// minimumAveragingPeriod lists instruments whose records are averaged before
// publication.
var minimumAveragingPeriod = map[string]time.Duration{
	"Picarro": time.Hour,
}

// MinimumAveragingPeriod returns the averaging period of an instrument type,
// or 0 when its records are published at native resolution.
func MinimumAveragingPeriod(instrumentType string) time.Duration {
	if p, ok := minimumAveragingPeriod[instrumentType]; ok {
		return p
	}
	for k, p := range minimumAveragingPeriod {
		if strings.Contains(instrumentType, k) {
			return p
		}
	}
	return 0
}

// Definition assigns numbers to instrument types.
type Definition struct {
	names   []string
	numbers map[string]int
}

// Define numbers instruments from release schedule file names of the form
// data_release_schedule_<INSTRUMENT>.csv. UNDEFINED is -1; the others are
// numbered from 0 in sorted file name order.
func Define(scheduleFiles []string) (*Definition, error) {
	if len(scheduleFiles) == 0 {
		return nil, fmt.Errorf("no data release schedule files found")
	}
	files := slices.Clone(scheduleFiles)
	slices.Sort(files)
	d := &Definition{numbers: map[string]int{Undefined: -1}, names: []string{Undefined}}
	for _, f := range files {
		name := NameFromFile(f)
		if _, ok := d.numbers[name]; ok {
			continue
		}
		d.numbers[name] = len(d.names) - 1
		d.names = append(d.names, name)
	}
	return d, nil
}

// NameFromFile extracts the instrument or site name from a file name of the
// form <prefix>_<NAME>.<ext>.
func NameFromFile(file string) string {
	base := path.Base(file)
	parts := strings.Split(base, "_")
	last := parts[len(parts)-1]
	return strings.SplitN(last, ".", 2)[0]
}

// Names returns the instrument types in number order, UNDEFINED first.
func (d *Definition) Names() []string {
	return slices.Clone(d.names)
}

// Number returns the number of an instrument. An exact match is tried first,
// then the first instrument type contained in the name, so that "Picarro-1"
// is a "Picarro".
func (d *Definition) Number(instrument string) (int, error) {
	if len(instrument) <= 1 {
		return 0, fmt.Errorf("instrument name %q is too short", instrument)
	}
	if n, ok := d.numbers[instrument]; ok {
		return n, nil
	}
	for _, k := range d.names {
		if strings.Contains(instrument, k) {
			return d.numbers[k], nil
		}
	}
	return 0, fmt.Errorf("%w: could not find instrument number for %s", ErrUnknown, instrument)
}

// Type returns the instrument type of a number.
func (d *Definition) Type(n int) (string, error) {
	for _, k := range d.names {
		if d.numbers[k] == n {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: no instrument type numbered %d", ErrUnknown, n)
}

// Types returns the instrument types of several numbers, in number order.
func (d *Definition) Types(ns []int) []string {
	var out []string
	for _, k := range d.names {
		if slices.Contains(ns, d.numbers[k]) {
			out = append(out, k)
		}
	}
	return out
}

// TypeOf returns the instrument type an instrument name resolves to.
func (d *Definition) TypeOf(instrument string) (string, error) {
	n, err := d.Number(instrument)
	if err != nil {
		return "", err
	}
	return d.Type(n)
}

// String lists the definition as "UNDEFINED=-1, ALE=0, ...", the comment of
// the instrument_type variable.
func (d *Definition) String() string {
	parts := make([]string, len(d.names))
	for i, k := range d.names {
		parts[i] = fmt.Sprintf("%s=%d", k, d.numbers[k])
	}
	return strings.Join(parts, ", ")
}
