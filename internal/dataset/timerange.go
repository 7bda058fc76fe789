package dataset

import (
	"fmt"
	"strings"
	"time"
)

var timeLayouts = []string{
	DateLayout,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// TimeRange is a closed time interval. A zero bound is open.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t is within the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// String formats the range as "start:end".
func (r TimeRange) String() string {
	f := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(DateLayout)
	}
	return f(r.Start) + ":" + f(r.End)
}

// ParseTime parses a timestamp in UTC. Dates may be given down to the year.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

// ParseEnd parses an end bound. A bound given with a coarser resolution than
// seconds covers the whole period it names: "2023-12-31" includes the last
// second of that day and "2023" the whole year.
func ParseEnd(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := ParseTime(s)
	if err != nil {
		return t, err
	}
	var next time.Time
	switch len(s) {
	case len("2006"):
		next = t.AddDate(1, 0, 0)
	case len("2006-01"):
		next = t.AddDate(0, 1, 0)
	case len("2006-01-02"):
		next = t.AddDate(0, 0, 1)
	case len("2006-01-02 15:04"):
		next = t.Add(time.Minute)
	default:
		return t, nil
	}
	return next.Add(-time.Nanosecond), nil
}

// ParseRange parses start and end bounds. Empty strings are open bounds.
func ParseRange(start, end string) (TimeRange, error) {
	var r TimeRange
	var err error
	if strings.TrimSpace(start) != "" {
		if r.Start, err = ParseTime(start); err != nil {
			return r, err
		}
	}
	if strings.TrimSpace(end) != "" {
		if r.End, err = ParseEnd(end); err != nil {
			return r, err
		}
	}
	return r, nil
}

// Until returns the range open at the start and closed at end.
func Until(end string) (TimeRange, error) {
	return ParseRange("", end)
}
