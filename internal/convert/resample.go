package convert

import (
	"time"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/instrument"
	"github.com/rtm0/agage/internal/schema"
)

// Period returns the averaging period for an instrument type, or 0 when its
// records are kept at native resolution.
func Period(instrumentType string) time.Duration {
	return instrument.MinimumAveragingPeriod(instrumentType)
}

// Resample averages a record into bins of the given period, starting at
// multiples of the period since the Unix epoch. Flag policies are applied to
// the input first, so that flagged points do not count. A non-positive
// period, an empty dataset or a record whose median sampling period is
// already at least the period is returned unchanged.
func Resample(ds *dataset.Dataset, table *schema.Table, period time.Duration) (*dataset.Dataset, error) {
	if period <= 0 || ds.Len() == 0 {
		return ds, nil
	}
	if sp := ds.Values("sampling_period"); sp != nil {
		if m := valid(sp); len(m) > 0 && median(m) >= period.Seconds() {
			return ds, nil
		}
	}

	in := ds.SortByTime()
	if in == ds {
		in = ds.Copy()
	}
	table.MaskFlagged(in)

	b := binBy(in,
		func(t time.Time) time.Time { return floor(t, period) },
		func(t time.Time) time.Time { return t.Add(period) },
	)
	return aggregate(in, table, b)
}

// floor returns the start of the period holding t. Times before the epoch
// round down too.
func floor(t time.Time, period time.Duration) time.Time {
	epoch := time.Unix(0, 0).UTC()
	d := t.Sub(epoch)
	r := d % period
	if r < 0 {
		r += period
	}
	return epoch.Add(d - r)
}
