package convert

import (
	"fmt"
	"time"

	"github.com/rtm0/agage/internal/dataset"
	"github.com/rtm0/agage/internal/schema"
)

// BaselineFlag is the name of the baseline flag variable.
const BaselineFlag = "baseline"

// MonthlyBaseline averages the baseline points of a record by calendar
// month. flags must hold a baseline variable on the same time axis as ds;
// points flagged 1 are baseline. Months without baseline points are left
// out.
func MonthlyBaseline(ds, flags *dataset.Dataset, table *schema.Table) (*dataset.Dataset, error) {
	b := flags.Values(BaselineFlag)
	if b == nil {
		return nil, fmt.Errorf("baseline dataset has no %s variable", BaselineFlag)
	}
	if len(flags.Time) != len(ds.Time) {
		return nil, fmt.Errorf("baseline flags have %d time points, data have %d", len(flags.Time), len(ds.Time))
	}
	for i := range ds.Time {
		if !ds.Time[i].Equal(flags.Time[i]) {
			return nil, fmt.Errorf("baseline and data timestamps differ at %s", ds.Time[i].Format(dataset.DateLayout))
		}
	}

	base := ds.Filter(func(i int) bool { return b[i] == 1 }).SortByTime()
	base.Drop(BaselineFlag)
	table.MaskFlagged(base)
	base = base.DropNaN(schema.MoleFraction)

	out, err := aggregate(base, table, binBy(base,
		func(t time.Time) time.Time {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		},
		func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
	))
	if err != nil {
		return nil, err
	}

	out.TimeAttrs.Set("comment", "Timestamp is the start of the month")
	out.Attrs.Set("product_type", "baseline monthly mean")
	out.Attrs.Set("frequency", "monthly")
	if f := flags.Attrs.String("baseline_flag"); f != "" {
		out.Attrs.Set("baseline_flag", f)
	}
	out.Attrs.Set("start_date", out.StartDate())
	out.Attrs.Set("end_date", out.EndDate())
	return out, nil
}
