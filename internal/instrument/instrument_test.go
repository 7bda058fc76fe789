package instrument

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scheduleFiles = []string{
	"data_release_schedule/data_release_schedule_Picarro.csv",
	"data_release_schedule/data_release_schedule_ALE.csv",
	"data_release_schedule/data_release_schedule_GCMD.csv",
	"data_release_schedule/data_release_schedule_GAGE.csv",
}

func TestDefine(t *testing.T) {
	d, err := Define(scheduleFiles)
	require.NoError(t, err)

	assert.Equal(t, []string{"UNDEFINED", "ALE", "GAGE", "GCMD", "Picarro"}, d.Names())
	n, err := d.Number(Undefined)
	require.NoError(t, err)
	assert.Equal(t, -1, n)

	_, err = Define(nil)
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	d, err := Define(scheduleFiles)
	require.NoError(t, err)

	s := d.String()
	assert.Equal(t, "UNDEFINED=-1, ALE=0, GAGE=1, GCMD=2, Picarro=3", s)
	assert.Equal(t, len(d.Names())-1, strings.Count(s, ","))
}

func TestNumberAndType(t *testing.T) {
	d, err := Define(scheduleFiles)
	require.NoError(t, err)

	for _, name := range d.Names() {
		n, err := d.Number(name)
		require.NoError(t, err)
		typ, err := d.Type(n)
		require.NoError(t, err)
		assert.Equal(t, name, typ)
	}

	n, err := d.Number("Picarro-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = d.Number("X")
	assert.Error(t, err)
	_, err = d.Number("Medusa")
	assert.ErrorIs(t, err, ErrUnknown)
	_, err = d.Type(42)
	assert.ErrorIs(t, err, ErrUnknown)

	assert.Equal(t, []string{"ALE", "GCMD"}, d.Types([]int{2, 0}))
}

func TestMinimumAveragingPeriod(t *testing.T) {
	assert.Equal(t, time.Hour, MinimumAveragingPeriod("Picarro"))
	assert.Equal(t, time.Hour, MinimumAveragingPeriod("Picarro-2"))
	assert.Equal(t, time.Duration(0), MinimumAveragingPeriod("GCMD"))
}
