package fortran

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cols, err := Parse("(F10.5, 2I4,I6, 2I4,I6,1X,70(F12.3,a1))")
	require.NoError(t, err)
	require.Len(t, cols, 7+2*70)
	assert.Equal(t, Column{0, 10, Float}, cols[0])
	assert.Equal(t, Column{10, 14, Int}, cols[1])
	assert.Equal(t, Column{39, 51, Float}, cols[7], "1X skips a character")
	assert.Equal(t, Column{51, 52, String}, cols[8])

	cols, err = Parse("I4")
	require.NoError(t, err)
	assert.Equal(t, []Column{{0, 4, Int}}, cols)

	cols, err = Parse("10(F12.3)")
	require.NoError(t, err)
	require.Len(t, cols, 10)
	assert.Equal(t, Column{0, 12, Float}, cols[0])

	cols, err = Parse("(a1, 2I4, 2F10.5)")
	require.NoError(t, err)
	want := []Column{{0, 1, String}, {1, 5, Int}, {5, 9, Int}, {9, 19, Float}, {19, 29, Float}}
	if diff := cmp.Diff(want, cols); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	for _, f := range []string{"Q5", "2(F3.1", "F3.1)"} {
		_, err := Parse(f)
		assert.Error(t, err, f)
	}
}

func TestSplit(t *testing.T) {
	cols, err := Parse("(I4,1X,F6.2,A1)")
	require.NoError(t, err)
	assert.Equal(t, []string{"2001", "12.50", "P"}, Split("2001  12.50P", cols))
	assert.Equal(t, []string{"2001", "1.5", ""}, Split("2001    1.5", cols))

	w := Widths([]Kind{Int, Int}, 3, 5, 7)
	assert.Equal(t, []string{"1", "1200", "3.2"}, Split("  1 1200    3.2", w))
	assert.Equal(t, Float, w[2].Kind)
}
