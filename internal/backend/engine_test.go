package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceRecalculateScenario(t *testing.T) {
	res, err := Reference{}.Recalculate([]float64{20, 20, 20, 20, 20}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 22, 44, 66, 88}, res.Offsets)
	assert.Equal(t, 108.0, res.Total)
}

func TestReferenceRecalculateIdempotent(t *testing.T) {
	heights := SyntheticHeights(500, 1, 40, 7)
	a, _ := Reference{}.Recalculate(heights, 1)
	b, _ := Reference{}.Recalculate(heights, 1)
	assert.Equal(t, a, b)
}

func TestReferenceLocate(t *testing.T) {
	res, _ := Reference{}.Recalculate([]float64{20, 20, 20, 20, 20}, 2)

	tests := []struct {
		target float64
		want   int
	}{
		{50, 2},
		{0, 0},
		{21.9, 0},
		{22, 1},
		{107.9, 4},
		{-10, 0},
		{500, 4},
	}
	for _, tt := range tests {
		got, err := Reference{}.Locate(res.Offsets, res.Total, tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "locate(%v)", tt.target)
	}

	got, _ := Reference{}.Locate(nil, 0, 42)
	assert.Equal(t, 0, got)
}

func TestLocateBandInvariant(t *testing.T) {
	heights := SyntheticHeights(2000, 1, 30, 11)
	res, _ := Reference{}.Recalculate(heights, 2)
	accel := &Accelerated{workers: 4}

	for o := 0.0; o < res.Total; o += 3.7 {
		i, _ := Reference{}.Locate(res.Offsets, res.Total, o)
		end := res.Total
		if i+1 < len(res.Offsets) {
			end = res.Offsets[i+1]
		}
		require.True(t, res.Offsets[i] <= o && o < end, "offset %v in band of %d", o, i)

		j, err := accel.Locate(res.Offsets, res.Total, o)
		require.NoError(t, err)
		require.Equal(t, i, j, "offset %v", o)
	}
}

func TestLocateSkipsZeroHeightEntries(t *testing.T) {
	offsets := []float64{0, 10, 10, 10, 20}
	for _, e := range []Engine{Reference{}, &Accelerated{workers: 2}} {
		got, err := e.Locate(offsets, 30, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, got, e.Name())
	}
}

func TestAcceleratedMatchesReference(t *testing.T) {
	heights := SyntheticHeights(50_000, 1, 25, 3)
	accel := &Accelerated{workers: 4}
	require.Equal(t, 4, accel.blocks(len(heights)))

	want, _ := Reference{}.Recalculate(heights, 1)
	got, err := accel.Recalculate(heights, 1)
	require.NoError(t, err)
	assert.True(t, Equivalent(got, want, 1e-9))
}

func TestAcceleratedEmptyInput(t *testing.T) {
	accel := &Accelerated{workers: 4}
	res, err := accel.Recalculate(nil, 2)
	require.NoError(t, err)
	assert.Empty(t, res.Offsets)
	assert.Zero(t, res.Total)
}

func TestAcceleratedRejectsNegativeHeights(t *testing.T) {
	accel := &Accelerated{workers: 1}
	_, err := accel.Recalculate([]float64{10, -30, 5}, 0)
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestCompareReport(t *testing.T) {
	heights := SyntheticHeights(10_000, 1, 10, 5)
	rep := Compare(Reference{}, &Accelerated{workers: 2}, heights, 1, 2, 1e-9)
	assert.NoError(t, rep.Err)
	assert.True(t, rep.Equivalent)
	assert.Equal(t, 10_000, rep.Entries)
}
