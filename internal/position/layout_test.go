package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioLayout(t *testing.T) *Layout {
	t.Helper()
	x := newIndex(t, Config{Gap: 2, DefaultHeight: 20})
	x.Sync([]uint64{11, 12, 13, 14, 15})
	return x.Recalculate()
}

func TestLayoutLocate(t *testing.T) {
	l := scenarioLayout(t)

	tests := []struct {
		offset float64
		want   int
	}{
		{0, 0},
		{50, 2},
		{21, 0}, // inside the gap after entry 0
		{66, 3},
		{-5, 0},
		{1000, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.Locate(tt.offset), "locate(%v)", tt.offset)
	}

	var empty *Layout
	assert.Equal(t, 0, empty.Locate(10))
	assert.Equal(t, 0, (&Layout{}).Locate(10))
}

func TestLayoutExtent(t *testing.T) {
	l := scenarioLayout(t)
	assert.Equal(t, 22.0, l.Extent(0))
	assert.Equal(t, 20.0, l.Extent(4))
	assert.Equal(t, 88.0, l.MaxScroll(20))
	assert.Equal(t, 0.0, l.MaxScroll(500))
}

func TestLayoutAnchorRoundTrip(t *testing.T) {
	l := scenarioLayout(t)

	a, ok := l.AnchorAt(50)
	require.True(t, ok)
	assert.Equal(t, Anchor{Seq: 13, Within: 6}, a)
	assert.Equal(t, 50.0, l.Restore(a))

	// The anchored entry moved down after a taller predecessor was measured
	x := newIndex(t, Config{Gap: 2, DefaultHeight: 20})
	x.Sync([]uint64{11, 12, 13, 14, 15})
	for _, seq := range []uint64{12, 13, 14, 15} {
		x.RecordMeasuredHeight(seq, 20)
	}
	x.RecordMeasuredHeight(11, 40)
	moved := x.Recalculate()
	assert.Equal(t, 70.0, moved.Restore(a))
}

func TestLayoutRestoreMissingEntry(t *testing.T) {
	l := scenarioLayout(t)
	assert.Equal(t, 0.0, l.Restore(Anchor{Seq: 3, Within: 5}))
	assert.Equal(t, 88.0, l.Restore(Anchor{Seq: 99}))

	_, ok := (&Layout{}).AnchorAt(3)
	assert.False(t, ok)
}
