package stream

import (
	"fmt"
	"testing"
	"time"

	"github.com/TimelordUK/mtail/internal/backend"
	"github.com/TimelordUK/mtail/internal/follow"
	"github.com/TimelordUK/mtail/internal/position"
	"github.com/TimelordUK/mtail/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return epoch.Add(time.Duration(n) * time.Millisecond)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Capacity = 50
	cfg.Threshold = 0
	cfg.Buffer = 2
	cfg.Index = position.Config{Gap: 2, DefaultHeight: 20}
	cfg.Follow = follow.Config{
		SettleTimeout:      100 * time.Millisecond,
		LockDuration:       300 * time.Millisecond,
		EdgeEpsilon:        0.5,
		DisengageTolerance: 1,
		DriftTolerance:     3,
		VelocityHalfLife:   100 * time.Millisecond,
		HighRateCount:      1000,
		HighRateWindow:     time.Second,
		ConfirmDelays:      []time.Duration{10 * time.Millisecond},
	}
	cfg.Backend.Mode = backend.ModeNever
	return cfg
}

func entries(from, to uint64) []store.Entry {
	var out []store.Entry
	for s := from; s <= to; s++ {
		level := store.LevelInfo
		if s%2 == 0 {
			level = store.LevelError
		}
		out = append(out, store.Entry{
			Sequence:  s,
			Timestamp: epoch.Add(time.Duration(s) * time.Second),
			Level:     level,
			Message:   fmt.Sprintf("message %d", s),
		})
	}
	return out
}

// echoSurface reports every programmatic scroll straight back, the way a
// real scroll container fires its scroll event
type echoSurface struct {
	r     *Renderer
	now   time.Time
	calls []float64
}

func (s *echoSurface) ScrollTo(offset float64) {
	s.calls = append(s.calls, offset)
	s.r.OnScroll(s.now, offset)
}

func newRenderer(t *testing.T, viewport float64) (*Renderer, *echoSurface) {
	t.Helper()
	surface := &echoSurface{now: epoch}
	r := New(testConfig(), nil, surface, zerolog.Nop())
	surface.r = r
	r.OnResize(epoch, viewport)
	return r, surface
}

func TestFollowIncludesNewestEntry(t *testing.T) {
	r, _ := newRenderer(t, 100)
	require.NoError(t, r.Append(ms(0), entries(1, 5)...))
	f := r.Frame(ms(0))
	require.True(t, f.AutoFollow())

	require.NoError(t, r.Append(ms(10), entries(6, 6)...))
	f = r.Frame(ms(16))

	assert.True(t, f.Window.Contains(5))
	require.NotEmpty(t, f.Items)
	assert.Equal(t, uint64(6), f.Items[len(f.Items)-1].Seq)
	assert.Equal(t, 130.0, f.Total)
	assert.Equal(t, 30.0, f.Offset)
}

func TestProgrammaticScrollIsNotUserInput(t *testing.T) {
	r, surface := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 20)...)
	f := r.Frame(ms(0))

	require.NotEmpty(t, surface.calls)
	assert.True(t, f.AutoFollow())
	assert.False(t, f.Follow.UserScrolling)
	assert.False(t, r.programmatic)
}

func TestScrollUpRecordsAnchor(t *testing.T) {
	r, _ := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 50)...)
	f := r.Frame(ms(0))
	require.Equal(t, 998.0, f.Offset)

	r.OnScroll(ms(10), 898)
	assert.Equal(t, follow.Manual, r.Follow().State)

	a, ok := r.Anchor()
	require.True(t, ok)
	assert.Equal(t, position.Anchor{Seq: 41, Within: 18}, a)
}

func TestAnchorHoldsAcrossEviction(t *testing.T) {
	r, _ := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 50)...)
	r.Frame(ms(0))
	r.OnScroll(ms(10), 898)

	// Capacity is 50, so 1..5 are evicted
	r.Append(ms(20), entries(51, 55)...)
	f := r.Frame(ms(30))
	assert.Equal(t, 898.0, f.Offset, "layout held while the user is scrolling")

	f = r.Frame(ms(500))
	assert.Equal(t, follow.Manual, f.Follow.State)
	assert.Equal(t, 788.0, f.Offset)

	top := r.index.Layout().Locate(f.Offset)
	assert.Equal(t, uint64(41), r.index.Layout().Seqs[top])
}

func TestReturnToBottomResumesFollowing(t *testing.T) {
	r, _ := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 50)...)
	r.Frame(ms(0))

	r.OnScroll(ms(10), 898)
	r.OnScroll(ms(60), 998)
	r.Frame(ms(200))
	assert.Equal(t, follow.Manual, r.Follow().State, "still locked")

	f := r.Frame(ms(400))
	assert.True(t, f.AutoFollow())
	_, ok := r.Anchor()
	assert.False(t, ok)
}

func TestClearKeepsFollowDisposition(t *testing.T) {
	r, _ := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 10)...)
	r.Frame(ms(0))

	r.Clear()
	r.Append(ms(10), entries(1, 3)...)
	f := r.Frame(ms(20))
	assert.True(t, f.AutoFollow())
	assert.Equal(t, 3, f.Count)

	r.SetFollow(ms(30), false)
	r.Clear()
	f = r.Frame(ms(40))
	assert.False(t, f.AutoFollow())
	assert.Zero(t, f.Count)
	assert.True(t, f.Window.Empty())
}

func TestFilterChangeAppliesNextFrame(t *testing.T) {
	r, _ := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 40)...)
	r.Frame(ms(0))

	r.View().SetLevelAndAbove(store.LevelError)
	f := r.Frame(ms(16))
	assert.Equal(t, 20, f.Count)
	assert.Equal(t, 40, f.Stored)
	for _, it := range f.Items {
		assert.Equal(t, store.LevelError, it.Entry.Level)
	}
	assert.True(t, f.AutoFollow())
	assert.Equal(t, uint64(40), f.Items[len(f.Items)-1].Seq)
}

func TestMeasuredHeightsReflow(t *testing.T) {
	r, _ := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 5)...)
	r.Frame(ms(0))

	r.Measure(1, 40)
	r.Measure(2, 40)
	f := r.Frame(ms(16))
	// Unmeasured entries take the measured average
	assert.Equal(t, 5*40+4*2.0, f.Total)
	assert.Equal(t, 42.0, f.Items[1].Offset)
}

func TestToggleFollow(t *testing.T) {
	r, surface := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 50)...)
	r.Frame(ms(0))
	r.OnScroll(ms(10), 100)

	surface.calls = nil
	r.ToggleFollow(ms(20))
	assert.True(t, r.Follow().AutoFollow())
	assert.Equal(t, []float64{998}, surface.calls)
	assert.Equal(t, 998.0, r.Offset())
}

func TestViewportGrowthMovesSurface(t *testing.T) {
	r, surface := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 50)...)
	f := r.Frame(ms(0))
	require.Equal(t, 998.0, f.Offset)

	// Following: the frame clamps past the new edge
	surface.calls = nil
	r.OnResize(ms(10), 400)
	f = r.Frame(ms(16))
	assert.Equal(t, 698.0, f.Offset)
	assert.Contains(t, surface.calls, 698.0)
	assert.False(t, r.programmatic)
}

func TestResizeRestoresManualAnchorThroughSurface(t *testing.T) {
	r, surface := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 50)...)
	r.Frame(ms(0))
	r.OnScroll(ms(10), 898)
	require.Equal(t, follow.Manual, r.Follow().State)

	surface.calls = nil
	r.OnResize(ms(20), 400)
	assert.Equal(t, []float64{698}, surface.calls)
	assert.Equal(t, 698.0, r.Offset())
}

func TestAppendOutOfOrder(t *testing.T) {
	r, _ := newRenderer(t, 100)
	r.Append(ms(0), entries(5, 6)...)
	err := r.Append(ms(1), entries(3, 3)...)
	assert.ErrorIs(t, err, store.ErrOutOfOrder)
	assert.Equal(t, 2, r.Store().Len())
}

func TestApplyShrinksCapacity(t *testing.T) {
	r, _ := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 40)...)
	r.Frame(ms(0))

	cfg := r.Config()
	cfg.Capacity = 10
	r.Apply(cfg)
	f := r.Frame(ms(16))
	assert.Equal(t, 10, f.Stored)
	assert.Equal(t, 10, f.Count)
	assert.Equal(t, uint64(31), r.Store().Oldest().Sequence)
}

func TestFilterKeepsManualViewportOnNextSurvivor(t *testing.T) {
	r, _ := newRenderer(t, 100)
	r.Append(ms(0), entries(1, 40)...)
	r.Frame(ms(0))

	r.OnScroll(ms(10), 220)
	r.Frame(ms(500))
	require.Equal(t, follow.Manual, r.Follow().State)
	a, ok := r.Anchor()
	require.True(t, ok)
	require.Equal(t, uint64(11), a.Seq)

	r.SetFilter(func(e *store.Entry) bool { return e.Level == store.LevelError })
	f := r.Frame(ms(600))
	assert.Equal(t, 20, f.Count)
	assert.Equal(t, 110.0, f.Offset)
	top := r.index.Layout().Locate(f.Offset)
	assert.Equal(t, uint64(12), r.index.Layout().Seqs[top])
}
