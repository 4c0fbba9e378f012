package follow

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return epoch.Add(time.Duration(n) * time.Millisecond)
}

func testConfig() Config {
	return Config{
		SettleTimeout:      100 * time.Millisecond,
		LockDuration:       300 * time.Millisecond,
		EdgeEpsilon:        0.5,
		DisengageTolerance: 1,
		DriftTolerance:     3,
		VelocityHalfLife:   100 * time.Millisecond,
		HighRateCount:      10,
		HighRateWindow:     200 * time.Millisecond,
		ConfirmDelays:      []time.Duration{10 * time.Millisecond, 40 * time.Millisecond, 100 * time.Millisecond},
	}
}

func newMachine() *Machine {
	m := New(testConfig(), zerolog.Nop())
	m.Rebase(500, 500)
	return m
}

func TestScrollUpStopsFollowing(t *testing.T) {
	m := newMachine()
	act := m.OnUserScroll(ms(0), 400, 500)

	assert.Equal(t, Manual, m.State())
	assert.True(t, act.Has(SaveAnchor))
	assert.False(t, act.Has(ScrollToEdge))

	s := m.Snapshot()
	assert.True(t, s.UserScrolling)
	assert.True(t, s.ManualLock)
	assert.False(t, s.TowardEdge)
	assert.False(t, s.AutoFollow())
}

func TestSmallScrollKeepsFollowing(t *testing.T) {
	m := newMachine()
	act := m.OnUserScroll(ms(0), 499.5, 500)
	assert.Equal(t, Following, m.State())
	assert.Zero(t, act)
}

func TestReturnToEdgeEngagesAfterLock(t *testing.T) {
	m := newMachine()
	m.OnUserScroll(ms(0), 400, 500)
	m.OnUserScroll(ms(50), 500, 500)
	assert.True(t, m.Snapshot().TowardEdge)

	// Settled but still locked
	act := m.Tick(ms(160), 500, 500)
	assert.Zero(t, act)
	assert.Equal(t, Manual, m.State())
	assert.False(t, m.Snapshot().UserScrolling)

	// Lock expiry re-evaluates with the settle rule
	act = m.Tick(ms(360), 500, 500)
	assert.Equal(t, Following, m.State())
	assert.True(t, act.Has(DropAnchor))
	assert.True(t, act.Has(ScrollToEdge))
}

func TestSettleAwayFromEdgeStaysManual(t *testing.T) {
	m := newMachine()
	m.OnUserScroll(ms(0), 400, 500)
	m.Tick(ms(1000), 400, 500)
	assert.Equal(t, Manual, m.State())
	assert.False(t, m.Snapshot().ManualLock)
}

func TestIdleConvergenceAtEdge(t *testing.T) {
	m := newMachine()
	m.OnUserScroll(ms(0), 400, 500)
	m.Tick(ms(400), 400, 500)
	require.Equal(t, Manual, m.State())

	// Content shrank under the viewport so it now sits at the edge
	act := m.Tick(ms(450), 200, 200)
	assert.Equal(t, Following, m.State())
	assert.True(t, act.Has(ScrollToEdge))
}

func TestOptOutBlocksIdleConvergence(t *testing.T) {
	m := newMachine()
	act := m.SetPreference(ms(0), false, 500, 500)
	assert.True(t, act.Has(SaveAnchor))
	assert.Equal(t, Manual, m.State())

	m.Tick(ms(1000), 500, 500)
	assert.Equal(t, Manual, m.State())

	// A deliberate scroll back down to the edge clears the opt-out
	m.OnUserScroll(ms(1100), 450, 500)
	m.OnUserScroll(ms(1150), 500, 500)
	m.Tick(ms(1600), 500, 500)
	assert.Equal(t, Following, m.State())
}

func TestNoScrollCommandsWhileUserScrolling(t *testing.T) {
	m := newMachine()
	m.OnUserScroll(ms(0), 499.8, 500)
	require.Equal(t, Following, m.State())

	m.NoteArrivals(ms(10), 100)
	for i := 10; i < 100; i += 10 {
		act := m.Reconcile(ms(i), 499.8, 520)
		assert.False(t, act.Has(ScrollToEdge))
		act = m.Tick(ms(i), 499.8, 520)
		assert.False(t, act.Has(ScrollToEdge))
	}
	assert.Zero(t, m.PendingConfirmations())
}

func TestReconcileFollowsGrowth(t *testing.T) {
	m := newMachine()
	act := m.Reconcile(ms(0), 500, 520)
	assert.Equal(t, ScrollToEdge, act)

	m.Rebase(520, 520)
	assert.Zero(t, m.Reconcile(ms(10), 520, 520))
}

func TestReconcileCorrectsSmallDrift(t *testing.T) {
	m := newMachine()
	act := m.Reconcile(ms(0), 498, 530)
	assert.Equal(t, ScrollToEdge, act)
	assert.Equal(t, Following, m.State())
}

func TestReconcileDowngradesLargeDivergence(t *testing.T) {
	m := newMachine()
	act := m.Reconcile(ms(0), 300, 600)
	assert.Equal(t, SaveAnchor, act)
	assert.Equal(t, Manual, m.State())
}

func TestHighRateConfirmations(t *testing.T) {
	m := newMachine()
	m.NoteArrivals(ms(0), 4)
	assert.Zero(t, m.PendingConfirmations())
	m.NoteArrivals(ms(50), 6)
	assert.Equal(t, 3, m.PendingConfirmations())

	// A new burst replaces the pending confirmations
	m.NoteArrivals(ms(55), 20)
	assert.Equal(t, 3, m.PendingConfirmations())

	act := m.Tick(ms(65), 500, 500)
	assert.True(t, act.Has(ScrollToEdge))
	assert.Equal(t, 2, m.PendingConfirmations())

	// Arrivals outside the window do not count
	m2 := newMachine()
	m2.NoteArrivals(ms(0), 9)
	m2.NoteArrivals(ms(500), 9)
	assert.Zero(t, m2.PendingConfirmations())
}

func TestSetPreferenceOn(t *testing.T) {
	m := newMachine()
	m.OnUserScroll(ms(0), 100, 500)
	act := m.SetPreference(ms(10), true, 100, 500)

	assert.Equal(t, Following, m.State())
	assert.Equal(t, DropAnchor|ScrollToEdge, act)
	s := m.Snapshot()
	assert.False(t, s.ManualLock)
	assert.False(t, s.UserScrolling)
	assert.False(t, s.OptOut)

	// Timers from the earlier scroll were cancelled
	_, pending := m.NextDeadline()
	assert.False(t, pending)
}

func TestVelocityDecays(t *testing.T) {
	m := newMachine()
	m.OnUserScroll(ms(0), 500, 500)
	m.OnUserScroll(ms(100), 400, 500)
	assert.InDelta(t, -1000, m.Snapshot().Velocity, 1e-6)

	m.Tick(ms(200), 400, 500)
	assert.InDelta(t, -500, m.Snapshot().Velocity, 1e-6)
}

func TestVelocityDoesNotDecide(t *testing.T) {
	slow, fast := newMachine(), newMachine()
	for _, m := range []*Machine{slow, fast} {
		m.OnUserScroll(ms(0), 300, 500)
	}
	slow.OnUserScroll(ms(400), 500, 500)
	fast.OnUserScroll(ms(1), 500, 500)
	require.Greater(t, fast.Snapshot().Velocity, slow.Snapshot().Velocity)

	for _, at := range []int{450, 800, 1200} {
		slow.Tick(ms(at), 500, 500)
		fast.Tick(ms(at), 500, 500)
	}
	s, f := slow.Snapshot(), fast.Snapshot()
	s.Velocity, f.Velocity = 0, 0
	assert.Equal(t, s, f)
	assert.Equal(t, Following, f.State)
}

func TestResetKeepsDisposition(t *testing.T) {
	m := newMachine()
	m.SetPreference(ms(0), false, 500, 500)
	m.Reset()
	assert.Equal(t, Manual, m.State())
	assert.True(t, m.Snapshot().OptOut)
}
