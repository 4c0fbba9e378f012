// Package follow decides when the viewport tracks the newest entry.
//
// Every handler takes the current time and the viewport position (offset
// and the largest valid offset, which is the newest-entry edge). Handlers
// return the Actions the caller must perform; the machine never scrolls by
// itself.
package follow

import (
	"math"
	"time"

	"github.com/TimelordUK/mtail/internal/sched"
	"github.com/rs/zerolog"
)

// State is the follow disposition
type State int

const (
	Following State = iota
	Manual
)

func (s State) String() string {
	if s == Following {
		return "following"
	}
	return "manual"
}

// Action is a set of instructions for the caller
type Action uint8

const (
	// ScrollToEdge asks for a programmatic scroll to the newest entry
	ScrollToEdge Action = 1 << iota
	// SaveAnchor asks to snapshot the entry at the top of the viewport
	SaveAnchor
	// DropAnchor asks to discard the saved anchor
	DropAnchor
)

// Has reports whether a contains b
func (a Action) Has(b Action) bool {
	return a&b != 0
}

const (
	keySettle  sched.Key = "settle"
	keyLock    sched.Key = "lock"
	keyConfirm sched.Key = "confirm"
)

// Config holds the machine tunables
type Config struct {
	SettleTimeout      time.Duration // quiet period after which the user is no longer scrolling
	LockDuration       time.Duration // veto on re-engagement after a user scroll
	EdgeEpsilon        float64       // distance from the edge still counted as at the edge
	DisengageTolerance float64       // distance from the edge a user scroll may move before following stops
	DriftTolerance     float64       // follow drift that is corrected instead of downgraded
	VelocityHalfLife   time.Duration // decay of the reported velocity
	HighRateCount      int           // arrivals within HighRateWindow that count as a burst
	HighRateWindow     time.Duration
	ConfirmDelays      []time.Duration
}

// DefaultConfig returns the machine defaults, in terminal rows
func DefaultConfig() Config {
	return Config{
		SettleTimeout:      150 * time.Millisecond,
		LockDuration:       600 * time.Millisecond,
		EdgeEpsilon:        0.5,
		DisengageTolerance: 1,
		DriftTolerance:     3,
		VelocityHalfLife:   250 * time.Millisecond,
		HighRateCount:      50,
		HighRateWindow:     500 * time.Millisecond,
		ConfirmDelays:      []time.Duration{16 * time.Millisecond, 50 * time.Millisecond, 150 * time.Millisecond},
	}
}

// Snapshot is a read-only copy of the machine state
type Snapshot struct {
	State         State
	UserScrolling bool
	ManualLock    bool
	OptOut        bool
	TowardEdge    bool

	// Velocity is units per second, positive toward the newest entry. It is
	// reported for diagnostics only; no transition reads it.
	Velocity float64
}

// AutoFollow reports whether the viewport should track the newest entry
func (s Snapshot) AutoFollow() bool {
	return s.State == Following
}

type arrival struct {
	at    time.Time
	count int
}

// Machine is the scroll-intent state machine
type Machine struct {
	cfg   Config
	log   zerolog.Logger
	tasks *sched.Scheduler

	state         State
	userScrolling bool
	manualLock    bool
	optOut        bool // follow was switched off explicitly

	velocity   float64 // diagnostic, see Snapshot.Velocity
	towardEdge bool

	lastOffset float64
	lastMax    float64 // edge the viewport was last reconciled to
	lastScroll time.Time
	lastTick   time.Time

	arrivals []arrival
}

// New creates a machine in the Following state
func New(cfg Config, log zerolog.Logger) *Machine {
	return &Machine{
		cfg:        cfg,
		log:        log.With().Str("component", "follow").Logger(),
		tasks:      sched.New(),
		state:      Following,
		towardEdge: true,
	}
}

// SetConfig installs new tunables. Pending timers keep their deadlines.
func (m *Machine) SetConfig(cfg Config) {
	m.cfg = cfg
}

// Config returns the active tunables
func (m *Machine) Config() Config {
	return m.cfg
}

// Snapshot returns the current state
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:         m.state,
		UserScrolling: m.userScrolling,
		ManualLock:    m.manualLock,
		OptOut:        m.optOut,
		Velocity:      m.velocity,
		TowardEdge:    m.towardEdge,
	}
}

// State returns the follow disposition
func (m *Machine) State() State {
	return m.state
}

// AutoFollow reports whether the viewport should track the newest entry
func (m *Machine) AutoFollow() bool {
	return m.state == Following
}

// NextDeadline returns when the earliest pending timer fires
func (m *Machine) NextDeadline() (time.Time, bool) {
	return m.tasks.Next()
}

// PendingConfirmations returns how many forced-scroll confirmations wait
func (m *Machine) PendingConfirmations() int {
	return m.tasks.Pending(keyConfirm)
}

func (m *Machine) atEdge(offset, edge float64) bool {
	return edge-offset <= m.cfg.EdgeEpsilon
}

// OnUserScroll handles a scroll that was not issued by the renderer
func (m *Machine) OnUserScroll(now time.Time, offset, edge float64) Action {
	var act Action

	if !m.lastScroll.IsZero() {
		delta := offset - m.lastOffset
		if dt := now.Sub(m.lastScroll).Seconds(); dt > 0 {
			m.velocity = delta / math.Max(dt, 0.001)
		}
		if delta != 0 {
			m.towardEdge = delta > 0
		}
	} else if offset != m.lastOffset {
		m.towardEdge = offset > m.lastOffset
	}
	m.lastOffset = offset
	m.lastMax = edge
	m.lastScroll = now
	m.lastTick = now

	m.userScrolling = true
	m.manualLock = true
	m.tasks.Reschedule(keySettle, now.Add(m.cfg.SettleTimeout))
	m.tasks.Reschedule(keyLock, now.Add(m.cfg.LockDuration))
	if n := m.tasks.Cancel(keyConfirm); n > 0 {
		m.log.Debug().Int("cancelled", n).Msg("User scroll cancelled confirmations")
	}

	if m.atEdge(offset, edge) && m.towardEdge {
		m.optOut = false
	}

	if m.state == Following && edge-offset > m.cfg.DisengageTolerance {
		m.state = Manual
		m.log.Debug().
			Float64("offset", offset).
			Float64("edge", edge).
			Float64("velocity", m.velocity).
			Msg("User scrolled away, following stopped")
	}
	if m.state == Manual {
		act |= SaveAnchor
	}
	return act
}

// Tick decays velocity, runs due timers and checks idle convergence
func (m *Machine) Tick(now time.Time, offset, edge float64) Action {
	var act Action

	if !m.lastTick.IsZero() && m.cfg.VelocityHalfLife > 0 {
		if dt := now.Sub(m.lastTick); dt > 0 {
			m.velocity *= math.Exp2(-dt.Seconds() / m.cfg.VelocityHalfLife.Seconds())
			if math.Abs(m.velocity) < 1e-3 {
				m.velocity = 0
			}
		}
	}
	m.lastTick = now

	for _, key := range m.tasks.Due(now) {
		switch key {
		case keySettle:
			m.userScrolling = false
			act |= m.engage(offset, edge, "settled at edge")
		case keyLock:
			m.manualLock = false
			act |= m.engage(offset, edge, "lock expired at edge")
		case keyConfirm:
			if m.state == Following && !m.userScrolling && !m.manualLock {
				act |= ScrollToEdge
			}
		}
	}

	if m.state == Manual && !m.optOut && !m.userScrolling && !m.manualLock &&
		m.atEdge(offset, edge) && now.Sub(m.lastScroll) >= m.cfg.SettleTimeout {
		m.state = Following
		m.lastMax = edge
		m.log.Debug().Float64("edge", edge).Msg("Idle at edge, following resumed")
		act |= DropAnchor | ScrollToEdge
	}
	return act
}

// engage resumes following when the user has stopped at the edge, moving
// toward it, with no lock active
func (m *Machine) engage(offset, edge float64, reason string) Action {
	if m.state != Manual || m.userScrolling || m.manualLock {
		return 0
	}
	if !m.atEdge(offset, edge) || !m.towardEdge {
		return 0
	}
	m.state = Following
	m.optOut = false
	m.lastMax = edge
	m.log.Debug().Float64("edge", edge).Msg("Following resumed: " + reason)
	return DropAnchor | ScrollToEdge
}

// Reconcile checks that a following viewport still shows the newest entry.
// Small drift is corrected; large divergence stops following.
func (m *Machine) Reconcile(now time.Time, offset, edge float64) Action {
	if m.state != Following {
		return 0
	}
	if m.userScrolling || m.manualLock {
		return 0
	}

	drift := math.Max(0, math.Min(m.lastMax, edge)-offset)
	switch {
	case drift <= m.cfg.EdgeEpsilon:
		m.lastMax = edge
		if m.atEdge(offset, edge) {
			return 0
		}
		return ScrollToEdge
	case drift <= m.cfg.DriftTolerance:
		m.log.Debug().
			Float64("drift", drift).
			Float64("offset", offset).
			Float64("edge", edge).
			Msg("Correcting follow drift")
		m.lastMax = edge
		return ScrollToEdge
	default:
		m.state = Manual
		m.tasks.Cancel(keyConfirm)
		m.log.Warn().
			Float64("drift", drift).
			Float64("offset", offset).
			Float64("edge", edge).
			Time("at", now).
			Msg("Follow state diverged from viewport, switching to manual")
		return SaveAnchor
	}
}

// Rebase records edge as the reconciled edge, for use after the caller has
// moved the viewport itself
func (m *Machine) Rebase(offset, edge float64) {
	m.lastOffset = offset
	m.lastMax = edge
}

// NoteArrivals records n new entries. A burst while following schedules
// staggered confirmations, replacing any still pending.
func (m *Machine) NoteArrivals(now time.Time, n int) {
	if n <= 0 {
		return
	}
	m.arrivals = append(m.arrivals, arrival{at: now, count: n})

	cutoff := now.Add(-m.cfg.HighRateWindow)
	keep := 0
	for keep < len(m.arrivals) && m.arrivals[keep].at.Before(cutoff) {
		keep++
	}
	m.arrivals = m.arrivals[keep:]

	if m.state != Following || m.userScrolling || m.manualLock || m.cfg.HighRateCount <= 0 {
		return
	}
	total := 0
	for _, a := range m.arrivals {
		total += a.count
	}
	if total < m.cfg.HighRateCount {
		return
	}

	m.tasks.Cancel(keyConfirm)
	for _, d := range m.cfg.ConfirmDelays {
		m.tasks.Schedule(keyConfirm, now.Add(d))
	}
	m.log.Debug().
		Int("arrivals", total).
		Dur("window", m.cfg.HighRateWindow).
		Int("confirmations", len(m.cfg.ConfirmDelays)).
		Msg("High arrival rate, scheduling confirmations")
}

// SetPreference applies an explicit follow toggle
func (m *Machine) SetPreference(now time.Time, on bool, offset, edge float64) Action {
	m.manualLock = false
	m.tasks.Cancel(keyLock)

	if on {
		m.state = Following
		m.userScrolling = false
		m.optOut = false
		m.towardEdge = true
		m.tasks.Cancel(keySettle)
		m.lastMax = edge
		m.log.Debug().Time("at", now).Msg("Follow switched on")
		return DropAnchor | ScrollToEdge
	}

	m.state = Manual
	m.optOut = true
	m.tasks.Cancel(keyConfirm)
	m.lastOffset = offset
	m.log.Debug().Time("at", now).Msg("Follow switched off")
	return SaveAnchor
}

// Reset drops timers and arrivals but keeps the follow disposition
func (m *Machine) Reset() {
	m.tasks.CancelAll()
	m.arrivals = nil
	m.userScrolling = false
	m.manualLock = false
	m.velocity = 0
	m.lastOffset = 0
	m.lastMax = 0
}
