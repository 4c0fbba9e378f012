package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/rs/zerolog"
)

// Mode forces or forbids the accelerated engine
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeAlways Mode = "always"
	ModeNever  Mode = "never"
)

// ParseMode maps a config string to a Mode, defaulting to auto
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeAlways, ModeNever:
		return Mode(s)
	}
	return ModeAuto
}

// Config holds the selector tunables
type Config struct {
	Mode            Mode
	RecalcThreshold int // entry count above which auto mode accelerates recalculation
	LocateThreshold int // entry count above which auto mode accelerates locate
	FailureLimit    uint
	Cooldown        time.Duration
	SampleEvery     int // compare against the reference every N accelerated calls, 0 disables
	Tolerance       float64
}

// DefaultConfig returns the selector defaults
func DefaultConfig() Config {
	return Config{
		Mode:            ModeAuto,
		RecalcThreshold: 20_000,
		LocateThreshold: 50_000,
		FailureLimit:    3,
		Cooldown:        30 * time.Second,
		SampleEvery:     100,
		Tolerance:       1e-9,
	}
}

// OpStats are per-operation counters
type OpStats struct {
	Accelerated int // calls that attempted the accelerated engine
	Reference   int // calls routed directly to the reference engine
	Failures    int
	Consecutive int
	Skipped     int // calls refused while blacklisted
	Sampled     int
	Mismatches  int
	Blacklisted bool

	accelTime time.Duration
	refTime   time.Duration
	refRuns   int
}

// MeanAccelerated returns the mean accelerated call duration
func (s OpStats) MeanAccelerated() time.Duration {
	if s.Accelerated == 0 {
		return 0
	}
	return s.accelTime / time.Duration(s.Accelerated)
}

// MeanReference returns the mean duration of sampled reference runs
func (s OpStats) MeanReference() time.Duration {
	if s.refRuns == 0 {
		return 0
	}
	return s.refTime / time.Duration(s.refRuns)
}

// Selector routes each call to the reference or accelerated engine.
// It is the only place that knows both engines exist.
type Selector struct {
	cfg      Config
	ref      Engine
	accel    Engine
	log      zerolog.Logger
	breakers map[Operation]circuitbreaker.CircuitBreaker[any]
	stats    map[Operation]*OpStats
}

// NewSelector creates a selector. accel may be nil.
func NewSelector(cfg Config, accel Engine, log zerolog.Logger) *Selector {
	s := &Selector{
		ref:   Reference{},
		accel: accel,
		log:   log.With().Str("component", "backend").Logger(),
		stats: make(map[Operation]*OpStats),
	}
	for _, op := range Operations {
		s.stats[op] = &OpStats{}
	}
	s.Apply(cfg)
	return s
}

// Apply installs new tunables. Breakers are rebuilt only when their
// thresholds change, so an active blacklist survives unrelated edits.
func (s *Selector) Apply(cfg Config) {
	if cfg.FailureLimit == 0 {
		cfg.FailureLimit = 1
	}
	rebuild := s.breakers == nil ||
		cfg.FailureLimit != s.cfg.FailureLimit ||
		cfg.Cooldown != s.cfg.Cooldown
	s.cfg = cfg
	if !rebuild {
		return
	}

	s.breakers = make(map[Operation]circuitbreaker.CircuitBreaker[any])
	for _, op := range Operations {
		s.breakers[op] = s.newBreaker(op)
	}
}

func (s *Selector) newBreaker(op Operation) circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.Builder[any]().
		WithFailureThreshold(s.cfg.FailureLimit).
		WithSuccessThreshold(1).
		WithDelay(s.cfg.Cooldown).
		OnOpen(func(circuitbreaker.StateChangedEvent) {
			s.log.Warn().
				Str("operation", string(op)).
				Dur("cooldown", s.cfg.Cooldown).
				Msg("Accelerated backend blacklisted")
		}).
		OnClose(func(circuitbreaker.StateChangedEvent) {
			s.log.Info().
				Str("operation", string(op)).
				Msg("Accelerated backend restored")
		}).
		Build()
}

// Config returns the active tunables
func (s *Selector) Config() Config {
	return s.cfg
}

// Blacklisted reports whether op is currently suspended from acceleration
func (s *Selector) Blacklisted(op Operation) bool {
	return s.breakers[op].IsOpen()
}

// Stats returns a snapshot of the per-operation counters
func (s *Selector) Stats() map[Operation]OpStats {
	out := make(map[Operation]OpStats, len(s.stats))
	for op, st := range s.stats {
		snap := *st
		snap.Blacklisted = s.Blacklisted(op)
		out[op] = snap
	}
	return out
}

// Wants reports whether a call of op over n entries would try the
// accelerated engine, ignoring the blacklist
func (s *Selector) Wants(op Operation, n int) bool {
	if s.accel == nil || !s.accel.Available() {
		return false
	}
	switch s.cfg.Mode {
	case ModeNever:
		return false
	case ModeAlways:
		return true
	}
	threshold := s.cfg.RecalcThreshold
	if op == OpLocate {
		threshold = s.cfg.LocateThreshold
	}
	return n > threshold
}

// Recalculate computes offsets on the selected engine
func (s *Selector) Recalculate(heights []float64, gap float64) Result {
	return run(s, OpRecalculate, len(heights),
		func(e Engine) (Result, error) { return e.Recalculate(heights, gap) },
		func(r Result) error { return validateResult(r, len(heights)) },
		func(a, b Result) bool { return Equivalent(a, b, s.cfg.Tolerance) },
	)
}

// Locate finds the entry containing target on the selected engine
func (s *Selector) Locate(offsets []float64, total, target float64) int {
	return run(s, OpLocate, len(offsets),
		func(e Engine) (int, error) { return e.Locate(offsets, total, target) },
		func(i int) error { return validateIndex(i, len(offsets)) },
		func(a, b int) bool { return a == b },
	)
}

// validateIndex checks a located index; an empty layout locates to 0
func validateIndex(i, n int) error {
	if i == 0 && n == 0 {
		return nil
	}
	if i < 0 || i >= n {
		return fmt.Errorf("located %d of %d entries: %w", i, n, ErrInvalidResult)
	}
	return nil
}

func run[R any](s *Selector, op Operation, n int, call func(Engine) (R, error), valid func(R) error, equal func(a, b R) bool) R {
	st := s.stats[op]
	reference := func() R {
		r, _ := call(s.ref)
		return r
	}

	if !s.Wants(op, n) {
		st.Reference++
		return reference()
	}

	var result R
	_, err := failsafe.Get(func() (any, error) {
		// Only reached when the breaker lets the call through
		st.Accelerated++
		sample := s.cfg.SampleEvery > 0 && st.Accelerated%s.cfg.SampleEvery == 0

		start := time.Now()
		r, err := guarded(op, func() (R, error) { return call(s.accel) })
		st.accelTime += time.Since(start)
		if err != nil {
			return nil, err
		}
		if err := valid(r); err != nil {
			return nil, fmt.Errorf("%s from %s: %w", op, s.accel.Name(), err)
		}

		if sample {
			start = time.Now()
			want := reference()
			st.refTime += time.Since(start)
			st.refRuns++
			st.Sampled++
			if !equal(r, want) {
				st.Mismatches++
				return nil, fmt.Errorf("%s over %d entries: %w", op, n, ErrMismatch)
			}
		}

		result = r
		return nil, nil
	}, s.breakers[op])

	if err == nil {
		st.Consecutive = 0
		return result
	}

	if errors.Is(err, circuitbreaker.ErrOpen) {
		st.Skipped++
		return reference()
	}

	st.Failures++
	st.Consecutive++
	s.log.Warn().
		Err(err).
		Str("operation", string(op)).
		Int("entries", n).
		Int("consecutive", st.Consecutive).
		Msg("Accelerated backend failed, falling back to reference")
	return reference()
}

// guarded turns a panic in an engine into an error
func guarded[R any](op Operation, fn func() (R, error)) (r R, err error) {
	defer recoverInto(&err, op)
	return fn()
}
