package position

import (
	"math"
	"slices"

	"github.com/TimelordUK/mtail/internal/backend"
	"github.com/rs/zerolog"
)

// Engine is the backend the index recalculates and locates with
type Engine interface {
	Locator
	Recalculate(heights []float64, gap float64) backend.Result
}

// Config holds the index tunables
type Config struct {
	Gap           float64 // fixed space after every entry but the last
	DefaultHeight float64 // estimate used before anything has been measured
	MinDelta      float64 // smaller height changes are ignored
	Chunk         int     // heights gathered per Flush, 0 means all at once
}

// DefaultConfig returns the index defaults
func DefaultConfig() Config {
	return Config{
		Gap:           0,
		DefaultHeight: 1,
		MinDelta:      0.5,
		Chunk:         50_000,
	}
}

// job is an in-flight recalculation for one version of the index
type job struct {
	version uint64
	seqs    []uint64
	heights []float64
	average float64
	next    int
}

// Index keeps measured heights by sequence and turns them into a Layout.
// Mutations only bump the version; Flush does the work once per frame.
type Index struct {
	cfg    Config
	engine Engine
	log    zerolog.Logger

	seqs     []uint64
	measured map[uint64]float64

	// running mean over every measurement taken, evicted ones included
	sum     float64
	samples int

	version uint64
	layout  *Layout
	job     *job
}

// New creates an empty index
func New(cfg Config, engine Engine, log zerolog.Logger) *Index {
	x := &Index{
		cfg:      sanitize(cfg),
		engine:   engine,
		log:      log.With().Str("component", "position").Logger(),
		measured: make(map[uint64]float64),
	}
	x.layout = &Layout{Gap: x.cfg.Gap, locator: engine}
	return x
}

func sanitize(cfg Config) Config {
	if cfg.DefaultHeight <= 0 {
		cfg.DefaultHeight = 1
	}
	if cfg.Gap < 0 {
		cfg.Gap = 0
	}
	if cfg.MinDelta < 0 {
		cfg.MinDelta = 0
	}
	return cfg
}

// Config returns the active tunables
func (x *Index) Config() Config {
	return x.cfg
}

// SetConfig installs new tunables and schedules a recalculation
func (x *Index) SetConfig(cfg Config) {
	cfg = sanitize(cfg)
	if cfg == x.cfg {
		return
	}
	x.cfg = cfg
	x.touch()
}

func (x *Index) touch() {
	x.version++
}

// Version increments on every change that affects the layout
func (x *Index) Version() uint64 {
	return x.version
}

// Sync replaces the ordered sequence the layout covers
func (x *Index) Sync(seqs []uint64) {
	if slices.Equal(seqs, x.seqs) {
		return
	}
	x.seqs = slices.Clone(seqs)
	x.touch()
}

// Evict purges evicted sequences from the measured heights. The running
// mean keeps their contribution so unmeasured survivors keep their estimate.
func (x *Index) Evict(seqs []uint64) {
	changed := false
	for _, seq := range seqs {
		if _, ok := x.measured[seq]; ok {
			delete(x.measured, seq)
			changed = true
		}
	}
	if changed {
		x.touch()
	}
}

// Reset forgets every sequence and measurement
func (x *Index) Reset() {
	x.seqs = nil
	x.measured = make(map[uint64]float64)
	x.sum, x.samples = 0, 0
	x.job = nil
	x.touch()
}

// RecordMeasuredHeight stores the rendered height of seq. It reports
// whether the change was large enough to mark the layout dirty.
func (x *Index) RecordMeasuredHeight(seq uint64, height float64) bool {
	if height < 0 || math.IsNaN(height) || math.IsInf(height, 0) {
		return false
	}
	prev, ok := x.measured[seq]
	if ok && math.Abs(height-prev) < x.cfg.MinDelta {
		return false
	}
	if !ok {
		x.samples++
	}
	x.sum += height - prev
	x.measured[seq] = height
	x.touch()
	return true
}

// Measured returns the recorded height of seq
func (x *Index) Measured(seq uint64) (float64, bool) {
	h, ok := x.measured[seq]
	return h, ok
}

// MeasuredCount returns how many sequences have a recorded height
func (x *Index) MeasuredCount() int {
	return len(x.measured)
}

// AverageHeight is the mean of all measured heights, or the default before
// anything has been measured
func (x *Index) AverageHeight() float64 {
	if x.samples == 0 {
		return x.cfg.DefaultHeight
	}
	return x.sum / float64(x.samples)
}

// Dirty reports whether the committed layout is behind the index
func (x *Index) Dirty() bool {
	return x.layout.Version != x.version
}

// Pending reports whether a chunked recalculation is in flight
func (x *Index) Pending() bool {
	return x.job != nil
}

// Layout returns the last committed layout
func (x *Index) Layout() *Layout {
	return x.layout
}

// Flush advances the recalculation by up to budget entries, or the
// configured chunk when budget is zero, or all of them when negative. A job
// started for an older version is discarded. It reports whether a new
// layout was committed.
func (x *Index) Flush(budget int) bool {
	if !x.Dirty() {
		return false
	}
	if budget == 0 {
		budget = x.cfg.Chunk
	}

	if x.job != nil && x.job.version != x.version {
		x.log.Debug().
			Uint64("stale", x.job.version).
			Uint64("version", x.version).
			Int("gathered", x.job.next).
			Msg("Discarding stale recalculation")
		x.job = nil
	}
	if x.job == nil {
		x.job = &job{
			version: x.version,
			seqs:    x.seqs,
			heights: make([]float64, len(x.seqs)),
			average: x.AverageHeight(),
		}
	}

	j := x.job
	end := len(j.seqs)
	if budget > 0 {
		end = min(end, j.next+budget)
	}
	for i := j.next; i < end; i++ {
		if h, ok := x.measured[j.seqs[i]]; ok {
			j.heights[i] = h
		} else {
			j.heights[i] = j.average
		}
	}
	j.next = end
	if j.next < len(j.seqs) {
		return false
	}

	x.commit(j)
	return true
}

// Recalculate runs a complete recalculation now and returns the new layout
func (x *Index) Recalculate() *Layout {
	for x.Dirty() {
		x.Flush(-1)
	}
	return x.layout
}

func (x *Index) commit(j *job) {
	res := x.engine.Recalculate(j.heights, x.cfg.Gap)
	x.layout = &Layout{
		Version: j.version,
		Seqs:    j.seqs,
		Heights: j.heights,
		Offsets: res.Offsets,
		Total:   res.Total,
		Gap:     x.cfg.Gap,
		locator: x.engine,
	}
	x.job = nil
}
