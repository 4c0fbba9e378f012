// Package stream ties the store, position index, follow machine and backend
// together into a virtualized view of a growing log stream.
package stream

import (
	"fmt"
	"time"

	"github.com/TimelordUK/mtail/internal/backend"
	"github.com/TimelordUK/mtail/internal/follow"
	"github.com/TimelordUK/mtail/internal/position"
	"github.com/TimelordUK/mtail/internal/store"
	"github.com/rs/zerolog"
)

// Surface receives the programmatic scrolls the renderer issues. A surface
// may report the move back through OnScroll; that echo is not treated as
// user input.
type Surface interface {
	ScrollTo(offset float64)
}

// Config holds every tunable the renderer reads
type Config struct {
	Capacity  int // entries kept before the oldest are evicted, <= 0 for unbounded
	Threshold int // sequences at or below this length are rendered whole
	Buffer    int // entries rendered beyond each side of the viewport
	Index     position.Config
	Follow    follow.Config
	Backend   backend.Config
}

// DefaultConfig returns the renderer defaults
func DefaultConfig() Config {
	return Config{
		Capacity:  100_000,
		Threshold: 200,
		Buffer:    10,
		Index:     position.DefaultConfig(),
		Follow:    follow.DefaultConfig(),
		Backend:   backend.DefaultConfig(),
	}
}

// Renderer owns the mutable state of a virtualized stream. All methods must
// be called from the same goroutine.
type Renderer struct {
	cfg Config
	log zerolog.Logger

	store    *store.Store
	view     *store.View
	index    *position.Index
	selector *backend.Selector
	machine  *follow.Machine
	surface  Surface

	offset   float64
	viewport float64

	anchor    position.Anchor
	hasAnchor bool

	// programmatic is set while the renderer itself is scrolling
	programmatic bool

	last Frame
}

// New creates a renderer. accel may be nil to run on the reference engine
// only; surface may be nil when nothing needs scroll commands.
func New(cfg Config, accel backend.Engine, surface Surface, log zerolog.Logger) *Renderer {
	sel := backend.NewSelector(cfg.Backend, accel, log)
	s := store.New(cfg.Capacity)
	return &Renderer{
		cfg:      cfg,
		log:      log.With().Str("component", "stream").Logger(),
		store:    s,
		view:     s.Filter(nil),
		index:    position.New(cfg.Index, sel, log),
		selector: sel,
		machine:  follow.New(cfg.Follow, log),
		surface:  surface,
	}
}

// Apply installs changed tunables. Capacity reductions evict at once.
func (r *Renderer) Apply(cfg Config) {
	if cfg.Capacity != r.cfg.Capacity {
		evicted := r.store.SetCapacity(cfg.Capacity)
		r.index.Evict(evicted)
		if len(evicted) > 0 {
			r.log.Info().Int("evicted", len(evicted)).Int("capacity", cfg.Capacity).Msg("Capacity reduced")
		}
	}
	r.index.SetConfig(cfg.Index)
	r.machine.SetConfig(cfg.Follow)
	r.selector.Apply(cfg.Backend)
	r.cfg = cfg
}

// Config returns the active tunables
func (r *Renderer) Config() Config {
	return r.cfg
}

// Append adds entries from the ingestion side. Layout work is deferred to
// the next Frame.
func (r *Renderer) Append(now time.Time, entries ...store.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	before := r.store.Len()
	evicted, err := r.store.Append(entries...)
	r.index.Evict(evicted)
	r.machine.NoteArrivals(now, r.store.Len()-before+len(evicted))
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	return nil
}

// Clear empties the stream. The follow disposition is kept.
func (r *Renderer) Clear() {
	r.store.Clear()
	r.index.Reset()
	r.machine.Reset()
	r.hasAnchor = false
	r.offset = 0
	r.last = Frame{}
	r.log.Debug().Bool("follow", r.machine.AutoFollow()).Msg("Stream cleared")
}

// OnScroll handles a scroll position reported by the presentation layer
func (r *Renderer) OnScroll(now time.Time, offset float64) {
	if r.programmatic {
		r.offset = offset
		return
	}
	r.offset = r.clamp(offset)
	r.apply(r.machine.OnUserScroll(now, r.offset, r.edge()))
}

// ScrollBy is a user scroll relative to the current offset
func (r *Renderer) ScrollBy(now time.Time, delta float64) {
	r.OnScroll(now, r.offset+delta)
}

// OnResize handles a new viewport height
func (r *Renderer) OnResize(now time.Time, height float64) {
	r.viewport = max(height, 0)
	if r.machine.AutoFollow() {
		return
	}
	if r.hasAnchor {
		if c := r.clamp(r.index.Layout().Restore(r.anchor)); c != r.offset {
			r.scrollTo(c)
		}
	}
}

// SetFollow applies an explicit follow toggle
func (r *Renderer) SetFollow(now time.Time, on bool) {
	r.apply(r.machine.SetPreference(now, on, r.offset, r.edge()))
}

// ToggleFollow flips the follow preference
func (r *Renderer) ToggleFollow(now time.Time) {
	r.SetFollow(now, !r.machine.AutoFollow())
}

// Measure records the rendered height of seq
func (r *Renderer) Measure(seq uint64, height float64) {
	r.index.RecordMeasuredHeight(seq, height)
}

// SetFilter replaces the custom predicate; nil passes everything. The view
// is rebuilt on the next Frame and a manual viewport stays on its anchor or
// the next entry that still passes.
func (r *Renderer) SetFilter(pred store.Predicate) {
	r.view.SetPredicate(pred)
}

// View exposes the filtered view for filter changes. Changes take effect on
// the next Frame.
func (r *Renderer) View() *store.View {
	return r.view
}

// Store exposes the underlying store read-only
func (r *Renderer) Store() *store.Store {
	return r.store
}

// Selector exposes the backend selector for diagnostics
func (r *Renderer) Selector() *backend.Selector {
	return r.selector
}

// Follow returns the follow state
func (r *Renderer) Follow() follow.Snapshot {
	return r.machine.Snapshot()
}

// Anchor returns the saved viewport anchor
func (r *Renderer) Anchor() (position.Anchor, bool) {
	return r.anchor, r.hasAnchor
}

// Offset returns the current scroll offset
func (r *Renderer) Offset() float64 {
	return r.offset
}

// NextDeadline returns when a pending timer needs a Frame
func (r *Renderer) NextDeadline() (time.Time, bool) {
	return r.machine.NextDeadline()
}

func (r *Renderer) edge() float64 {
	return r.index.Layout().MaxScroll(r.viewport)
}

func (r *Renderer) clamp(offset float64) float64 {
	return min(max(offset, 0), r.edge())
}

// scrollTo issues a programmatic scroll. The flag is cleared on every exit
// path so a panicking surface cannot leave user input misclassified.
func (r *Renderer) scrollTo(offset float64) {
	r.programmatic = true
	defer func() { r.programmatic = false }()

	r.offset = offset
	if r.surface != nil {
		r.surface.ScrollTo(offset)
	}
}

func (r *Renderer) apply(act follow.Action) {
	if act.Has(follow.DropAnchor) {
		r.hasAnchor = false
	}
	if act.Has(follow.ScrollToEdge) {
		edge := r.edge()
		r.scrollTo(edge)
		r.machine.Rebase(edge, edge)
	}
	if act.Has(follow.SaveAnchor) {
		r.saveAnchor()
	}
}

func (r *Renderer) saveAnchor() {
	a, ok := r.index.Layout().AnchorAt(r.offset)
	r.anchor, r.hasAnchor = a, ok
}
