package stream

import (
	"time"

	"github.com/TimelordUK/mtail/internal/follow"
	"github.com/TimelordUK/mtail/internal/store"
	"github.com/TimelordUK/mtail/internal/window"
)

// Item is one materialized entry with its absolute position
type Item struct {
	Index  int // position in the filtered sequence
	Seq    uint64
	Offset float64
	Height float64
	Entry  *store.Entry // valid until the next Append or Clear
}

// Frame is what the presentation layer draws
type Frame struct {
	Window   window.Range
	Items    []Item
	Offset   float64
	Viewport float64
	Total    float64
	Count    int // entries in the filtered sequence
	Stored   int // entries in the store
	Follow   follow.Snapshot
	Pending  bool // a chunked recalculation is still running
}

// AutoFollow reports whether the viewport tracks the newest entry
func (f Frame) AutoFollow() bool {
	return f.Follow.AutoFollow()
}

// Last returns the most recent frame
func (r *Renderer) Last() Frame {
	return r.last
}

// Frame runs the once-per-frame work: sync the view, fire due timers,
// commit layout work, reconcile the viewport and select the window.
func (r *Renderer) Frame(now time.Time) Frame {
	if change := r.view.Sync(); !change.Empty() {
		r.index.Sync(r.view.Seqs())
	}

	r.apply(r.machine.Tick(now, r.offset, r.edge()))

	// Content never moves under an active scroll gesture
	if !r.machine.Snapshot().UserScrolling && r.index.Flush(0) {
		r.relayout()
	}
	if c := r.clamp(r.offset); c != r.offset {
		r.scrollTo(c)
	}
	r.apply(r.machine.Reconcile(now, r.offset, r.edge()))

	layout := r.index.Layout()
	snap := r.machine.Snapshot()
	rng := window.Select(layout, window.Params{
		ScrollOffset:   r.offset,
		ViewportHeight: r.viewport,
		AutoFollow:     snap.AutoFollow(),
		Buffer:         r.cfg.Buffer,
		Threshold:      r.cfg.Threshold,
	})

	items := make([]Item, 0, rng.Len())
	for i := rng.Start; i <= rng.End; i++ {
		seq := layout.Seqs[i]
		e, ok := r.store.Get(seq)
		if !ok {
			continue
		}
		items = append(items, Item{
			Index:  i,
			Seq:    seq,
			Offset: layout.Offset(i),
			Height: layout.Height(i),
			Entry:  e,
		})
	}

	r.last = Frame{
		Window:   rng,
		Items:    items,
		Offset:   r.offset,
		Viewport: r.viewport,
		Total:    layout.Total,
		Count:    layout.Len(),
		Stored:   r.store.Len(),
		Follow:   snap,
		Pending:  r.index.Pending(),
	}
	return r.last
}

// relayout keeps a manual viewport on its anchored entry after the layout
// changed underneath it
func (r *Renderer) relayout() {
	if r.machine.AutoFollow() {
		return
	}
	if !r.hasAnchor {
		r.saveAnchor()
		return
	}
	r.scrollTo(r.clamp(r.index.Layout().Restore(r.anchor)))
}
