package position

import (
	"sort"

	"github.com/TimelordUK/mtail/internal/backend"
)

// Locator finds the entry containing an offset
type Locator interface {
	Locate(offsets []float64, total, target float64) int
}

// Anchor identifies the entry at the top of the viewport and how far into
// it the viewport is scrolled
type Anchor struct {
	Seq    uint64
	Within float64
}

// Layout is an immutable snapshot of a recalculation
type Layout struct {
	Version uint64
	Seqs    []uint64
	Heights []float64
	Offsets []float64
	Total   float64
	Gap     float64

	locator Locator
}

// Len returns the number of entries in the layout
func (l *Layout) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Seqs)
}

// Locate returns the index whose band contains offset, clamped to the valid
// range. An empty layout yields 0.
func (l *Layout) Locate(offset float64) int {
	if l.Len() == 0 {
		return 0
	}
	if l.locator != nil {
		return l.locator.Locate(l.Offsets, l.Total, offset)
	}
	i, _ := backend.Reference{}.Locate(l.Offsets, l.Total, offset)
	return i
}

// Offset returns the cumulative offset of index i
func (l *Layout) Offset(i int) float64 {
	return l.Offsets[i]
}

// Height returns the height of index i
func (l *Layout) Height(i int) float64 {
	return l.Heights[i]
}

// Extent returns the space index i occupies, including its trailing gap
func (l *Layout) Extent(i int) float64 {
	if i == len(l.Seqs)-1 {
		return l.Heights[i]
	}
	return l.Offsets[i+1] - l.Offsets[i]
}

// IndexOf finds the index of seq
func (l *Layout) IndexOf(seq uint64) (int, bool) {
	n := l.Len()
	i := sort.Search(n, func(i int) bool { return l.Seqs[i] >= seq })
	if i < n && l.Seqs[i] == seq {
		return i, true
	}
	return 0, false
}

// OffsetOf returns the offset of the entry with seq
func (l *Layout) OffsetOf(seq uint64) (float64, bool) {
	i, ok := l.IndexOf(seq)
	if !ok {
		return 0, false
	}
	return l.Offsets[i], true
}

// MaxScroll is the largest scroll offset that still fills a viewport
func (l *Layout) MaxScroll(viewport float64) float64 {
	if l.Len() == 0 || l.Total <= viewport {
		return 0
	}
	return l.Total - viewport
}

// AnchorAt captures the entry at offset
func (l *Layout) AnchorAt(offset float64) (Anchor, bool) {
	if l.Len() == 0 {
		return Anchor{}, false
	}
	i := l.Locate(offset)
	return Anchor{Seq: l.Seqs[i], Within: max(0, offset-l.Offsets[i])}, true
}

// Restore maps an anchor back to a scroll offset. When the anchored entry
// is gone the next surviving entry is used.
func (l *Layout) Restore(a Anchor) float64 {
	n := l.Len()
	if n == 0 {
		return 0
	}
	i := sort.Search(n, func(i int) bool { return l.Seqs[i] >= a.Seq })
	if i == n {
		return l.Offsets[n-1]
	}
	if l.Seqs[i] != a.Seq {
		return l.Offsets[i]
	}
	return l.Offsets[i] + min(a.Within, l.Extent(i))
}
