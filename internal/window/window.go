// Package window selects which entries of a layout need to be rendered.
package window

// Source is the positioned sequence a window is selected from
type Source interface {
	Len() int
	Locate(offset float64) int
	Offset(i int) float64
	Height(i int) float64
}

// Params describe the viewport a window is selected for
type Params struct {
	ScrollOffset   float64
	ViewportHeight float64
	AutoFollow     bool
	Buffer         int // entries padded on each side
	Threshold      int // sequences at or below this length are not virtualized
}

// Range is an inclusive index range. An empty range has End < Start.
type Range struct {
	Start   int
	End     int
	Virtual bool // false when the whole sequence is materialized
}

// Len returns the number of indices in the range
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Empty reports whether the range holds nothing
func (r Range) Empty() bool {
	return r.Len() == 0
}

// Contains reports whether i is inside the range
func (r Range) Contains(i int) bool {
	return i >= r.Start && i <= r.End
}

// Select computes the window to materialize. It is never empty for a
// non-empty source.
func Select(src Source, p Params) Range {
	n := src.Len()
	if n == 0 {
		return Range{Start: 0, End: -1}
	}
	if n <= p.Threshold {
		return Range{Start: 0, End: n - 1}
	}

	buffer := max(p.Buffer, 0)
	viewport := max(p.ViewportHeight, 0)

	var top, bottom int
	if p.AutoFollow {
		// Newest entry at the bottom, filled backward to the viewport height
		bottom = n - 1
		end := src.Offset(bottom) + src.Height(bottom)
		top = src.Locate(end - viewport)
		if viewport == 0 {
			top = bottom
		}
	} else {
		top = src.Locate(p.ScrollOffset)
		bottom = top
		if viewport > 0 {
			bottom = src.Locate(p.ScrollOffset + viewport)
		}
	}

	return Range{
		Start:   max(top-buffer, 0),
		End:     min(bottom+buffer, n-1),
		Virtual: true,
	}
}
