package view

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/TimelordUK/mtail/internal/render"
	"github.com/TimelordUK/mtail/internal/stream"
)

// Measurement is the drawn height of one entry
type Measurement struct {
	Seq    uint64
	Height int
}

// Viewport draws the entries of a frame at their layout positions.
// It knows nothing about log formats, filters, or file sources.
type Viewport struct {
	renderer render.Renderer

	// Dimensions
	width  int
	height int

	// Styling
	markerStyle lipgloss.Style
	emptyStyle  lipgloss.Style

	// Highlighted entry (sequence, 0 for none)
	highlighted uint64
}

// NewViewport creates a new viewport
func NewViewport(width, height int, r render.Renderer) *Viewport {
	if r == nil {
		r = render.NewPlainRenderer()
	}
	return &Viewport{
		renderer:    r,
		width:       width,
		height:      height,
		markerStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
		emptyStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// SetRenderer sets the entry renderer
func (v *Viewport) SetRenderer(r render.Renderer) {
	v.renderer = r
}

// SetSize updates viewport dimensions
func (v *Viewport) SetSize(width, height int) {
	v.width = width
	v.height = max(height, 0)
}

// Width returns the drawable width
func (v *Viewport) Width() int {
	return v.width
}

// Height returns the number of rows
func (v *Viewport) Height() int {
	return v.height
}

// SetHighlighted marks one entry with a gutter marker
func (v *Viewport) SetHighlighted(seq uint64) {
	v.highlighted = seq
}

// ClearHighlight removes any marker
func (v *Viewport) ClearHighlight() {
	v.highlighted = 0
}

// contentWidth leaves room for the marker column
func (v *Viewport) contentWidth() int {
	return max(v.width-2, 1)
}

// Render draws the frame into exactly Height rows and reports the drawn
// height of every entry so the layout can learn it
func (v *Viewport) Render(f stream.Frame) (string, []Measurement) {
	rows := make([]string, v.height)
	filled := make([]bool, v.height)
	measured := make([]Measurement, 0, len(f.Items))

	width := v.contentWidth()
	for _, item := range f.Items {
		content := v.renderer.Render(item.Entry, width)
		lines := strings.Split(content, "\n")
		measured = append(measured, Measurement{Seq: item.Seq, Height: len(lines)})

		// Later entries win where an estimated height overlaps
		top := int(math.Round(item.Offset - f.Offset))
		for j, line := range lines {
			row := top + j
			if row < 0 || row >= v.height {
				continue
			}
			gutter := "  "
			if j == 0 && item.Seq == v.highlighted {
				gutter = v.markerStyle.Render("▶ ")
			}
			rows[row] = gutter + line
			filled[row] = true
		}
	}

	// Rows past the end of content
	last := -1
	for i := range filled {
		if filled[i] {
			last = i
		}
	}
	if f.Count == 0 || f.Total <= f.Offset+float64(v.height) {
		for i := last + 1; i < v.height; i++ {
			rows[i] = v.emptyStyle.Render("~")
		}
	}

	return strings.Join(rows, "\n"), measured
}

// PercentScrolled returns how far through the content the viewport is
func PercentScrolled(f stream.Frame) float64 {
	maxScroll := f.Total - f.Viewport
	if f.Count == 0 || maxScroll <= 0 {
		return 100
	}
	return math.Min(f.Offset/maxScroll*100, 100)
}
