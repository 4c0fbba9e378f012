package backend

import (
	"errors"
	"math"
	"sort"
)

var (
	// ErrInvalidResult is returned when an engine produced output that fails validation
	ErrInvalidResult = errors.New("invalid backend result")

	// ErrMismatch is returned when a sampled accelerated result disagrees with the reference
	ErrMismatch = errors.New("accelerated result differs from reference")
)

// Operation names a hot operation that can run on either engine
type Operation string

const (
	OpRecalculate Operation = "recalculate"
	OpLocate      Operation = "locate"
)

// Operations lists every operation the selector routes
var Operations = []Operation{OpRecalculate, OpLocate}

// Result is the output of a recalculation: the cumulative offset of every
// entry and the total height. Entry i spans [Offsets[i], Offsets[i+1]).
type Result struct {
	Offsets []float64
	Total   float64
}

// Engine computes offsets and locates entries by offset
type Engine interface {
	Name() string
	Available() bool

	// Recalculate computes cumulative offsets from heights. Every entry but
	// the last is followed by gap units.
	Recalculate(heights []float64, gap float64) (Result, error)

	// Locate returns the index i with offsets[i] <= target < offsets[i+1],
	// clamped to [0, len(offsets)-1]. Empty input yields 0.
	Locate(offsets []float64, total, target float64) (int, error)
}

// Reference is the straightforward sequential engine and the correctness oracle
type Reference struct{}

func (Reference) Name() string    { return "reference" }
func (Reference) Available() bool { return true }

func (Reference) Recalculate(heights []float64, gap float64) (Result, error) {
	offsets := make([]float64, len(heights))
	var acc float64
	for i, h := range heights {
		offsets[i] = acc
		acc += h
		if i < len(heights)-1 {
			acc += gap
		}
	}
	return Result{Offsets: offsets, Total: acc}, nil
}

func (Reference) Locate(offsets []float64, total, target float64) (int, error) {
	return locateSorted(offsets, target), nil
}

// locateSorted is the nearest-lower-bound binary search shared by both engines
func locateSorted(offsets []float64, target float64) int {
	n := len(offsets)
	if n == 0 || math.IsNaN(target) || target <= offsets[0] {
		return 0
	}
	i := sort.Search(n, func(i int) bool {
		return offsets[i] > target
	})
	return i - 1
}

// Equivalent reports whether two results match within a relative tolerance
func Equivalent(a, b Result, tolerance float64) bool {
	if len(a.Offsets) != len(b.Offsets) {
		return false
	}
	if !within(a.Total, b.Total, tolerance) {
		return false
	}
	for i := range a.Offsets {
		if !within(a.Offsets[i], b.Offsets[i], tolerance) {
			return false
		}
	}
	return true
}

func within(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(b))
}
