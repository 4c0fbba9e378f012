package backend

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// minBlock is the smallest slice of entries worth handing to a worker
const minBlock = 4096

// Accelerated splits recalculation across CPU workers with a blocked prefix
// sum and locates with an interpolation guess refined by galloping search.
type Accelerated struct {
	workers int
}

// NewAccelerated creates an accelerated engine using GOMAXPROCS workers
func NewAccelerated() *Accelerated {
	return &Accelerated{workers: runtime.GOMAXPROCS(0)}
}

func (a *Accelerated) Name() string { return "accelerated" }

// Available reports whether more than one worker can run in parallel
func (a *Accelerated) Available() bool {
	return a.workers > 1
}

func (a *Accelerated) blocks(n int) int {
	w := a.workers
	if limit := n / minBlock; w > limit {
		w = limit
	}
	if w < 1 {
		w = 1
	}
	return w
}

func (a *Accelerated) Recalculate(heights []float64, gap float64) (res Result, err error) {
	defer recoverInto(&err, OpRecalculate)

	n := len(heights)
	if n == 0 {
		return Result{}, nil
	}

	blocks := a.blocks(n)
	size := (n + blocks - 1) / blocks
	offsets := make([]float64, n)
	sums := make([]float64, blocks)

	// Pass 1: block-local exclusive prefix sums
	var g errgroup.Group
	for b := 0; b < blocks; b++ {
		lo, hi := b*size, min((b+1)*size, n)
		g.Go(func() error {
			var acc float64
			for i := lo; i < hi; i++ {
				offsets[i] = acc
				acc += heights[i] + gap
			}
			sums[b] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	// Pass 2: shift every block by the sum of the blocks before it
	bases := make([]float64, blocks)
	for b := 1; b < blocks; b++ {
		bases[b] = bases[b-1] + sums[b-1]
	}
	for b := 1; b < blocks; b++ {
		lo, hi := b*size, min((b+1)*size, n)
		g.Go(func() error {
			base := bases[b]
			for i := lo; i < hi; i++ {
				offsets[i] += base
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res = Result{Offsets: offsets, Total: offsets[n-1] + heights[n-1]}
	if err := validateResult(res, n); err != nil {
		return Result{}, err
	}
	return res, nil
}

func validateResult(res Result, n int) error {
	if len(res.Offsets) != n {
		return fmt.Errorf("%d offsets for %d heights: %w", len(res.Offsets), n, ErrInvalidResult)
	}
	prev := 0.0
	for i, off := range res.Offsets {
		if math.IsNaN(off) || math.IsInf(off, 0) || off < prev {
			return fmt.Errorf("offset %d is %v after %v: %w", i, off, prev, ErrInvalidResult)
		}
		prev = off
	}
	if math.IsNaN(res.Total) || res.Total < prev {
		return fmt.Errorf("total %v below last offset %v: %w", res.Total, prev, ErrInvalidResult)
	}
	return nil
}

func (a *Accelerated) Locate(offsets []float64, total, target float64) (idx int, err error) {
	defer recoverInto(&err, OpLocate)

	n := len(offsets)
	if n == 0 || math.IsNaN(target) || target <= offsets[0] {
		return 0, nil
	}
	if target >= offsets[n-1] {
		return n - 1, nil
	}

	// offsets[0] <= target < offsets[n-1], so total > 0 here
	guess := int(target / total * float64(n))
	guess = max(0, min(guess, n-1))

	// Bracket [lo, hi) with offsets[lo] <= target and offsets[hi] > target
	var lo, hi int
	if offsets[guess] <= target {
		lo, hi = guess, guess+1
		for step := 1; hi < n && offsets[hi] <= target; step *= 2 {
			lo = hi
			hi += step
		}
		hi = min(hi, n)
	} else {
		lo, hi = guess-1, guess
		for step := 1; lo > 0 && offsets[lo] > target; step *= 2 {
			hi = lo
			lo -= step
		}
		lo = max(lo, 0)
	}

	k := sort.Search(hi-lo, func(k int) bool {
		return offsets[lo+k] > target
	})
	idx = lo + k - 1

	if idx < 0 || idx >= n || offsets[idx] > target {
		return 0, fmt.Errorf("located %d for %v: %w", idx, target, ErrInvalidResult)
	}
	return idx, nil
}

func recoverInto(err *error, op Operation) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s panicked: %v: %w", op, r, ErrInvalidResult)
	}
}
