package backend

import (
	"math/rand/v2"
	"time"
)

// Report summarises a side-by-side run of two engines
type Report struct {
	Entries     int
	Rounds      int
	Reference   time.Duration // mean per recalculation
	Accelerated time.Duration
	LocateRef   time.Duration // mean per locate
	LocateAccel time.Duration
	Equivalent  bool
	Err         error
}

// SyntheticHeights generates n heights between lo and hi from a fixed seed
func SyntheticHeights(n int, lo, hi float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	heights := make([]float64, n)
	for i := range heights {
		heights[i] = lo + float64(rng.IntN(int(hi-lo)+1))
	}
	return heights
}

// Compare runs both engines over the same heights and checks that they agree
func Compare(ref, accel Engine, heights []float64, gap float64, rounds int, tolerance float64) Report {
	if rounds < 1 {
		rounds = 1
	}
	rep := Report{Entries: len(heights), Rounds: rounds, Equivalent: true}

	var want, got Result
	start := time.Now()
	for i := 0; i < rounds; i++ {
		want, _ = ref.Recalculate(heights, gap)
	}
	rep.Reference = time.Since(start) / time.Duration(rounds)

	start = time.Now()
	for i := 0; i < rounds; i++ {
		var err error
		if got, err = accel.Recalculate(heights, gap); err != nil {
			rep.Err = err
			rep.Equivalent = false
			return rep
		}
	}
	rep.Accelerated = time.Since(start) / time.Duration(rounds)

	if !Equivalent(got, want, tolerance) {
		rep.Equivalent = false
		return rep
	}

	// Target offsets spread across the whole range
	targets := make([]float64, 1024)
	for i := range targets {
		targets[i] = want.Total * float64(i) / float64(len(targets))
	}

	start = time.Now()
	refIdx := make([]int, len(targets))
	for i, p := range targets {
		refIdx[i], _ = ref.Locate(want.Offsets, want.Total, p)
	}
	rep.LocateRef = time.Since(start) / time.Duration(len(targets))

	start = time.Now()
	for i, p := range targets {
		idx, err := accel.Locate(want.Offsets, want.Total, p)
		if err != nil {
			rep.Err = err
			rep.Equivalent = false
			return rep
		}
		if idx != refIdx[i] {
			rep.Equivalent = false
		}
	}
	rep.LocateAccel = time.Since(start) / time.Duration(len(targets))

	return rep
}
