package store

import (
	"errors"
	"fmt"
	"sort"
)

// ErrOutOfOrder is returned when an entry's sequence does not increase
var ErrOutOfOrder = errors.New("sequence out of order")

// Store is an append-only, capacity-bounded collection of entries
// ordered by sequence. Appending past capacity evicts the oldest entries.
type Store struct {
	entries  []Entry
	head     int // index of the oldest live entry
	capacity int // <= 0 means unbounded

	// generation changes on Clear so views know to rebuild
	generation uint64
}

// New creates a store with the given capacity (<= 0 for unbounded)
func New(capacity int) *Store {
	return &Store{capacity: capacity}
}

// Len returns the number of live entries
func (s *Store) Len() int {
	return len(s.entries) - s.head
}

// Capacity returns the configured capacity
func (s *Store) Capacity() int {
	return s.capacity
}

// Generation returns a counter that changes whenever the store is cleared
func (s *Store) Generation() uint64 {
	return s.generation
}

// SetCapacity changes the capacity and evicts immediately if needed
func (s *Store) SetCapacity(capacity int) []uint64 {
	s.capacity = capacity
	return s.evict()
}

// Append adds entries in order and returns the sequences evicted to stay
// within capacity. Entries whose sequence does not exceed the newest one are
// rejected with ErrOutOfOrder; the rest of the batch is still appended.
func (s *Store) Append(entries ...Entry) ([]uint64, error) {
	var rejected int
	var firstBad uint64
	for _, e := range entries {
		if s.Len() > 0 && e.Sequence <= s.entries[len(s.entries)-1].Sequence {
			if rejected == 0 {
				firstBad = e.Sequence
			}
			rejected++
			continue
		}
		s.entries = append(s.entries, e)
	}

	evicted := s.evict()

	if rejected > 0 {
		return evicted, fmt.Errorf("%d entries rejected (first %d): %w", rejected, firstBad, ErrOutOfOrder)
	}
	return evicted, nil
}

// evict drops oldest entries beyond capacity
func (s *Store) evict() []uint64 {
	if s.capacity <= 0 || s.Len() <= s.capacity {
		return nil
	}

	drop := s.Len() - s.capacity
	evicted := make([]uint64, drop)
	for i := 0; i < drop; i++ {
		evicted[i] = s.entries[s.head+i].Sequence
		s.entries[s.head+i] = Entry{}
	}
	s.head += drop

	// Compact once the dead prefix dominates, keeping append amortized O(1)
	if s.head > len(s.entries)/2 {
		live := make([]Entry, s.Len(), s.Len()+s.capacity/4+1)
		copy(live, s.entries[s.head:])
		s.entries = live
		s.head = 0
	}
	return evicted
}

// Clear removes all entries
func (s *Store) Clear() {
	s.entries = nil
	s.head = 0
	s.generation++
}

// At returns the entry at position i (0 = oldest)
func (s *Store) At(i int) *Entry {
	if i < 0 || i >= s.Len() {
		return nil
	}
	return &s.entries[s.head+i]
}

// Oldest returns the oldest entry, or nil when empty
func (s *Store) Oldest() *Entry {
	return s.At(0)
}

// Newest returns the newest entry, or nil when empty
func (s *Store) Newest() *Entry {
	return s.At(s.Len() - 1)
}

// Position returns the position of the first entry with sequence >= seq
func (s *Store) Position(seq uint64) int {
	live := s.entries[s.head:]
	return sort.Search(len(live), func(i int) bool {
		return live[i].Sequence >= seq
	})
}

// Get returns the entry with the given sequence
func (s *Store) Get(seq uint64) (*Entry, bool) {
	i := s.Position(seq)
	if i >= s.Len() || s.entries[s.head+i].Sequence != seq {
		return nil, false
	}
	return &s.entries[s.head+i], true
}

// Filter returns a lazily maintained view of entries passing pred.
// A nil predicate passes everything.
func (s *Store) Filter(pred Predicate) *View {
	return newView(s, pred)
}
