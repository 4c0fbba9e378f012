package store

import (
	"iter"
	"sort"
)

// Predicate decides whether an entry is visible
type Predicate func(e *Entry) bool

// Change describes how a view moved during Sync
type Change struct {
	Appended []uint64
	Removed  []uint64
	Reset    bool // the whole view was rebuilt
}

// Empty reports whether nothing changed
func (c Change) Empty() bool {
	return !c.Reset && len(c.Appended) == 0 && len(c.Removed) == 0
}

// View is a filtered, sequence-ordered view over a Store.
// It never mutates the store; Sync brings it up to date incrementally.
type View struct {
	store *Store

	custom Predicate

	// Level filter: if set, only show entries with these levels
	levelFilter map[Level]bool

	// Text filter: substring match on message and fields
	textFilter string

	// Sequences that pass the filter, ascending
	seqs []uint64

	scanned    uint64 // newest sequence examined
	generation uint64
	dirty      bool
}

func newView(s *Store, pred Predicate) *View {
	return &View{
		store:       s,
		custom:      pred,
		levelFilter: make(map[Level]bool),
		dirty:       true,
	}
}

// SetPredicate replaces the custom predicate
func (v *View) SetPredicate(pred Predicate) {
	v.custom = pred
	v.dirty = true
}

// SetLevelFilter sets which levels to show (empty = show all)
func (v *View) SetLevelFilter(levels map[Level]bool) {
	v.levelFilter = make(map[Level]bool, len(levels))
	for l, on := range levels {
		if on {
			v.levelFilter[l] = true
		}
	}
	v.dirty = true
}

// ToggleLevel adds or removes one level from the filter
func (v *View) ToggleLevel(level Level) {
	if v.levelFilter == nil {
		v.levelFilter = make(map[Level]bool)
	}
	if v.levelFilter[level] {
		delete(v.levelFilter, level)
	} else {
		v.levelFilter[level] = true
	}
	v.dirty = true
}

// SetLevelAndAbove shows this level and all higher severity
func (v *View) SetLevelAndAbove(level Level) {
	v.levelFilter = make(map[Level]bool)
	for _, l := range Levels {
		if l >= level {
			v.levelFilter[l] = true
		}
	}
	v.dirty = true
}

// ClearFilter removes all level filters
func (v *View) ClearFilter() {
	v.levelFilter = make(map[Level]bool)
	v.dirty = true
}

// SetTextFilter sets the text substring filter
func (v *View) SetTextFilter(text string) {
	v.textFilter = text
	v.dirty = true
}

// TextFilter returns the current text filter
func (v *View) TextFilter() string {
	return v.textFilter
}

// ActiveLevels returns the active level filters
func (v *View) ActiveLevels() map[Level]bool {
	return v.levelFilter
}

// IsFiltered returns true if any filter is active
func (v *View) IsFiltered() bool {
	return len(v.levelFilter) > 0 || v.textFilter != "" || v.custom != nil
}

func (v *View) pass(e *Entry) bool {
	if v.textFilter != "" && !e.Contains(v.textFilter) {
		return false
	}
	if len(v.levelFilter) > 0 && !v.levelFilter[e.Level] {
		return false
	}
	if v.custom != nil && !v.custom(e) {
		return false
	}
	return true
}

// Sync brings the view up to date with the store and reports what changed
func (v *View) Sync() Change {
	if v.dirty || v.generation != v.store.Generation() {
		return v.rebuild()
	}

	var change Change

	// Drop sequences evicted from the front of the store
	if oldest := v.store.Oldest(); oldest != nil {
		cut := sort.Search(len(v.seqs), func(i int) bool {
			return v.seqs[i] >= oldest.Sequence
		})
		if cut > 0 {
			change.Removed = append([]uint64(nil), v.seqs[:cut]...)
			v.seqs = append(v.seqs[:0:0], v.seqs[cut:]...)
		}
	} else if len(v.seqs) > 0 {
		change.Removed = v.seqs
		v.seqs = nil
	}

	// Scan newly appended entries
	n := v.store.Len()
	for i := v.store.Position(v.scanned + 1); i < n; i++ {
		e := v.store.At(i)
		if e.Sequence <= v.scanned {
			continue
		}
		v.scanned = e.Sequence
		if v.pass(e) {
			v.seqs = append(v.seqs, e.Sequence)
			change.Appended = append(change.Appended, e.Sequence)
		}
	}
	return change
}

func (v *View) rebuild() Change {
	v.seqs = v.seqs[:0]
	v.scanned = 0
	n := v.store.Len()
	for i := 0; i < n; i++ {
		e := v.store.At(i)
		v.scanned = e.Sequence
		if v.pass(e) {
			v.seqs = append(v.seqs, e.Sequence)
		}
	}
	v.generation = v.store.Generation()
	v.dirty = false
	return Change{Reset: true}
}

// Len returns the number of visible entries as of the last Sync
func (v *View) Len() int {
	return len(v.seqs)
}

// Seqs returns the visible sequences; callers must not modify the slice
func (v *View) Seqs() []uint64 {
	return v.seqs
}

// Seq returns the sequence at view index i
func (v *View) Seq(i int) (uint64, bool) {
	if i < 0 || i >= len(v.seqs) {
		return 0, false
	}
	return v.seqs[i], true
}

// IndexOf returns the view index of the first sequence >= seq
func (v *View) IndexOf(seq uint64) int {
	return sort.Search(len(v.seqs), func(i int) bool {
		return v.seqs[i] >= seq
	})
}

// Entry returns the entry at view index i
func (v *View) Entry(i int) *Entry {
	seq, ok := v.Seq(i)
	if !ok {
		return nil
	}
	e, _ := v.store.Get(seq)
	return e
}

// All iterates visible entries in sequence order. Each call restarts
// from the beginning of the view as of the last Sync.
func (v *View) All() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for _, seq := range v.seqs {
			e, ok := v.store.Get(seq)
			if !ok {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}
