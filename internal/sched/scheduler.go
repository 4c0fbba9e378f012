// Package sched holds cancellable tasks that fire on the caller's clock.
package sched

import (
	"slices"
	"time"
)

// Key names the purpose of a task. Tasks sharing a key are cancelled together.
type Key string

type task struct {
	id  int
	key Key
	at  time.Time
}

// Scheduler owns pending tasks. It never fires on its own: the owner
// passes the current time to Due once per tick and runs what comes back.
type Scheduler struct {
	tasks  []task // ordered by at, then id
	nextID int
}

// New creates an empty scheduler
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule adds a task for key at the given time. Returns the task ID.
func (s *Scheduler) Schedule(key Key, at time.Time) int {
	s.nextID++
	t := task{id: s.nextID, key: key, at: at}
	i, _ := slices.BinarySearchFunc(s.tasks, t, compare)
	s.tasks = slices.Insert(s.tasks, i, t)
	return t.id
}

// Reschedule cancels every task for key and schedules a new one
func (s *Scheduler) Reschedule(key Key, at time.Time) int {
	s.Cancel(key)
	return s.Schedule(key, at)
}

// Cancel removes every pending task for key. Returns how many were removed.
func (s *Scheduler) Cancel(key Key) int {
	before := len(s.tasks)
	s.tasks = slices.DeleteFunc(s.tasks, func(t task) bool { return t.key == key })
	return before - len(s.tasks)
}

// CancelAll clears every task
func (s *Scheduler) CancelAll() {
	s.tasks = nil
}

// Pending returns how many tasks are waiting for key
func (s *Scheduler) Pending(key Key) int {
	n := 0
	for _, t := range s.tasks {
		if t.key == key {
			n++
		}
	}
	return n
}

// Len returns the number of pending tasks
func (s *Scheduler) Len() int {
	return len(s.tasks)
}

// Next returns when the earliest task is due
func (s *Scheduler) Next() (time.Time, bool) {
	if len(s.tasks) == 0 {
		return time.Time{}, false
	}
	return s.tasks[0].at, true
}

// Due removes and returns the keys of every task due at or before now, in
// the order they were due
func (s *Scheduler) Due(now time.Time) []Key {
	n := 0
	for n < len(s.tasks) && !s.tasks[n].at.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}
	keys := make([]Key, n)
	for i := range n {
		keys[i] = s.tasks[i].key
	}
	s.tasks = slices.Delete(s.tasks, 0, n)
	return keys
}

func compare(a, b task) int {
	if c := a.at.Compare(b.at); c != 0 {
		return c
	}
	return a.id - b.id
}
