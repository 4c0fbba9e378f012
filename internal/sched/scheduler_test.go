package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func TestDueInOrder(t *testing.T) {
	s := New()
	s.Schedule("settle", at(150))
	s.Schedule("lock", at(100))
	s.Schedule("confirm", at(100))

	assert.Nil(t, s.Due(at(99)))
	assert.Equal(t, []Key{"lock", "confirm"}, s.Due(at(100)))
	assert.Equal(t, 1, s.Len())

	next, ok := s.Next()
	assert.True(t, ok)
	assert.Equal(t, at(150), next)

	assert.Equal(t, []Key{"settle"}, s.Due(at(500)))
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestCancelByKey(t *testing.T) {
	s := New()
	for _, ms := range []int{50, 150, 300} {
		s.Schedule("confirm", at(ms))
	}
	s.Schedule("settle", at(100))
	assert.Equal(t, 3, s.Pending("confirm"))

	assert.Equal(t, 3, s.Cancel("confirm"))
	assert.Zero(t, s.Pending("confirm"))
	assert.Equal(t, []Key{"settle"}, s.Due(at(1000)))
}

func TestRescheduleSupersedes(t *testing.T) {
	s := New()
	s.Schedule("settle", at(100))
	s.Reschedule("settle", at(250))

	assert.Nil(t, s.Due(at(200)))
	assert.Equal(t, []Key{"settle"}, s.Due(at(250)))
}

func TestCancelAll(t *testing.T) {
	s := New()
	s.Schedule("confirm", at(10))
	s.Schedule("confirm", at(20))
	assert.Equal(t, 2, s.Pending("confirm"))

	s.CancelAll()
	assert.Zero(t, s.Len())
}
