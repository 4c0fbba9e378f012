package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(from, to uint64, level Level) []Entry {
	var out []Entry
	for s := from; s <= to; s++ {
		out = append(out, Entry{Sequence: s, Level: level, Message: "msg"})
	}
	return out
}

func TestAppendEvictsOldest(t *testing.T) {
	s := New(3)

	evicted, err := s.Append(entries(1, 5, LevelInfo)...)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, evicted)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, uint64(3), s.Oldest().Sequence)
	assert.Equal(t, uint64(5), s.Newest().Sequence)

	_, ok := s.Get(2)
	assert.False(t, ok)
	e, ok := s.Get(4)
	require.True(t, ok)
	assert.Equal(t, uint64(4), e.Sequence)
}

func TestAppendManyStaysBounded(t *testing.T) {
	s := New(100)
	for seq := uint64(1); seq <= 10_000; seq++ {
		_, err := s.Append(Entry{Sequence: seq})
		require.NoError(t, err)
	}
	assert.Equal(t, 100, s.Len())
	assert.Equal(t, uint64(9901), s.Oldest().Sequence)
	assert.LessOrEqual(t, len(s.entries), 300)
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	s := New(0)
	_, err := s.Append(entries(5, 6, LevelInfo)...)
	require.NoError(t, err)

	_, err = s.Append(Entry{Sequence: 4}, Entry{Sequence: 7})
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, uint64(7), s.Newest().Sequence)
}

func TestClearBumpsGeneration(t *testing.T) {
	s := New(0)
	s.Append(entries(1, 3, LevelInfo)...)
	gen := s.Generation()
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Newest())
	assert.NotEqual(t, gen, s.Generation())

	// Sequences continue after a clear
	_, err := s.Append(Entry{Sequence: 10})
	assert.NoError(t, err)
}

func TestSetCapacityEvicts(t *testing.T) {
	s := New(0)
	s.Append(entries(1, 10, LevelInfo)...)
	evicted := s.SetCapacity(4)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, evicted)
	assert.Equal(t, 4, s.Len())
}
