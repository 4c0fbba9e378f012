package slice

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimelordUK/mtail/internal/store"
)

func sampleView(t *testing.T) *store.View {
	t.Helper()
	s := store.New(0)
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	_, err := s.Append(
		store.Entry{Sequence: 1, Timestamp: ts, Level: store.LevelInfo, Message: "started"},
		store.Entry{Sequence: 2, Timestamp: ts, Level: store.LevelError, Message: "disk full",
			Fields: []store.Field{{Key: "path", Value: "/var/log"}, {Key: "note", Value: "try again"}}},
		store.Entry{Sequence: 3, Level: store.LevelWarn, Message: "slow", Behavior: "retry"},
	)
	require.NoError(t, err)
	v := s.Filter(nil)
	v.Sync()
	return v
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestSliceViewText(t *testing.T) {
	v := sampleView(t)
	s := NewSlicer().WithDir(t.TempDir())

	info, err := s.SliceView(v, "app.log")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Count)
	assert.Equal(t, uint64(1), info.FirstSeq)
	assert.Equal(t, uint64(3), info.LastSeq)
	assert.False(t, info.Filtered)
	assert.Contains(t, info.CachePath, "mtail-export-app.log-1-3.log")

	lines := readLines(t, info.CachePath)
	require.Len(t, lines, 3)
	assert.Equal(t, "2024-01-15T10:30:00Z INFO  started", lines[0])
	assert.Equal(t, `2024-01-15T10:30:00Z ERROR disk full path=/var/log note="try again"`, lines[1])
	assert.Equal(t, "WARN  slow behavior=retry", lines[2])

	require.NoError(t, s.Cleanup(info))
	_, err = os.Stat(info.CachePath)
	assert.True(t, os.IsNotExist(err))
}

func TestSliceFilteredView(t *testing.T) {
	v := sampleView(t)
	v.SetLevelAndAbove(store.LevelWarn)
	v.Sync()

	info, err := NewSlicer().WithDir(t.TempDir()).SliceView(v, "")
	require.NoError(t, err)
	assert.True(t, info.Filtered)
	assert.Equal(t, 2, info.Count)
	assert.Equal(t, uint64(2), info.FirstSeq)
	assert.Contains(t, info.CachePath, "mtail-export-view-2-3")
}

func TestSliceJSONL(t *testing.T) {
	v := sampleView(t)
	info, err := NewSlicer().WithDir(t.TempDir()).WithFormat(FormatJSONL).SliceRange(v, "app", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Count)

	lines := readLines(t, info.CachePath)
	require.Len(t, lines, 2)
	assert.Equal(t,
		`{"seq":2,"level":"error","time":"2024-01-15T10:30:00Z","msg":"disk full","path":"/var/log","note":"try again"}`,
		lines[0])
	assert.Equal(t, `{"seq":3,"level":"warn","msg":"slow","behavior":"retry"}`, lines[1])
}

func TestSliceEmptyRange(t *testing.T) {
	v := sampleView(t)
	_, err := NewSlicer().WithDir(t.TempDir()).SliceRange(v, "app", 2, 2)
	assert.Error(t, err)

	empty := store.New(0).Filter(nil)
	empty.Sync()
	_, err = NewSlicer().WithDir(t.TempDir()).SliceView(empty, "app")
	assert.Error(t, err)
}
