package index

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mtailio "github.com/TimelordUK/mtail/internal/io"
)

func mapped(t *testing.T, content string) *mtailio.MappedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	m, err := mtailio.OpenMapped(path)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func strs(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}

func TestNextHoldsBackPartialLine(t *testing.T) {
	m := mapped(t, "one\r\ntwo\nthr")
	c := NewLineCursor()

	lines, err := c.Next(m, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, strs(lines))
	assert.EqualValues(t, 9, c.Pos())
	assert.Equal(t, 3, c.LineNo())

	lines, err = c.Next(m, 0)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestNextLimit(t *testing.T) {
	m := mapped(t, "a\nb\nc\n")
	c := NewLineCursor()

	lines, err := c.Next(m, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, strs(lines))

	lines, err = c.Next(m, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, strs(lines))
	assert.Equal(t, 4, c.LineNo())
}

func TestNextLongLine(t *testing.T) {
	long := strings.Repeat("x", chunkSize+100)
	m := mapped(t, long+"\nshort\n")
	c := NewLineCursor()

	lines, err := c.Next(m, 0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], chunkSize+100)
	assert.Equal(t, "short", string(lines[1]))
}

func TestTailStart(t *testing.T) {
	m := mapped(t, "a\nbb\nccc\npartial")

	pos, err := TailStart(m, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pos)

	pos, err = TailStart(m, 10)
	require.NoError(t, err)
	assert.Zero(t, pos)

	// Zero lines starts after the last complete line
	pos, err = TailStart(m, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 9, pos)
}

func TestTailStartEmpty(t *testing.T) {
	m := mapped(t, "")
	pos, err := TailStart(m, 5)
	require.NoError(t, err)
	assert.Zero(t, pos)
}
