package render

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimelordUK/mtail/internal/config"
	"github.com/TimelordUK/mtail/internal/store"
)

func plainConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Display.HighlightFields = false
	cfg.Display.WrapLines = true
	return cfg
}

func sampleEntry() *store.Entry {
	return &store.Entry{
		Sequence:  7,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 250e6, time.UTC),
		Level:     store.LevelWarn,
		Message:   "disk\tnearly full",
		Fields: []store.Field{
			{Key: store.SourceField, Value: "a.log"},
			{Key: "path", Value: "/var"},
			{Key: "pct", Value: "93"},
		},
	}
}

func TestRenderHeaderAndFields(t *testing.T) {
	r := NewLogLevelRenderer(plainConfig())
	out := r.Render(sampleEntry(), 0)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "10:30:00.250")
	assert.Contains(t, lines[0], "[a.log]")
	assert.Contains(t, lines[0], "WARN")
	assert.Contains(t, lines[0], "disk    nearly full")
	assert.Contains(t, lines[1], "path=/var pct=93")
	assert.NotContains(t, lines[1], "source=")
}

func TestShowFieldsToggle(t *testing.T) {
	r := NewLogLevelRenderer(plainConfig())
	e := sampleEntry()
	assert.Equal(t, 2, r.Height(e, 80))

	r.SetShowFields(false)
	assert.False(t, r.ShowFields())
	assert.Equal(t, 1, r.Height(e, 80))
}

func TestWrapAndTruncate(t *testing.T) {
	e := &store.Entry{Sequence: 1, Level: store.LevelInfo, Message: strings.Repeat("word ", 20)}

	cfg := plainConfig()
	cfg.Display.ShowTimestamp = false
	wrapped := NewLogLevelRenderer(cfg)
	assert.Greater(t, wrapped.Height(e, 20), 1)
	for _, line := range strings.Split(wrapped.Render(e, 20), "\n") {
		assert.LessOrEqual(t, lipgloss.Width(line), 20)
	}

	cfg.Display.WrapLines = false
	truncated := NewLogLevelRenderer(cfg)
	assert.Equal(t, 1, truncated.Height(e, 20))
	assert.LessOrEqual(t, lipgloss.Width(truncated.Render(e, 20)), 20)
}

func TestRenderCache(t *testing.T) {
	cfg := plainConfig()
	r := NewLogLevelRenderer(cfg)
	e := sampleEntry()

	first := r.Render(e, 40)
	assert.Equal(t, 1, r.CacheLen())
	assert.Equal(t, first, r.Render(e, 40))
	assert.Equal(t, 1, r.CacheLen())

	r.Render(e, 60)
	assert.Equal(t, 2, r.CacheLen())

	cfg.Display.ShowSequence = true
	r.Apply(cfg)
	assert.Zero(t, r.CacheLen())
	assert.Contains(t, r.Render(e, 0), "#7")
}

func TestFieldsJSON(t *testing.T) {
	fields := []store.Field{
		{Key: "user", Value: "bob"},
		{Key: "req", Value: `{"id":3,"tags":["a"]}`},
		{Key: "user", Value: "again"},
		{Key: "odd", Value: "{not json"},
	}
	assert.Equal(t, `{"user":"bob","req":{"id":3,"tags":["a"]},"odd":"{not json"}`, FieldsJSON(fields))
	assert.Empty(t, FieldsJSON(nil))
}

func TestHighlightedFields(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Display.HighlightFields = true
	cfg.Display.SyntaxStyle = "no-such-style"
	r := NewLogLevelRenderer(cfg)

	out := r.Render(sampleEntry(), 0)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"path"`)
	assert.Contains(t, lines[1], `"93"`)
	assert.Equal(t, "monokai", r.highlighter.syntaxTheme)
}

func TestPlainRenderer(t *testing.T) {
	e := &store.Entry{Level: store.LevelError, Message: "boom"}
	assert.Equal(t, "ERROR boom", NewPlainRenderer().Render(e, 80))
}
