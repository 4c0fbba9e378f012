package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/TimelordUK/mtail/internal/config"
	"github.com/TimelordUK/mtail/internal/store"
	"github.com/TimelordUK/mtail/pkg/logformat"
)

// Renderer turns an entry into the text drawn for it at a given width
type Renderer interface {
	Render(e *store.Entry, width int) string
}

type cacheKey struct {
	seq   uint64
	width int
}

// LogLevelRenderer colors entries by level and lays out their metadata
type LogLevelRenderer struct {
	styles         map[store.Level]lipgloss.Style
	sequenceStyle  lipgloss.Style
	timestampStyle lipgloss.Style
	fieldsStyle    lipgloss.Style
	sourceStyle    lipgloss.Style

	display     config.DisplayConfig
	highlighter *FieldHighlighter
	cache       *lru.Cache[cacheKey, string]
}

// NewLogLevelRenderer creates a renderer with config
func NewLogLevelRenderer(cfg *config.Config) *LogLevelRenderer {
	r := &LogLevelRenderer{}
	r.Apply(cfg)
	return r
}

// Apply rebuilds styles from config and drops cached output
func (r *LogLevelRenderer) Apply(cfg *config.Config) {
	r.styles = map[store.Level]lipgloss.Style{
		store.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Levels.Debug)),
		store.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Levels.Info)),
		store.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Levels.Warn)),
		store.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Levels.Error)).Bold(true),
	}
	r.sequenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Sequence))
	r.timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Timestamp))
	r.fieldsStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Fields))
	r.sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Source))

	r.display = cfg.Display
	r.highlighter = nil
	if cfg.Display.HighlightFields {
		r.highlighter = NewFieldHighlighter(cfg.Display.SyntaxStyle)
	}

	size := cfg.Display.RenderCache
	if size <= 0 {
		size = 4096
	}
	if r.cache == nil {
		r.cache, _ = lru.New[cacheKey, string](size)
	} else {
		r.cache.Resize(size)
		r.cache.Purge()
	}
}

// SetShowFields toggles the fields block
func (r *LogLevelRenderer) SetShowFields(show bool) {
	if r.display.ShowFields == show {
		return
	}
	r.display.ShowFields = show
	r.cache.Purge()
}

// ShowFields reports whether the fields block is drawn
func (r *LogLevelRenderer) ShowFields() bool {
	return r.display.ShowFields
}

// Render returns the styled entry, wrapped or truncated to width. A width
// of zero or less disables both.
func (r *LogLevelRenderer) Render(e *store.Entry, width int) string {
	key := cacheKey{seq: e.Sequence, width: width}
	if s, ok := r.cache.Get(key); ok {
		return s
	}

	var lines []string
	lines = append(lines, r.header(e))
	if r.display.ShowFields {
		if f := r.fields(e); f != "" {
			lines = append(lines, "  "+f)
		}
	}

	content := strings.Join(lines, "\n")
	if width > 0 {
		if r.display.WrapLines {
			content = lipgloss.NewStyle().Width(width).Render(content)
		} else {
			content = lipgloss.NewStyle().MaxWidth(width).Render(content)
		}
	}

	r.cache.Add(key, content)
	return content
}

// Height returns the number of terminal rows the entry takes at width
func (r *LogLevelRenderer) Height(e *store.Entry, width int) int {
	return lipgloss.Height(r.Render(e, width))
}

// CacheLen returns the number of cached renderings
func (r *LogLevelRenderer) CacheLen() int {
	return r.cache.Len()
}

func (r *LogLevelRenderer) header(e *store.Entry) string {
	var parts []string
	if r.display.ShowSequence {
		parts = append(parts, r.sequenceStyle.Render(fmt.Sprintf("#%d", e.Sequence)))
	}
	if r.display.ShowTimestamp {
		if ts := logformat.FormatTime(e.Timestamp, r.display.TimestampFormat); ts != "" {
			parts = append(parts, r.timestampStyle.Render(ts))
		}
	}
	if src, ok := e.Field(store.SourceField); ok {
		parts = append(parts, r.sourceStyle.Render("["+src+"]"))
	}

	style := r.styles[e.Level]
	parts = append(parts, style.Render(fmt.Sprintf("%-5s", e.Level)))

	msg := r.expandTabs(e.Message)
	if e.Behavior != "" {
		msg += " (" + e.Behavior + ")"
	}
	parts = append(parts, style.Render(msg))
	return strings.Join(parts, " ")
}

func (r *LogLevelRenderer) fields(e *store.Entry) string {
	var fields []store.Field
	for _, f := range e.Fields {
		if f.Key != store.SourceField {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return ""
	}

	if r.highlighter != nil {
		return r.highlighter.Highlight(fields)
	}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return r.fieldsStyle.Render(r.expandTabs(b.String()))
}

func (r *LogLevelRenderer) expandTabs(s string) string {
	width := r.display.TabWidth
	if width <= 0 {
		width = 4
	}
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", width))
}

// PlainRenderer renders without styling
type PlainRenderer struct{}

// NewPlainRenderer creates a plain renderer
func NewPlainRenderer() *PlainRenderer {
	return &PlainRenderer{}
}

// Render returns the level and message as-is
func (r *PlainRenderer) Render(e *store.Entry, width int) string {
	return fmt.Sprintf("%-5s %s", e.Level, e.Message)
}
