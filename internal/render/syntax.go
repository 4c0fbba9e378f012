package render

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/TimelordUK/mtail/internal/store"
)

// FieldHighlighter renders structured fields as one line of highlighted JSON
type FieldHighlighter struct {
	syntaxTheme string
	formatter   string
}

// NewFieldHighlighter creates a highlighter with the given chroma style.
// Unknown styles fall back to monokai.
func NewFieldHighlighter(style string) *FieldHighlighter {
	if style == "" || styles.Get(style) == styles.Fallback {
		style = "monokai"
	}
	return &FieldHighlighter{
		syntaxTheme: style,
		formatter:   "terminal16m",
	}
}

// Highlight applies syntax highlighting to the fields
func (h *FieldHighlighter) Highlight(fields []store.Field) string {
	content := FieldsJSON(fields)
	if content == "" {
		return ""
	}

	var buf bytes.Buffer
	err := quick.Highlight(&buf, content, "json", h.formatter, h.syntaxTheme)
	if err != nil {
		return content
	}

	// Remove any newlines that quick.Highlight adds
	highlighted := buf.String()
	highlighted = strings.ReplaceAll(highlighted, "\n", "")
	highlighted = strings.ReplaceAll(highlighted, "\r", "")

	return lipgloss.NewStyle().Render(highlighted)
}

// FieldsJSON encodes fields as a compact JSON object in their original
// order. Values holding nested JSON are written as-is and repeated keys
// keep their first value.
func FieldsJSON(fields []store.Field) string {
	if len(fields) == 0 {
		return ""
	}

	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf)
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return ""
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Key] {
			continue
		}
		seen[f.Key] = true
		if err := enc.WriteToken(jsontext.String(f.Key)); err != nil {
			return ""
		}
		if err := writeFieldValue(enc, f.Value); err != nil {
			return ""
		}
	}
	if err := enc.WriteToken(jsontext.EndObject); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeFieldValue(enc *jsontext.Encoder, v string) error {
	if len(v) > 1 && (v[0] == '{' || v[0] == '[') {
		raw := jsontext.Value(v)
		if raw.IsValid() {
			return enc.WriteValue(raw)
		}
	}
	return enc.WriteToken(jsontext.String(v))
}
