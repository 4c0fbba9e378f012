package slice

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/TimelordUK/mtail/internal/store"
	"github.com/TimelordUK/mtail/pkg/logformat"
)

// Format selects how exported entries are written
type Format string

const (
	FormatText  Format = "text"
	FormatJSONL Format = "jsonl"
)

// Info contains metadata about an export
type Info struct {
	CachePath string // Local temp file path
	Count     int
	FirstSeq  uint64
	LastSeq   uint64
	Filtered  bool // only entries passing the view's filter were written
	Created   time.Time
}

// Slicer writes entries of a view to files
type Slicer struct {
	cacheDir   string
	format     Format
	timeLayout string
}

// NewSlicer creates a slicer writing text to the temp directory
func NewSlicer() *Slicer {
	return &Slicer{
		cacheDir:   os.TempDir(),
		format:     FormatText,
		timeLayout: time.RFC3339Nano,
	}
}

// WithDir sets the directory exports are written to
func (s *Slicer) WithDir(dir string) *Slicer {
	s.cacheDir = dir
	return s
}

// WithFormat sets the output format
func (s *Slicer) WithFormat(f Format) *Slicer {
	s.format = f
	return s
}

// SliceView writes every entry currently in the view
func (s *Slicer) SliceView(v *store.View, name string) (*Info, error) {
	return s.SliceRange(v, name, 0, v.Len())
}

// SliceRange writes view positions start to end (exclusive)
func (s *Slicer) SliceRange(v *store.View, name string, start, end int) (*Info, error) {
	if start < 0 {
		start = 0
	}
	if end > v.Len() {
		end = v.Len()
	}
	if start >= end {
		return nil, fmt.Errorf("invalid range: %d-%d", start, end)
	}

	first, _ := v.Seq(start)
	last, _ := v.Seq(end - 1)

	ext := "log"
	if s.format == FormatJSONL {
		ext = "jsonl"
	}
	cachePath := filepath.Join(s.cacheDir, fmt.Sprintf("mtail-export-%s-%d-%d.%s", sanitize(name), first, last, ext))

	outFile, err := os.Create(cachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	w := bufio.NewWriter(outFile)
	for i := start; i < end; i++ {
		e := v.Entry(i)
		if e == nil {
			continue
		}
		if err := s.write(w, e); err != nil {
			outFile.Close()
			os.Remove(cachePath)
			return nil, fmt.Errorf("failed to write entry %d: %w", e.Sequence, err)
		}
	}
	if err := w.Flush(); err != nil {
		outFile.Close()
		os.Remove(cachePath)
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(cachePath)
		return nil, fmt.Errorf("failed to close export: %w", err)
	}

	return &Info{
		CachePath: cachePath,
		Count:     end - start,
		FirstSeq:  first,
		LastSeq:   last,
		Filtered:  v.IsFiltered(),
		Created:   time.Now(),
	}, nil
}

func (s *Slicer) write(w io.Writer, e *store.Entry) error {
	if s.format == FormatJSONL {
		return writeJSON(w, e, s.timeLayout)
	}
	_, err := io.WriteString(w, FormatLine(e, s.timeLayout)+"\n")
	return err
}

// FormatLine renders an entry as one plain text line
func FormatLine(e *store.Entry, layout string) string {
	var b strings.Builder
	if ts := logformat.FormatTime(e.Timestamp, layout); ts != "" {
		b.WriteString(ts)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", e.Level, e.Message)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, " %s=%s", f.Key, quote(f.Value))
	}
	if e.Behavior != "" {
		fmt.Fprintf(&b, " behavior=%s", quote(e.Behavior))
	}
	return b.String()
}

func quote(v string) string {
	if strings.ContainsAny(v, " \t\"=") {
		return fmt.Sprintf("%q", v)
	}
	return v
}

// writeJSON writes one object per entry with fields after the fixed keys
func writeJSON(w io.Writer, e *store.Entry, layout string) error {
	enc := jsontext.NewEncoder(w)
	tokens := []jsontext.Token{
		jsontext.BeginObject,
		jsontext.String("seq"), jsontext.Uint(e.Sequence),
		jsontext.String("level"), jsontext.String(strings.ToLower(e.Level.String())),
	}
	if !e.Timestamp.IsZero() {
		tokens = append(tokens, jsontext.String("time"), jsontext.String(e.Timestamp.Format(layout)))
	}
	tokens = append(tokens, jsontext.String("msg"), jsontext.String(e.Message))
	if e.Behavior != "" {
		tokens = append(tokens, jsontext.String("behavior"), jsontext.String(e.Behavior))
	}
	for _, tok := range tokens {
		if err := enc.WriteToken(tok); err != nil {
			return err
		}
	}

	seen := map[string]bool{"seq": true, "level": true, "time": true, "msg": true, "behavior": true}
	for _, f := range e.Fields {
		if seen[f.Key] {
			continue
		}
		seen[f.Key] = true
		if err := enc.WriteToken(jsontext.String(f.Key)); err != nil {
			return err
		}
		if err := enc.WriteToken(jsontext.String(f.Value)); err != nil {
			return err
		}
	}
	return enc.WriteToken(jsontext.EndObject)
}

func sanitize(name string) string {
	if name == "" {
		return "view"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, filepath.Base(name))
}

// Cleanup removes an export file
func (s *Slicer) Cleanup(info *Info) error {
	if info == nil || info.CachePath == "" {
		return nil
	}
	return os.Remove(info.CachePath)
}
