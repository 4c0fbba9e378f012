// Package diag builds the process logger. The terminal belongs to the UI,
// so logs go to a file or nowhere.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a logger writing to w at the named level. An unknown level
// falls back to info.
func New(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		return zerolog.Nop()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

// Open returns a logger for path and a function closing the file. An empty
// path discards everything.
func Open(path, level string) (zerolog.Logger, func() error, error) {
	if path == "" {
		return zerolog.Nop(), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	return New(f, level), f.Close, nil
}
