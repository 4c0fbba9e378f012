package store

import (
	"strings"
	"time"
)

// Level represents a log severity level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Levels lists all levels in ascending severity
var Levels = []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLevel maps a level name to a Level. Unknown names report false.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "TRC", "DEBUG", "DBG":
		return LevelDebug, true
	case "INFO", "INF", "INFORMATION":
		return LevelInfo, true
	case "WARN", "WRN", "WARNING":
		return LevelWarn, true
	case "ERROR", "ERR", "FATAL", "FTL", "CRITICAL", "CRIT", "PANIC":
		return LevelError, true
	}
	return LevelInfo, false
}

// SourceField names the file an entry came from when several are merged
const SourceField = "source"

// Field is one key/value pair of an entry's structured fields
type Field struct {
	Key   string
	Value string
}

// Entry is a single structured log entry.
// Sequence is the only ordering key; Timestamp is informational.
type Entry struct {
	Sequence  uint64
	Timestamp time.Time
	Level     Level
	Message   string
	Fields    []Field
	Behavior  string
}

// Field returns the value of the first field with the given key
func (e *Entry) Field(key string) (string, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Contains reports whether the message or any field contains text
func (e *Entry) Contains(text string) bool {
	if strings.Contains(e.Message, text) {
		return true
	}
	for _, f := range e.Fields {
		if strings.Contains(f.Key, text) || strings.Contains(f.Value, text) {
			return true
		}
	}
	return false
}
