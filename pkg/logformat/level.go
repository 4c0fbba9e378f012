package logformat

import (
	"bytes"
	"strings"

	"github.com/TimelordUK/mtail/internal/config"
)

// Level is a detected severity, finer grained than what the stream keeps
type Level int

const (
	LevelUnknown Level = iota
	LevelTrace
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

// ParseLevelName maps a structured level value such as "warn" or "ERR"
func ParseLevelName(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "TRC":
		return LevelTrace
	case "DEBUG", "DBG":
		return LevelDebug
	case "INFO", "INF", "INFORMATION":
		return LevelInfo
	case "WARN", "WRN", "WARNING":
		return LevelWarn
	case "ERROR", "ERR":
		return LevelError
	case "FATAL", "FTL", "PANIC", "CRIT", "CRITICAL":
		return LevelFatal
	}
	return LevelUnknown
}

type levelPatterns struct {
	level    Level
	patterns [][]byte
}

// LevelDetector detects log levels from line content
type LevelDetector struct {
	// Most severe first so "ERROR while retrying INFO" is an error
	ordered []levelPatterns
}

// NewLevelDetector creates a detector from config
func NewLevelDetector(cfg *config.LogLevelConfig) *LevelDetector {
	d := &LevelDetector{}
	d.add(LevelFatal, cfg.FatalPatterns)
	d.add(LevelError, cfg.ErrorPatterns)
	d.add(LevelWarn, cfg.WarnPatterns)
	d.add(LevelInfo, cfg.InfoPatterns)
	d.add(LevelDebug, cfg.DebugPatterns)
	d.add(LevelTrace, cfg.TracePatterns)
	return d
}

func (d *LevelDetector) add(level Level, patterns []string) {
	lp := levelPatterns{level: level}
	for _, p := range patterns {
		if p != "" {
			lp.patterns = append(lp.patterns, []byte(p))
		}
	}
	d.ordered = append(d.ordered, lp)
}

// Detect returns the log level for a line
func (d *LevelDetector) Detect(content []byte) Level {
	for _, lp := range d.ordered {
		for _, p := range lp.patterns {
			if bytes.Contains(content, p) {
				return lp.level
			}
		}
	}
	return LevelUnknown
}
