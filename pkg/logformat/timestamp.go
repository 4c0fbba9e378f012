package logformat

import (
	"regexp"
	"strconv"
	"time"
)

// TimestampParser detects and parses timestamps from log lines
type TimestampParser struct {
	patterns []timestampPattern
	now      func() time.Time
}

type timestampPattern struct {
	regex   *regexp.Regexp
	layouts []string
}

const (
	layoutUnix   = "unix"
	layoutUnixMs = "unix_ms"
)

// NewTimestampParser creates a parser with common timestamp formats
func NewTimestampParser() *TimestampParser {
	return &TimestampParser{
		now: time.Now,
		patterns: []timestampPattern{
			// 2024-01-15T10:30:45.123Z, 2024-01-15T10:30:45+00:00
			{
				regex:   regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?`),
				layouts: []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"},
			},
			// [2024-01-15 10:30:45.123]
			{
				regex:   regexp.MustCompile(`\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d{3})?\]`),
				layouts: []string{"[2006-01-02 15:04:05.000]", "[2006-01-02 15:04:05]"},
			},
			// 2024-01-15 10:30:45.123
			{
				regex:   regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d{3})?`),
				layouts: []string{"2006-01-02 15:04:05.000", "2006-01-02 15:04:05"},
			},
			// 15/Jan/2024:10:30:45 +0000
			{
				regex:   regexp.MustCompile(`\d{2}/[A-Z][a-z]{2}/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4}`),
				layouts: []string{"02/Jan/2006:15:04:05 -0700"},
			},
			// Jan 15 10:30:45
			{
				regex:   regexp.MustCompile(`[A-Z][a-z]{2} +\d{1,2} \d{2}:\d{2}:\d{2}`),
				layouts: []string{"Jan _2 15:04:05", "Jan 2 15:04:05"},
			},
			// 1705315845123 at line start
			{
				regex:   regexp.MustCompile(`^\d{13}\b`),
				layouts: []string{layoutUnixMs},
			},
			// 1705315845 at line start
			{
				regex:   regexp.MustCompile(`^\d{10}\b`),
				layouts: []string{layoutUnix},
			},
			// 10:30:45.123 at line start, today
			{
				regex:   regexp.MustCompile(`^\d{2}:\d{2}:\d{2}(?:\.\d{3})?`),
				layouts: []string{"15:04:05.000", "15:04:05"},
			},
		},
	}
}

// Find locates and parses the first timestamp in a line. The returned
// span is the byte range it occupied.
func (p *TimestampParser) Find(content []byte) (time.Time, [2]int, bool) {
	for _, pattern := range p.patterns {
		loc := pattern.regex.FindIndex(content)
		if loc == nil {
			continue
		}
		text := string(content[loc[0]:loc[1]])
		for _, layout := range pattern.layouts {
			if t, ok := p.parse(text, layout); ok {
				return t, [2]int{loc[0], loc[1]}, true
			}
		}
	}
	return time.Time{}, [2]int{}, false
}

// Parse attempts to extract a timestamp from a log line
func (p *TimestampParser) Parse(content []byte) (time.Time, bool) {
	t, _, ok := p.Find(content)
	return t, ok
}

func (p *TimestampParser) parse(text, layout string) (time.Time, bool) {
	switch layout {
	case layoutUnix, layoutUnixMs:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		if layout == layoutUnixMs {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}

	t, err := time.Parse(layout, text)
	if err != nil {
		return time.Time{}, false
	}

	now := p.now()
	switch layout {
	case "15:04:05.000", "15:04:05":
		// Time only, assume today
		t = time.Date(now.Year(), now.Month(), now.Day(),
			t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
	case "Jan _2 15:04:05", "Jan 2 15:04:05":
		// Syslog has no year
		t = time.Date(now.Year(), t.Month(), t.Day(),
			t.Hour(), t.Minute(), t.Second(), 0, time.Local)
	}
	return t, true
}

// ParseValue parses a structured time value: RFC 3339 text or unix
// seconds, milliseconds or fractional seconds
func (p *TimestampParser) ParseValue(s string) (time.Time, bool) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		switch {
		case f > 1e15:
			return time.UnixMicro(int64(f)), true
		case f > 1e12:
			return time.UnixMilli(int64(f)), true
		default:
			sec := int64(f)
			return time.Unix(sec, int64((f-float64(sec))*1e9)), true
		}
	}
	t, _, ok := p.Find([]byte(s))
	return t, ok
}

// FormatTime formats a timestamp for display
func FormatTime(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	if layout == "" {
		layout = "15:04:05"
	}
	return t.Format(layout)
}
