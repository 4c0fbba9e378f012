package logformat

import (
	"bytes"
	"strings"
	"time"

	"github.com/TimelordUK/mtail/internal/config"
)

// Record is a parsed log line
type Record struct {
	Time       time.Time
	Level      Level
	Message    string
	Fields     []Field
	Behavior   string
	Structured bool // the line was a JSON object
}

// Parser turns raw lines into records. JSON object lines are read as
// structured logs, anything else goes through pattern detection.
type Parser struct {
	levels *LevelDetector
	times  *TimestampParser
}

// NewParser creates a parser using the configured level patterns
func NewParser(cfg *config.LogLevelConfig) *Parser {
	return &Parser{
		levels: NewLevelDetector(cfg),
		times:  NewTimestampParser(),
	}
}

// Parse parses one line without its trailing newline
func (p *Parser) Parse(line []byte) Record {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) > 1 && trimmed[0] == '{' {
		if rec, ok := p.parseStructured(trimmed); ok {
			return rec
		}
	}
	return p.parsePlain(line)
}

func (p *Parser) parsePlain(line []byte) Record {
	rec := Record{Level: p.levels.Detect(line)}

	msg := line
	if t, span, ok := p.times.Find(line); ok {
		rec.Time = t
		// Drop a leading timestamp, it is shown separately
		if len(bytes.TrimSpace(line[:span[0]])) == 0 {
			msg = line[span[1]:]
		}
	}
	rec.Message = strings.TrimSpace(strings.ReplaceAll(string(msg), "\t", "    "))
	return rec
}

func (p *Parser) parseStructured(line []byte) (Record, bool) {
	members, err := readObject(line)
	if err != nil {
		return Record{}, false
	}

	rec := Record{Structured: true}
	for _, m := range members {
		switch strings.ToLower(m.key) {
		case "level", "lvl", "severity":
			if rec.Level == LevelUnknown {
				rec.Level = ParseLevelName(m.value)
				continue
			}
		case "message", "msg":
			if rec.Message == "" {
				rec.Message = m.value
				continue
			}
		case "time", "ts", "timestamp", "@timestamp":
			if rec.Time.IsZero() {
				if t, ok := p.times.ParseValue(m.value); ok {
					rec.Time = t
					continue
				}
			}
		case "behavior":
			if rec.Behavior == "" {
				rec.Behavior = m.value
				continue
			}
		}
		rec.Fields = append(rec.Fields, Field{Key: m.key, Value: m.value})
	}
	return rec, true
}
