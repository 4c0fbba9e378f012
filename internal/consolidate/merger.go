package consolidate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TimelordUK/mtail/internal/config"
	"github.com/TimelordUK/mtail/internal/source"
	"github.com/TimelordUK/mtail/internal/store"
	"github.com/TimelordUK/mtail/pkg/logformat"
)

// Options controls which files are tailed and how
type Options struct {
	Paths      []string
	PrimeLines int  // last N lines of each file to load before tailing, 0 for none
	FromStart  bool // read every file from its first line instead of priming
	Poll       time.Duration
	BatchSize  int // max lines read per source per poll, 0 for no limit
	Levels     *config.LogLevelConfig
}

// OptionsFromConfig builds options from the ingest section
func OptionsFromConfig(cfg *config.Config, paths []string) Options {
	return Options{
		Paths:      paths,
		PrimeLines: cfg.Ingest.PrimeLines,
		FromStart:  cfg.Ingest.FromStart,
		Poll:       cfg.PollInterval(),
		BatchSize:  cfg.Ingest.BatchSize,
		Levels:     &cfg.LogLevels,
	}
}

// Batch is a group of new entries in arrival order
type Batch struct {
	Entries   []store.Entry
	Truncated []string // sources that shrank and were re-read from the start
}

// Empty reports whether the batch carries nothing
func (b Batch) Empty() bool {
	return len(b.Entries) == 0 && len(b.Truncated) == 0
}

// sourceWatcher tracks a single file source for the merger
type sourceWatcher struct {
	tailer  source.Tailer
	name    string
	enabled bool
}

// Merger tails several log files and turns their lines into entries with
// strictly increasing sequence numbers
type Merger struct {
	sources []*sourceWatcher
	parser  *logformat.Parser
	opts    Options
	tagged  bool // add the source field

	mu   sync.Mutex
	seq  uint64
	now  func() time.Time
	out  chan Batch
	log  zerolog.Logger
	once sync.Once
}

// NewMerger opens every path. Nothing is read until Prime or Run.
func NewMerger(opts Options, log zerolog.Logger) (*Merger, error) {
	if len(opts.Paths) == 0 {
		return nil, fmt.Errorf("no source files provided")
	}
	if opts.Poll <= 0 {
		opts.Poll = 250 * time.Millisecond
	}
	if opts.Levels == nil {
		opts.Levels = &config.DefaultConfig().LogLevels
	}

	names := displayNames(opts.Paths)
	var sources []*sourceWatcher
	for i, path := range opts.Paths {
		src, err := source.NewFileSource(path, i, opts.FromStart)
		if err != nil {
			for _, sw := range sources {
				sw.tailer.Close()
			}
			return nil, fmt.Errorf("failed to open source %s: %w", path, err)
		}
		src.Info().Name = names[i]
		sources = append(sources, &sourceWatcher{tailer: src, name: names[i], enabled: true})
	}

	return &Merger{
		sources: sources,
		parser:  logformat.NewParser(opts.Levels),
		opts:    opts,
		tagged:  len(sources) > 1,
		now:     time.Now,
		out:     make(chan Batch, 16),
		log:     log.With().Str("component", "ingest").Logger(),
	}, nil
}

// displayNames uses base names unless two files share one
func displayNames(paths []string) []string {
	counts := make(map[string]int)
	for _, p := range paths {
		counts[filepath.Base(p)]++
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
		if counts[names[i]] > 1 {
			names[i] = p
		}
	}
	return names
}

// Prime loads the last PrimeLines complete lines of each file. With
// FromStart set it reads each file whole instead.
func (m *Merger) Prime() Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b Batch
	for _, sw := range m.sources {
		var lines []source.Line
		var err error
		if m.opts.FromStart {
			var p source.Poll
			p, err = sw.tailer.Poll(0)
			lines = p.Lines
		} else {
			lines, err = sw.tailer.Prime(m.opts.PrimeLines)
		}
		if err != nil {
			m.log.Error().Err(err).Str("source", sw.name).Msg("prime failed")
		}
		b.Entries = m.appendLines(b.Entries, lines)
	}
	m.log.Debug().Int("entries", len(b.Entries)).Int("sources", len(m.sources)).Msg("primed")
	return b
}

// PollOnce reads whatever the enabled sources have written since the last call
func (m *Merger) PollOnce() Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b Batch
	for _, sw := range m.sources {
		if !sw.enabled {
			continue
		}
		p, err := sw.tailer.Poll(m.opts.BatchSize)
		if err != nil {
			m.log.Error().Err(err).Str("source", sw.name).Msg("poll failed")
		}
		if p.Truncated {
			m.log.Info().Str("source", sw.name).Msg("source truncated, reading from start")
			b.Truncated = append(b.Truncated, sw.name)
		}
		b.Entries = m.appendLines(b.Entries, p.Lines)
	}
	return b
}

func (m *Merger) appendLines(entries []store.Entry, lines []source.Line) []store.Entry {
	for _, line := range lines {
		if len(bytes.TrimSpace(line.Content)) == 0 {
			continue
		}
		entries = append(entries, m.entry(line))
	}
	return entries
}

func (m *Merger) entry(line source.Line) store.Entry {
	rec := m.parser.Parse(line.Content)
	m.seq++

	e := store.Entry{
		Sequence:  m.seq,
		Timestamp: rec.Time,
		Level:     toStoreLevel(rec.Level),
		Message:   rec.Message,
		Behavior:  rec.Behavior,
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	if m.tagged {
		e.Fields = append(e.Fields, store.Field{Key: store.SourceField, Value: line.Source.Name})
	}
	for _, f := range rec.Fields {
		e.Fields = append(e.Fields, store.Field{Key: f.Key, Value: f.Value})
	}
	return e
}

// toStoreLevel folds the detected level into the four display levels
func toStoreLevel(l logformat.Level) store.Level {
	switch l {
	case logformat.LevelTrace, logformat.LevelDebug:
		return store.LevelDebug
	case logformat.LevelWarn:
		return store.LevelWarn
	case logformat.LevelError, logformat.LevelFatal:
		return store.LevelError
	}
	return store.LevelInfo
}

// Batches delivers the entries found by Run
func (m *Merger) Batches() <-chan Batch {
	return m.out
}

// Run polls on a ticker until ctx is cancelled. It closes the channel
// returned by Batches when it stops.
func (m *Merger) Run(ctx context.Context) error {
	defer m.once.Do(func() { close(m.out) })

	ticker := time.NewTicker(m.opts.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			b := m.PollOnce()
			if b.Empty() {
				continue
			}
			select {
			case m.out <- b:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Names lists the display name of each source
func (m *Merger) Names() []string {
	names := make([]string, len(m.sources))
	for i, sw := range m.sources {
		names[i] = sw.name
	}
	return names
}

// SourceCount returns the number of source files
func (m *Merger) SourceCount() int {
	return len(m.sources)
}

// SetEnabled enables or disables a source by name. A disabled source is
// not polled, so its lines arrive once it is enabled again.
func (m *Merger) SetEnabled(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sw := range m.sources {
		if sw.name == name {
			sw.enabled = enabled
			return true
		}
	}
	return false
}

// Enabled reports whether the named source is polled
func (m *Merger) Enabled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sw := range m.sources {
		if sw.name == name {
			return sw.enabled
		}
	}
	return false
}

// Close releases every source. Run must have returned first.
func (m *Merger) Close() error {
	var errs []error
	for _, sw := range m.sources {
		if err := sw.tailer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
