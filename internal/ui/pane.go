package ui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/TimelordUK/mtail/internal/backend"
	"github.com/TimelordUK/mtail/internal/config"
	"github.com/TimelordUK/mtail/internal/consolidate"
	"github.com/TimelordUK/mtail/internal/render"
	"github.com/TimelordUK/mtail/internal/slice"
	"github.com/TimelordUK/mtail/internal/store"
	"github.com/TimelordUK/mtail/internal/stream"
	"github.com/TimelordUK/mtail/internal/view"
)

// Pane is one live stream view with its own state
type Pane struct {
	stream   *stream.Renderer
	viewport *view.Viewport
	entries  *render.LogLevelRenderer
	config   *config.Config
	log      zerolog.Logger

	name string

	// Export state
	slicer  *slice.Slicer
	exports []*slice.Info

	// Filter state
	filterTerm string
	minLevel   store.Level
	levelSet   bool

	frame    stream.Frame
	rendered string
	rejected int
}

// NewPane creates a pane. accel may be nil to lay out on the reference
// engine only.
func NewPane(name string, cfg *config.Config, accel backend.Engine, log zerolog.Logger) *Pane {
	entries := render.NewLogLevelRenderer(cfg)
	return &Pane{
		stream:   stream.New(cfg.StreamConfig(), accel, nil, log),
		viewport: view.NewViewport(80, 24, entries),
		entries:  entries,
		config:   cfg,
		log:      log.With().Str("component", "pane").Logger(),
		name:     name,
		slicer:   slice.NewSlicer(),
	}
}

// SetSize sets the viewport size
func (p *Pane) SetSize(now time.Time, width, height int) {
	p.viewport.SetSize(width, height)
	p.stream.OnResize(now, float64(p.viewport.Height()))
}

// Append hands a batch from the merger to the stream
func (p *Pane) Append(now time.Time, b consolidate.Batch) {
	for _, name := range b.Truncated {
		p.log.Info().Str("source", name).Msg("source restarted")
	}
	if err := p.stream.Append(now, b.Entries...); err != nil {
		p.rejected++
		p.log.Warn().Err(err).Msg("entries dropped")
	}
}

// Update runs one frame and draws it. Drawn heights feed back into the
// layout for the next frame.
func (p *Pane) Update(now time.Time) {
	p.frame = p.stream.Frame(now)
	out, measured := p.viewport.Render(p.frame)
	for _, m := range measured {
		p.stream.Measure(m.Seq, float64(m.Height))
	}
	p.rendered = out
}

// Render returns the last drawn viewport
func (p *Pane) Render() string {
	return p.rendered
}

// Frame returns the last frame
func (p *Pane) Frame() stream.Frame {
	return p.frame
}

// ScrollBy scrolls by rows, negative toward older entries
func (p *Pane) ScrollBy(now time.Time, rows int) {
	p.stream.ScrollBy(now, float64(rows))
}

// PageDown scrolls down by one page
func (p *Pane) PageDown(now time.Time) {
	p.ScrollBy(now, max(p.viewport.Height()-1, 1))
}

// PageUp scrolls up by one page
func (p *Pane) PageUp(now time.Time) {
	p.ScrollBy(now, -max(p.viewport.Height()-1, 1))
}

// GotoTop scrolls to the oldest entry
func (p *Pane) GotoTop(now time.Time) {
	p.stream.OnScroll(now, 0)
}

// GotoBottom scrolls to the newest entry. Following resumes once the
// scroll settles there.
func (p *Pane) GotoBottom(now time.Time) {
	p.stream.OnScroll(now, math.MaxFloat64)
}

// IsFollowing returns whether the view tracks the newest entry
func (p *Pane) IsFollowing() bool {
	return p.stream.Follow().AutoFollow()
}

// ToggleFollowing toggles follow mode
func (p *Pane) ToggleFollowing(now time.Time) bool {
	p.stream.ToggleFollow(now)
	return p.IsFollowing()
}

// SetMinLevel shows entries at level and above; pressing the active level
// again shows everything
func (p *Pane) SetMinLevel(level store.Level) {
	if p.levelSet && p.minLevel == level {
		p.levelSet = false
		p.stream.View().SetLevelFilter(nil)
		return
	}
	p.minLevel, p.levelSet = level, true
	p.stream.View().SetLevelAndAbove(level)
}

// ToggleLevel shows or hides a single level, replacing any minimum level
func (p *Pane) ToggleLevel(level store.Level) {
	if p.levelSet {
		p.levelSet = false
		p.stream.View().SetLevelFilter(nil)
	}
	p.stream.View().ToggleLevel(level)
}

// MinLevel returns the active level filter
func (p *Pane) MinLevel() (store.Level, bool) {
	return p.minLevel, p.levelSet
}

// LevelLabel describes the level filter for the status bar
func (p *Pane) LevelLabel() string {
	if p.levelSet {
		return p.minLevel.String() + "+"
	}
	active := p.stream.View().ActiveLevels()
	var names []string
	for _, l := range store.Levels {
		if active[l] {
			names = append(names, l.String())
		}
	}
	return strings.Join(names, ",")
}

// FilterTerm returns the current filter term
func (p *Pane) FilterTerm() string {
	return p.filterTerm
}

// SetFilterTerm sets the text filter
func (p *Pane) SetFilterTerm(term string) {
	p.filterTerm = term
	p.stream.View().SetTextFilter(term)
}

// ClearFilter removes the text and level filters
func (p *Pane) ClearFilter() {
	p.filterTerm = ""
	p.levelSet = false
	p.stream.View().SetTextFilter("")
	p.stream.View().ClearFilter()
}

// Clear drops every entry; follow mode is kept
func (p *Pane) Clear() {
	p.stream.Clear()
	p.frame = stream.Frame{}
}

// ToggleFields shows or hides structured fields
func (p *Pane) ToggleFields() bool {
	p.entries.SetShowFields(!p.entries.ShowFields())
	return p.entries.ShowFields()
}

// Export writes the filtered entries to a file
func (p *Pane) Export() (*slice.Info, error) {
	info, err := p.slicer.SliceView(p.stream.View(), p.name)
	if err != nil {
		return nil, err
	}
	p.exports = append(p.exports, info)
	p.log.Info().Str("path", info.CachePath).Int("entries", info.Count).Msg("exported")
	return info, nil
}

// Exports lists the files written so far
func (p *Pane) Exports() []*slice.Info {
	return p.exports
}

// Apply installs a reloaded config
func (p *Pane) Apply(cfg *config.Config) {
	p.config = cfg
	p.entries.Apply(cfg)
	p.stream.Apply(cfg.StreamConfig())
}

// Rejected counts appends that carried out-of-order entries
func (p *Pane) Rejected() int {
	return p.rejected
}

// Name returns the display name
func (p *Pane) Name() string {
	return p.name
}

// Counts describes the visible and stored entry counts
func (p *Pane) Counts() string {
	f := p.frame
	if f.Count == f.Stored {
		return humanize.Comma(int64(f.Count))
	}
	return fmt.Sprintf("%s/%s", humanize.Comma(int64(f.Count)), humanize.Comma(int64(f.Stored)))
}

// BackendStats renders the selector counters, one operation per line
func (p *Pane) BackendStats() string {
	stats := p.stream.Selector().Stats()
	ops := make([]string, 0, len(stats))
	for op := range stats {
		ops = append(ops, string(op))
	}
	sort.Strings(ops)

	cfg := p.stream.Selector().Config()
	var b strings.Builder
	fmt.Fprintf(&b, "backend mode %s, failure limit %d, cooldown %s\n", cfg.Mode, cfg.FailureLimit, cfg.Cooldown)
	for _, name := range ops {
		s := stats[backend.Operation(name)]
		state := "ok"
		if s.Blacklisted {
			state = "blacklisted"
		}
		fmt.Fprintf(&b, "%-12s accel %s  ref %s  failures %d  skipped %d  sampled %d  mismatches %d  mean %s/%s  %s\n",
			name,
			humanize.Comma(int64(s.Accelerated)),
			humanize.Comma(int64(s.Reference)),
			s.Failures, s.Skipped, s.Sampled, s.Mismatches,
			s.MeanAccelerated(), s.MeanReference(),
			state)
	}
	return strings.TrimRight(b.String(), "\n")
}
