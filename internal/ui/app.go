package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/TimelordUK/mtail/internal/backend"
	"github.com/TimelordUK/mtail/internal/config"
	"github.com/TimelordUK/mtail/internal/consolidate"
	"github.com/TimelordUK/mtail/internal/store"
	"github.com/TimelordUK/mtail/internal/view"
)

// Mode represents the current UI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeFilter
	ModeStats
	ModeSources
)

// wheelRows is how far one mouse wheel notch scrolls
const wheelRows = 3

type (
	frameMsg     time.Time
	batchMsg     consolidate.Batch
	configMsg    *config.Config
	ingestDone   struct{}
	watchStopped struct{}
)

// keyMap holds the bindings built from config
type keyMap struct {
	Quit         key.Binding
	ScrollUp     key.Binding
	ScrollDown   key.Binding
	PageUp       key.Binding
	PageDown     key.Binding
	Top          key.Binding
	Bottom       key.Binding
	ToggleFollow key.Binding
	Filter       key.Binding
	ClearFilter  key.Binding
	Clear        key.Binding
	LevelDebug   key.Binding
	LevelInfo    key.Binding
	LevelWarn    key.Binding
	LevelError   key.Binding
	ToggleDebug  key.Binding
	ToggleInfo   key.Binding
	ToggleWarn   key.Binding
	ToggleError  key.Binding
	ToggleFields key.Binding
	Export       key.Binding
	Stats        key.Binding
	Sources      key.Binding
}

func newKeyMap(kb config.KeybindingConfig) keyMap {
	bind := func(keys []string, help string) key.Binding {
		label := ""
		if len(keys) > 0 {
			label = keys[0]
		}
		return key.NewBinding(key.WithKeys(keys...), key.WithHelp(label, help))
	}
	return keyMap{
		Quit:         bind(kb.Quit, "quit"),
		ScrollUp:     bind(kb.ScrollUp, "up"),
		ScrollDown:   bind(kb.ScrollDown, "down"),
		PageUp:       bind(kb.PageUp, "page up"),
		PageDown:     bind(kb.PageDown, "page down"),
		Top:          bind(kb.Top, "top"),
		Bottom:       bind(kb.Bottom, "bottom"),
		ToggleFollow: bind(kb.ToggleFollow, "follow"),
		Filter:       bind(kb.Filter, "filter"),
		ClearFilter:  bind(kb.ClearFilter, "clear filter"),
		Clear:        bind(kb.Clear, "clear"),
		LevelDebug:   bind(kb.LevelDebug, "debug+"),
		LevelInfo:    bind(kb.LevelInfo, "info+"),
		LevelWarn:    bind(kb.LevelWarn, "warn+"),
		LevelError:   bind(kb.LevelError, "error+"),
		ToggleDebug:  bind(kb.ToggleDebug, "debug"),
		ToggleInfo:   bind(kb.ToggleInfo, "info"),
		ToggleWarn:   bind(kb.ToggleWarn, "warn"),
		ToggleError:  bind(kb.ToggleError, "error"),
		ToggleFields: bind(kb.ToggleFields, "fields"),
		Export:       bind(kb.Export, "export"),
		Stats:        bind(kb.Stats, "backend"),
		Sources:      bind(kb.Sources, "sources"),
	}
}

// help lists the bindings shown in the help line
func (k keyMap) help() []key.Binding {
	return []key.Binding{k.ScrollDown, k.ScrollUp, k.Bottom, k.ToggleFollow, k.Filter,
		k.LevelWarn, k.ToggleFields, k.Export, k.Sources, k.Stats, k.Quit}
}

// ModelOptions configures a new model
type ModelOptions struct {
	Name    string
	Config  *config.Config
	Accel   backend.Engine      // nil lays out on the reference engine only
	Merger  *consolidate.Merger // nil when entries are appended directly
	Watcher *config.Watcher     // nil disables live config reload
	Now     func() time.Time    // defaults to time.Now
	Log     zerolog.Logger
}

// Model is the main application model
type Model struct {
	pane        *Pane
	merger      *consolidate.Merger
	watcher     *config.Watcher
	config      *config.Config
	keys        keyMap
	filterInput textinput.Model

	mode   Mode
	width  int
	height int

	styles statusStyles
	status string // transient message for the status bar
	now    func() time.Time
	log    zerolog.Logger
}

type statusStyles struct {
	bar       lipgloss.Style
	following lipgloss.Style
	manual    lipgloss.Style
	help      lipgloss.Style
}

func newStatusStyles(t config.ThemeConfig) statusStyles {
	return statusStyles{
		bar: lipgloss.NewStyle().
			Background(lipgloss.Color(t.StatusBar)).
			Foreground(lipgloss.Color(t.StatusBarText)),
		following: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Following)).Bold(true),
		manual:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Manual)).Bold(true),
		help:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// NewModel creates a new application model
func NewModel(opts ModelOptions) *Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "Filter..."
	ti.CharLimit = 256

	return &Model{
		pane:        NewPane(opts.Name, cfg, opts.Accel, opts.Log),
		merger:      opts.Merger,
		watcher:     opts.Watcher,
		config:      cfg,
		keys:        newKeyMap(cfg.Keybindings),
		filterInput: ti,
		mode:        ModeNormal,
		styles:      newStatusStyles(cfg.Theme),
		now:         now,
		log:         opts.Log.With().Str("component", "ui").Logger(),
	}
}

// Pane returns the stream pane
func (m *Model) Pane() *Pane {
	return m.pane
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tick()}
	if m.merger != nil {
		cmds = append(cmds, waitForBatch(m.merger.Batches()))
	}
	if m.watcher != nil {
		cmds = append(cmds, waitForConfig(m.watcher.Changes()))
	}
	return tea.Batch(cmds...)
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.config.FrameInterval(), func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func waitForBatch(ch <-chan consolidate.Batch) tea.Cmd {
	return func() tea.Msg {
		b, ok := <-ch
		if !ok {
			return ingestDone{}
		}
		return batchMsg(b)
	}
}

func waitForConfig(ch <-chan *config.Config) tea.Cmd {
	return func() tea.Msg {
		cfg, ok := <-ch
		if !ok {
			return watchStopped{}
		}
		return configMsg(cfg)
	}
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.pane.Update(time.Time(msg))
		return m, m.tick()

	case batchMsg:
		m.pane.Append(m.now(), consolidate.Batch(msg))
		if m.merger == nil {
			return m, nil
		}
		return m, waitForBatch(m.merger.Batches())

	case ingestDone:
		m.status = "ingest stopped"
		return m, nil

	case configMsg:
		m.applyConfig(msg)
		if m.watcher == nil {
			return m, nil
		}
		return m, waitForConfig(m.watcher.Changes())

	case watchStopped:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Reserve 2 lines for status bar and help
		m.pane.SetSize(m.now(), msg.Width, msg.Height-2)
		return m, nil
	}

	return m, nil
}

func (m *Model) applyConfig(cfg *config.Config) {
	m.config = cfg
	m.keys = newKeyMap(cfg.Keybindings)
	m.styles = newStatusStyles(cfg.Theme)
	m.pane.Apply(cfg)
	m.status = "config reloaded"
	m.log.Info().Msg("config applied")
}

func (m *Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionPress {
		return m, nil
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.pane.ScrollBy(m.now(), -wheelRows)
	case tea.MouseButtonWheelDown:
		m.pane.ScrollBy(m.now(), wheelRows)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == ModeFilter {
		return m.handleFilterKey(msg)
	}

	now := m.now()
	m.status = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case m.mode == ModeStats:
		// Any other key closes the stats view
		m.mode = ModeNormal

	case m.mode == ModeSources:
		if !m.toggleSource(msg.String()) {
			m.mode = ModeNormal
		}

	case key.Matches(msg, m.keys.ScrollDown):
		m.pane.ScrollBy(now, 1)
	case key.Matches(msg, m.keys.ScrollUp):
		m.pane.ScrollBy(now, -1)
	case key.Matches(msg, m.keys.PageDown):
		m.pane.PageDown(now)
	case key.Matches(msg, m.keys.PageUp):
		m.pane.PageUp(now)
	case key.Matches(msg, m.keys.Top):
		m.pane.GotoTop(now)
	case key.Matches(msg, m.keys.Bottom):
		m.pane.GotoBottom(now)

	case key.Matches(msg, m.keys.ToggleFollow):
		if m.pane.ToggleFollowing(now) {
			m.status = "following"
		} else {
			m.status = "follow off"
		}

	case key.Matches(msg, m.keys.Filter):
		m.mode = ModeFilter
		m.filterInput.SetValue(m.pane.FilterTerm())
		m.filterInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.ClearFilter):
		m.pane.ClearFilter()

	case key.Matches(msg, m.keys.Clear):
		m.pane.Clear()
		m.status = "cleared"

	case key.Matches(msg, m.keys.LevelDebug):
		m.pane.SetMinLevel(store.LevelDebug)
	case key.Matches(msg, m.keys.LevelInfo):
		m.pane.SetMinLevel(store.LevelInfo)
	case key.Matches(msg, m.keys.LevelWarn):
		m.pane.SetMinLevel(store.LevelWarn)
	case key.Matches(msg, m.keys.LevelError):
		m.pane.SetMinLevel(store.LevelError)

	case key.Matches(msg, m.keys.ToggleDebug):
		m.pane.ToggleLevel(store.LevelDebug)
	case key.Matches(msg, m.keys.ToggleInfo):
		m.pane.ToggleLevel(store.LevelInfo)
	case key.Matches(msg, m.keys.ToggleWarn):
		m.pane.ToggleLevel(store.LevelWarn)
	case key.Matches(msg, m.keys.ToggleError):
		m.pane.ToggleLevel(store.LevelError)

	case key.Matches(msg, m.keys.ToggleFields):
		m.pane.ToggleFields()

	case key.Matches(msg, m.keys.Export):
		info, err := m.pane.Export()
		if err != nil {
			m.status = fmt.Sprintf("export failed: %v", err)
		} else {
			m.status = fmt.Sprintf("exported %d entries to %s", info.Count, info.CachePath)
		}

	case key.Matches(msg, m.keys.Stats):
		m.mode = ModeStats

	case key.Matches(msg, m.keys.Sources):
		if m.merger == nil {
			m.status = "no sources"
		} else {
			m.mode = ModeSources
		}
	}

	return m, nil
}

// toggleSource flips the source numbered by k. It reports false when k
// names no source.
func (m *Model) toggleSource(k string) bool {
	n, err := strconv.Atoi(k)
	if err != nil || n < 1 || n > m.merger.SourceCount() {
		return false
	}
	name := m.merger.Names()[n-1]
	on := !m.merger.Enabled(name)
	m.merger.SetEnabled(name, on)
	if on {
		m.status = "resumed " + name
	} else {
		m.status = "paused " + name
	}
	m.log.Info().Str("source", name).Bool("enabled", on).Msg("source toggled")
	return true
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.pane.SetFilterTerm(m.filterInput.Value())
		m.mode = ModeNormal
		m.filterInput.Blur()
		return m, nil

	case "esc":
		m.mode = ModeNormal
		m.filterInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m *Model) View() string {
	var builder strings.Builder

	// Main content
	switch m.mode {
	case ModeStats:
		builder.WriteString(m.fill(strings.Split(m.pane.BackendStats(), "\n")))
	case ModeSources:
		builder.WriteString(m.fill(m.sourceLines()))
	default:
		builder.WriteString(m.pane.Render())
	}
	builder.WriteString("\n")

	// Status bar
	bar := m.styles.bar.Width(m.width)
	var status string
	switch m.mode {
	case ModeFilter:
		status = m.filterInput.View()
	default:
		status = m.statusLine()
	}
	builder.WriteString(bar.Render(status))
	builder.WriteString("\n")

	// Help line
	var help []string
	for _, b := range m.keys.help() {
		h := b.Help()
		help = append(help, h.Key+":"+h.Desc)
	}
	builder.WriteString(m.styles.help.Render(strings.Join(help, "  ")))

	return builder.String()
}

func (m *Model) statusLine() string {
	f := m.pane.Frame()

	state := m.styles.manual.Render("MANUAL")
	if f.AutoFollow() {
		state = m.styles.following.Render("FOLLOW")
	}

	parts := []string{
		" " + m.pane.Name(),
		state,
		m.pane.Counts() + " entries",
		fmt.Sprintf("%.0f%%", view.PercentScrolled(f)),
	}
	if levels := m.pane.LevelLabel(); levels != "" {
		parts = append(parts, levels)
	}
	if term := m.pane.FilterTerm(); term != "" {
		parts = append(parts, fmt.Sprintf("/%s", term))
	}
	if f.Pending {
		parts = append(parts, "layout…")
	}
	if n := m.pane.Rejected(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d rejected", n))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	return strings.Join(parts, "  ")
}

func (m *Model) sourceLines() []string {
	lines := []string{"sources: press a number to pause or resume, any other key to close"}
	for i, name := range m.merger.Names() {
		mark := "x"
		if !m.merger.Enabled(name) {
			mark = " "
		}
		lines = append(lines, fmt.Sprintf("%d [%s] %s", i+1, mark, name))
	}
	return lines
}

// fill pads or cuts lines to the content height
func (m *Model) fill(lines []string) string {
	rows := max(m.height-2, 0)
	for len(lines) < rows {
		lines = append(lines, "")
	}
	if len(lines) > rows {
		lines = lines[:rows]
	}
	return strings.Join(lines, "\n")
}

// Close cleans up resources
func (m *Model) Close() error {
	var err error
	if m.merger != nil {
		err = m.merger.Close()
	}
	if m.watcher != nil {
		if werr := m.watcher.Close(); err == nil {
			err = werr
		}
	}
	return err
}
