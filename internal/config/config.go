package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TimelordUK/mtail/internal/backend"
	"github.com/TimelordUK/mtail/internal/follow"
	"github.com/TimelordUK/mtail/internal/position"
	"github.com/TimelordUK/mtail/internal/stream"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Theme       ThemeConfig      `toml:"theme"`
	LogLevels   LogLevelConfig   `toml:"log_levels"`
	Keybindings KeybindingConfig `toml:"keybindings"`
	Display     DisplayConfig    `toml:"display"`
	Stream      StreamConfig     `toml:"stream"`
	Backend     BackendConfig    `toml:"backend"`
	Follow      FollowConfig     `toml:"follow"`
	Ingest      IngestConfig     `toml:"ingest"`
}

// ThemeConfig defines color schemes
type ThemeConfig struct {
	Name          string         `toml:"name"`
	Sequence      string         `toml:"sequence"`
	Timestamp     string         `toml:"timestamp"`
	Fields        string         `toml:"fields"`
	Source        string         `toml:"source"`
	StatusBar     string         `toml:"status_bar"`
	StatusBarText string         `toml:"status_bar_text"`
	Following     string         `toml:"following"`
	Manual        string         `toml:"manual"`
	SearchMatch   string         `toml:"search_match"`
	Levels        LogLevelColors `toml:"levels"`
}

// LogLevelColors defines colors for each log level
type LogLevelColors struct {
	Debug string `toml:"debug"`
	Info  string `toml:"info"`
	Warn  string `toml:"warn"`
	Error string `toml:"error"`
}

// LogLevelConfig defines log level detection patterns for plain text lines.
// Trace patterns map to debug and fatal patterns to error.
type LogLevelConfig struct {
	TracePatterns []string `toml:"trace_patterns"`
	DebugPatterns []string `toml:"debug_patterns"`
	InfoPatterns  []string `toml:"info_patterns"`
	WarnPatterns  []string `toml:"warn_patterns"`
	ErrorPatterns []string `toml:"error_patterns"`
	FatalPatterns []string `toml:"fatal_patterns"`
}

// KeybindingConfig allows customizing keybindings
type KeybindingConfig struct {
	Quit         []string `toml:"quit"`
	ScrollUp     []string `toml:"scroll_up"`
	ScrollDown   []string `toml:"scroll_down"`
	PageUp       []string `toml:"page_up"`
	PageDown     []string `toml:"page_down"`
	Top          []string `toml:"top"`
	Bottom       []string `toml:"bottom"`
	ToggleFollow []string `toml:"toggle_follow"`
	Filter       []string `toml:"filter"`
	ClearFilter  []string `toml:"clear_filter"`
	Clear        []string `toml:"clear"`
	LevelDebug   []string `toml:"level_debug"`
	LevelInfo    []string `toml:"level_info"`
	LevelWarn    []string `toml:"level_warn"`
	LevelError   []string `toml:"level_error"`
	ToggleDebug  []string `toml:"toggle_debug"`
	ToggleInfo   []string `toml:"toggle_info"`
	ToggleWarn   []string `toml:"toggle_warn"`
	ToggleError  []string `toml:"toggle_error"`
	ToggleFields []string `toml:"toggle_fields"`
	Export       []string `toml:"export"`
	Stats        []string `toml:"stats"`
	Sources      []string `toml:"sources"`
}

// DisplayConfig holds display options
type DisplayConfig struct {
	ShowSequence    bool   `toml:"show_sequence"`
	ShowTimestamp   bool   `toml:"show_timestamp"`
	TimestampFormat string `toml:"timestamp_format"`
	ShowFields      bool   `toml:"show_fields"`
	HighlightFields bool   `toml:"highlight_fields"`
	SyntaxStyle     string `toml:"syntax_style"`
	WrapLines       bool   `toml:"wrap_lines"`
	TabWidth        int    `toml:"tab_width"`
	FrameMs         int    `toml:"frame_ms"`
	RenderCache     int    `toml:"render_cache"`
}

// StreamConfig sizes the stream and its layout
type StreamConfig struct {
	Capacity                int     `toml:"capacity"`
	VirtualizationThreshold int     `toml:"virtualization_threshold"`
	WindowBuffer            int     `toml:"window_buffer"`
	EntryGap                float64 `toml:"entry_gap"`
	DefaultHeight           float64 `toml:"default_height"`
	MinHeightDelta          float64 `toml:"min_height_delta"`
	RecalcChunk             int     `toml:"recalc_chunk"`
}

// BackendConfig controls the accelerated layout engine
type BackendConfig struct {
	Mode            string  `toml:"mode"` // auto, always or never
	RecalcThreshold int     `toml:"recalc_threshold"`
	LocateThreshold int     `toml:"locate_threshold"`
	FailureLimit    uint    `toml:"failure_limit"`
	CooldownMs      int     `toml:"cooldown_ms"`
	SampleEvery     int     `toml:"sample_every"`
	Tolerance       float64 `toml:"tolerance"`
}

// FollowConfig tunes when the view tracks the newest entry
type FollowConfig struct {
	SettleMs           int     `toml:"settle_ms"`
	LockMs             int     `toml:"lock_ms"`
	EdgeEpsilon        float64 `toml:"edge_epsilon"`
	DisengageTolerance float64 `toml:"disengage_tolerance"`
	DriftTolerance     float64 `toml:"drift_tolerance"`
	VelocityHalfLifeMs int     `toml:"velocity_half_life_ms"`
	HighRateCount      int     `toml:"high_rate_count"`
	HighRateWindowMs   int     `toml:"high_rate_window_ms"`
	ConfirmDelaysMs    []int   `toml:"confirm_delays_ms"`
}

// IngestConfig controls how files are tailed
type IngestConfig struct {
	PollMs     int  `toml:"poll_ms"`
	PrimeLines int  `toml:"prime_lines"`
	FromStart  bool `toml:"from_start"`
	BatchSize  int  `toml:"batch_size"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	sc := stream.DefaultConfig()
	return &Config{
		Theme: ThemeConfig{
			Name:          "subtle",
			Sequence:      "240", // Dark gray
			Timestamp:     "244", // Medium gray
			Fields:        "245",
			Source:        "109", // Muted teal
			StatusBar:     "236", // Darker gray background
			StatusBarText: "252", // Light gray text
			Following:     "71",  // Green
			Manual:        "214", // Orange
			SearchMatch:   "226", // Yellow
			Levels: LogLevelColors{
				Debug: "244", // Medium gray
				Info:  "250", // Light gray (default)
				Warn:  "214", // Orange
				Error: "167", // Soft red
			},
		},
		LogLevels: LogLevelConfig{
			TracePatterns: []string{"[TRC]", "[TRACE]", "TRACE", "TRC"},
			DebugPatterns: []string{"[DBG]", "[DEBUG]", "DEBUG", "DBG"},
			InfoPatterns:  []string{"[INF]", "[INFO]", "INFO", "INF"},
			WarnPatterns:  []string{"[WRN]", "[WARN]", "[WARNING]", "WARN", "WRN", "WARNING"},
			ErrorPatterns: []string{"[ERR]", "[ERROR]", "ERROR", "ERR"},
			FatalPatterns: []string{"[FTL]", "[FATAL]", "FATAL", "FTL", "[CRIT]", "CRITICAL"},
		},
		Keybindings: KeybindingConfig{
			Quit:         []string{"q", "ctrl+c"},
			ScrollUp:     []string{"k", "up"},
			ScrollDown:   []string{"j", "down"},
			PageUp:       []string{"b", "pgup", "ctrl+u"},
			PageDown:     []string{"pgdown", "ctrl+d", " "},
			Top:          []string{"g", "home"},
			Bottom:       []string{"G", "end"},
			ToggleFollow: []string{"F", "f"},
			Filter:       []string{"/"},
			ClearFilter:  []string{"esc"},
			Clear:        []string{"c"},
			LevelDebug:   []string{"1"},
			LevelInfo:    []string{"2"},
			LevelWarn:    []string{"3"},
			LevelError:   []string{"4"},
			ToggleDebug:  []string{"!"},
			ToggleInfo:   []string{"@"},
			ToggleWarn:   []string{"#"},
			ToggleError:  []string{"$"},
			ToggleFields: []string{"v"},
			Export:       []string{"s"},
			Stats:        []string{"B"},
			Sources:      []string{"S"},
		},
		Display: DisplayConfig{
			ShowSequence:    false,
			ShowTimestamp:   true,
			TimestampFormat: "15:04:05.000",
			ShowFields:      true,
			HighlightFields: true,
			SyntaxStyle:     "monokai",
			WrapLines:       true,
			TabWidth:        4,
			FrameMs:         16,
			RenderCache:     4096,
		},
		Stream: StreamConfig{
			Capacity:                sc.Capacity,
			VirtualizationThreshold: sc.Threshold,
			WindowBuffer:            sc.Buffer,
			EntryGap:                sc.Index.Gap,
			DefaultHeight:           sc.Index.DefaultHeight,
			MinHeightDelta:          sc.Index.MinDelta,
			RecalcChunk:             sc.Index.Chunk,
		},
		Backend: BackendConfig{
			Mode:            string(sc.Backend.Mode),
			RecalcThreshold: sc.Backend.RecalcThreshold,
			LocateThreshold: sc.Backend.LocateThreshold,
			FailureLimit:    sc.Backend.FailureLimit,
			CooldownMs:      int(sc.Backend.Cooldown / time.Millisecond),
			SampleEvery:     sc.Backend.SampleEvery,
			Tolerance:       sc.Backend.Tolerance,
		},
		Follow: FollowConfig{
			SettleMs:           int(sc.Follow.SettleTimeout / time.Millisecond),
			LockMs:             int(sc.Follow.LockDuration / time.Millisecond),
			EdgeEpsilon:        sc.Follow.EdgeEpsilon,
			DisengageTolerance: sc.Follow.DisengageTolerance,
			DriftTolerance:     sc.Follow.DriftTolerance,
			VelocityHalfLifeMs: int(sc.Follow.VelocityHalfLife / time.Millisecond),
			HighRateCount:      sc.Follow.HighRateCount,
			HighRateWindowMs:   int(sc.Follow.HighRateWindow / time.Millisecond),
			ConfirmDelaysMs:    []int{16, 50, 150},
		},
		Ingest: IngestConfig{
			PollMs:     250,
			PrimeLines: 1000,
			FromStart:  false,
			BatchSize:  512,
		},
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// StreamConfig converts the file sections into renderer tunables
func (c *Config) StreamConfig() stream.Config {
	delays := make([]time.Duration, len(c.Follow.ConfirmDelaysMs))
	for i, d := range c.Follow.ConfirmDelaysMs {
		delays[i] = ms(d)
	}
	return stream.Config{
		Capacity:  c.Stream.Capacity,
		Threshold: c.Stream.VirtualizationThreshold,
		Buffer:    c.Stream.WindowBuffer,
		Index: position.Config{
			Gap:           c.Stream.EntryGap,
			DefaultHeight: c.Stream.DefaultHeight,
			MinDelta:      c.Stream.MinHeightDelta,
			Chunk:         c.Stream.RecalcChunk,
		},
		Follow: follow.Config{
			SettleTimeout:      ms(c.Follow.SettleMs),
			LockDuration:       ms(c.Follow.LockMs),
			EdgeEpsilon:        c.Follow.EdgeEpsilon,
			DisengageTolerance: c.Follow.DisengageTolerance,
			DriftTolerance:     c.Follow.DriftTolerance,
			VelocityHalfLife:   ms(c.Follow.VelocityHalfLifeMs),
			HighRateCount:      c.Follow.HighRateCount,
			HighRateWindow:     ms(c.Follow.HighRateWindowMs),
			ConfirmDelays:      delays,
		},
		Backend: backend.Config{
			Mode:            backend.ParseMode(c.Backend.Mode),
			RecalcThreshold: c.Backend.RecalcThreshold,
			LocateThreshold: c.Backend.LocateThreshold,
			FailureLimit:    c.Backend.FailureLimit,
			Cooldown:        ms(c.Backend.CooldownMs),
			SampleEvery:     c.Backend.SampleEvery,
			Tolerance:       c.Backend.Tolerance,
		},
	}
}

// FrameInterval is the time between frame ticks
func (c *Config) FrameInterval() time.Duration {
	if c.Display.FrameMs <= 0 {
		return 16 * time.Millisecond
	}
	return ms(c.Display.FrameMs)
}

// PollInterval is the time between file size checks
func (c *Config) PollInterval() time.Duration {
	if c.Ingest.PollMs <= 0 {
		return 250 * time.Millisecond
	}
	return ms(c.Ingest.PollMs)
}

// Load loads config from path, or the default location when path is empty,
// falling back to defaults when the file does not exist
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = getConfigPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save saves config to path, or the default location when path is empty
func Save(cfg *Config, path string) error {
	if path == "" {
		path = getConfigPath()
	}
	if path == "" {
		return nil
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// getConfigPath returns the config file path
func getConfigPath() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mtail", "config.toml")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "mtail", "config.toml")
}

// GetConfigPath exports the config path for user reference
func GetConfigPath() string {
	return getConfigPath()
}
