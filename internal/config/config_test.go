package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TimelordUK/mtail/internal/backend"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[stream]
capacity = 500
entry_gap = 1.0

[backend]
mode = "never"
cooldown_ms = 1000

[follow]
settle_ms = 200
confirm_delays_ms = [5, 10]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	sc := cfg.StreamConfig()
	assert.Equal(t, 500, sc.Capacity)
	assert.Equal(t, 1.0, sc.Index.Gap)
	assert.Equal(t, backend.ModeNever, sc.Backend.Mode)
	assert.Equal(t, time.Second, sc.Backend.Cooldown)
	assert.Equal(t, 200*time.Millisecond, sc.Follow.SettleTimeout)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}, sc.Follow.ConfirmDelays)

	// Untouched sections keep their defaults
	assert.Equal(t, DefaultConfig().Keybindings, cfg.Keybindings)
}

func TestLoadRejectsBadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[stream\ncapacity = "), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultsRoundTripThroughStreamConfig(t *testing.T) {
	sc := DefaultConfig().StreamConfig()
	assert.Equal(t, backend.DefaultConfig(), sc.Backend)
	assert.Equal(t, 16*time.Millisecond, DefaultConfig().FrameInterval())
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := DefaultConfig()
	cfg.Stream.Capacity = 42
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Stream.Capacity)
}

func TestConfigPathHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/mtail/config.toml", GetConfigPath())
}

func TestWatcherDeliversReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[stream]\ncapacity = 1\n"), 0644))

	w, err := NewWatcher(path, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[stream]\ncapacity = 7\n"), 0644))

	// The truncating write can be seen before the content lands
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg, ok := <-w.Changes():
			require.True(t, ok)
			if cfg.Stream.Capacity == 7 {
				return
			}
		case <-deadline:
			t.Fatal("no reload delivered")
		}
	}
}
