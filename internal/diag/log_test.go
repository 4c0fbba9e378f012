package diag

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "WARN")
	log.Info().Msg("hidden")
	log.Warn().Str("operation", "locate").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "operation=locate")
}

func TestUnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "chatty")
	log.Debug().Msg("debug")
	log.Info().Msg("info")
	assert.NotContains(t, buf.String(), "debug")
	assert.Contains(t, buf.String(), "info")
}

func TestOpen(t *testing.T) {
	log, closeFn, err := Open("", "debug")
	require.NoError(t, err)
	log.Info().Msg("discarded")
	require.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "mtail.log")
	log, closeFn, err = Open(path, "debug")
	require.NoError(t, err)
	log.Debug().Msg("written")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written")

	_, _, err = Open(filepath.Join(t.TempDir(), "missing", "x.log"), "info")
	assert.Error(t, err)
}
