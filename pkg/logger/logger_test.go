package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "json", "")
	log.Info().Str("symbol", "BTCUSDT").Int("trades", 3).Msg("symbol done")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "BTCUSDT", line["symbol"])
	assert.Equal(t, float64(3), line["trades"])
	assert.Equal(t, "symbol done", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewWithWriter_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "console", "")
	log.Warn().Str("fold", "fold_0").Msg("no bars")
	assert.Contains(t, buf.String(), "no bars")
	assert.Contains(t, buf.String(), "fold_0")
}

func TestNew_FileAndLevel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "barsim.log")
	log, closer, err := New(Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	log.Info().Msg("dropped")
	log.Error().Msg("kept")
	require.NoError(t, closer.Close())
	assert.Error(t, closer.Close(), "the file is closed once")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNew_StderrCloserIsNoop(t *testing.T) {
	t.Parallel()

	_, closer, err := New(Config{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.NoError(t, closer.Close())
}

func TestNew_InvalidLevel(t *testing.T) {
	t.Parallel()

	_, closer, err := New(Config{Level: "loud"})
	assert.NoError(t, closer.Close())
	assert.ErrorContains(t, err, "invalid log level")
}
