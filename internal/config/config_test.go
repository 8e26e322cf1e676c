package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fortuna/touchline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FETCH_MIN_INTERVAL", "")
	t.Setenv("BACKFILL_WORKERS", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, cfg.FetchMinInterval)
	assert.Equal(t, 2, cfg.BackfillWorkers)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.ContinueOnError)
}

func TestLoadOverridesAndErrors(t *testing.T) {
	t.Setenv("FETCH_MIN_INTERVAL", "250ms")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKFILL_CONTINUE_ON_ERROR", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.FetchMinInterval)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.ContinueOnError)
	require.Error(t, cfg.RequireDatabase())

	t.Setenv("BACKFILL_WORKERS", "0")
	_, err = Load()
	require.ErrorContains(t, err, "BACKFILL_WORKERS")

	t.Setenv("BACKFILL_WORKERS", "3")
	t.Setenv("FETCH_TIMEOUT", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "FETCH_TIMEOUT")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TOUCHLINE_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("TOUCHLINE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("TOUCHLINE_TEST_DOTENV"))

	LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "from-file", os.Getenv("TOUCHLINE_TEST_DOTENV"))
}
