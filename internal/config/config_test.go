package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "focal.db", cfg.DBPath)
	assert.Empty(t, cfg.PostgresURL)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 25, cfg.Pomodoro.WorkMinutes)
	assert.Equal(t, 4, cfg.Pomodoro.SessionsUntilLongBreak)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FOCAL_DB_PATH", "/tmp/alt.db")
	t.Setenv("FOCAL_LOG_LEVEL", "debug")
	t.Setenv("FOCAL_WORK_MINUTES", "50")
	t.Setenv("FOCAL_AUTO_START_BREAKS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/alt.db", cfg.DBPath)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 50, cfg.Pomodoro.WorkMinutes)
	assert.True(t, cfg.Pomodoro.AutoStartBreaks)
	assert.Equal(t, 5, cfg.Pomodoro.ShortBreakMinutes)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("FOCAL_WORK_MINUTES", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidTimerConfig(t *testing.T) {
	t.Setenv("FOCAL_WORK_MINUTES", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("FOCAL_LOG_LEVEL", "shouty")
	_, err := Load()
	assert.Error(t, err)
}
