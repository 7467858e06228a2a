// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/mjs/focal/pkg/models"
)

type Config struct {
	// DBPath is the SQLite database file. ":memory:" is accepted.
	DBPath string
	// PostgresURL, when set, selects the Postgres repository instead of
	// SQLite.
	PostgresURL string
	// BackupPath, when set, enables JSONL auto-backup after every write.
	BackupPath string
	LogLevel   zerolog.Level
	Pomodoro   models.PomodoroConfig
}

// Load reads ./.env if present, then the process environment. Missing
// variables fall back to defaults; malformed values are errors.
func Load() (*Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:      envOr("FOCAL_DB_PATH", "focal.db"),
		PostgresURL: os.Getenv("FOCAL_POSTGRES_URL"),
		BackupPath:  os.Getenv("FOCAL_BACKUP_PATH"),
		Pomodoro:    models.DefaultPomodoroConfig(),
	}

	level, err := zerolog.ParseLevel(envOr("FOCAL_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("parse FOCAL_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if err := overrideInt("FOCAL_WORK_MINUTES", &cfg.Pomodoro.WorkMinutes); err != nil {
		return nil, err
	}
	if err := overrideInt("FOCAL_SHORT_BREAK_MINUTES", &cfg.Pomodoro.ShortBreakMinutes); err != nil {
		return nil, err
	}
	if err := overrideInt("FOCAL_LONG_BREAK_MINUTES", &cfg.Pomodoro.LongBreakMinutes); err != nil {
		return nil, err
	}
	if err := overrideInt("FOCAL_SESSIONS_UNTIL_LONG_BREAK", &cfg.Pomodoro.SessionsUntilLongBreak); err != nil {
		return nil, err
	}
	if err := overrideBool("FOCAL_AUTO_START_BREAKS", &cfg.Pomodoro.AutoStartBreaks); err != nil {
		return nil, err
	}
	if err := overrideBool("FOCAL_AUTO_START_NEXT_SESSION", &cfg.Pomodoro.AutoStartNextSession); err != nil {
		return nil, err
	}

	if err := cfg.Pomodoro.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func overrideInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func overrideBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = b
	return nil
}
