package models

import "time"

type PomodoroPhase string

const (
	PhaseIdle       PomodoroPhase = "idle"
	PhaseWorking    PomodoroPhase = "working"
	PhaseShortBreak PomodoroPhase = "short_break"
	PhaseLongBreak  PomodoroPhase = "long_break"
	PhasePaused     PomodoroPhase = "paused"
)

// PomodoroConfig holds user-tunable timer settings. Durations are minutes.
type PomodoroConfig struct {
	WorkMinutes            int  `json:"work_minutes"`
	ShortBreakMinutes      int  `json:"short_break_minutes"`
	LongBreakMinutes       int  `json:"long_break_minutes"`
	SessionsUntilLongBreak int  `json:"sessions_until_long_break"`
	AutoStartBreaks        bool `json:"auto_start_breaks"`
	AutoStartNextSession   bool `json:"auto_start_next_session"`
}

func DefaultPomodoroConfig() PomodoroConfig {
	return PomodoroConfig{
		WorkMinutes:            25,
		ShortBreakMinutes:      5,
		LongBreakMinutes:       15,
		SessionsUntilLongBreak: 4,
	}
}

func (c PomodoroConfig) Validate() error {
	if c.WorkMinutes <= 0 {
		return &ValidationError{Field: "work_minutes", Reason: "must be positive"}
	}
	if c.ShortBreakMinutes <= 0 {
		return &ValidationError{Field: "short_break_minutes", Reason: "must be positive"}
	}
	if c.LongBreakMinutes <= 0 {
		return &ValidationError{Field: "long_break_minutes", Reason: "must be positive"}
	}
	if c.SessionsUntilLongBreak <= 0 {
		return &ValidationError{Field: "sessions_until_long_break", Reason: "must be positive"}
	}
	return nil
}

// PomodoroState is the live timer state. It is never persisted.
type PomodoroState struct {
	Phase             PomodoroPhase `json:"phase"`
	RemainingSeconds  int           `json:"remaining_seconds"`
	TaskID            string        `json:"task_id,omitempty"`
	CompletedSessions int           `json:"completed_sessions"`
}

type PomodoroSession struct {
	ID              string    `json:"id"`
	TaskID          string    `json:"task_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	PlannedDuration int       `json:"planned_duration_seconds"`
	Completed       bool      `json:"completed"`
	Interrupted     bool      `json:"interrupted"`
	Reason          string    `json:"reason,omitempty"`
}
