// Package pomodoro implements the focus-timer state machine. The engine
// has no timer of its own: an external scheduler calls Advance with the
// seconds that passed, which keeps every transition synchronously testable.
package pomodoro

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mjs/focal/pkg/models"
)

// Engine drives a single focus timer. Only one session can run at a time;
// Start while active is rejected rather than restarting, so sessions are
// never silently orphaned.
type Engine struct {
	mu  sync.Mutex
	cfg models.PomodoroConfig

	state       models.PomodoroState
	pausedPhase models.PomodoroPhase
	owedBreak   models.PomodoroPhase
	phaseStart  time.Time

	sessions []models.PomodoroSession

	now func() time.Time
}

func New(cfg models.PomodoroConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:   cfg,
		state: models.PomodoroState{Phase: models.PhaseIdle},
		now:   time.Now,
	}, nil
}

func (e *Engine) Config() models.PomodoroConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) State() models.PomodoroState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Sessions returns the recorded session log, oldest first.
func (e *Engine) Sessions() []models.PomodoroSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.PomodoroSession(nil), e.sessions...)
}

// SessionsFor returns recorded sessions bound to the given task.
func (e *Engine) SessionsFor(taskID string) []models.PomodoroSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.PomodoroSession
	for _, s := range e.sessions {
		if s.TaskID == taskID {
			out = append(out, s)
		}
	}
	return out
}

// Start begins a work session bound to taskID.
func (e *Engine) Start(taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != models.PhaseIdle {
		return models.ErrTimerActive
	}
	e.owedBreak = ""
	e.startWork(taskID)
	return nil
}

// StartBreak begins a break that a completed work session left owed when
// auto-start-breaks is off.
func (e *Engine) StartBreak() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != models.PhaseIdle || e.owedBreak == "" {
		return models.ErrInvalidTransition
	}
	e.enterBreak(e.owedBreak)
	e.owedBreak = ""
	return nil
}

// Pause freezes the countdown.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.Phase {
	case models.PhaseWorking, models.PhaseShortBreak, models.PhaseLongBreak:
		e.pausedPhase = e.state.Phase
		e.state.Phase = models.PhasePaused
		return nil
	default:
		return models.ErrInvalidTransition
	}
}

// Resume continues the phase that was paused, from the frozen remainder.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != models.PhasePaused {
		return models.ErrInvalidTransition
	}
	e.state.Phase = e.pausedPhase
	e.pausedPhase = ""
	return nil
}

// Advance consumes elapsed seconds of countdown. Reaching zero triggers
// the phase-completion transition; leftover seconds keep flowing into an
// auto-started next phase. Outside active phases it is a no-op.
func (e *Engine) Advance(elapsedSeconds int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for elapsedSeconds > 0 && e.active() {
		step := elapsedSeconds
		if step > e.state.RemainingSeconds {
			step = e.state.RemainingSeconds
		}
		e.state.RemainingSeconds -= step
		elapsedSeconds -= step
		if e.state.RemainingSeconds == 0 {
			e.completePhase()
		}
	}
}

// Stop aborts the timer from any non-idle state. With logPartial the cut
// session is recorded as interrupted.
func (e *Engine) Stop(logPartial bool, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase == models.PhaseIdle {
		return models.ErrInvalidTransition
	}

	if logPartial {
		phase := e.state.Phase
		if phase == models.PhasePaused {
			phase = e.pausedPhase
		}
		e.record(models.PomodoroSession{
			TaskID:          e.state.TaskID,
			StartedAt:       e.phaseStart,
			EndedAt:         e.now(),
			PlannedDuration: e.phaseSeconds(phase),
			Interrupted:     true,
			Reason:          reason,
		})
	}

	e.state.Phase = models.PhaseIdle
	e.state.RemainingSeconds = 0
	e.state.TaskID = ""
	e.pausedPhase = ""
	e.owedBreak = ""
	return nil
}

// SkipBreak abandons the running break and starts the next work session
// immediately, regardless of the auto-start policy.
func (e *Engine) SkipBreak() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.Phase {
	case models.PhaseShortBreak, models.PhaseLongBreak:
		e.startWork(e.state.TaskID)
		return nil
	default:
		return models.ErrInvalidTransition
	}
}

func (e *Engine) active() bool {
	switch e.state.Phase {
	case models.PhaseWorking, models.PhaseShortBreak, models.PhaseLongBreak:
		return true
	default:
		return false
	}
}

func (e *Engine) startWork(taskID string) {
	e.state.Phase = models.PhaseWorking
	e.state.RemainingSeconds = e.cfg.WorkMinutes * 60
	e.state.TaskID = taskID
	e.phaseStart = e.now()
}

func (e *Engine) enterBreak(phase models.PomodoroPhase) {
	e.state.Phase = phase
	if phase == models.PhaseLongBreak {
		e.state.RemainingSeconds = e.cfg.LongBreakMinutes * 60
		e.state.CompletedSessions = 0
	} else {
		e.state.RemainingSeconds = e.cfg.ShortBreakMinutes * 60
	}
	e.phaseStart = e.now()
}

func (e *Engine) completePhase() {
	switch e.state.Phase {
	case models.PhaseWorking:
		e.state.CompletedSessions++
		e.record(models.PomodoroSession{
			TaskID:          e.state.TaskID,
			StartedAt:       e.phaseStart,
			EndedAt:         e.now(),
			PlannedDuration: e.cfg.WorkMinutes * 60,
			Completed:       true,
		})

		next := models.PhaseShortBreak
		if e.state.CompletedSessions%e.cfg.SessionsUntilLongBreak == 0 {
			next = models.PhaseLongBreak
		}
		if e.cfg.AutoStartBreaks {
			e.enterBreak(next)
		} else {
			e.owedBreak = next
			e.state.Phase = models.PhaseIdle
			e.state.RemainingSeconds = 0
		}

	case models.PhaseShortBreak, models.PhaseLongBreak:
		if e.cfg.AutoStartNextSession {
			e.startWork(e.state.TaskID)
		} else {
			e.state.Phase = models.PhaseIdle
			e.state.RemainingSeconds = 0
		}
	}
}

func (e *Engine) record(s models.PomodoroSession) {
	s.ID = uuid.New().String()
	e.sessions = append(e.sessions, s)
}

func (e *Engine) phaseSeconds(phase models.PomodoroPhase) int {
	switch phase {
	case models.PhaseShortBreak:
		return e.cfg.ShortBreakMinutes * 60
	case models.PhaseLongBreak:
		return e.cfg.LongBreakMinutes * 60
	default:
		return e.cfg.WorkMinutes * 60
	}
}
