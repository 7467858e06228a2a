// Package store owns the in-memory authoritative task cache, delegates
// persistence to a Repository, and hosts the focus timer. All mutations
// follow a propose/commit/rollback shape: the cache only diverges from
// the repository between a proposal and its acknowledgement, and rolls
// back when the write fails.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mjs/focal/pkg/models"
	"github.com/mjs/focal/pkg/pomodoro"
	"github.com/mjs/focal/pkg/recurrence"
)

// Repository is the persistence contract the store depends on. The
// SQLite adapter in internal/db and the Postgres adapter in
// internal/db/pg both satisfy it. Missing ids are reported as
// false/nil results, not errors.
type Repository interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (bool, error)
	DeleteTask(ctx context.Context, id string) (bool, error)
}

type Store struct {
	repo  Repository
	log   zerolog.Logger
	timer *pomodoro.Engine

	mu    sync.RWMutex
	tasks map[string]*models.Task

	locks keyedLocks
}

// New builds a store around the given repository. Each store instance is
// fully isolated; tests can run any number side by side.
func New(repo Repository, cfg models.PomodoroConfig, logger zerolog.Logger) (*Store, error) {
	timer, err := pomodoro.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{
		repo:  repo,
		log:   logger,
		timer: timer,
		tasks: make(map[string]*models.Task),
	}, nil
}

// Timer exposes the focus-timer engine. There is exactly one per store.
func (s *Store) Timer() *pomodoro.Engine { return s.timer }

// Sessions returns the recorded focus sessions for a task.
func (s *Store) Sessions(taskID string) []models.PomodoroSession {
	return s.timer.SessionsFor(taskID)
}

// Fetch loads tasks from the repository and replaces the cache
// wholesale. Rows that come back without an id get a synthetic one so
// the cache stays addressable; that is a last-resort repair for corrupt
// rows, not a substitute for id uniqueness at creation time.
func (s *Store) Fetch(ctx context.Context, filter models.TaskFilter) error {
	tasks, err := s.repo.ListTasks(ctx, filter)
	if err != nil {
		return err
	}

	fresh := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.New().String()
			s.log.Warn().Str("title", t.Title).Str("assigned_id", t.ID).
				Msg("task row loaded without id, assigned synthetic id")
		}
		t.RecomputeProgress()
		fresh[t.ID] = t
	}

	s.mu.Lock()
	s.tasks = fresh
	s.mu.Unlock()

	s.log.Debug().Int("count", len(fresh)).Msg("cache refreshed")
	return nil
}

// Task returns a copy of the cached task, or nil if unknown.
func (s *Store) Task(id string) *models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id].Clone()
}

// Tasks returns cached tasks matching the filter, sorted by the same
// contract the repository uses for listings.
func (s *Store) Tasks(filter models.TaskFilter) []*models.Task {
	s.mu.RLock()
	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if matchesFilter(t, filter) {
			out = append(out, t.Clone())
		}
	}
	s.mu.RUnlock()

	sortTasks(out)
	return out
}

// Add validates and persists a new task, then appends it to the cache.
// Nothing is cached until the repository acknowledges the write.
func (s *Store) Add(ctx context.Context, t *models.Task) (*models.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, &models.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if t.Recurrence != nil {
		if !t.Recurrence.Type.Valid() {
			return nil, &models.ValidationError{Field: "recurrence.type", Reason: "unknown type"}
		}
		if t.Recurrence.Interval < 1 {
			return nil, &models.ValidationError{Field: "recurrence.interval", Reason: "must be at least 1"}
		}
	}

	task := t.Clone()
	if !task.Priority.Valid() {
		task.Priority = models.PriorityMedium
	}
	task.Completed = false
	for i := range task.SubTasks {
		if task.SubTasks[i].ID == "" {
			task.SubTasks[i].ID = uuid.New().String()
		}
	}
	task.RecomputeProgress()

	if err := s.repo.CreateTask(ctx, task); err != nil {
		s.log.Error().Err(err).Str("title", task.Title).Msg("task create failed")
		return nil, err
	}

	s.mu.Lock()
	s.tasks[task.ID] = task.Clone()
	s.mu.Unlock()

	s.log.Debug().Str("task_id", task.ID).Msg("task added")
	return task, nil
}

// Update persists a full-task replace and swaps the cached entry on
// acknowledgement. An unknown id is a benign no-op reported as false.
func (s *Store) Update(ctx context.Context, t *models.Task) (bool, error) {
	if strings.TrimSpace(t.Title) == "" {
		return false, &models.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	unlock := s.locks.lock(t.ID)
	defer unlock()

	task := t.Clone()
	task.RecomputeProgress()
	patch := models.PatchFromTask(task)

	ok, err := s.repo.UpdateTask(ctx, t.ID, patch)
	if err != nil {
		s.log.Error().Err(err).Str("task_id", t.ID).Msg("task update failed")
		return false, err
	}
	if !ok {
		return false, nil
	}

	return true, s.reconcile(ctx, t.ID)
}

// Delete removes the task; the cache entry only goes away on confirmed
// success.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	ok, err := s.repo.DeleteTask(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("task_id", id).Msg("task delete failed")
		return false, err
	}
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()

	s.log.Debug().Str("task_id", id).Msg("task deleted")
	return true, nil
}

// ToggleCompletion flips the completed flag optimistically and rolls the
// cache back if persistence does not acknowledge the write. The per-id
// lock guarantees no newer confirmed write can land between the
// optimistic flip and its rollback.
func (s *Store) ToggleCompletion(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	s.mu.Lock()
	prev, exists := s.tasks[id]
	if !exists {
		s.mu.Unlock()
		return false, nil
	}
	proposed := prev.Clone()
	proposed.Completed = !prev.Completed
	s.tasks[id] = proposed
	s.mu.Unlock()

	rollback := func() {
		s.mu.Lock()
		s.tasks[id] = prev
		s.mu.Unlock()
	}

	completed := proposed.Completed
	ok, err := s.repo.UpdateTask(ctx, id, models.TaskPatch{Completed: &completed})
	if err != nil {
		rollback()
		s.log.Warn().Err(err).Str("task_id", id).Msg("toggle rolled back")
		return false, err
	}
	if !ok {
		rollback()
		return false, nil
	}

	return true, s.reconcile(ctx, id)
}

// AddSubtask appends a subtask via read-modify-write on the parent.
// Returns nil when the task is unknown.
func (s *Store) AddSubtask(ctx context.Context, taskID, title string) (*models.Task, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &models.ValidationError{Field: "subtask.title", Reason: "must not be empty"}
	}
	return s.mutateSubtasks(ctx, taskID, func(subs []models.SubTask) ([]models.SubTask, bool) {
		return append(subs, models.SubTask{
			ID:        uuid.New().String(),
			Title:     title,
			CreatedAt: time.Now().UTC(),
		}), true
	})
}

// ToggleSubtask flips one subtask's completed flag. Returns nil when
// either id is unknown.
func (s *Store) ToggleSubtask(ctx context.Context, taskID, subtaskID string) (*models.Task, error) {
	return s.mutateSubtasks(ctx, taskID, func(subs []models.SubTask) ([]models.SubTask, bool) {
		for i := range subs {
			if subs[i].ID == subtaskID {
				subs[i].Completed = !subs[i].Completed
				return subs, true
			}
		}
		return nil, false
	})
}

// DeleteSubtask removes one subtask. Returns nil when either id is
// unknown.
func (s *Store) DeleteSubtask(ctx context.Context, taskID, subtaskID string) (*models.Task, error) {
	return s.mutateSubtasks(ctx, taskID, func(subs []models.SubTask) ([]models.SubTask, bool) {
		for i := range subs {
			if subs[i].ID == subtaskID {
				return append(subs[:i], subs[i+1:]...), true
			}
		}
		return nil, false
	})
}

// mutateSubtasks runs a read-modify-write cycle over the parent task's
// subtask list. Progress is recomputed before persisting; it is never
// written as input.
func (s *Store) mutateSubtasks(ctx context.Context, taskID string, mutate func([]models.SubTask) ([]models.SubTask, bool)) (*models.Task, error) {
	unlock := s.locks.lock(taskID)
	defer unlock()

	s.mu.RLock()
	cached, exists := s.tasks[taskID]
	var working *models.Task
	if exists {
		working = cached.Clone()
	}
	s.mu.RUnlock()
	if !exists {
		return nil, nil
	}

	subs, changed := mutate(working.SubTasks)
	if !changed {
		return nil, nil
	}
	working.SubTasks = subs
	working.RecomputeProgress()

	patch := models.TaskPatch{SubTasks: &working.SubTasks}
	ok, err := s.repo.UpdateTask(ctx, taskID, patch)
	if err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("subtask update failed")
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if err := s.reconcile(ctx, taskID); err != nil {
		return nil, err
	}
	return s.Task(taskID), nil
}

// CreateTaskFromTemplate expands the template and adds the result as a
// new task with fresh identity.
func (s *Store) CreateTaskFromTemplate(ctx context.Context, tpl *models.TaskTemplate) (*models.Task, error) {
	task := recurrence.TaskFromTemplate(tpl, time.Now().UTC())
	return s.Add(ctx, task)
}

// NextOccurrence computes the task's next due date from its recurrence
// pattern. Returns recurrence.ErrEnded when the pattern has run out and
// a validation error when the task has no due date or pattern.
func (s *Store) NextOccurrence(id string) (time.Time, error) {
	t := s.Task(id)
	if t == nil {
		return time.Time{}, &models.ValidationError{Field: "id", Reason: "unknown task"}
	}
	if t.Recurrence == nil {
		return time.Time{}, &models.ValidationError{Field: "recurrence", Reason: "task does not repeat"}
	}
	if t.DueDate == nil {
		return time.Time{}, &models.ValidationError{Field: "due_date", Reason: "repeating task has no due date"}
	}
	return recurrence.Next(*t.DueDate, *t.Recurrence)
}

// reconcile re-reads one task from the repository so the cache reflects
// the acknowledged row, including its refreshed updated_at.
func (s *Store) reconcile(ctx context.Context, id string) error {
	fetched, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if fetched == nil {
		delete(s.tasks, id)
		return nil
	}
	fetched.RecomputeProgress()
	s.tasks[id] = fetched
	return nil
}

// keyedLocks serializes mutations per task id. Two logically concurrent
// writes to the same task resolve strictly one after the other, so a
// stale rollback can never clobber a newer acknowledged write.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
