// Package pgrepo is the PostgreSQL-backed task repository. It satisfies
// the same contract as the SQLite adapter in internal/db, for
// deployments where several clients share one task list.
package pgrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mjs/focal/pkg/models"
)

type Repo struct {
	pool *pgxpool.Pool
}

// New connects to connString and verifies the connection.
func New(ctx context.Context, connString string) (*Repo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repo{pool: pool}, nil
}

func NewFromPool(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureSchema creates the tables if they don't exist.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id                  TEXT PRIMARY KEY,
			title               TEXT NOT NULL,
			description         TEXT,
			due_date            TIMESTAMPTZ,
			priority            TEXT NOT NULL DEFAULT 'medium',
			completed           BOOLEAN NOT NULL DEFAULT FALSE,
			category_id         TEXT,
			recurrence_type     TEXT,
			recurrence_interval INTEGER,
			recurrence_end_date TIMESTAMPTZ,
			recurrence_weekdays INTEGER[],
			reminder_minutes    INTEGER,
			tags                TEXT[] NOT NULL DEFAULT '{}',
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS subtasks (
			id         TEXT PRIMARY KEY,
			task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			title      TEXT NOT NULL,
			completed  BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create subtasks table: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_subtasks_task ON subtasks(task_id)`)
	if err != nil {
		return fmt.Errorf("create subtask index: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed)`)
	return err
}

const taskColumns = `id, title, description, due_date, priority, completed, category_id,
	recurrence_type, recurrence_interval, recurrence_end_date, recurrence_weekdays,
	reminder_minutes, tags, created_at, updated_at`

// Same listing contract as the SQLite adapter: due date ascending with
// NULLs last, then priority weight descending, then newest first.
const taskOrder = `ORDER BY due_date ASC NULLS LAST,
	CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC,
	created_at DESC`

func (r *Repo) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	t.CreatedAt = now
	t.UpdatedAt = now

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return persistErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var recType *string
	var recInterval *int
	var recEnd *time.Time
	var recWeekdays []int32
	if t.Recurrence != nil {
		s := string(t.Recurrence.Type)
		recType = &s
		recInterval = &t.Recurrence.Interval
		recEnd = t.Recurrence.EndDate
		recWeekdays = toInt32s(t.Recurrence.Weekdays)
	}

	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tasks (
			id, title, description, due_date, priority, completed, category_id,
			recurrence_type, recurrence_interval, recurrence_end_date,
			recurrence_weekdays, reminder_minutes, tags, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.Title, t.Description, t.DueDate, string(t.Priority), t.Completed,
		t.CategoryID, recType, recInterval, recEnd, recWeekdays, t.ReminderMinutes,
		tags, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return persistErr("failed to create task", err)
	}

	for i := range t.SubTasks {
		st := &t.SubTasks[i]
		if st.ID == "" {
			st.ID = uuid.New().String()
		}
		if st.CreatedAt.IsZero() {
			st.CreatedAt = now
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO subtasks (id, task_id, title, completed, created_at) VALUES ($1, $2, $3, $4, $5)`,
			st.ID, t.ID, st.Title, st.Completed, st.CreatedAt); err != nil {
			return persistErr("failed to insert subtask", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return persistErr("failed to commit task", err)
	}

	t.RecomputeProgress()
	return nil
}

func (r *Repo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("failed to get task", err)
	}
	if err := r.attachSubTasks(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repo) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE TRUE`
	args := []any{}

	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		query += fmt.Sprintf(" AND completed = $%d", len(args))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}

	query += " " + taskOrder

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("failed to list tasks", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, persistErr("failed to scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows error", err)
	}

	for _, t := range tasks {
		if err := r.attachSubTasks(ctx, t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (r *Repo) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (bool, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	sets := []string{"updated_at = $1"}
	args := []any{now}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	switch {
	case patch.Description != nil:
		add("description", *patch.Description)
	case patch.ClearDescription:
		sets = append(sets, "description = NULL")
	}
	switch {
	case patch.DueDate != nil:
		add("due_date", *patch.DueDate)
	case patch.ClearDueDate:
		sets = append(sets, "due_date = NULL")
	}
	if patch.Priority != nil {
		add("priority", string(*patch.Priority))
	}
	if patch.Completed != nil {
		add("completed", *patch.Completed)
	}
	switch {
	case patch.CategoryID != nil:
		add("category_id", *patch.CategoryID)
	case patch.ClearCategory:
		sets = append(sets, "category_id = NULL")
	}
	switch {
	case patch.Recurrence != nil:
		add("recurrence_type", string(patch.Recurrence.Type))
		add("recurrence_interval", patch.Recurrence.Interval)
		add("recurrence_end_date", patch.Recurrence.EndDate)
		add("recurrence_weekdays", toInt32s(patch.Recurrence.Weekdays))
	case patch.ClearRecurrence:
		sets = append(sets, "recurrence_type = NULL", "recurrence_interval = NULL",
			"recurrence_end_date = NULL", "recurrence_weekdays = NULL")
	}
	switch {
	case patch.ReminderMinutes != nil:
		add("reminder_minutes", *patch.ReminderMinutes)
	case patch.ClearReminder:
		sets = append(sets, "reminder_minutes = NULL")
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		add("tags", tags)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, persistErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, persistErr("failed to update task", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if patch.SubTasks != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM subtasks WHERE task_id = $1`, id); err != nil {
			return false, persistErr("failed to clear subtasks", err)
		}
		for i := range *patch.SubTasks {
			st := &(*patch.SubTasks)[i]
			if st.ID == "" {
				st.ID = uuid.New().String()
			}
			if st.CreatedAt.IsZero() {
				st.CreatedAt = now
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO subtasks (id, task_id, title, completed, created_at) VALUES ($1, $2, $3, $4, $5)`,
				st.ID, id, st.Title, st.Completed, st.CreatedAt); err != nil {
				return false, persistErr("failed to insert subtask", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, persistErr("failed to commit update", err)
	}
	return true, nil
}

func (r *Repo) DeleteTask(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return false, persistErr("failed to delete task", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) attachSubTasks(ctx context.Context, t *models.Task) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, completed, created_at
		FROM subtasks
		WHERE task_id = $1
		ORDER BY created_at ASC, id ASC`, t.ID)
	if err != nil {
		return persistErr("failed to load subtasks", err)
	}
	defer rows.Close()

	var subs []models.SubTask
	for rows.Next() {
		var st models.SubTask
		if err := rows.Scan(&st.ID, &st.Title, &st.Completed, &st.CreatedAt); err != nil {
			return persistErr("failed to scan subtask", err)
		}
		subs = append(subs, st)
	}
	if err := rows.Err(); err != nil {
		return persistErr("rows error", err)
	}

	t.SubTasks = subs
	t.RecomputeProgress()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var priority string
	var recType *string
	var recInterval *int
	var recEnd *time.Time
	var recWeekdays []int32
	var tags []string

	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.DueDate, &priority,
		&t.Completed, &t.CategoryID, &recType, &recInterval, &recEnd,
		&recWeekdays, &t.ReminderMinutes, &tags, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Priority = models.Priority(priority)
	if recType != nil {
		t.Recurrence = &models.RecurrencePattern{
			Type:     models.RecurrenceType(*recType),
			EndDate:  recEnd,
			Weekdays: toInts(recWeekdays),
		}
		if recInterval != nil {
			t.Recurrence.Interval = *recInterval
		}
	}
	if len(tags) > 0 {
		sort.Strings(tags)
		t.Tags = tags
	}
	return &t, nil
}

func persistErr(op string, err error) error {
	return &models.PersistenceError{Op: op, Err: err}
}

func toInt32s(in []int) []int32 {
	if in == nil {
		return nil
	}
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func toInts(in []int32) []int {
	if in == nil {
		return nil
	}
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
