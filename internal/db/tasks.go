package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mjs/focal/pkg/models"
)

func persistErr(op string, err error) error {
	return &models.PersistenceError{Op: op, Err: err}
}

// CreateTask inserts a new task together with its subtasks and tag links.
// If t.ID is empty, a new UUID is generated; created/updated timestamps
// are both set to now. No business validation happens here.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	t.CreatedAt = now
	t.UpdatedAt = now

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var recType, recEnd, recWeekdays any
	var recInterval any
	if t.Recurrence != nil {
		recType = string(t.Recurrence.Type)
		recInterval = t.Recurrence.Interval
		recEnd = formatTimePtr(t.Recurrence.EndDate)
		if t.Recurrence.Weekdays != nil {
			s, err := encodeIntList(t.Recurrence.Weekdays)
			if err != nil {
				return persistErr("failed to encode recurrence weekdays", err)
			}
			recWeekdays = s
		}
	}

	query := `
		INSERT INTO tasks (
			id, title, description, due_date, priority, completed, category_id,
			recurrence_type, recurrence_interval, recurrence_end_date,
			recurrence_weekdays, reminder_minutes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, formatTimePtr(t.DueDate), string(t.Priority),
		boolToInt(t.Completed), t.CategoryID, recType, recInterval, recEnd,
		recWeekdays, t.ReminderMinutes, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
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
		if err := insertSubTask(ctx, tx, t.ID, st); err != nil {
			return err
		}
	}

	if err := replaceTags(ctx, tx, t.ID, t.Tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistErr("failed to commit task", err)
	}

	t.RecomputeProgress()
	db.triggerChange(ctx)
	return nil
}

// GetTask retrieves a task by its ID, with subtasks and tags attached.
// Returns nil without error when the id is unknown.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	var r taskRow
	err := db.QueryRowContext(ctx, query, id).Scan(r.scanFields()...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("failed to get task", err)
	}

	t, err := r.toTask()
	if err != nil {
		return nil, persistErr("failed to map task row", err)
	}
	if err := db.attachChildren(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, ordered by due date
// ascending (NULLs last), priority descending, then creation time
// descending. The ordering is a contract shared with the store's
// cache-local sort.
func (db *DB) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}

	if filter.Completed != nil {
		query += " AND completed = ?"
		args = append(args, boolToInt(*filter.Completed))
	}
	if filter.Priority != nil {
		query += " AND priority = ?"
		args = append(args, string(*filter.Priority))
	}
	if filter.CategoryID != nil {
		query += " AND category_id = ?"
		args = append(args, *filter.CategoryID)
	}

	query += " " + taskOrder

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("failed to list tasks", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var r taskRow
		if err := rows.Scan(r.scanFields()...); err != nil {
			return nil, persistErr("failed to scan task", err)
		}
		t, err := r.toTask()
		if err != nil {
			return nil, persistErr("failed to map task row", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows error", err)
	}

	for _, t := range tasks {
		if err := db.attachChildren(ctx, t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// UpdateTask applies a partial update. Only supplied fields change;
// updated_at is always refreshed. Returns false without error when the
// id is unknown.
func (db *DB) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (bool, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(now)}

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	switch {
	case patch.Description != nil:
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	case patch.ClearDescription:
		sets = append(sets, "description = NULL")
	}
	switch {
	case patch.DueDate != nil:
		sets = append(sets, "due_date = ?")
		args = append(args, formatTime(*patch.DueDate))
	case patch.ClearDueDate:
		sets = append(sets, "due_date = NULL")
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*patch.Priority))
	}
	if patch.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, boolToInt(*patch.Completed))
	}
	switch {
	case patch.CategoryID != nil:
		sets = append(sets, "category_id = ?")
		args = append(args, *patch.CategoryID)
	case patch.ClearCategory:
		sets = append(sets, "category_id = NULL")
	}
	switch {
	case patch.Recurrence != nil:
		sets = append(sets, "recurrence_type = ?", "recurrence_interval = ?", "recurrence_end_date = ?")
		args = append(args, string(patch.Recurrence.Type), patch.Recurrence.Interval, formatTimePtr(patch.Recurrence.EndDate))
		if patch.Recurrence.Weekdays != nil {
			s, err := encodeIntList(patch.Recurrence.Weekdays)
			if err != nil {
				return false, persistErr("failed to encode recurrence weekdays", err)
			}
			sets = append(sets, "recurrence_weekdays = ?")
			args = append(args, s)
		} else {
			sets = append(sets, "recurrence_weekdays = NULL")
		}
	case patch.ClearRecurrence:
		sets = append(sets, "recurrence_type = NULL", "recurrence_interval = NULL",
			"recurrence_end_date = NULL", "recurrence_weekdays = NULL")
	}
	switch {
	case patch.ReminderMinutes != nil:
		sets = append(sets, "reminder_minutes = ?")
		args = append(args, *patch.ReminderMinutes)
	case patch.ClearReminder:
		sets = append(sets, "reminder_minutes = NULL")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, persistErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	query := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, persistErr("failed to update task", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("failed to get rows affected", err)
	}
	if affected == 0 {
		return false, nil
	}

	if patch.SubTasks != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subtasks WHERE task_id = ?`, id); err != nil {
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
			if err := insertSubTask(ctx, tx, id, st); err != nil {
				return false, err
			}
		}
	}

	if patch.Tags != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ?`, id); err != nil {
			return false, persistErr("failed to clear tag links", err)
		}
		if err := replaceTags(ctx, tx, id, *patch.Tags); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, persistErr("failed to commit update", err)
	}

	db.triggerChange(ctx)
	return true, nil
}

// DeleteTask removes a task; subtasks and tag links cascade. Returns
// false without error when the id is unknown, so deletes stay idempotent.
func (db *DB) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, persistErr("failed to delete task", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("failed to get rows affected", err)
	}
	if affected == 0 {
		return false, nil
	}

	db.triggerChange(ctx)
	return true, nil
}

func (db *DB) attachChildren(ctx context.Context, t *models.Task) error {
	subs, err := loadSubTasks(ctx, db.DB, t.ID)
	if err != nil {
		return err
	}
	t.SubTasks = subs
	t.RecomputeProgress()

	tags, err := loadTags(ctx, db.DB, t.ID)
	if err != nil {
		return err
	}
	t.Tags = tags
	return nil
}

func insertSubTask(ctx context.Context, exec executor, taskID string, st *models.SubTask) error {
	query := `INSERT INTO subtasks (id, task_id, title, completed, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := exec.ExecContext(ctx, query, st.ID, taskID, st.Title, boolToInt(st.Completed), formatTime(st.CreatedAt))
	if err != nil {
		return persistErr("failed to insert subtask", err)
	}
	return nil
}

func loadSubTasks(ctx context.Context, exec executor, taskID string) ([]models.SubTask, error) {
	query := `
		SELECT id, title, completed, created_at
		FROM subtasks
		WHERE task_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := exec.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, persistErr("failed to load subtasks", err)
	}
	defer rows.Close()

	var subs []models.SubTask
	for rows.Next() {
		var st models.SubTask
		var completed int
		var createdAt string
		if err := rows.Scan(&st.ID, &st.Title, &completed, &createdAt); err != nil {
			return nil, persistErr("failed to scan subtask", err)
		}
		st.Completed = completed == 1
		if st.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, persistErr("failed to map subtask row", err)
		}
		subs = append(subs, st)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows error", err)
	}
	return subs, nil
}

func replaceTags(ctx context.Context, exec executor, taskID string, names []string) error {
	for _, name := range names {
		tagID, err := ensureTag(ctx, exec, name)
		if err != nil {
			return err
		}
		_, err = exec.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_tags (task_id, tag_id) VALUES (?, ?)`, taskID, tagID)
		if err != nil {
			return persistErr("failed to link tag", err)
		}
	}
	return nil
}

func ensureTag(ctx context.Context, exec executor, name string) (string, error) {
	var id string
	err := exec.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", persistErr("failed to look up tag", err)
	}

	id = uuid.New().String()
	if _, err := exec.ExecContext(ctx, `INSERT INTO tags (id, name) VALUES (?, ?)`, id, name); err != nil {
		return "", persistErr("failed to create tag", err)
	}
	return id, nil
}

func loadTags(ctx context.Context, exec executor, taskID string) ([]string, error) {
	query := `
		SELECT tg.name
		FROM tags tg
		JOIN task_tags tt ON tt.tag_id = tg.id
		WHERE tt.task_id = ?
		ORDER BY tg.name ASC
	`
	rows, err := exec.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, persistErr("failed to load tags", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, persistErr("failed to scan tag", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows error", err)
	}
	return names, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
