package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mjs/focal/pkg/models"
)

// CreateTemplate inserts a new task template. Names are unique.
func (db *DB) CreateTemplate(ctx context.Context, tpl *models.TaskTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	titles, err := encodeStringList(tpl.SubTaskTitles)
	if err != nil {
		return persistErr("failed to encode subtask titles", err)
	}

	var priority any
	if tpl.Priority != "" {
		priority = string(tpl.Priority)
	}

	query := `
		INSERT INTO templates (id, name, title, description, priority, category_id, due_offset_days, subtask_titles, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		tpl.ID, tpl.Name, tpl.Title, tpl.Description, priority, tpl.CategoryID,
		tpl.DueOffsetDays, titles, formatTime(tpl.CreatedAt), formatTime(tpl.UpdatedAt),
	)
	if err != nil {
		return persistErr("failed to create template", err)
	}

	db.triggerChange(ctx)
	return nil
}

// GetTemplate retrieves a template by id. Returns nil when unknown.
func (db *DB) GetTemplate(ctx context.Context, id string) (*models.TaskTemplate, error) {
	return db.getTemplate(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
}

// GetTemplateByName retrieves a template by its unique name.
func (db *DB) GetTemplateByName(ctx context.Context, name string) (*models.TaskTemplate, error) {
	return db.getTemplate(ctx, `SELECT `+templateColumns+` FROM templates WHERE name = ?`, name)
}

func (db *DB) getTemplate(ctx context.Context, query string, arg any) (*models.TaskTemplate, error) {
	row := db.QueryRowContext(ctx, query, arg)
	tpl, err := scanTemplate(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("failed to get template", err)
	}
	return tpl, nil
}

// ListTemplates returns all templates, newest first.
func (db *DB) ListTemplates(ctx context.Context) ([]*models.TaskTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM templates ORDER BY created_at DESC, name ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistErr("failed to list templates", err)
	}
	defer rows.Close()

	var templates []*models.TaskTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, persistErr("failed to scan template", err)
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows error", err)
	}
	return templates, nil
}

// DeleteTemplate removes a template. Returns false when the id is unknown.
func (db *DB) DeleteTemplate(ctx context.Context, id string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return false, persistErr("failed to delete template", err)
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

const templateColumns = `id, name, title, description, priority, category_id, due_offset_days, subtask_titles, created_at, updated_at`

func scanTemplate(scan func(dest ...any) error) (*models.TaskTemplate, error) {
	tpl := &models.TaskTemplate{}
	var priority *string
	var titles, createdAt, updatedAt string
	err := scan(
		&tpl.ID, &tpl.Name, &tpl.Title, &tpl.Description, &priority,
		&tpl.CategoryID, &tpl.DueOffsetDays, &titles, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if priority != nil {
		tpl.Priority = models.Priority(*priority)
	}
	if tpl.SubTaskTitles, err = decodeStringList(titles); err != nil {
		return nil, err
	}
	if tpl.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tpl.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return tpl, nil
}
