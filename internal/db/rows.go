package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mjs/focal/pkg/models"
)

// Timestamps and dates are stored as ISO-8601 text so rows stay readable
// with any SQLite tooling. All times are normalized to UTC on write, with
// fixed millisecond precision so string ordering matches time ordering.
const writeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(writeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// taskRow mirrors the tasks table; toTask converts it into the domain
// shape, keeping the loosely-typed column handling in one place.
type taskRow struct {
	id                 string
	title              string
	description        *string
	dueDate            *string
	priority           string
	completed          int
	categoryID         *string
	recurrenceType     *string
	recurrenceInterval *int
	recurrenceEndDate  *string
	recurrenceWeekdays *string
	reminderMinutes    *int
	createdAt          string
	updatedAt          string
}

func (r *taskRow) scanFields() []any {
	return []any{
		&r.id, &r.title, &r.description, &r.dueDate, &r.priority, &r.completed,
		&r.categoryID, &r.recurrenceType, &r.recurrenceInterval, &r.recurrenceEndDate,
		&r.recurrenceWeekdays, &r.reminderMinutes, &r.createdAt, &r.updatedAt,
	}
}

func (r *taskRow) toTask() (*models.Task, error) {
	t := &models.Task{
		ID:              r.id,
		Title:           r.title,
		Description:     r.description,
		Priority:        models.Priority(r.priority),
		Completed:       r.completed == 1,
		CategoryID:      r.categoryID,
		ReminderMinutes: r.reminderMinutes,
	}

	var err error
	if t.DueDate, err = parseTimePtr(r.dueDate); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(r.createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(r.updatedAt); err != nil {
		return nil, err
	}

	if r.recurrenceType != nil {
		p := models.RecurrencePattern{Type: models.RecurrenceType(*r.recurrenceType), Interval: 1}
		if r.recurrenceInterval != nil {
			p.Interval = *r.recurrenceInterval
		}
		if p.EndDate, err = parseTimePtr(r.recurrenceEndDate); err != nil {
			return nil, err
		}
		if r.recurrenceWeekdays != nil {
			if p.Weekdays, err = decodeIntList(*r.recurrenceWeekdays); err != nil {
				return nil, err
			}
		}
		t.Recurrence = &p
	}

	return t, nil
}

const taskColumns = `id, title, description, due_date, priority, completed,
       category_id, recurrence_type, recurrence_interval, recurrence_end_date,
       recurrence_weekdays, reminder_minutes, created_at, updated_at`

// taskOrder is the listing contract shared with the store's in-memory
// sort: due date ascending with NULLs last, then priority high to low,
// then newest first.
const taskOrder = `ORDER BY (due_date IS NULL) ASC, due_date ASC,
       CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC,
       created_at DESC`

func encodeIntList(v []int) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode int list: %w", err)
	}
	return string(b), nil
}

func decodeIntList(s string) ([]int, error) {
	var v []int
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to decode int list %q: %w", s, err)
	}
	return v, nil
}

func encodeStringList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode string list: %w", err)
	}
	return string(b), nil
}

func decodeStringList(s string) ([]string, error) {
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to decode string list %q: %w", s, err)
	}
	return v, nil
}
