package models

import (
	"math"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Weight maps a priority to its sort rank. Unknown values rank below low.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type Task struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Description     *string            `json:"description,omitempty"`
	DueDate         *time.Time         `json:"due_date,omitempty"`
	Priority        Priority           `json:"priority"`
	Completed       bool               `json:"completed"`
	CategoryID      *string            `json:"category_id,omitempty"`
	SubTasks        []SubTask          `json:"subtasks,omitempty"`
	Progress        *int               `json:"progress,omitempty"`
	Recurrence      *RecurrencePattern `json:"recurrence,omitempty"`
	ReminderMinutes *int               `json:"reminder_minutes,omitempty"`
	Tags            []string           `json:"tags,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type SubTask struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// RecomputeProgress derives Progress from the subtask completion ratio.
// Tasks without subtasks have no progress value at all.
func (t *Task) RecomputeProgress() {
	if len(t.SubTasks) == 0 {
		t.Progress = nil
		return
	}
	done := 0
	for _, st := range t.SubTasks {
		if st.Completed {
			done++
		}
	}
	p := int(math.Round(100 * float64(done) / float64(len(t.SubTasks))))
	t.Progress = &p
}

// Clone returns a deep copy. The store hands out and keeps copies so
// callers can never mutate the cache behind its back.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Description = clonePtr(t.Description)
	c.DueDate = clonePtr(t.DueDate)
	c.CategoryID = clonePtr(t.CategoryID)
	c.Progress = clonePtr(t.Progress)
	c.ReminderMinutes = clonePtr(t.ReminderMinutes)
	if t.Recurrence != nil {
		r := t.Recurrence.Clone()
		c.Recurrence = &r
	}
	if t.SubTasks != nil {
		c.SubTasks = append([]SubTask(nil), t.SubTasks...)
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
