package models

import "time"

// TaskTemplate is a reusable blueprint for creating tasks.
type TaskTemplate struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Title         string    `json:"title"`
	Description   *string   `json:"description,omitempty"`
	Priority      Priority  `json:"priority,omitempty"`
	CategoryID    *string   `json:"category_id,omitempty"`
	DueOffsetDays *int      `json:"due_offset_days,omitempty"`
	SubTaskTitles []string  `json:"subtask_titles,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
