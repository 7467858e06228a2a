package models

import "time"

// TaskFilter narrows task listings. Nil fields match everything.
type TaskFilter struct {
	Completed  *bool
	Priority   *Priority
	CategoryID *string
}

// TaskPatch is a partial task update. Nil fields are left unchanged;
// the Clear flags null out their optional column explicitly, since a nil
// pointer alone cannot distinguish "absent" from "set to null".
type TaskPatch struct {
	Title           *string
	Description     *string
	DueDate         *time.Time
	Priority        *Priority
	Completed       *bool
	CategoryID      *string
	Recurrence      *RecurrencePattern
	ReminderMinutes *int
	SubTasks        *[]SubTask
	Tags            *[]string

	ClearDescription bool
	ClearDueDate     bool
	ClearCategory    bool
	ClearRecurrence  bool
	ClearReminder    bool
}

// PatchFromTask builds a patch carrying every mutable field of t, so that
// applying it is equivalent to a full-row replace.
func PatchFromTask(t *Task) TaskPatch {
	p := TaskPatch{
		Title:     &t.Title,
		Priority:  &t.Priority,
		Completed: &t.Completed,
	}
	if t.Description != nil {
		p.Description = t.Description
	} else {
		p.ClearDescription = true
	}
	if t.DueDate != nil {
		p.DueDate = t.DueDate
	} else {
		p.ClearDueDate = true
	}
	if t.CategoryID != nil {
		p.CategoryID = t.CategoryID
	} else {
		p.ClearCategory = true
	}
	if t.Recurrence != nil {
		p.Recurrence = t.Recurrence
	} else {
		p.ClearRecurrence = true
	}
	if t.ReminderMinutes != nil {
		p.ReminderMinutes = t.ReminderMinutes
	} else {
		p.ClearReminder = true
	}
	subs := append([]SubTask(nil), t.SubTasks...)
	p.SubTasks = &subs
	tags := append([]string(nil), t.Tags...)
	p.Tags = &tags
	return p
}
