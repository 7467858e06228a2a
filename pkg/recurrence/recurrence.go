// Package recurrence computes repeat occurrences for tasks and expands
// templates into task payloads. Everything here is pure; callers supply
// the base time.
package recurrence

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mjs/focal/pkg/models"
)

// ErrEnded signals that the pattern's end date falls before the next
// computed occurrence, i.e. the recurrence has run out.
var ErrEnded = errors.New("recurrence ended")

// Next returns the occurrence following base under the given pattern.
//
// Weekly patterns may carry a weekday set, but it only matters for
// multi-occurrence expansion (not implemented); the single next
// occurrence is always base plus interval weeks.
func Next(base time.Time, p models.RecurrencePattern) (time.Time, error) {
	if !p.Type.Valid() {
		return time.Time{}, &models.ValidationError{Field: "recurrence.type", Reason: "unknown type"}
	}
	if p.Interval < 1 {
		return time.Time{}, &models.ValidationError{Field: "recurrence.interval", Reason: "must be at least 1"}
	}

	var next time.Time
	switch p.Type {
	case models.RecurrenceDaily:
		next = base.AddDate(0, 0, p.Interval)
	case models.RecurrenceWeekly:
		next = base.AddDate(0, 0, 7*p.Interval)
	case models.RecurrenceMonthly:
		next = addMonthsClamped(base, p.Interval)
	case models.RecurrenceYearly:
		next = addMonthsClamped(base, 12*p.Interval)
	}

	if p.EndDate != nil && next.After(*p.EndDate) {
		return time.Time{}, ErrEnded
	}
	return next, nil
}

// addMonthsClamped adds calendar months, clamping the day of month to the
// target month's length. time.AddDate would normalize Jan 31 + 1 month
// into March; we want the last day of February instead.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	target := time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysIn(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// TaskFromTemplate expands a template into a creation payload. The task
// has no id or timestamps yet; the repository assigns those. Subtasks get
// fresh ids so two expansions of the same template never collide.
func TaskFromTemplate(tpl *models.TaskTemplate, now time.Time) *models.Task {
	offset := 1
	if tpl.DueOffsetDays != nil {
		offset = *tpl.DueOffsetDays
	}
	due := now.AddDate(0, 0, offset)

	priority := tpl.Priority
	if !priority.Valid() {
		priority = models.PriorityMedium
	}

	t := &models.Task{
		Title:      tpl.Title,
		Priority:   priority,
		DueDate:    &due,
		CategoryID: tpl.CategoryID,
	}
	if tpl.Description != nil {
		desc := *tpl.Description
		t.Description = &desc
	}
	for _, title := range tpl.SubTaskTitles {
		t.SubTasks = append(t.SubTasks, models.SubTask{
			ID:        uuid.New().String(),
			Title:     title,
			CreatedAt: now,
		})
	}
	t.RecomputeProgress()
	return t
}
