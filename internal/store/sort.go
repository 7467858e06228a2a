package store

import (
	"sort"

	"github.com/mjs/focal/pkg/models"
)

// sortTasks orders tasks by due date ascending with missing due dates
// last, then priority high to low, then newest created first. This must
// stay in lockstep with the repository's SQL ordering so freshly fetched
// and locally filtered views agree.
func sortTasks(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]

		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && b.DueDate != nil:
			if !a.DueDate.Equal(*b.DueDate) {
				return a.DueDate.Before(*b.DueDate)
			}
		}

		if a.Priority.Weight() != b.Priority.Weight() {
			return a.Priority.Weight() > b.Priority.Weight()
		}

		return a.CreatedAt.After(b.CreatedAt)
	})
}

func matchesFilter(t *models.Task, f models.TaskFilter) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *f.CategoryID) {
		return false
	}
	return true
}
