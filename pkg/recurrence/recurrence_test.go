package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjs/focal/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func TestNext(t *testing.T) {
	t.Run("Daily", func(t *testing.T) {
		next, err := Next(date(2024, time.March, 10), models.RecurrencePattern{Type: models.RecurrenceDaily, Interval: 3})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.March, 13), next)
	})

	t.Run("Weekly", func(t *testing.T) {
		next, err := Next(date(2024, time.March, 10), models.RecurrencePattern{Type: models.RecurrenceWeekly, Interval: 2})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.March, 24), next)
	})

	t.Run("WeeklyIgnoresWeekdaySet", func(t *testing.T) {
		p := models.RecurrencePattern{Type: models.RecurrenceWeekly, Interval: 1, Weekdays: []int{1, 3, 5}}
		next, err := Next(date(2024, time.March, 10), p)
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.March, 17), next)
	})

	t.Run("MonthlyClampsToLeapFebruary", func(t *testing.T) {
		next, err := Next(date(2024, time.January, 31), models.RecurrencePattern{Type: models.RecurrenceMonthly, Interval: 1})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.February, 29), next)
	})

	t.Run("MonthlyClampsToShortFebruary", func(t *testing.T) {
		next, err := Next(date(2023, time.January, 31), models.RecurrencePattern{Type: models.RecurrenceMonthly, Interval: 1})
		require.NoError(t, err)
		assert.Equal(t, date(2023, time.February, 28), next)
	})

	t.Run("MonthlyKeepsShortDays", func(t *testing.T) {
		next, err := Next(date(2024, time.February, 29), models.RecurrencePattern{Type: models.RecurrenceMonthly, Interval: 1})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.March, 29), next)
	})

	t.Run("YearlyClampsLeapDay", func(t *testing.T) {
		next, err := Next(date(2024, time.February, 29), models.RecurrencePattern{Type: models.RecurrenceYearly, Interval: 1})
		require.NoError(t, err)
		assert.Equal(t, date(2025, time.February, 28), next)
	})

	t.Run("EndDateSignalsEnded", func(t *testing.T) {
		end := date(2024, time.March, 12)
		p := models.RecurrencePattern{Type: models.RecurrenceDaily, Interval: 5, EndDate: &end}
		_, err := Next(date(2024, time.March, 10), p)
		assert.ErrorIs(t, err, ErrEnded)
	})

	t.Run("EndDateOnBoundaryStillReturns", func(t *testing.T) {
		end := date(2024, time.March, 15)
		p := models.RecurrencePattern{Type: models.RecurrenceDaily, Interval: 5, EndDate: &end}
		next, err := Next(date(2024, time.March, 10), p)
		require.NoError(t, err)
		assert.Equal(t, end, next)
	})

	t.Run("InvalidInterval", func(t *testing.T) {
		_, err := Next(date(2024, time.March, 10), models.RecurrencePattern{Type: models.RecurrenceDaily, Interval: 0})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := Next(date(2024, time.March, 10), models.RecurrencePattern{Type: "fortnightly", Interval: 1})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("PreservesTimeOfDay", func(t *testing.T) {
		base := time.Date(2024, time.May, 31, 17, 30, 0, 0, time.UTC)
		next, err := Next(base, models.RecurrencePattern{Type: models.RecurrenceMonthly, Interval: 1})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.June, 30, 17, 30, 0, 0, time.UTC), next)
	})
}

func TestTaskFromTemplate(t *testing.T) {
	now := date(2024, time.March, 10)
	desc := "weekly shop"
	offset := 3
	tpl := &models.TaskTemplate{
		Name:          "groceries",
		Title:         "Buy groceries",
		Description:   &desc,
		Priority:      models.PriorityHigh,
		DueOffsetDays: &offset,
		SubTaskTitles: []string{"make list", "go shopping"},
	}

	task := TaskFromTemplate(tpl, now)

	assert.Equal(t, "Buy groceries", task.Title)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, now.AddDate(0, 0, 3), *task.DueDate)
	require.NotNil(t, task.Description)
	assert.Equal(t, desc, *task.Description)
	require.Len(t, task.SubTasks, 2)
	for _, st := range task.SubTasks {
		assert.NotEmpty(t, st.ID)
		assert.False(t, st.Completed)
		assert.Equal(t, now, st.CreatedAt)
	}
	require.NotNil(t, task.Progress)
	assert.Equal(t, 0, *task.Progress)
	assert.Empty(t, task.ID)
}

func TestTaskFromTemplateDefaults(t *testing.T) {
	now := date(2024, time.March, 10)
	task := TaskFromTemplate(&models.TaskTemplate{Name: "bare", Title: "Bare"}, now)

	assert.Equal(t, models.PriorityMedium, task.Priority)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, now.AddDate(0, 0, 1), *task.DueDate)
	assert.Nil(t, task.Progress)
}

func TestTaskFromTemplateDistinctSubtaskIDs(t *testing.T) {
	now := date(2024, time.March, 10)
	tpl := &models.TaskTemplate{Name: "r", Title: "Repeat", SubTaskTitles: []string{"a", "b"}}

	first := TaskFromTemplate(tpl, now)
	second := TaskFromTemplate(tpl, now)

	seen := map[string]bool{}
	for _, st := range append(first.SubTasks, second.SubTasks...) {
		assert.False(t, seen[st.ID], "duplicate subtask id %s", st.ID)
		seen[st.ID] = true
	}
}
