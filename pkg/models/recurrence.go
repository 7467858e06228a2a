package models

import "time"

type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceYearly  RecurrenceType = "yearly"
)

func (rt RecurrenceType) Valid() bool {
	switch rt {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	default:
		return false
	}
}

// RecurrencePattern describes how a task repeats. Weekdays (0=Sunday..6)
// only applies to weekly patterns and only constrains multi-occurrence
// expansion; single next-occurrence computation ignores it.
type RecurrencePattern struct {
	Type     RecurrenceType `json:"type"`
	Interval int            `json:"interval"`
	EndDate  *time.Time     `json:"end_date,omitempty"`
	Weekdays []int          `json:"weekdays,omitempty"`
}

func (p RecurrencePattern) Clone() RecurrencePattern {
	c := p
	c.EndDate = clonePtr(p.EndDate)
	if p.Weekdays != nil {
		c.Weekdays = append([]int(nil), p.Weekdays...)
	}
	return c
}
