package domain

import "time"

// CalendarAssignment is an auxiliary record created alongside a CalendarEvent
// when the event represents billable assigned work. It feeds the cost rollup
// and is never synchronized to the provider on its own.
type CalendarAssignment struct {
	ID              int64
	EntityType      EntityType
	EntityID        string
	AssigneeID      string
	CalendarID      string
	ProviderEventID string
	Etag            string
	StartDate       time.Time
	EndDate         *time.Time // nil = open-ended
	RatePerHour     *float64   // nil = unknown rate, not zero
	CreatedAt       time.Time
}

// Overlap clips the assignment's span to [from, to) and returns the covered
// range. ok is false when the spans do not intersect. An open-ended
// assignment runs through the end of the query range.
func (a *CalendarAssignment) Overlap(from, to time.Time) (start, end time.Time, ok bool) {
	start = a.StartDate
	if from.After(start) {
		start = from
	}
	end = to
	if a.EndDate != nil && a.EndDate.Before(to) {
		end = *a.EndDate
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// RollupSummary is the result of aggregating assignments for one entity.
type RollupSummary struct {
	EntityType  EntityType
	EntityID    string
	TotalHours  float64
	TotalCost   float64
	PerAssignee []AssigneeRollup
}

// AssigneeRollup is the per-assignee slice of a rollup. RateKnown
// distinguishes "zero dollars" from "unknown dollars".
type AssigneeRollup struct {
	AssigneeID string
	Hours      float64
	Cost       float64
	RateKnown  bool
}
