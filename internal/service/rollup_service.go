package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/sitecrew/sitesync/internal/domain"
	"github.com/sitecrew/sitesync/internal/storage"
)

// DefaultWorkdayHours converts assignment days into billable hours when no
// override is configured.
const DefaultWorkdayHours = 8.0

// RollupService aggregates assignment records into labor-hour and cost
// totals for an entity over a date range.
type RollupService struct {
	storage      *storage.Storage
	workdayHours float64
}

func NewRollupService(s *storage.Storage, workdayHours float64) *RollupService {
	if workdayHours <= 0 {
		workdayHours = DefaultWorkdayHours
	}
	return &RollupService{storage: s, workdayHours: workdayHours}
}

// Rollup sums hours and cost for the entity's assignments clipped to
// [from, to). Assignments with an unknown rate contribute hours but no
// cost, and their assignee rows carry RateKnown=false so callers can tell
// "free" from "unpriced".
func (s *RollupService) Rollup(entityType domain.EntityType, entityID string, from, to time.Time) (*domain.RollupSummary, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("rollup range [%s, %s) is empty", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	assignments, err := s.storage.ListAssignmentsOverlapping(entityType, entityID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	summary := &domain.RollupSummary{EntityType: entityType, EntityID: entityID}
	perAssignee := make(map[string]*domain.AssigneeRollup)

	for _, a := range assignments {
		start, end, ok := a.Overlap(from, to)
		if !ok {
			continue
		}
		days := end.Sub(start).Hours() / 24
		hours := days * s.workdayHours

		row, found := perAssignee[a.AssigneeID]
		if !found {
			row = &domain.AssigneeRollup{AssigneeID: a.AssigneeID, RateKnown: true}
			perAssignee[a.AssigneeID] = row
		}
		row.Hours += hours
		if a.RatePerHour != nil {
			row.Cost += hours * *a.RatePerHour
		} else {
			row.RateKnown = false
		}
		summary.TotalHours += hours
	}

	ids := make([]string, 0, len(perAssignee))
	for id := range perAssignee {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		row := perAssignee[id]
		summary.PerAssignee = append(summary.PerAssignee, *row)
		summary.TotalCost += row.Cost
	}
	return summary, nil
}
