package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitecrew/sitesync/internal/domain"
)

func chicago(t *testing.T) *time.Location {
	t.Helper()
	tz, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return tz
}

// Mapping an entity to an event and applying that event straight back must
// reproduce the entity unchanged, for every supported type.
func TestMapperRoundTrip(t *testing.T) {
	tz := chicago(t)
	m := NewMapper(tz)

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, tz)
	end := start.Add(3 * time.Hour)
	at := domain.AssigneeSubcontractor
	assignee := "sub-7"

	entities := []domain.Schedulable{
		&domain.WorkOrder{
			ID:             "wo-100",
			Title:          "Install drywall",
			Description:    "Second floor units",
			Location:       "412 Oak St",
			ScheduledStart: start,
			ScheduledEnd:   &end,
			AssigneeType:   &at,
			AssigneeID:     &assignee,
		},
		&domain.Project{
			ID:        "proj-9",
			Name:      "Oak Street remodel",
			Notes:     "Phase 2",
			StartDate: start,
			EndDate:   &end,
		},
		&domain.Milestone{
			ID:          "ms-1",
			ProjectID:   "proj-9",
			Title:       "Rough-in inspection",
			Description: "City inspector on site",
			DueDate:     start,
		},
		&domain.TimeEntry{
			ID:         "te-55",
			WorkDate:   time.Date(2026, 3, 10, 0, 0, 0, 0, tz),
			StartClock: "07:30",
			EndClock:   "16:00",
			Notes:      "Framing",
			EmployeeID: "emp-1",
		},
		&domain.AdHocItem{
			ID:          "adhoc-3",
			Title:       "Supplier visit",
			Description: "Lumber yard",
			Location:    "Yard B",
			StartTime:   start,
			EndTime:     &end,
		},
		&domain.ScheduleItem{
			ID:           "si-12",
			ProjectID:    "proj-9",
			Title:        "Crane booking",
			Location:     "412 Oak St",
			StartTime:    start,
			EndTime:      &end,
			AssigneeType: &at,
			AssigneeID:   &assignee,
		},
		&domain.ContactInteraction{
			ID:        "ci-4",
			ContactID: "con-8",
			Subject:   "Walkthrough with owner",
			Notes:     "Punch list review",
			OccursAt:  start,
			Duration:  time.Hour,
		},
	}

	for _, entity := range entities {
		entity := entity
		t.Run(string(entity.SchedulableType()), func(t *testing.T) {
			ev, err := m.ToCalendarEvent(entity)
			require.NoError(t, err)
			assert.Equal(t, entity.SchedulableType(), ev.EntityType)
			assert.Equal(t, entity.SchedulableID(), ev.EntityID)

			back, err := m.ApplyCalendarEvent(ev, entity)
			require.NoError(t, err)
			assert.Equal(t, entity, back, "apply after map must be a no-op")
		})
	}
}

func TestMilestoneMapsAllDay(t *testing.T) {
	m := NewMapper(time.UTC)
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	ev, err := m.ToCalendarEvent(&domain.Milestone{
		ID:      "ms-1",
		Title:   "Final inspection",
		DueDate: due,
	})
	require.NoError(t, err)

	assert.True(t, ev.AllDay)
	assert.True(t, ev.StartTime.Equal(due))
	assert.Nil(t, ev.EndTime)
}

func TestTimeEntryClockCombination(t *testing.T) {
	tz := chicago(t)
	m := NewMapper(tz)

	entry := &domain.TimeEntry{
		ID:         "te-1",
		WorkDate:   time.Date(2026, 3, 10, 0, 0, 0, 0, tz),
		StartClock: "07:30",
		EndClock:   "16:00",
		EmployeeID: "emp-1",
	}

	ev, err := m.ToCalendarEvent(entry)
	require.NoError(t, err)

	want := time.Date(2026, 3, 10, 7, 30, 0, 0, tz)
	assert.True(t, ev.StartTime.Equal(want), "start = %s, want %s", ev.StartTime, want)
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, "16:00", ev.EndTime.In(tz).Format("15:04"))
	require.NotNil(t, ev.AssigneeType)
	assert.Equal(t, domain.AssigneeEmployee, *ev.AssigneeType)

	// Bad clock strings fail rather than silently producing midnight.
	entry.StartClock = "7:3"
	_, err = m.ToCalendarEvent(entry)
	assert.Error(t, err)
}

func TestApplyRejectsWrongEntity(t *testing.T) {
	m := NewMapper(time.UTC)
	wo := &domain.WorkOrder{ID: "wo-1", Title: "A", ScheduledStart: time.Now()}

	ev, err := m.ToCalendarEvent(wo)
	require.NoError(t, err)

	_, err = m.ApplyCalendarEvent(ev, &domain.WorkOrder{ID: "wo-2"})
	assert.ErrorIs(t, err, ErrEntityMismatch)
}

func TestEntityFromEventOnlyAdHoc(t *testing.T) {
	m := NewMapper(time.UTC)
	start := time.Now()

	ev := &domain.CalendarEvent{
		Title:      "Crew meeting",
		StartTime:  start,
		EntityType: domain.EntityAdHoc,
		EntityID:   "adhoc-99",
	}
	entity, err := m.EntityFromEvent(ev)
	require.NoError(t, err)
	item, ok := entity.(*domain.AdHocItem)
	require.True(t, ok)
	assert.Equal(t, "adhoc-99", item.ID)
	assert.Equal(t, "Crew meeting", item.Title)

	// Every other entity type is push-only.
	for _, et := range []domain.EntityType{
		domain.EntityWorkOrder,
		domain.EntityProject,
		domain.EntityScheduleItem,
		domain.EntityTimeEntry,
		domain.EntityProjectMilestone,
		domain.EntityContactInteraction,
	} {
		ev.EntityType = et
		_, err := m.EntityFromEvent(ev)
		assert.True(t, errors.Is(err, ErrInboundNotSupported), "expected rejection for %s", et)
	}
}
