package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/sitecrew/sitesync/internal/domain"
)

// ErrInboundNotSupported is returned when an inbound provider change targets
// an entity type that is push-only and can never be created from the
// provider side.
var ErrInboundNotSupported = errors.New("entity type cannot be created from an inbound calendar change")

// ErrEntityMismatch is returned when an event is applied to an entity other
// than the one it mirrors.
var ErrEntityMismatch = errors.New("calendar event belongs to a different entity")

// Mapper translates internal scheduling entities to and from the unified
// CalendarEvent representation. Pure transformation; persistence belongs to
// the caller.
type Mapper struct {
	tz *time.Location
}

func NewMapper(tz *time.Location) *Mapper {
	if tz == nil {
		tz = time.UTC
	}
	return &Mapper{tz: tz}
}

// ToCalendarEvent builds the calendar representation of an entity. The
// caller fills in CalendarID, SyncEnabled and audit fields before persisting.
func (m *Mapper) ToCalendarEvent(entity domain.Schedulable) (*domain.CalendarEvent, error) {
	ev := &domain.CalendarEvent{
		EntityType: entity.SchedulableType(),
		EntityID:   entity.SchedulableID(),
	}

	switch e := entity.(type) {
	case *domain.WorkOrder:
		ev.Title = e.Title
		ev.Description = e.Description
		ev.Location = e.Location
		ev.StartTime = e.ScheduledStart
		ev.EndTime = e.ScheduledEnd
		ev.AssigneeType = e.AssigneeType
		ev.AssigneeID = e.AssigneeID

	case *domain.Project:
		ev.Title = e.Name
		ev.Description = e.Notes
		ev.StartTime = e.StartDate
		ev.EndTime = e.EndDate
		ev.AllDay = true

	case *domain.Milestone:
		// Milestones render as all-day markers on their due date.
		ev.Title = e.Title
		ev.Description = e.Description
		ev.StartTime = e.DueDate
		ev.AllDay = true

	case *domain.TimeEntry:
		start, err := combineClock(e.WorkDate, e.StartClock, m.tz)
		if err != nil {
			return nil, fmt.Errorf("time entry %s start: %w", e.ID, err)
		}
		ev.StartTime = start
		if e.EndClock != "" {
			end, err := combineClock(e.WorkDate, e.EndClock, m.tz)
			if err != nil {
				return nil, fmt.Errorf("time entry %s end: %w", e.ID, err)
			}
			ev.EndTime = &end
		}
		ev.Title = "Time entry"
		ev.Description = e.Notes
		at := domain.AssigneeEmployee
		ev.AssigneeType = &at
		ev.AssigneeID = &e.EmployeeID

	case *domain.AdHocItem:
		ev.Title = e.Title
		ev.Description = e.Description
		ev.Location = e.Location
		ev.StartTime = e.StartTime
		ev.EndTime = e.EndTime
		ev.AllDay = e.AllDay

	case *domain.ScheduleItem:
		ev.Title = e.Title
		ev.Location = e.Location
		ev.StartTime = e.StartTime
		ev.EndTime = e.EndTime
		ev.AssigneeType = e.AssigneeType
		ev.AssigneeID = e.AssigneeID

	case *domain.ContactInteraction:
		ev.Title = e.Subject
		ev.Description = e.Notes
		ev.StartTime = e.OccursAt
		if e.Duration > 0 {
			end := e.OccursAt.Add(e.Duration)
			ev.EndTime = &end
		}
		at := domain.AssigneeContact
		ev.AssigneeType = &at
		ev.AssigneeID = &e.ContactID

	default:
		return nil, fmt.Errorf("unsupported entity type %T", entity)
	}

	return ev, nil
}

// ApplyCalendarEvent writes an event's fields back onto the entity it
// mirrors, returning an updated copy. Applying an unchanged round-tripped
// event is a no-op. The event must belong to the entity.
func (m *Mapper) ApplyCalendarEvent(ev *domain.CalendarEvent, entity domain.Schedulable) (domain.Schedulable, error) {
	if ev.EntityType != entity.SchedulableType() || ev.EntityID != entity.SchedulableID() {
		return nil, ErrEntityMismatch
	}

	switch e := entity.(type) {
	case *domain.WorkOrder:
		out := *e
		out.Title = ev.Title
		out.Description = ev.Description
		out.Location = ev.Location
		out.ScheduledStart = ev.StartTime
		out.ScheduledEnd = ev.EndTime
		out.AssigneeType = ev.AssigneeType
		out.AssigneeID = ev.AssigneeID
		return &out, nil

	case *domain.Project:
		out := *e
		out.Name = ev.Title
		out.Notes = ev.Description
		out.StartDate = ev.StartTime
		out.EndDate = ev.EndTime
		return &out, nil

	case *domain.Milestone:
		out := *e
		out.Title = ev.Title
		out.Description = ev.Description
		out.DueDate = ev.StartTime
		return &out, nil

	case *domain.TimeEntry:
		out := *e
		local := ev.StartTime.In(m.tz)
		out.WorkDate = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.tz)
		out.StartClock = local.Format("15:04")
		if ev.EndTime != nil {
			out.EndClock = ev.EndTime.In(m.tz).Format("15:04")
		} else {
			out.EndClock = ""
		}
		out.Notes = ev.Description
		return &out, nil

	case *domain.AdHocItem:
		out := *e
		out.Title = ev.Title
		out.Description = ev.Description
		out.Location = ev.Location
		out.StartTime = ev.StartTime
		out.EndTime = ev.EndTime
		out.AllDay = ev.AllDay
		return &out, nil

	case *domain.ScheduleItem:
		out := *e
		out.Title = ev.Title
		out.Location = ev.Location
		out.StartTime = ev.StartTime
		out.EndTime = ev.EndTime
		out.AssigneeType = ev.AssigneeType
		out.AssigneeID = ev.AssigneeID
		return &out, nil

	case *domain.ContactInteraction:
		out := *e
		out.Subject = ev.Title
		out.Notes = ev.Description
		out.OccursAt = ev.StartTime
		if ev.EndTime != nil {
			out.Duration = ev.EndTime.Sub(ev.StartTime)
		} else {
			out.Duration = 0
		}
		return &out, nil
	}

	return nil, fmt.Errorf("unsupported entity type %T", entity)
}

// EntityFromEvent creates a fresh entity for a provider-originated event
// with no local mirror. Only ad-hoc items may be born on the provider side;
// events claiming any other entity type are rejected rather than silently
// dropped.
func (m *Mapper) EntityFromEvent(ev *domain.CalendarEvent) (domain.Schedulable, error) {
	if ev.EntityType != domain.EntityAdHoc {
		return nil, fmt.Errorf("%w: %s", ErrInboundNotSupported, ev.EntityType)
	}
	return &domain.AdHocItem{
		ID:          ev.EntityID,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		StartTime:   ev.StartTime,
		EndTime:     ev.EndTime,
		AllDay:      ev.AllDay,
	}, nil
}

// combineClock merges a work date with an "HH:MM" clock time.
func combineClock(date time.Time, clock string, tz *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, tz), nil
}
