package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sitecrew/sitesync/internal/domain"
	"github.com/sitecrew/sitesync/internal/provider"
	"github.com/sitecrew/sitesync/internal/storage"
)

// ErrSyncNotPermitted is returned when the acting employee lacks write
// access to the target calendar.
var ErrSyncNotPermitted = errors.New("employee may not enable sync on this calendar")

// EventService is the outbound half of the engine: it mirrors entity CRUD
// to the provider. Pushes are synchronous with respect to the entity
// mutation but never block it indefinitely. After the adapter's bounded
// retries the local write stands and sync stays pending until the next
// trigger reconciles it.
type EventService struct {
	storage *storage.Storage
	client  provider.Interface
	mapper  *Mapper
	access  *AccessService
}

func NewEventService(s *storage.Storage, client provider.Interface, mapper *Mapper, access *AccessService) *EventService {
	return &EventService{storage: s, client: client, mapper: mapper, access: access}
}

// AssignmentSpec describes the billable-work record created alongside an
// event when it represents assigned work.
type AssignmentSpec struct {
	AssigneeID  string
	StartDate   time.Time
	EndDate     *time.Time
	RatePerHour *float64
}

// CreateFromEntity maps the entity to a calendar event, persists it, and
// pushes it to the provider. A push failure leaves the event pending, not
// failed: the local create always stands.
func (s *EventService) CreateFromEntity(ctx context.Context, entity domain.Schedulable, calendarID, createdBy string, assignment *AssignmentSpec) (*domain.CalendarEvent, error) {
	if err := s.access.CheckCanSync(calendarID, createdBy); err != nil {
		return nil, err
	}

	ev, err := s.mapper.ToCalendarEvent(entity)
	if err != nil {
		return nil, fmt.Errorf("map entity: %w", err)
	}
	ev.CalendarID = calendarID
	ev.SyncEnabled = true
	ev.CreatedBy = createdBy

	if err := s.storage.CreateCalendarEvent(ev); err != nil {
		return nil, fmt.Errorf("create local event: %w", err)
	}

	if assignment != nil {
		a := &domain.CalendarAssignment{
			EntityType:  ev.EntityType,
			EntityID:    ev.EntityID,
			AssigneeID:  assignment.AssigneeID,
			CalendarID:  calendarID,
			StartDate:   assignment.StartDate,
			EndDate:     assignment.EndDate,
			RatePerHour: assignment.RatePerHour,
		}
		if err := s.storage.CreateAssignment(a); err != nil {
			return nil, fmt.Errorf("create assignment: %w", err)
		}
	}

	if err := s.Push(ctx, ev); err != nil {
		log.Printf("event: push of new %s/%s deferred: %v", ev.EntityType, ev.EntityID, err)
	}
	return ev, nil
}

// UpdateFromEntity re-maps the entity onto its existing mirror and pushes
// the change. Conflict errors (stale etag) propagate to the caller.
func (s *EventService) UpdateFromEntity(ctx context.Context, entity domain.Schedulable) (*domain.CalendarEvent, error) {
	ev, err := s.storage.GetEventByEntity(entity.SchedulableType(), entity.SchedulableID())
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("no calendar event for %s/%s", entity.SchedulableType(), entity.SchedulableID())
	}

	mapped, err := s.mapper.ToCalendarEvent(entity)
	if err != nil {
		return nil, fmt.Errorf("map entity: %w", err)
	}
	ev.Title = mapped.Title
	ev.Description = mapped.Description
	ev.Location = mapped.Location
	ev.StartTime = mapped.StartTime
	ev.EndTime = mapped.EndTime
	ev.AllDay = mapped.AllDay
	ev.AssigneeType = mapped.AssigneeType
	ev.AssigneeID = mapped.AssigneeID

	if err := s.storage.UpdateCalendarEvent(ev); err != nil {
		return nil, fmt.Errorf("update local event: %w", err)
	}

	if err := s.Push(ctx, ev); err != nil {
		if provider.IsConflict(err) {
			return ev, err
		}
		log.Printf("event: push of %s/%s deferred: %v", ev.EntityType, ev.EntityID, err)
	}
	return ev, nil
}

// DeleteEntity removes the mirror for a deleted entity, attempting the
// provider-side delete first. A provider copy that is already gone is fine.
func (s *EventService) DeleteEntity(ctx context.Context, entityType domain.EntityType, entityID string) error {
	ev, err := s.storage.GetEventByEntity(entityType, entityID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if ev == nil {
		return nil
	}

	if ev.Synced() && ev.SyncEnabled {
		if err := s.client.DeleteEvent(ctx, ev.CalendarID, ev.ProviderEventID); err != nil && !provider.IsNotFound(err) {
			log.Printf("event: provider delete of %s failed, removing locally anyway: %v", ev.ProviderEventID, err)
		}
	}

	if err := s.storage.DeleteAssignmentsByEntity(entityType, entityID); err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}
	return s.storage.DeleteCalendarEvent(ev.ID)
}

// Push sends one event to the provider: create when it has never landed,
// etag-guarded update otherwise. Retryable failures were already absorbed by
// the adapter; whatever reaches here is final for this attempt.
func (s *EventService) Push(ctx context.Context, ev *domain.CalendarEvent) error {
	if !ev.SyncEnabled {
		return nil
	}

	remote := &provider.Event{
		ID:          ev.ProviderEventID,
		Etag:        ev.Etag,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.StartTime,
		End:         ev.EndTime,
		AllDay:      ev.AllDay,
		EntityType:  string(ev.EntityType),
		EntityID:    ev.EntityID,
	}

	var pushed *provider.Event
	var err error
	if ev.ProviderEventID == "" {
		pushed, err = s.client.CreateEvent(ctx, ev.CalendarID, remote)
	} else {
		pushed, err = s.client.UpdateEvent(ctx, ev.CalendarID, remote)
	}
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.storage.MarkEventSynced(ev.ID, pushed.ID, pushed.Etag, now); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if err := s.storage.MarkAssignmentsSynced(ev.EntityType, ev.EntityID, pushed.ID, pushed.Etag); err != nil {
		return fmt.Errorf("mark assignments synced: %w", err)
	}
	ev.ProviderEventID = pushed.ID
	ev.Etag = pushed.Etag
	ev.LastSyncedAt = &now
	return nil
}

// Resync pushes every pending event for a calendar. Exposed for the manual
// resync action; also what a deferred push falls back on.
func (s *EventService) Resync(ctx context.Context, calendarID string) (pushed, failed int, err error) {
	events, err := s.storage.ListPendingSyncEvents(calendarID)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending events: %w", err)
	}
	for _, ev := range events {
		if err := s.Push(ctx, ev); err != nil {
			failed++
			log.Printf("event: resync push of %s/%s failed: %v", ev.EntityType, ev.EntityID, err)
			continue
		}
		pushed++
	}
	return pushed, failed, nil
}
