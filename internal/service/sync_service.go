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

// SyncService pulls provider-side changes into local storage. Pulls are
// idempotent: they always resolve "what changed" from the stored cursor,
// never from notification content, so re-delivered or overlapping webhooks
// converge on the same state.
type SyncService struct {
	storage *storage.Storage
	client  provider.Interface
	mapper  *Mapper
}

func NewSyncService(s *storage.Storage, client provider.Interface, mapper *Mapper) *SyncService {
	return &SyncService{storage: s, client: client, mapper: mapper}
}

// SyncResult contains the outcome of one pull.
type SyncResult struct {
	Added      int
	Updated    int
	Deleted    int
	Skipped    int
	FullResync bool
	Errors     []string
}

// PullSync lists changes since the calendar's cursor and applies them. The
// cursor only advances after every change in the batch has been durably
// applied; a partial failure leaves it untouched so the next pull re-reads
// the same changes. An expired token invalidates the cursor and falls back
// to a full resync within the same call.
func (s *SyncService) PullSync(ctx context.Context, calendarID string) (*SyncResult, error) {
	cursor, err := s.storage.GetSyncCursor(calendarID)
	if err != nil {
		return nil, fmt.Errorf("get sync cursor: %w", err)
	}

	token := cursor.Token()
	pullStart := time.Now()

	set, err := s.client.ListChangesSince(ctx, calendarID, token)
	if provider.IsInvalidSyncToken(err) {
		log.Printf("sync: token for calendar %s expired, forcing full resync", calendarID)
		if invErr := s.storage.InvalidateSyncCursor(calendarID); invErr != nil {
			return nil, fmt.Errorf("invalidate cursor: %w", invErr)
		}
		set, err = s.client.ListChangesSince(ctx, calendarID, "")
	}
	if err != nil {
		return nil, fmt.Errorf("list changes for %s: %w", calendarID, err)
	}

	result := &SyncResult{FullResync: set.FullResync}
	for _, change := range set.Events {
		if err := s.applyChange(calendarID, change, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("apply %s: %v", change.ID, err))
		}
	}

	if len(result.Errors) > 0 {
		// Advancing past a partially applied batch would silently drop the
		// failed changes from every future incremental pull.
		return result, fmt.Errorf("applied %d/%d changes, cursor not advanced",
			len(set.Events)-len(result.Errors), len(set.Events))
	}

	if set.NextSyncToken != "" {
		if err := s.storage.AdvanceSyncCursor(calendarID, set.NextSyncToken, pullStart); err != nil {
			return result, fmt.Errorf("advance cursor: %w", err)
		}
	}
	return result, nil
}

func (s *SyncService) applyChange(calendarID string, change *provider.Event, result *SyncResult) error {
	local, err := s.storage.GetEventByProviderID(calendarID, change.ID)
	if err != nil {
		return fmt.Errorf("lookup local event: %w", err)
	}

	if change.Cancelled {
		if local == nil {
			result.Skipped++
			return nil
		}
		if err := s.storage.DeleteAssignmentsByEntity(local.EntityType, local.EntityID); err != nil {
			return fmt.Errorf("delete assignments: %w", err)
		}
		if err := s.storage.DeleteCalendarEvent(local.ID); err != nil {
			return fmt.Errorf("delete local event: %w", err)
		}
		result.Deleted++
		return nil
	}

	now := time.Now()

	if local != nil {
		if !eventChanged(local, change) {
			result.Skipped++
			return nil
		}
		local.Title = change.Title
		local.Description = change.Description
		local.Location = change.Location
		local.StartTime = change.Start
		local.EndTime = change.End
		local.AllDay = change.AllDay
		local.Etag = change.Etag
		local.LastSyncedAt = &now
		if err := s.storage.UpdateCalendarEvent(local); err != nil {
			return fmt.Errorf("update local event: %w", err)
		}
		result.Updated++
		return nil
	}

	// New on the provider side. Events pushed by us carry entity metadata;
	// anything else is born as an ad-hoc item keyed by the provider id.
	ev := &domain.CalendarEvent{
		Title:           change.Title,
		Description:     change.Description,
		Location:        change.Location,
		StartTime:       change.Start,
		EndTime:         change.End,
		AllDay:          change.AllDay,
		CalendarID:      calendarID,
		ProviderEventID: change.ID,
		Etag:            change.Etag,
		SyncEnabled:     true,
		LastSyncedAt:    &now,
		EntityType:      domain.EntityAdHoc,
		EntityID:        change.ID,
	}
	if et := domain.EntityType(change.EntityType); et.Valid() && change.EntityID != "" {
		ev.EntityType = et
		ev.EntityID = change.EntityID
	}

	if existing, err := s.storage.GetEventByEntity(ev.EntityType, ev.EntityID); err != nil {
		return fmt.Errorf("lookup by entity: %w", err)
	} else if existing != nil {
		// A push we never saw the response for: the provider-side event is
		// ours, re-attach instead of duplicating.
		existing.ProviderEventID = change.ID
		existing.Etag = change.Etag
		existing.LastSyncedAt = &now
		if err := s.storage.UpdateCalendarEvent(existing); err != nil {
			return fmt.Errorf("reattach local event: %w", err)
		}
		result.Updated++
		return nil
	}

	if _, err := s.mapper.EntityFromEvent(ev); err != nil {
		if errors.Is(err, ErrInboundNotSupported) {
			// Push-only entity types cannot be born on the provider side.
			// Skipping rather than erroring keeps the cursor moving; the
			// rejected event simply never gets a local mirror.
			log.Printf("sync: rejecting provider-created %s event %s on calendar %s",
				ev.EntityType, change.ID, calendarID)
			result.Skipped++
			return nil
		}
		return fmt.Errorf("materialize entity: %w", err)
	}

	if err := s.storage.CreateCalendarEvent(ev); err != nil {
		return fmt.Errorf("create local event: %w", err)
	}
	result.Added++
	return nil
}

// eventChanged checks whether the provider copy differs from the mirror.
func eventChanged(local *domain.CalendarEvent, remote *provider.Event) bool {
	if local.Title != remote.Title ||
		local.Description != remote.Description ||
		local.Location != remote.Location ||
		local.AllDay != remote.AllDay ||
		local.Etag != remote.Etag {
		return true
	}
	if !local.StartTime.Equal(remote.Start) {
		return true
	}
	switch {
	case local.EndTime == nil && remote.End == nil:
	case local.EndTime == nil || remote.End == nil:
		return true
	case !local.EndTime.Equal(*remote.End):
		return true
	}
	return false
}
