// Package provider defines the boundary between the sync engine and the
// external calendar service. Concrete adapters (Google Calendar, CalDAV)
// translate their SDK shapes into these types; nothing provider-specific
// leaks past this interface.
package provider

import (
	"context"
	"time"
)

// Event is the wire-neutral shape of a provider-side calendar event.
type Event struct {
	ID          string // provider event id, empty for a not-yet-created event
	Etag        string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         *time.Time
	AllDay      bool
	Cancelled   bool

	// Private metadata echoed back by the provider, used to re-associate
	// inbound changes with their owning internal entity.
	EntityType string
	EntityID   string
}

// ChangeSet is the result of one incremental (or full) list call.
type ChangeSet struct {
	Events        []*Event
	NextSyncToken string
	FullResync    bool // true when the listing ignored the supplied token
}

// WatchResult is returned by Watch.
type WatchResult struct {
	ResourceID string
	Expiration time.Time
}

// Interface is the calendar client adapter contract. All methods are network
// calls; retryable failures (timeouts, 5xx, rate limits) are absorbed inside
// the adapter with bounded backoff, so callers only ever see final success or
// a permanent *Error.
type Interface interface {
	// CreateEvent creates ev on the calendar and returns it with the
	// provider-assigned ID and Etag filled in.
	CreateEvent(ctx context.Context, calendarID string, ev *Event) (*Event, error)

	// UpdateEvent replaces the stored event. ev.ID and ev.Etag are required;
	// a stale etag fails with KindConflict.
	UpdateEvent(ctx context.Context, calendarID string, ev *Event) (*Event, error)

	// DeleteEvent removes the event. Deleting an already-gone event is a
	// KindPermanent error; callers decide whether that matters.
	DeleteEvent(ctx context.Context, calendarID, eventID string) error

	// ListChangesSince returns events changed since syncToken along with a
	// fresh token. An empty token requests a full resync of the calendar.
	// An expired token fails with KindInvalidSyncToken.
	ListChangesSince(ctx context.Context, calendarID, syncToken string) (*ChangeSet, error)

	// Watch subscribes webhookURL to change notifications for the calendar
	// under the caller-chosen channelID.
	Watch(ctx context.Context, calendarID, channelID, webhookURL string, ttl time.Duration) (*WatchResult, error)

	// StopWatch tears down a channel. Stopping a channel the provider no
	// longer knows fails with KindPermanent.
	StopWatch(ctx context.Context, channelID, resourceID string) error
}
