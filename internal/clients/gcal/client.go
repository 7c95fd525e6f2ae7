// Package gcal implements the calendar provider adapter for Google Calendar.
package gcal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sitecrew/sitesync/internal/provider"
)

const (
	maxResults  = 250 // Google Calendar API max per page
	callTimeout = 30 * time.Second

	propEntityType = "sitesync_entity_type"
	propEntityID   = "sitesync_entity_id"
)

// Client wraps the Google Calendar service behind provider.Interface.
type Client struct {
	svc *calendar.Service
}

// New creates a Client from service-account or application-default
// credentials at credentialsFile.
func New(ctx context.Context, credentialsFile string) (*Client, error) {
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(calendar.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// NewWithService wraps an already-constructed calendar service. Used by
// OAuth token flows and tests.
func NewWithService(svc *calendar.Service) *Client {
	return &Client{svc: svc}
}

var _ provider.Interface = (*Client)(nil)

func (c *Client) CreateEvent(ctx context.Context, calendarID string, ev *provider.Event) (*provider.Event, error) {
	var created *calendar.Event
	err := provider.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		got, err := c.svc.Events.Insert(calendarID, toGoogleEvent(ev)).Context(callCtx).Do()
		if err != nil {
			return classify("gcal.CreateEvent", err, false)
		}
		created = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fromGoogleEvent(created), nil
}

func (c *Client) UpdateEvent(ctx context.Context, calendarID string, ev *provider.Event) (*provider.Event, error) {
	if ev.ID == "" {
		return nil, provider.NewError(provider.KindPermanent, "gcal.UpdateEvent", fmt.Errorf("missing provider event id"))
	}
	var updated *calendar.Event
	err := provider.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		call := c.svc.Events.Update(calendarID, ev.ID, toGoogleEvent(ev)).Context(callCtx)
		if ev.Etag != "" {
			// Optimistic concurrency: a stale etag makes Google answer 412.
			call.Header().Set("If-Match", ev.Etag)
		}
		got, err := call.Do()
		if err != nil {
			return classify("gcal.UpdateEvent", err, false)
		}
		updated = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fromGoogleEvent(updated), nil
}

func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return provider.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		if err := c.svc.Events.Delete(calendarID, eventID).Context(callCtx).Do(); err != nil {
			return classify("gcal.DeleteEvent", err, false)
		}
		return nil
	})
}

func (c *Client) ListChangesSince(ctx context.Context, calendarID, syncToken string) (*provider.ChangeSet, error) {
	set := &provider.ChangeSet{FullResync: syncToken == ""}

	pageToken := ""
	for {
		var events *calendar.Events
		err := provider.WithRetry(ctx, func() error {
			callCtx, cancel := context.WithTimeout(ctx, callTimeout)
			defer cancel()

			call := c.svc.Events.List(calendarID).
				MaxResults(maxResults).
				ShowDeleted(true).
				Context(callCtx)
			if syncToken != "" {
				call = call.SyncToken(syncToken)
			}
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			got, err := call.Do()
			if err != nil {
				return classify("gcal.ListChangesSince", err, true)
			}
			events = got
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, item := range events.Items {
			set.Events = append(set.Events, fromGoogleEvent(item))
		}

		pageToken = events.NextPageToken
		if pageToken == "" {
			set.NextSyncToken = events.NextSyncToken
			return set, nil
		}
	}
}

func (c *Client) Watch(ctx context.Context, calendarID, channelID, webhookURL string, ttl time.Duration) (*provider.WatchResult, error) {
	req := &calendar.Channel{
		Id:      channelID,
		Type:    "web_hook",
		Address: webhookURL,
		Params:  map[string]string{"ttl": strconv.FormatInt(int64(ttl.Seconds()), 10)},
	}

	var ch *calendar.Channel
	err := provider.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		got, err := c.svc.Events.Watch(calendarID, req).Context(callCtx).Do()
		if err != nil {
			return classify("gcal.Watch", err, false)
		}
		ch = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &provider.WatchResult{
		ResourceID: ch.ResourceId,
		Expiration: time.UnixMilli(ch.Expiration).UTC(),
	}, nil
}

func (c *Client) StopWatch(ctx context.Context, channelID, resourceID string) error {
	req := &calendar.Channel{Id: channelID, ResourceId: resourceID}
	return provider.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		if err := c.svc.Channels.Stop(req).Context(callCtx).Do(); err != nil {
			return classify("gcal.StopWatch", err, false)
		}
		return nil
	})
}

// classify maps a Google API error onto the adapter taxonomy. For list
// calls a 410 means the sync token expired rather than a missing resource.
func classify(op string, err error, listCall bool) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch {
		case apiErr.Code == 410 && listCall:
			return provider.NewError(provider.KindInvalidSyncToken, op, err)
		case apiErr.Code == 412:
			return provider.NewError(provider.KindConflict, op, err)
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return provider.NewError(provider.KindRetryable, op, err)
		case apiErr.Code >= 400:
			return provider.NewError(provider.KindPermanent, op, err)
		}
	}
	// Transport-level failure (timeout, connection reset): retryable, the
	// call may have landed server-side.
	return provider.NewError(provider.KindRetryable, op, err)
}

func toGoogleEvent(ev *provider.Event) *calendar.Event {
	out := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
	}
	if ev.AllDay {
		out.Start = &calendar.EventDateTime{Date: ev.Start.Format("2006-01-02")}
		end := ev.Start.AddDate(0, 0, 1)
		if ev.End != nil {
			end = *ev.End
		}
		out.End = &calendar.EventDateTime{Date: end.Format("2006-01-02")}
	} else {
		out.Start = &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)}
		end := ev.Start.Add(time.Hour)
		if ev.End != nil {
			end = *ev.End
		}
		out.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)}
	}
	if ev.EntityType != "" {
		out.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{
				propEntityType: ev.EntityType,
				propEntityID:   ev.EntityID,
			},
		}
	}
	return out
}

func fromGoogleEvent(ev *calendar.Event) *provider.Event {
	out := &provider.Event{
		ID:          ev.Id,
		Etag:        ev.Etag,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Cancelled:   ev.Status == "cancelled",
	}
	if ev.Start != nil {
		if ev.Start.Date != "" {
			out.AllDay = true
			if t, err := time.Parse("2006-01-02", ev.Start.Date); err == nil {
				out.Start = t
			}
		} else if t, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
			out.Start = t
		}
	}
	if ev.End != nil {
		var end time.Time
		if ev.End.Date != "" {
			if t, err := time.Parse("2006-01-02", ev.End.Date); err == nil {
				end = t
			}
		} else if t, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
			end = t
		}
		if !end.IsZero() {
			out.End = &end
		}
	}
	if ev.ExtendedProperties != nil && ev.ExtendedProperties.Private != nil {
		out.EntityType = ev.ExtendedProperties.Private[propEntityType]
		out.EntityID = ev.ExtendedProperties.Private[propEntityID]
	}
	return out
}
