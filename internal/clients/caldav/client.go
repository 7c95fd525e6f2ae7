// Package caldav implements the calendar provider adapter for CalDAV
// servers (Apple iCloud and compatible). CalDAV has no push channels, so
// Watch and StopWatch fail with an unsupported error and deployments on
// this adapter sync on schedule instead of on webhook.
package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/sitecrew/sitesync/internal/provider"
)

const (
	// Apple iCloud CalDAV endpoint
	DefaultiCloudURL = "https://caldav.icloud.com"

	// Listing window used for pseudo-incremental sync: CalDAV offers no
	// change token here, so every pull lists this range in full.
	listWindowPast   = 30 * 24 * time.Hour
	listWindowFuture = 365 * 24 * time.Hour
)

// Client is a CalDAV calendar adapter.
type Client struct {
	baseURL  string
	username string
	password string
	client   *caldav.Client
}

// NewClient creates a CalDAV client with basic-auth credentials.
func NewClient(baseURL, username, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultiCloudURL
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
	}
}

var _ provider.Interface = (*Client)(nil)

// IsConfigured returns true if the client has credentials.
func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != ""
}

func (c *Client) connect() (*caldav.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, "caldav.connect", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests.
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// DiscoverCalendars returns all calendars for the account.
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, classify("caldav.DiscoverCalendars", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, classify("caldav.DiscoverCalendars", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, classify("caldav.DiscoverCalendars", err)
	}

	var result []Calendar
	for _, cal := range cals {
		result = append(result, Calendar{
			ID:          cal.Path,
			DisplayName: cal.Name,
			URL:         cal.Path,
		})
	}
	return result, nil
}

func (c *Client) CreateEvent(ctx context.Context, calendarID string, ev *provider.Event) (*provider.Event, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	out := *ev
	if out.ID == "" {
		out.ID = uuid.NewString() + "@sitesync"
	}

	var etag string
	err = provider.WithRetry(ctx, func() error {
		obj, err := client.PutCalendarObject(ctx, eventPath(calendarID, out.ID), eventToICS(&out))
		if err != nil {
			return classify("caldav.CreateEvent", err)
		}
		if obj != nil {
			etag = obj.ETag
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Etag = etag
	return &out, nil
}

// UpdateEvent replaces the stored object. CalDAV PUT via this client is
// last-writer-wins; stale-etag conflicts are only detectable on providers
// that support preconditions.
func (c *Client) UpdateEvent(ctx context.Context, calendarID string, ev *provider.Event) (*provider.Event, error) {
	if ev.ID == "" {
		return nil, provider.NewError(provider.KindPermanent, "caldav.UpdateEvent", fmt.Errorf("missing event uid"))
	}
	return c.CreateEvent(ctx, calendarID, ev)
}

func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}

	return provider.WithRetry(ctx, func() error {
		if err := client.RemoveAll(ctx, eventPath(calendarID, eventID)); err != nil {
			return classify("caldav.DeleteEvent", err)
		}
		return nil
	})
}

// ListChangesSince lists every event in the sync window. CalDAV exposes no
// incremental change token through this client, so each pull is a full
// resync; the returned token is only a listing timestamp.
func (c *Client) ListChangesSince(ctx context.Context, calendarID, syncToken string) (*provider.ChangeSet, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: now.Add(-listWindowPast),
					End:   now.Add(listWindowFuture),
				},
			},
		},
	}

	var objects []caldav.CalendarObject
	err = provider.WithRetry(ctx, func() error {
		got, err := client.QueryCalendar(ctx, calendarID, query)
		if err != nil {
			return classify("caldav.ListChangesSince", err)
		}
		objects = got
		return nil
	})
	if err != nil {
		return nil, err
	}

	set := &provider.ChangeSet{
		FullResync:    true,
		NextSyncToken: now.Format(time.RFC3339),
	}
	for i := range objects {
		ev, err := parseCalendarObject(&objects[i])
		if err != nil {
			continue // skip malformed objects
		}
		set.Events = append(set.Events, ev)
	}
	return set, nil
}

func (c *Client) Watch(ctx context.Context, calendarID, channelID, webhookURL string, ttl time.Duration) (*provider.WatchResult, error) {
	return nil, provider.NewError(provider.KindUnsupported, "caldav.Watch",
		fmt.Errorf("CalDAV has no push notification channels"))
}

func (c *Client) StopWatch(ctx context.Context, channelID, resourceID string) error {
	return provider.NewError(provider.KindUnsupported, "caldav.StopWatch",
		fmt.Errorf("CalDAV has no push notification channels"))
}

func eventPath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + uid + ".ics"
}

func classify(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found") || strings.Contains(msg, "410"):
		return provider.NewError(provider.KindPermanent, op, err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return provider.NewError(provider.KindPermanent, op, err)
	default:
		return provider.NewError(provider.KindRetryable, op, err)
	}
}

// parseCalendarObject parses a CalDAV object into a provider event.
func parseCalendarObject(obj *caldav.CalendarObject) (*provider.Event, error) {
	if obj.Data == nil {
		return nil, fmt.Errorf("no data in calendar object")
	}

	event := &provider.Event{Etag: obj.ETag}

	for _, comp := range obj.Data.Children {
		if comp.Name != ical.CompEvent {
			continue
		}

		if prop := comp.Props.Get(ical.PropUID); prop != nil {
			event.ID = prop.Value
		}
		if prop := comp.Props.Get(ical.PropSummary); prop != nil {
			event.Title = prop.Value
		}
		if prop := comp.Props.Get(ical.PropDescription); prop != nil {
			event.Description = prop.Value
		}
		if prop := comp.Props.Get(ical.PropLocation); prop != nil {
			event.Location = prop.Value
		}
		if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				event.Start = t
			}
			if valueType := prop.Params.Get(ical.ParamValue); valueType == string(ical.ValueDate) {
				event.AllDay = true
			}
		}
		if prop := comp.Props.Get(ical.PropDateTimeEnd); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				event.End = &t
			}
		}
		if prop := comp.Props.Get(ical.PropStatus); prop != nil && prop.Value == "CANCELLED" {
			event.Cancelled = true
		}

		break // only the first VEVENT
	}

	if event.ID == "" {
		return nil, fmt.Errorf("event without UID")
	}
	return event, nil
}

// eventToICS converts a provider event to iCalendar format.
func eventToICS(event *provider.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//SiteSync//CalDAV//EN")

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, event.ID)
	vevent.Props.SetText(ical.PropSummary, event.Title)

	if event.Description != "" {
		vevent.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		vevent.Props.SetText(ical.PropLocation, event.Location)
	}

	if event.AllDay {
		vevent.Props.SetDate(ical.PropDateTimeStart, event.Start)
		if event.End != nil {
			vevent.Props.SetDate(ical.PropDateTimeEnd, *event.End)
		}
	} else {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
		if event.End != nil {
			vevent.Props.SetDateTime(ical.PropDateTimeEnd, event.End.UTC())
		}
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	cal.Children = append(cal.Children, vevent.Component)
	return cal
}
