package caldav

import (
	"testing"
	"time"

	"github.com/emersion/go-webdav/caldav"

	"github.com/sitecrew/sitesync/internal/provider"
)

func TestEventICSRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	ev := &provider.Event{
		ID:          "uid-1@sitesync",
		Title:       "Install drywall",
		Description: "Second floor units",
		Location:    "412 Oak St",
		Start:       start,
		End:         &end,
	}

	obj := &caldav.CalendarObject{
		ETag: `"etag-1"`,
		Data: eventToICS(ev),
	}

	back, err := parseCalendarObject(obj)
	if err != nil {
		t.Fatalf("failed to parse generated ICS: %v", err)
	}

	if back.ID != ev.ID {
		t.Errorf("uid = %q, want %q", back.ID, ev.ID)
	}
	if back.Title != ev.Title || back.Description != ev.Description || back.Location != ev.Location {
		t.Errorf("text fields did not round-trip: %+v", back)
	}
	if !back.Start.Equal(start) {
		t.Errorf("start = %s, want %s", back.Start, start)
	}
	if back.End == nil || !back.End.Equal(end) {
		t.Errorf("end = %v, want %s", back.End, end)
	}
	if back.Etag != `"etag-1"` {
		t.Errorf("etag = %q", back.Etag)
	}
	if back.Cancelled {
		t.Error("unexpected cancelled flag")
	}
}

func TestParseCalendarObjectWithoutUID(t *testing.T) {
	ev := &provider.Event{Title: "No uid", Start: time.Now()}
	cal := eventToICS(ev) // empty ID produces an empty UID prop

	_, err := parseCalendarObject(&caldav.CalendarObject{Data: cal})
	if err == nil {
		t.Fatal("expected error for event without UID")
	}
}

func TestEventPath(t *testing.T) {
	got := eventPath("/calendars/user/work", "uid-1@sitesync")
	want := "/calendars/user/work/uid-1@sitesync.ics"
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}

	// Trailing slash must not double up.
	got = eventPath("/calendars/user/work/", "uid-1@sitesync")
	if got != want {
		t.Fatalf("path with trailing slash = %q, want %q", got, want)
	}
}

func TestClassifyByStatus(t *testing.T) {
	if k := provider.KindOf(classify("op", errString("HTTP 404 not found"))); k != provider.KindPermanent {
		t.Errorf("404 should be permanent, got %s", k)
	}
	if k := provider.KindOf(classify("op", errString("401 unauthorized"))); k != provider.KindPermanent {
		t.Errorf("401 should be permanent, got %s", k)
	}
	if k := provider.KindOf(classify("op", errString("connection reset"))); k != provider.KindRetryable {
		t.Errorf("transport failure should be retryable, got %s", k)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestWatchUnsupported(t *testing.T) {
	c := NewClient("", "user", "pass")

	_, err := c.Watch(t.Context(), "/calendars/user/work", "ch-1", "https://example.com/webhook", time.Hour)
	if provider.KindOf(err) != provider.KindUnsupported {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if err := c.StopWatch(t.Context(), "ch-1", "res-1"); provider.KindOf(err) != provider.KindUnsupported {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
