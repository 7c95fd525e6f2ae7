package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sitecrew/sitesync/internal/provider"
)

// fakeProvider is an in-memory provider.Interface for service tests. It
// hands out deterministic event ids and etags and lets a test inject the
// next error per method.
type fakeProvider struct {
	mu sync.Mutex

	events map[string]*provider.Event // provider event id -> event
	nextID int

	changes    []*provider.ChangeSet // consumed by ListChangesSince in order
	listErr    error
	createErr  error
	updateErr  error
	deleteErr  error
	watchErr   error
	stopErr    error
	watchTTL   time.Duration
	stopCalls  []string
	watchCalls []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{events: map[string]*provider.Event{}, watchTTL: 7 * 24 * time.Hour}
}

var _ provider.Interface = (*fakeProvider)(nil)

func (f *fakeProvider) CreateEvent(ctx context.Context, calendarID string, ev *provider.Event) (*provider.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil
		return nil, err
	}
	f.nextID++
	out := *ev
	out.ID = fmt.Sprintf("prov-%d", f.nextID)
	out.Etag = fmt.Sprintf(`"etag-%d-1"`, f.nextID)
	f.events[out.ID] = &out
	return &out, nil
}

func (f *fakeProvider) UpdateEvent(ctx context.Context, calendarID string, ev *provider.Event) (*provider.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		err := f.updateErr
		f.updateErr = nil
		return nil, err
	}
	stored, ok := f.events[ev.ID]
	if !ok {
		return nil, provider.NewError(provider.KindPermanent, "fake.UpdateEvent", fmt.Errorf("event %s not found", ev.ID))
	}
	if ev.Etag != "" && stored.Etag != ev.Etag {
		return nil, provider.NewError(provider.KindConflict, "fake.UpdateEvent", fmt.Errorf("etag mismatch"))
	}
	out := *ev
	out.Etag = stored.Etag + "x"
	f.events[out.ID] = &out
	return &out, nil
}

func (f *fakeProvider) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		err := f.deleteErr
		f.deleteErr = nil
		return err
	}
	if _, ok := f.events[eventID]; !ok {
		return provider.NewError(provider.KindPermanent, "fake.DeleteEvent", fmt.Errorf("404 event %s not found", eventID))
	}
	delete(f.events, eventID)
	return nil
}

func (f *fakeProvider) ListChangesSince(ctx context.Context, calendarID, syncToken string) (*provider.ChangeSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		err := f.listErr
		f.listErr = nil
		return nil, err
	}
	if len(f.changes) == 0 {
		return &provider.ChangeSet{NextSyncToken: "tok-empty"}, nil
	}
	set := f.changes[0]
	f.changes = f.changes[1:]
	return set, nil
}

func (f *fakeProvider) Watch(ctx context.Context, calendarID, channelID, webhookURL string, ttl time.Duration) (*provider.WatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		err := f.watchErr
		f.watchErr = nil
		return nil, err
	}
	f.watchCalls = append(f.watchCalls, calendarID)
	return &provider.WatchResult{
		ResourceID: "res-" + calendarID,
		Expiration: time.Now().Add(f.watchTTL),
	}, nil
}

func (f *fakeProvider) StopWatch(ctx context.Context, channelID, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls = append(f.stopCalls, channelID)
	if f.stopErr != nil {
		err := f.stopErr
		f.stopErr = nil
		return err
	}
	return nil
}

// fakeNotifier records alerts for assertions.
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *fakeNotifier) Alert(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, msg)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}
