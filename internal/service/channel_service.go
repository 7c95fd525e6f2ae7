package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sitecrew/sitesync/internal/domain"
	"github.com/sitecrew/sitesync/internal/provider"
	"github.com/sitecrew/sitesync/internal/storage"
)

// Notifier delivers operational alerts. Implementations must tolerate being
// called from background jobs; a nil-safe no-op is acceptable.
type Notifier interface {
	Alert(msg string)
}

// renewalWindow is how far ahead of expiration a channel is replaced. Renewing
// early keeps a live channel through provider-side registration delays.
const renewalWindow = 48 * time.Hour

// ChannelManager owns the push notification channel lifecycle: creating
// channels for watched calendars, renewing them before expiry, and flagging
// calendars that silently went dark.
type ChannelManager struct {
	storage    *storage.Storage
	client     provider.Interface
	webhookURL string
	ttl        time.Duration
	notifier   Notifier
}

func NewChannelManager(s *storage.Storage, client provider.Interface, webhookURL string, ttl time.Duration, notifier Notifier) *ChannelManager {
	return &ChannelManager{
		storage:    s,
		client:     client,
		webhookURL: webhookURL,
		ttl:        ttl,
		notifier:   notifier,
	}
}

// RenewalSummary reports the outcome of one renewal sweep.
type RenewalSummary struct {
	Checked int
	Renewed int
	Skipped int
	Failed  int
}

// EnsureChannel returns the calendar's active channel, creating one if none
// exists. Providers without push support leave the calendar on scheduled
// pulls only.
func (m *ChannelManager) EnsureChannel(ctx context.Context, calendarID string) (*domain.PushNotificationChannel, error) {
	existing, err := m.storage.FindActiveChannel(calendarID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("find active channel: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	return m.openChannel(ctx, calendarID)
}

func (m *ChannelManager) openChannel(ctx context.Context, calendarID string) (*domain.PushNotificationChannel, error) {
	channelID := uuid.NewString()
	res, err := m.client.Watch(ctx, calendarID, channelID, m.webhookURL, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("watch calendar %s: %w", calendarID, err)
	}

	ch := &domain.PushNotificationChannel{
		ChannelID:  channelID,
		ResourceID: res.ResourceID,
		CalendarID: calendarID,
		Expiration: res.Expiration,
	}
	if err := m.storage.RegisterChannel(ch); err != nil {
		return nil, fmt.Errorf("register channel: %w", err)
	}
	log.Printf("channel: opened %s for calendar %s, expires %s", channelID, calendarID, res.Expiration.Format(time.RFC3339))
	return ch, nil
}

// RenewExpiring replaces every channel expiring within the renewal window.
// Each channel is handled independently: one failed renewal is logged and
// alerted but never stops the sweep.
func (m *ChannelManager) RenewExpiring(ctx context.Context) (*RenewalSummary, error) {
	threshold := time.Now().Add(renewalWindow)
	expiring, err := m.storage.ListChannelsExpiringBefore(threshold)
	if err != nil {
		return nil, fmt.Errorf("list expiring channels: %w", err)
	}

	summary := &RenewalSummary{Checked: len(expiring)}
	for _, old := range expiring {
		if err := m.renewOne(ctx, old, summary); err != nil {
			summary.Failed++
			log.Printf("channel: renewal of %s (calendar %s) failed: %v", old.ChannelID, old.CalendarID, err)
			m.alert(fmt.Sprintf("channel renewal failed for calendar %s: %v", old.CalendarID, err))
		}
	}
	return summary, nil
}

func (m *ChannelManager) renewOne(ctx context.Context, old *domain.PushNotificationChannel, summary *RenewalSummary) error {
	now := time.Now()

	// A previous sweep (or a concurrent instance) may already have replaced
	// this channel; a fresh successor makes renewal a no-op.
	active, err := m.storage.FindActiveChannel(old.CalendarID, now)
	if err != nil {
		return fmt.Errorf("find active channel: %w", err)
	}
	if active != nil && active.ChannelID != old.ChannelID && !active.ExpiresWithin(now, renewalWindow) {
		summary.Skipped++
		return nil
	}

	channelID := uuid.NewString()
	res, err := m.client.Watch(ctx, old.CalendarID, channelID, m.webhookURL, m.ttl)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	// Stop the old channel best-effort: a stop failure must not strand the
	// fresh channel. Channels past expiration are already gone provider-side.
	if !old.Expired(now) {
		if err := m.client.StopWatch(ctx, old.ChannelID, old.ResourceID); err != nil && !provider.IsNotFound(err) {
			log.Printf("channel: stop of old channel %s failed: %v", old.ChannelID, err)
		}
	}

	newCh := &domain.PushNotificationChannel{
		ChannelID:  channelID,
		ResourceID: res.ResourceID,
		CalendarID: old.CalendarID,
		Expiration: res.Expiration,
	}
	if err := m.storage.ReplaceChannel(old, newCh); err != nil {
		return fmt.Errorf("replace channel: %w", err)
	}

	summary.Renewed++
	log.Printf("channel: renewed %s -> %s for calendar %s, expires %s",
		old.ChannelID, channelID, old.CalendarID, res.Expiration.Format(time.RFC3339))
	return nil
}

// CheckDeadChannels alerts on calendars whose channel expired with no
// successor. These calendars have silently stopped receiving notifications
// and will drift until a channel is reopened or a scheduled pull runs.
func (m *ChannelManager) CheckDeadChannels(ctx context.Context) error {
	dead, err := m.storage.ListExpiredWithoutSuccessor(time.Now())
	if err != nil {
		return fmt.Errorf("list expired channels: %w", err)
	}
	for _, ch := range dead {
		log.Printf("channel: calendar %s has no live channel (last expired %s)",
			ch.CalendarID, ch.Expiration.Format(time.RFC3339))
		m.alert(fmt.Sprintf("calendar %s has no live push channel, notifications stopped at %s",
			ch.CalendarID, ch.Expiration.Format(time.RFC3339)))
	}
	return nil
}

// Teardown stops and removes the calendar's channel, e.g. when sync is
// disabled for the calendar.
func (m *ChannelManager) Teardown(ctx context.Context, calendarID string) error {
	ch, err := m.storage.FindActiveChannel(calendarID, time.Now())
	if err != nil {
		return fmt.Errorf("find active channel: %w", err)
	}
	if ch == nil {
		return nil
	}
	if err := m.client.StopWatch(ctx, ch.ChannelID, ch.ResourceID); err != nil && !provider.IsNotFound(err) {
		log.Printf("channel: stop of %s failed, removing locally anyway: %v", ch.ChannelID, err)
	}
	return m.storage.DeleteChannel(ch.ChannelID)
}

func (m *ChannelManager) alert(msg string) {
	if m.notifier != nil {
		m.notifier.Alert(msg)
	}
}
