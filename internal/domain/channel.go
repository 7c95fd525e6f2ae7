package domain

import "time"

// PushNotificationChannel is a provider-side webhook subscription for one
// calendar. The channel id is chosen by us at watch time; the resource id is
// assigned by the provider. At most one non-expired channel per calendar is
// considered valid for webhook validation; extra rows may exist transiently
// while a renewal is in flight.
type PushNotificationChannel struct {
	ChannelID  string
	ResourceID string
	CalendarID string
	Expiration time.Time
	CreatedAt  time.Time
}

// Expired reports whether the channel is past its provider expiration.
func (c *PushNotificationChannel) Expired(now time.Time) bool {
	return !c.Expiration.After(now)
}

// ExpiresWithin reports whether the channel expires before now+d.
func (c *PushNotificationChannel) ExpiresWithin(now time.Time, d time.Duration) bool {
	return c.Expiration.Before(now.Add(d))
}
