package domain

import "time"

// SyncCursor tracks the incremental sync position for one calendar.
// A nil NextSyncToken means the next pull must be a full resync.
type SyncCursor struct {
	CalendarID    string
	NextSyncToken *string
	LastSyncTime  time.Time
}

// Token returns the sync token or "" when a full resync is required.
func (c *SyncCursor) Token() string {
	if c == nil || c.NextSyncToken == nil {
		return ""
	}
	return *c.NextSyncToken
}
