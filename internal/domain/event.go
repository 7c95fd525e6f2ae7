package domain

import "time"

// EntityType identifies the internal scheduling entity a calendar event mirrors.
type EntityType string

const (
	EntityWorkOrder          EntityType = "work_order"
	EntityProject            EntityType = "project"
	EntityAdHoc              EntityType = "ad_hoc"
	EntityScheduleItem       EntityType = "schedule_item"
	EntityTimeEntry          EntityType = "time_entry"
	EntityProjectMilestone   EntityType = "project_milestone"
	EntityContactInteraction EntityType = "contact_interaction"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityWorkOrder, EntityProject, EntityAdHoc, EntityScheduleItem,
		EntityTimeEntry, EntityProjectMilestone, EntityContactInteraction:
		return true
	}
	return false
}

// AssigneeType identifies who a calendar event is assigned to.
type AssigneeType string

const (
	AssigneeEmployee      AssigneeType = "employee"
	AssigneeSubcontractor AssigneeType = "subcontractor"
	AssigneeCustomer      AssigneeType = "customer"
	AssigneeVendor        AssigneeType = "vendor"
	AssigneeContact       AssigneeType = "contact"
)

// CalendarEvent is the unified representation of a scheduled item, mirrored
// to the external calendar provider.
//
// ProviderEventID is set if and only if the event has been created on the
// provider at least once. EntityType+EntityID are immutable after creation;
// re-pointing an event to a different entity means delete and recreate.
type CalendarEvent struct {
	ID           int64
	Title        string
	Description  string
	StartTime    time.Time
	EndTime      *time.Time
	AllDay       bool
	Location     string
	EntityType   EntityType
	EntityID     string
	AssigneeType *AssigneeType
	AssigneeID   *string
	CalendarID   string

	ProviderEventID string // empty until first successful push
	Etag            string // provider version token, empty until pushed
	SyncEnabled     bool
	LastSyncedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
}

// Synced reports whether the event exists on the provider side.
func (e *CalendarEvent) Synced() bool {
	return e.ProviderEventID != ""
}

// SyncPending reports whether the event wants provider sync but the last
// push has not landed yet.
func (e *CalendarEvent) SyncPending() bool {
	return e.SyncEnabled && (e.ProviderEventID == "" || e.LastSyncedAt == nil)
}
