package domain

import "time"

// Schedulable is an internal scheduling entity that can be mirrored to the
// calendar provider. Persistence of these entities lives outside the sync
// engine; only the fields relevant to calendar mapping appear here.
type Schedulable interface {
	SchedulableType() EntityType
	SchedulableID() string
}

// WorkOrder is a scheduled unit of field work.
type WorkOrder struct {
	ID             string
	Title          string
	Description    string
	Location       string
	ScheduledStart time.Time
	ScheduledEnd   *time.Time
	AssigneeType   *AssigneeType
	AssigneeID     *string
}

func (w *WorkOrder) SchedulableType() EntityType { return EntityWorkOrder }
func (w *WorkOrder) SchedulableID() string       { return w.ID }

// Project spans its whole active date range on the calendar.
type Project struct {
	ID        string
	Name      string
	Notes     string
	StartDate time.Time
	EndDate   *time.Time
}

func (p *Project) SchedulableType() EntityType { return EntityProject }
func (p *Project) SchedulableID() string       { return p.ID }

// Milestone is a dated project checkpoint, rendered all-day.
type Milestone struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	DueDate     time.Time
}

func (m *Milestone) SchedulableType() EntityType { return EntityProjectMilestone }
func (m *Milestone) SchedulableID() string       { return m.ID }

// TimeEntry records hours worked on a date. Start and end are clock times
// ("HH:MM") combined with WorkDate when mapping to an event.
type TimeEntry struct {
	ID         string
	WorkDate   time.Time
	StartClock string
	EndClock   string
	Notes      string
	EmployeeID string
}

func (t *TimeEntry) SchedulableType() EntityType { return EntityTimeEntry }
func (t *TimeEntry) SchedulableID() string       { return t.ID }

// AdHocItem is a free-form calendar entry. It is the only entity type that
// may be created from an inbound provider change.
type AdHocItem struct {
	ID          string
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     *time.Time
	AllDay      bool
}

func (a *AdHocItem) SchedulableType() EntityType { return EntityAdHoc }
func (a *AdHocItem) SchedulableID() string       { return a.ID }

// ScheduleItem is a line on a project schedule (crew booking, inspection).
type ScheduleItem struct {
	ID           string
	ProjectID    string
	Title        string
	Location     string
	StartTime    time.Time
	EndTime      *time.Time
	AssigneeType *AssigneeType
	AssigneeID   *string
}

func (s *ScheduleItem) SchedulableType() EntityType { return EntityScheduleItem }
func (s *ScheduleItem) SchedulableID() string       { return s.ID }

// ContactInteraction is a logged meeting or call with a contact.
type ContactInteraction struct {
	ID        string
	ContactID string
	Subject   string
	Notes     string
	OccursAt  time.Time
	Duration  time.Duration
}

func (c *ContactInteraction) SchedulableType() EntityType { return EntityContactInteraction }
func (c *ContactInteraction) SchedulableID() string       { return c.ID }
