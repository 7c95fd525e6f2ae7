package domain

import "time"

// ScopeType binds a calendar to an organization or a single project.
type ScopeType string

const (
	ScopeOrganization ScopeType = "organization"
	ScopeProject      ScopeType = "project"
)

// CalendarScope binds a calendar_id to an organization or project. Scopes
// gate which actors may enable sync on events for that calendar; they take
// no part in the sync protocol itself.
type CalendarScope struct {
	ID         int64
	CalendarID string
	ScopeType  ScopeType
	ScopeID    string
	CreatedAt  time.Time
}

// AccessLevel is a per-employee permission on a calendar.
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessAdmin AccessLevel = "admin"
)

// CanWrite reports whether the level permits mutating events.
func (l AccessLevel) CanWrite() bool {
	return l == AccessWrite || l == AccessAdmin
}

// CalendarAccess grants an employee a level of access to one calendar.
type CalendarAccess struct {
	ID         int64
	CalendarID string
	EmployeeID string
	Level      AccessLevel
	CreatedAt  time.Time
}
