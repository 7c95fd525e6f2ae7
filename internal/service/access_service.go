package service

import (
	"fmt"

	"github.com/sitecrew/sitesync/internal/domain"
	"github.com/sitecrew/sitesync/internal/storage"
)

// AccessService answers permission questions about calendars. Sync gating
// is per employee per calendar: write or admin access is required to
// enable sync or mutate mirrored events.
type AccessService struct {
	storage *storage.Storage
}

func NewAccessService(s *storage.Storage) *AccessService {
	return &AccessService{storage: s}
}

// CheckCanSync returns ErrSyncNotPermitted unless the employee holds write
// or admin access on the calendar. An empty employee id means an internal
// actor (scheduler, webhook pull) and is always allowed.
func (s *AccessService) CheckCanSync(calendarID, employeeID string) error {
	if employeeID == "" {
		return nil
	}
	access, err := s.storage.GetCalendarAccess(calendarID, employeeID)
	if err != nil {
		return fmt.Errorf("get calendar access: %w", err)
	}
	if access == nil || !access.Level.CanWrite() {
		return ErrSyncNotPermitted
	}
	return nil
}

// Grant upserts an employee's access level on a calendar.
func (s *AccessService) Grant(calendarID, employeeID string, level domain.AccessLevel) error {
	return s.storage.GrantCalendarAccess(&domain.CalendarAccess{
		CalendarID: calendarID,
		EmployeeID: employeeID,
		Level:      level,
	})
}

// BindScope attaches a calendar to an organization or project.
func (s *AccessService) BindScope(calendarID string, scopeType domain.ScopeType, scopeID string) error {
	return s.storage.CreateCalendarScope(&domain.CalendarScope{
		CalendarID: calendarID,
		ScopeType:  scopeType,
		ScopeID:    scopeID,
	})
}

// Scopes lists the scopes bound to a calendar.
func (s *AccessService) Scopes(calendarID string) ([]*domain.CalendarScope, error) {
	return s.storage.ListScopesByCalendar(calendarID)
}
