package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sitecrew/sitesync/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			all_day INTEGER DEFAULT 0,
			location TEXT DEFAULT '',
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			assignee_type TEXT,
			assignee_id TEXT,
			calendar_id TEXT NOT NULL,
			provider_event_id TEXT,
			etag TEXT,
			sync_enabled INTEGER DEFAULT 1,
			last_synced_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			created_by TEXT DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_entity ON calendar_events(entity_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_calendar ON calendar_events(calendar_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_provider ON calendar_events(calendar_id, provider_event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start ON calendar_events(start_time)`,
		// Push notification channels
		`CREATE TABLE IF NOT EXISTS push_channels (
			channel_id TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL,
			calendar_id TEXT NOT NULL,
			expiration DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_calendar ON push_channels(calendar_id)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_expiration ON push_channels(expiration)`,
		// Incremental sync cursors
		`CREATE TABLE IF NOT EXISTS sync_cursors (
			calendar_id TEXT PRIMARY KEY,
			next_sync_token TEXT,
			last_sync_time DATETIME NOT NULL
		)`,
		// Billable work assignments derived from events
		`CREATE TABLE IF NOT EXISTS calendar_assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			assignee_id TEXT NOT NULL,
			calendar_id TEXT NOT NULL,
			provider_event_id TEXT DEFAULT '',
			etag TEXT DEFAULT '',
			start_date DATETIME NOT NULL,
			end_date DATETIME,
			rate_per_hour REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_entity ON calendar_assignments(entity_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_dates ON calendar_assignments(start_date, end_date)`,
		// Calendar scoping and per-employee access
		`CREATE TABLE IF NOT EXISTS calendar_scopes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			calendar_id TEXT NOT NULL,
			scope_type TEXT NOT NULL,
			scope_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(calendar_id, scope_type, scope_id)
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_access (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			calendar_id TEXT NOT NULL,
			employee_id TEXT NOT NULL,
			level TEXT NOT NULL DEFAULT 'read',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(calendar_id, employee_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_calendar ON calendar_access(calendar_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// === Calendar events ===

const eventColumns = `id, title, COALESCE(description, ''), start_time, end_time, all_day, COALESCE(location, ''),
	entity_type, entity_id, assignee_type, assignee_id, calendar_id,
	COALESCE(provider_event_id, ''), COALESCE(etag, ''), sync_enabled, last_synced_at,
	created_at, updated_at, COALESCE(created_by, '')`

func (s *Storage) scanEvent(row interface{ Scan(...any) error }) (*domain.CalendarEvent, error) {
	e := &domain.CalendarEvent{}
	var assigneeType, assigneeID sql.NullString
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.StartTime, &e.EndTime, &e.AllDay, &e.Location,
		&e.EntityType, &e.EntityID, &assigneeType, &assigneeID, &e.CalendarID,
		&e.ProviderEventID, &e.Etag, &e.SyncEnabled, &e.LastSyncedAt,
		&e.CreatedAt, &e.UpdatedAt, &e.CreatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if assigneeType.Valid {
		at := domain.AssigneeType(assigneeType.String)
		e.AssigneeType = &at
	}
	if assigneeID.Valid {
		id := assigneeID.String
		e.AssigneeID = &id
	}
	return e, nil
}

func (s *Storage) CreateCalendarEvent(e *domain.CalendarEvent) error {
	res, err := s.db.Exec(
		`INSERT INTO calendar_events (title, description, start_time, end_time, all_day, location,
			entity_type, entity_id, assignee_type, assignee_id, calendar_id,
			provider_event_id, etag, sync_enabled, last_synced_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`,
		e.Title, e.Description, e.StartTime, e.EndTime, e.AllDay, e.Location,
		e.EntityType, e.EntityID, assigneeTypeValue(e.AssigneeType), e.AssigneeID, e.CalendarID,
		e.ProviderEventID, e.Etag, e.SyncEnabled, e.LastSyncedAt, e.CreatedBy,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	e.ID = id
	e.CreatedAt = time.Now()
	return nil
}

func assigneeTypeValue(t *domain.AssigneeType) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func (s *Storage) GetCalendarEvent(id int64) (*domain.CalendarEvent, error) {
	return s.scanEvent(s.db.QueryRow(
		`SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`, id,
	))
}

func (s *Storage) GetEventByEntity(entityType domain.EntityType, entityID string) (*domain.CalendarEvent, error) {
	return s.scanEvent(s.db.QueryRow(
		`SELECT `+eventColumns+` FROM calendar_events WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID,
	))
}

func (s *Storage) GetEventByProviderID(calendarID, providerEventID string) (*domain.CalendarEvent, error) {
	if providerEventID == "" {
		return nil, nil
	}
	return s.scanEvent(s.db.QueryRow(
		`SELECT `+eventColumns+` FROM calendar_events WHERE calendar_id = ? AND provider_event_id = ?`,
		calendarID, providerEventID,
	))
}

// UpdateCalendarEvent rewrites the mutable fields. entity_type/entity_id are
// immutable after creation and deliberately absent here.
func (s *Storage) UpdateCalendarEvent(e *domain.CalendarEvent) error {
	_, err := s.db.Exec(
		`UPDATE calendar_events SET title = ?, description = ?, start_time = ?, end_time = ?,
			all_day = ?, location = ?, assignee_type = ?, assignee_id = ?,
			provider_event_id = NULLIF(?, ''), etag = NULLIF(?, ''), sync_enabled = ?,
			last_synced_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		e.Title, e.Description, e.StartTime, e.EndTime,
		e.AllDay, e.Location, assigneeTypeValue(e.AssigneeType), e.AssigneeID,
		e.ProviderEventID, e.Etag, e.SyncEnabled, e.LastSyncedAt, e.ID,
	)
	return err
}

// MarkEventSynced records a successful push: provider id, fresh etag, sync time.
func (s *Storage) MarkEventSynced(id int64, providerEventID, etag string, syncedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE calendar_events SET provider_event_id = ?, etag = NULLIF(?, ''),
			last_synced_at = ? WHERE id = ?`,
		providerEventID, etag, syncedAt, id,
	)
	return err
}

func (s *Storage) DeleteCalendarEvent(id int64) error {
	_, err := s.db.Exec(`DELETE FROM calendar_events WHERE id = ?`, id)
	return err
}

func (s *Storage) ListEventsByCalendar(calendarID string) ([]*domain.CalendarEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+eventColumns+` FROM calendar_events WHERE calendar_id = ? ORDER BY start_time`,
		calendarID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.CalendarEvent
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListPendingSyncEvents returns sync-enabled events that have never been
// pushed or whose last push predates their last local update.
func (s *Storage) ListPendingSyncEvents(calendarID string) ([]*domain.CalendarEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+eventColumns+` FROM calendar_events
		 WHERE calendar_id = ? AND sync_enabled = 1
		   AND (provider_event_id IS NULL OR last_synced_at IS NULL OR last_synced_at < updated_at)
		 ORDER BY start_time`,
		calendarID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.CalendarEvent
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// === Push notification channels ===

const channelColumns = `channel_id, resource_id, calendar_id, expiration, created_at`

func (s *Storage) scanChannel(row interface{ Scan(...any) error }) (*domain.PushNotificationChannel, error) {
	c := &domain.PushNotificationChannel{}
	err := row.Scan(&c.ChannelID, &c.ResourceID, &c.CalendarID, &c.Expiration, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Storage) RegisterChannel(c *domain.PushNotificationChannel) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO push_channels (channel_id, resource_id, calendar_id, expiration)
		 VALUES (?, ?, ?, ?)`,
		c.ChannelID, c.ResourceID, c.CalendarID, c.Expiration.UTC(),
	)
	if err != nil {
		return err
	}
	c.CreatedAt = time.Now()
	return nil
}

// FindActiveChannel returns the newest non-expired channel for the calendar.
func (s *Storage) FindActiveChannel(calendarID string, now time.Time) (*domain.PushNotificationChannel, error) {
	return s.scanChannel(s.db.QueryRow(
		`SELECT `+channelColumns+` FROM push_channels
		 WHERE calendar_id = ? AND expiration > ?
		 ORDER BY expiration DESC LIMIT 1`,
		calendarID, now.UTC(),
	))
}

// ValidateChannel resolves a webhook's channel/resource pair to its channel
// row. Unknown or expired pairs return (nil, nil): the webhook must be
// acknowledged but never acted on.
func (s *Storage) ValidateChannel(channelID, resourceID string, now time.Time) (*domain.PushNotificationChannel, error) {
	return s.scanChannel(s.db.QueryRow(
		`SELECT `+channelColumns+` FROM push_channels
		 WHERE channel_id = ? AND resource_id = ? AND expiration > ?`,
		channelID, resourceID, now.UTC(),
	))
}

func (s *Storage) ListChannelsExpiringBefore(threshold time.Time) ([]*domain.PushNotificationChannel, error) {
	rows, err := s.db.Query(
		`SELECT `+channelColumns+` FROM push_channels WHERE expiration < ? ORDER BY expiration`,
		threshold.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*domain.PushNotificationChannel
	for rows.Next() {
		c, err := s.scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// ReplaceChannel installs newCh and removes oldCh in one transaction, so a
// calendar never observably drops to zero registered channels mid-renewal.
// Re-running after a crash is safe: the insert is idempotent and deleting an
// already-removed old channel is a no-op.
func (s *Storage) ReplaceChannel(oldCh, newCh *domain.PushNotificationChannel) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO push_channels (channel_id, resource_id, calendar_id, expiration)
		 VALUES (?, ?, ?, ?)`,
		newCh.ChannelID, newCh.ResourceID, newCh.CalendarID, newCh.Expiration.UTC(),
	); err != nil {
		return fmt.Errorf("insert new channel: %w", err)
	}

	if oldCh != nil {
		if _, err := tx.Exec(
			`DELETE FROM push_channels WHERE channel_id = ?`, oldCh.ChannelID,
		); err != nil {
			return fmt.Errorf("delete old channel: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Storage) DeleteChannel(channelID string) error {
	_, err := s.db.Exec(`DELETE FROM push_channels WHERE channel_id = ?`, channelID)
	return err
}

// ListExpiredWithoutSuccessor finds calendars whose webhook delivery has
// silently died: every registered channel is past expiration. Feeds the
// monitoring alert.
func (s *Storage) ListExpiredWithoutSuccessor(now time.Time) ([]*domain.PushNotificationChannel, error) {
	rows, err := s.db.Query(
		`SELECT `+channelColumns+` FROM push_channels p
		 WHERE expiration <= ?
		   AND NOT EXISTS (
		     SELECT 1 FROM push_channels q
		     WHERE q.calendar_id = p.calendar_id AND q.expiration > ?
		   )
		 ORDER BY calendar_id, expiration`,
		now.UTC(), now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*domain.PushNotificationChannel
	for rows.Next() {
		c, err := s.scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// === Sync cursors ===

func (s *Storage) GetSyncCursor(calendarID string) (*domain.SyncCursor, error) {
	c := &domain.SyncCursor{}
	err := s.db.QueryRow(
		`SELECT calendar_id, next_sync_token, last_sync_time FROM sync_cursors WHERE calendar_id = ?`,
		calendarID,
	).Scan(&c.CalendarID, &c.NextSyncToken, &c.LastSyncTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AdvanceSyncCursor records a completed pull. Last-writer-wins by recency:
// an advance carrying an older sync time than the stored row is a no-op, so
// racing pulls for the same calendar cannot regress the cursor. A cursor
// whose token was invalidated accepts any advance.
func (s *Storage) AdvanceSyncCursor(calendarID, token string, syncTime time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_cursors (calendar_id, next_sync_token, last_sync_time)
		 VALUES (?, ?, ?)
		 ON CONFLICT(calendar_id) DO UPDATE SET
			next_sync_token = excluded.next_sync_token,
			last_sync_time = excluded.last_sync_time
		 WHERE excluded.last_sync_time >= sync_cursors.last_sync_time
			OR sync_cursors.next_sync_token IS NULL`,
		calendarID, token, syncTime.UTC(),
	)
	return err
}

// InvalidateSyncCursor clears the token, forcing a full resync on the next
// pull. Called when the provider reports the token expired.
func (s *Storage) InvalidateSyncCursor(calendarID string) error {
	_, err := s.db.Exec(
		`UPDATE sync_cursors SET next_sync_token = NULL WHERE calendar_id = ?`,
		calendarID,
	)
	return err
}

// === Calendar assignments ===

const assignmentColumns = `id, entity_type, entity_id, assignee_id, calendar_id,
	COALESCE(provider_event_id, ''), COALESCE(etag, ''), start_date, end_date, rate_per_hour, created_at`

func (s *Storage) scanAssignment(row interface{ Scan(...any) error }) (*domain.CalendarAssignment, error) {
	a := &domain.CalendarAssignment{}
	err := row.Scan(
		&a.ID, &a.EntityType, &a.EntityID, &a.AssigneeID, &a.CalendarID,
		&a.ProviderEventID, &a.Etag, &a.StartDate, &a.EndDate, &a.RatePerHour, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Storage) CreateAssignment(a *domain.CalendarAssignment) error {
	res, err := s.db.Exec(
		`INSERT INTO calendar_assignments (entity_type, entity_id, assignee_id, calendar_id,
			provider_event_id, etag, start_date, end_date, rate_per_hour)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.EntityType, a.EntityID, a.AssigneeID, a.CalendarID,
		a.ProviderEventID, a.Etag, a.StartDate.UTC(), a.EndDate, a.RatePerHour,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	a.ID = id
	a.CreatedAt = time.Now()
	return nil
}

// MarkAssignmentsSynced copies the provider fields onto the entity's
// assignment rows after a successful push, keeping the rollup joinable to
// the provider-side event.
func (s *Storage) MarkAssignmentsSynced(entityType domain.EntityType, entityID, providerEventID, etag string) error {
	_, err := s.db.Exec(
		`UPDATE calendar_assignments SET provider_event_id = ?, etag = ?
		 WHERE entity_type = ? AND entity_id = ?`,
		providerEventID, etag, entityType, entityID,
	)
	return err
}

func (s *Storage) DeleteAssignmentsByEntity(entityType domain.EntityType, entityID string) error {
	_, err := s.db.Exec(
		`DELETE FROM calendar_assignments WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID,
	)
	return err
}

// ListAssignmentsOverlapping returns assignments for the entity whose date
// span intersects [from, to). Open-ended assignments match whenever they
// start before the range ends.
func (s *Storage) ListAssignmentsOverlapping(entityType domain.EntityType, entityID string, from, to time.Time) ([]*domain.CalendarAssignment, error) {
	rows, err := s.db.Query(
		`SELECT `+assignmentColumns+` FROM calendar_assignments
		 WHERE entity_type = ? AND entity_id = ?
		   AND start_date < ?
		   AND (end_date IS NULL OR end_date > ?)
		 ORDER BY start_date`,
		entityType, entityID, to.UTC(), from.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []*domain.CalendarAssignment
	for rows.Next() {
		a, err := s.scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// === Calendar scopes and access ===

func (s *Storage) CreateCalendarScope(sc *domain.CalendarScope) error {
	res, err := s.db.Exec(
		`INSERT INTO calendar_scopes (calendar_id, scope_type, scope_id) VALUES (?, ?, ?)`,
		sc.CalendarID, sc.ScopeType, sc.ScopeID,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	sc.ID = id
	sc.CreatedAt = time.Now()
	return nil
}

func (s *Storage) ListScopesByCalendar(calendarID string) ([]*domain.CalendarScope, error) {
	rows, err := s.db.Query(
		`SELECT id, calendar_id, scope_type, scope_id, created_at
		 FROM calendar_scopes WHERE calendar_id = ? ORDER BY id`,
		calendarID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []*domain.CalendarScope
	for rows.Next() {
		sc := &domain.CalendarScope{}
		if err := rows.Scan(&sc.ID, &sc.CalendarID, &sc.ScopeType, &sc.ScopeID, &sc.CreatedAt); err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}

func (s *Storage) GrantCalendarAccess(a *domain.CalendarAccess) error {
	res, err := s.db.Exec(
		`INSERT INTO calendar_access (calendar_id, employee_id, level) VALUES (?, ?, ?)
		 ON CONFLICT(calendar_id, employee_id) DO UPDATE SET level = excluded.level`,
		a.CalendarID, a.EmployeeID, a.Level,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	a.ID = id
	a.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetCalendarAccess(calendarID, employeeID string) (*domain.CalendarAccess, error) {
	a := &domain.CalendarAccess{}
	err := s.db.QueryRow(
		`SELECT id, calendar_id, employee_id, level, created_at
		 FROM calendar_access WHERE calendar_id = ? AND employee_id = ?`,
		calendarID, employeeID,
	).Scan(&a.ID, &a.CalendarID, &a.EmployeeID, &a.Level, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
