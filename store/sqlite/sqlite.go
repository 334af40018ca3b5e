/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements calendar.Store and calendar.TxStore using SQLite, plus an
  AccessGate backed by a grants table. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  events:           One row per event (series or standalone)
  recurrence_rules: At most one row per event (PK = event_id)
  event_instances:  Per-occurrence overrides, UNIQUE(event_id, instance_date)
  calendar_grants:  Role grants backing the access gate

CASCADES:
  Foreign keys are ON with ON DELETE CASCADE from events to both
  recurrence_rules and event_instances, so a series delete is one DELETE.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/calendar.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := calendar.NewService(store, store.Gate())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - calendar/store.go: Interface definitions
  - calendar/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/calendar-engine/calendar"
)

// Store implements calendar.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		calendar_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		is_all_day BOOLEAN NOT NULL DEFAULT FALSE,
		color TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'default',
		status TEXT NOT NULL DEFAULT 'confirmed',
		created_by TEXT NOT NULL DEFAULT '',
		exception_dates TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Window queries scan a calendar by start time (hot path)
	CREATE INDEX IF NOT EXISTS idx_events_calendar_start
		ON events(calendar_id, start_time);

	CREATE TABLE IF NOT EXISTS recurrence_rules (
		event_id TEXT PRIMARY KEY REFERENCES events(id) ON DELETE CASCADE,
		frequency TEXT NOT NULL,
		interval INTEGER NOT NULL DEFAULT 1,
		count INTEGER,
		until TEXT,
		by_day TEXT NOT NULL DEFAULT '[]',
		rule_text TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS event_instances (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		instance_date TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		is_exception BOOLEAN NOT NULL DEFAULT TRUE,
		exception_data TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT ''
	);

	-- At most one override per (event, date); writes are upserts against it
	CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_event_date
		ON event_instances(event_id, instance_date);

	CREATE TABLE IF NOT EXISTS calendar_grants (
		calendar_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (calendar_id, user_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so every query helper can run inside
// or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// EVENTS
// =============================================================================

const eventColumns = `id, calendar_id, title, description, location, start_time, end_time,
	is_all_day, color, visibility, status, created_by, exception_dates, version,
	created_at, updated_at`

func (s *Store) GetEvent(ctx context.Context, id string) (*calendar.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEvent(ctx, s.db, id)
}

func (s *Store) getEvent(ctx context.Context, q dbtx, id string) (*calendar.Event, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rule, err := s.getRule(ctx, q, id)
	if err != nil {
		return nil, err
	}
	ev.Recurrence = rule
	return ev, nil
}

func (s *Store) ListEventsByCalendar(ctx context.Context, calendarID string) ([]*calendar.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEvents(ctx, s.db, calendarID)
}

func (s *Store) listEvents(ctx context.Context, q dbtx, calendarID string) ([]*calendar.Event, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE calendar_id = ? ORDER BY start_time ASC`,
		calendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*calendar.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ev := range events {
		rule, err := s.getRule(ctx, q, ev.ID)
		if err != nil {
			return nil, err
		}
		ev.Recurrence = rule
	}
	return events, nil
}

func (s *Store) SaveEvent(ctx context.Context, ev *calendar.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveEvent(ctx, s.db, ev)
}

func (s *Store) saveEvent(ctx context.Context, q dbtx, ev *calendar.Event) error {
	exceptionJSON, err := json.Marshal(ev.ExceptionDates)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events
		(id, calendar_id, title, description, location, start_time, end_time,
		 is_all_day, color, visibility, status, created_by, exception_dates,
		 version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			title = excluded.title,
			description = excluded.description,
			location = excluded.location,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			is_all_day = excluded.is_all_day,
			color = excluded.color,
			visibility = excluded.visibility,
			status = excluded.status,
			exception_dates = excluded.exception_dates,
			version = excluded.version,
			updated_at = excluded.updated_at
	`

	_, err = q.ExecContext(ctx, query,
		ev.ID, ev.CalendarID, ev.Title, ev.Description, ev.Location,
		ev.Start.UTC().Format(time.RFC3339), ev.End.UTC().Format(time.RFC3339),
		ev.IsAllDay, ev.Color, string(ev.Visibility), string(ev.Status),
		ev.CreatedBy, string(exceptionJSON), ev.Version,
		ev.CreatedAt.UTC().Format(time.RFC3339), ev.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteEvent(ctx, s.db, id)
}

func (s *Store) deleteEvent(ctx context.Context, q dbtx, id string) error {
	// Rule and instance rows go with it via ON DELETE CASCADE.
	_, err := q.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	return err
}

func scanEvent(row rowScanner) (*calendar.Event, error) {
	var (
		ev                   calendar.Event
		startTime, endTime   string
		visibility, status   string
		exceptionJSON        string
		createdAt, updatedAt string
	)

	err := row.Scan(
		&ev.ID, &ev.CalendarID, &ev.Title, &ev.Description, &ev.Location,
		&startTime, &endTime, &ev.IsAllDay, &ev.Color, &visibility, &status,
		&ev.CreatedBy, &exceptionJSON, &ev.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.Start, _ = time.Parse(time.RFC3339, startTime)
	ev.End, _ = time.Parse(time.RFC3339, endTime)
	ev.Visibility = calendar.Visibility(visibility)
	ev.Status = calendar.EventStatus(status)
	ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	ev.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if err := json.Unmarshal([]byte(exceptionJSON), &ev.ExceptionDates); err != nil {
		return nil, fmt.Errorf("corrupt exception_dates on event %s: %w", ev.ID, err)
	}
	return &ev, nil
}

// =============================================================================
// RECURRENCE RULES
// =============================================================================

func (s *Store) SaveRule(ctx context.Context, eventID string, rule *calendar.RecurrenceRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRule(ctx, s.db, eventID, rule)
}

func (s *Store) saveRule(ctx context.Context, q dbtx, eventID string, rule *calendar.RecurrenceRule) error {
	byDayJSON, err := json.Marshal(rule.ByDay)
	if err != nil {
		return err
	}

	var count sql.NullInt64
	if rule.Count != nil {
		count = sql.NullInt64{Int64: int64(*rule.Count), Valid: true}
	}
	var until sql.NullString
	if rule.Until != nil {
		until = sql.NullString{String: rule.Until.UTC().Format(time.RFC3339), Valid: true}
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	query := `
		INSERT INTO recurrence_rules (event_id, frequency, interval, count, until, by_day, rule_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			frequency = excluded.frequency,
			interval = excluded.interval,
			count = excluded.count,
			until = excluded.until,
			by_day = excluded.by_day,
			rule_text = excluded.rule_text
	`

	_, err = q.ExecContext(ctx, query,
		eventID, string(rule.Frequency), interval, count, until,
		string(byDayJSON), rule.Text(),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteRule(ctx, s.db, eventID)
}

func (s *Store) deleteRule(ctx context.Context, q dbtx, eventID string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM recurrence_rules WHERE event_id = ?", eventID)
	return err
}

func (s *Store) getRule(ctx context.Context, q dbtx, eventID string) (*calendar.RecurrenceRule, error) {
	var (
		rule      calendar.RecurrenceRule
		frequency string
		count     sql.NullInt64
		until     sql.NullString
		byDayJSON string
		ruleText  string
	)

	err := q.QueryRowContext(ctx,
		`SELECT frequency, interval, count, until, by_day, rule_text
		 FROM recurrence_rules WHERE event_id = ?`, eventID,
	).Scan(&frequency, &rule.Interval, &count, &until, &byDayJSON, &ruleText)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rule.Frequency = calendar.Frequency(frequency)
	if count.Valid {
		c := int(count.Int64)
		rule.Count = &c
	}
	if until.Valid {
		t, err := time.Parse(time.RFC3339, until.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt until on rule %s: %w", eventID, err)
		}
		rule.Until = &t
	}
	if err := json.Unmarshal([]byte(byDayJSON), &rule.ByDay); err != nil {
		return nil, fmt.Errorf("corrupt by_day on rule %s: %w", eventID, err)
	}
	return &rule, nil
}

// =============================================================================
// EVENT INSTANCES
// =============================================================================

const instanceColumns = `id, event_id, instance_date, start_time, end_time,
	is_exception, exception_data, status`

func (s *Store) GetInstance(ctx context.Context, eventID, date string) (*calendar.EventInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getInstance(ctx, s.db, eventID, date)
}

func (s *Store) getInstance(ctx context.Context, q dbtx, eventID, date string) (*calendar.EventInstance, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM event_instances
		 WHERE event_id = ? AND instance_date = ?`, eventID, date)

	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Store) ListInstances(ctx context.Context, eventID, fromDate, toDate string) ([]calendar.EventInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listInstances(ctx, s.db, eventID, fromDate, toDate)
}

func (s *Store) listInstances(ctx context.Context, q dbtx, eventID, fromDate, toDate string) ([]calendar.EventInstance, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM event_instances
		 WHERE event_id = ? AND instance_date >= ? AND instance_date <= ?
		 ORDER BY instance_date ASC`,
		eventID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []calendar.EventInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, *inst)
	}
	return instances, rows.Err()
}

func (s *Store) SaveInstance(ctx context.Context, inst *calendar.EventInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveInstance(ctx, s.db, inst)
}

func (s *Store) saveInstance(ctx context.Context, q dbtx, inst *calendar.EventInstance) error {
	exceptionJSON, err := json.Marshal(inst.Exception)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO event_instances
		(id, event_id, instance_date, start_time, end_time, is_exception, exception_data, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id, instance_date) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			is_exception = excluded.is_exception,
			exception_data = excluded.exception_data,
			status = excluded.status
	`

	_, err = q.ExecContext(ctx, query,
		inst.ID, inst.EventID, inst.InstanceDate,
		nullTime(inst.Start), nullTime(inst.End),
		inst.IsException, string(exceptionJSON), string(inst.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}
	return nil
}

func (s *Store) DeleteInstance(ctx context.Context, eventID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteInstance(ctx, s.db, eventID, date)
}

func (s *Store) deleteInstance(ctx context.Context, q dbtx, eventID, date string) error {
	_, err := q.ExecContext(ctx,
		"DELETE FROM event_instances WHERE event_id = ? AND instance_date = ?",
		eventID, date)
	return err
}

func scanInstance(row rowScanner) (*calendar.EventInstance, error) {
	var (
		inst               calendar.EventInstance
		startTime, endTime sql.NullString
		exceptionJSON      string
		status             string
	)

	err := row.Scan(
		&inst.ID, &inst.EventID, &inst.InstanceDate,
		&startTime, &endTime, &inst.IsException, &exceptionJSON, &status,
	)
	if err != nil {
		return nil, err
	}

	if startTime.Valid {
		t, _ := time.Parse(time.RFC3339, startTime.String)
		inst.Start = &t
	}
	if endTime.Valid {
		t, _ := time.Parse(time.RFC3339, endTime.String)
		inst.End = &t
	}
	inst.Status = calendar.EventStatus(status)

	if err := json.Unmarshal([]byte(exceptionJSON), &inst.Exception); err != nil {
		return nil, fmt.Errorf("corrupt exception_data on instance %s: %w", inst.ID, err)
	}
	return &inst, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store calendar.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every Store call through the open transaction.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) GetEvent(ctx context.Context, id string) (*calendar.Event, error) {
	return ts.parent.getEvent(ctx, ts.tx, id)
}

func (ts *txStore) ListEventsByCalendar(ctx context.Context, calendarID string) ([]*calendar.Event, error) {
	return ts.parent.listEvents(ctx, ts.tx, calendarID)
}

func (ts *txStore) SaveEvent(ctx context.Context, ev *calendar.Event) error {
	return ts.parent.saveEvent(ctx, ts.tx, ev)
}

func (ts *txStore) DeleteEvent(ctx context.Context, id string) error {
	return ts.parent.deleteEvent(ctx, ts.tx, id)
}

func (ts *txStore) SaveRule(ctx context.Context, eventID string, rule *calendar.RecurrenceRule) error {
	return ts.parent.saveRule(ctx, ts.tx, eventID, rule)
}

func (ts *txStore) DeleteRule(ctx context.Context, eventID string) error {
	return ts.parent.deleteRule(ctx, ts.tx, eventID)
}

func (ts *txStore) GetInstance(ctx context.Context, eventID, date string) (*calendar.EventInstance, error) {
	return ts.parent.getInstance(ctx, ts.tx, eventID, date)
}

func (ts *txStore) ListInstances(ctx context.Context, eventID, fromDate, toDate string) ([]calendar.EventInstance, error) {
	return ts.parent.listInstances(ctx, ts.tx, eventID, fromDate, toDate)
}

func (ts *txStore) SaveInstance(ctx context.Context, inst *calendar.EventInstance) error {
	return ts.parent.saveInstance(ctx, ts.tx, inst)
}

func (ts *txStore) DeleteInstance(ctx context.Context, eventID, date string) error {
	return ts.parent.deleteInstance(ctx, ts.tx, eventID, date)
}

// =============================================================================
// ACCESS GATE
// =============================================================================

// Gate returns an AccessGate backed by the calendar_grants table.
func (s *Store) Gate() calendar.AccessGate {
	return &grantGate{store: s}
}

type grantGate struct {
	store *Store
}

func (g *grantGate) ResolveRole(ctx context.Context, userID, calendarID string) (calendar.Role, error) {
	g.store.mu.RLock()
	defer g.store.mu.RUnlock()

	rows, err := g.store.db.QueryContext(ctx,
		"SELECT user_id, role FROM calendar_grants WHERE calendar_id = ?",
		calendarID)
	if err != nil {
		return calendar.RoleNone, err
	}
	defer rows.Close()

	ownerID := ""
	shares := make(map[string]calendar.Role)
	for rows.Next() {
		var uid, role string
		if err := rows.Scan(&uid, &role); err != nil {
			return calendar.RoleNone, err
		}
		if calendar.Role(role) == calendar.RoleOwner {
			ownerID = uid
		} else {
			shares[uid] = calendar.Role(role)
		}
	}
	if err := rows.Err(); err != nil {
		return calendar.RoleNone, err
	}

	return calendar.ResolveRole(userID, ownerID, shares), nil
}

// SaveGrant upserts a role grant. Grant management is an external concern;
// this exists so deployments and tests can provision roles.
func (s *Store) SaveGrant(ctx context.Context, calendarID, userID string, role calendar.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO calendar_grants (calendar_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(calendar_id, user_id) DO UPDATE SET
			role = excluded.role
	`
	_, err := s.db.ExecContext(ctx, query,
		calendarID, userID, string(role), time.Now().UTC().Format(time.RFC3339))
	return err
}

// DeleteGrant removes a role grant.
func (s *Store) DeleteGrant(ctx context.Context, calendarID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM calendar_grants WHERE calendar_id = ? AND user_id = ?",
		calendarID, userID)
	return err
}
