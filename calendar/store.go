/*
store.go - Persistence interfaces for events, rules, and instances

PURPOSE:
  Defines the boundary between the engine and the backing store. Two
  implementations exist: store/sqlite (production) and calendar/store
  (in-memory, for tests and dev).

CONTRACTS:
  - GetEvent returns the event with its recurrence rule attached, or
    (nil, nil) when absent. Missing-row handling is the caller's concern.
  - SaveEvent upserts the event row only; the rule row is managed through
    SaveRule/DeleteRule so the planner controls replace/remove semantics.
  - SaveInstance upserts on (EventID, InstanceDate); at most one row per
    pair ever exists.
  - DeleteEvent cascades the rule row and all instance rows.

ATOMICITY:
  Multi-row writes go through TxStore.WithTx. If fn returns an error the
  transaction is rolled back in full; partial application is never visible
  to concurrent readers.

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - calendar/store/memory.go: In-memory implementation
*/
package calendar

import "context"

// Store handles persistence of events, recurrence rules, and instances.
type Store interface {
	// Events
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEventsByCalendar(ctx context.Context, calendarID string) ([]*Event, error)
	SaveEvent(ctx context.Context, ev *Event) error
	DeleteEvent(ctx context.Context, id string) error

	// Recurrence rules (1:1 with events, keyed by event id)
	SaveRule(ctx context.Context, eventID string, rule *RecurrenceRule) error
	DeleteRule(ctx context.Context, eventID string) error

	// Instances (per-occurrence overrides)
	GetInstance(ctx context.Context, eventID, date string) (*EventInstance, error)
	ListInstances(ctx context.Context, eventID, fromDate, toDate string) ([]EventInstance, error)
	SaveInstance(ctx context.Context, inst *EventInstance) error
	DeleteInstance(ctx context.Context, eventID, date string) error
}

// TxStore wraps Store with transaction support. Every multi-row mutation in
// planner.go runs inside WithTx.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
