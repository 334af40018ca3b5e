/*
service.go - Engine entry point and shared helpers

PURPOSE:
  Service wires the store and the access gate together. Read operations
  (the occurrence merger) live in merge.go, write operations (the series
  mutation planner) in planner.go.

CLOCK:
  "Delete future occurrences" truncates a series relative to today, so the
  clock is injectable for tests. Production uses time.Now.
*/
package calendar

import (
	"context"
	"time"
)

// Service exposes the calendar engine's operations.
type Service struct {
	store TxStore
	gate  AccessGate

	// Clock returns the current time. Overridable in tests.
	Clock func() time.Time
}

// NewService creates a Service backed by the given store and access gate.
func NewService(store TxStore, gate AccessGate) *Service {
	return &Service{
		store: store,
		gate:  gate,
		Clock: time.Now,
	}
}

// roleOn resolves the caller's effective role on a calendar, with creator
// elevation when ev is non-nil.
func (s *Service) roleOn(ctx context.Context, userID, calendarID string, ev *Event) (Role, error) {
	role, err := s.gate.ResolveRole(ctx, userID, calendarID)
	if err != nil {
		return RoleNone, &StorageError{Op: "resolve_role", Err: err}
	}
	return EffectiveRole(role, ev, userID), nil
}

// storageErr wraps raw store failures while letting domain errors through.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsNotFound(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// shiftToDate moves a timestamp onto another civil date, preserving its
// time of day. Used to synthesize default occurrence starts.
func shiftToDate(base time.Time, date string) time.Time {
	d, err := ParseDate(date)
	if err != nil {
		return base
	}
	b := base.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(),
		b.Hour(), b.Minute(), b.Second(), b.Nanosecond(), time.UTC)
}

// overlaps reports whether [aStart, aEnd] intersects [bStart, bEnd].
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}

func endOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, time.UTC)
}
