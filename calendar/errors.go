/*
errors.go - Centralized error types for the calendar engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP statuses; nothing above this package
  should match on error strings.

ERROR CATEGORIES:
  1. Validation errors - Missing or malformed input
  2. Permission errors - Role insufficient for the operation
  3. Not-found / not-recurring - Addressing errors
  4. Recurrence parse errors - Corrupt rule text
  5. Storage errors - Transaction failures (always fully rolled back)

USAGE:
  Callers branch with errors.Is / errors.As:

    if errors.Is(err, calendar.ErrNotFound) { ... }

    var perr *calendar.PermissionError
    if errors.As(err, &perr) { ... }
*/
package calendar

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when required fields are missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrPermissionDenied is returned when the caller's role is insufficient.
	// A "none" role on read is a hard denial, not silent filtering.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when an event, instance, or calendar is missing.
	ErrNotFound = errors.New("not found")

	// ErrNotRecurring is returned for instance-scoped operations on a
	// non-recurring event.
	ErrNotRecurring = errors.New("event is not recurring")

	// ErrRecurrenceParse is returned for malformed rule text. Window queries
	// recover from it locally; targeted requests surface it.
	ErrRecurrenceParse = errors.New("invalid recurrence rule")

	// ErrStorage wraps any transaction failure after rollback.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PermissionError records who was denied what.
type PermissionError struct {
	UserID     string
	CalendarID string
	Role       Role
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s has role %q on calendar %s",
		e.UserID, e.Role, e.CalendarID)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Kind string // "event", "instance", "calendar"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotRecurringError marks an instance operation on a standalone event.
type NotRecurringError struct {
	EventID string
}

func (e *NotRecurringError) Error() string {
	return fmt.Sprintf("event %s is not recurring", e.EventID)
}

func (e *NotRecurringError) Unwrap() error { return ErrNotRecurring }

// RecurrenceParseError carries the corrupt rule text and its cause.
type RecurrenceParseError struct {
	EventID  string
	RuleText string
	Err      error
}

func (e *RecurrenceParseError) Error() string {
	return fmt.Sprintf("invalid recurrence rule %q on event %s: %v", e.RuleText, e.EventID, e.Err)
}

func (e *RecurrenceParseError) Unwrap() error { return ErrRecurrenceParse }

// StorageError wraps a failed transaction. The operation was rolled back
// in full before this error propagated.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError reports whether the error is due to invalid client input
// or insufficient permission (4xx territory, not a server fault).
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotRecurring) ||
		errors.Is(err, ErrRecurrenceParse)
}
