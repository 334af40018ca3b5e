/*
Package calendar provides the core event and recurrence engine.

PURPOSE:
  This package contains the domain types and algorithms for calendar events:
  recurring series expansion, per-occurrence overrides, the merged occurrence
  view, and the transactional mutation planner. Storage and HTTP are kept
  behind interfaces so the engine is testable in isolation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Event: A calendar entry, optionally owning one RecurrenceRule
  - RecurrenceRule: Value object describing how a series repeats
  - EventInstance: A persisted deviation for a single occurrence
  - Occurrence: The ephemeral, merged view returned to callers
  - DateSet: Civil-date set used for exception dates

DESIGN PRINCIPLES:
  1. The rule is owned by the Event aggregate (optional embedded field),
     so "at most one rule per event" holds structurally.
  2. Occurrence identifiers are deterministic: {eventID}_{YYYY-MM-DD}.
  3. Instance dates are UTC civil dates; all stored timestamps are UTC.
  4. Partial updates are expressed as patch types with pointer fields.

SEE ALSO:
  - rule.go: Rule text parsing and serialization
  - expander.go: Window expansion
  - merge.go: Occurrence merging
  - planner.go: Transactional mutations
*/
package calendar

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS & DATES
// =============================================================================

// DateLayout is the civil-date form used for instance dates and occurrence ids.
const DateLayout = "2006-01-02"

// DateOf returns the UTC civil date of a timestamp.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD civil date into a UTC midnight timestamp.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// OccurrenceID builds the deterministic id of one occurrence of an event.
func OccurrenceID(eventID, date string) string {
	return eventID + "_" + date
}

// SplitOccurrenceID splits an id of the form {eventID}_{YYYY-MM-DD}.
// Event ids may contain underscores, so the date is taken from the last
// separator and must parse as a civil date for the split to count.
func SplitOccurrenceID(id string) (eventID, date string, ok bool) {
	i := strings.LastIndex(id, "_")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	date = id[i+1:]
	if _, err := ParseDate(date); err != nil {
		return "", "", false
	}
	return id[:i], date, true
}

// =============================================================================
// DATE SET - Exception dates with set semantics
// =============================================================================

// DateSet is a set of civil dates (YYYY-MM-DD). The zero value is usable.
// It serializes as a sorted JSON array so storage stays deterministic.
type DateSet struct {
	dates map[string]struct{}
}

func NewDateSet(dates ...string) DateSet {
	s := DateSet{}
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

func (s *DateSet) Add(date string) {
	if s.dates == nil {
		s.dates = make(map[string]struct{})
	}
	s.dates[date] = struct{}{}
}

func (s DateSet) Contains(date string) bool {
	_, ok := s.dates[date]
	return ok
}

func (s DateSet) Len() int { return len(s.dates) }

// Dates returns the members in ascending order.
func (s DateSet) Dates() []string {
	out := make([]string, 0, len(s.dates))
	for d := range s.dates {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s DateSet) Clone() DateSet {
	c := DateSet{}
	for d := range s.dates {
		c.Add(d)
	}
	return c
}

func (s DateSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Dates())
}

func (s *DateSet) UnmarshalJSON(data []byte) error {
	var dates []string
	if err := json.Unmarshal(data, &dates); err != nil {
		return err
	}
	*s = NewDateSet(dates...)
	return nil
}

// =============================================================================
// RECURRENCE RULE - Value object owned by the Event aggregate
// =============================================================================

type Frequency string

const (
	FreqDaily   Frequency = "DAILY"
	FreqWeekly  Frequency = "WEEKLY"
	FreqMonthly Frequency = "MONTHLY"
	FreqYearly  Frequency = "YEARLY"
)

// RecurrenceRule describes how a series repeats. Count and Until are
// optional and mutually independent; ByDay filters intersect with Frequency.
type RecurrenceRule struct {
	Frequency Frequency
	Interval  int        // 1 when unset
	Count     *int       // total occurrences, nil = unbounded
	Until     *time.Time // inclusive end, nil = unbounded
	ByDay     []string   // two-letter day codes: MO TU WE TH FR SA SU
}

// =============================================================================
// EVENT - The series aggregate
// =============================================================================

type Visibility string

const (
	VisibilityDefault Visibility = "default"
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

type Event struct {
	ID          string
	CalendarID  string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	IsAllDay    bool
	Color       string
	Visibility  Visibility
	Status      EventStatus
	CreatedBy   string

	// Recurrence is nil for standalone events. At most one rule per event,
	// guaranteed by ownership rather than convention.
	Recurrence *RecurrenceRule

	// ExceptionDates holds every date whose default expansion is suppressed,
	// whether cancelled or overridden. It only ever grows.
	ExceptionDates DateSet

	// Version increments on every successful mutation. Advisory only.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRecurring reports whether the event owns a recurrence rule.
func (e *Event) IsRecurring() bool { return e.Recurrence != nil }

// Duration returns the span of one occurrence.
func (e *Event) Duration() time.Duration { return e.End.Sub(e.Start) }

// =============================================================================
// EVENT INSTANCE - Persisted per-occurrence override
// =============================================================================

// ExceptionData is the partial field override carried by an instance.
// Nil fields fall back to the base event.
type ExceptionData struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
	Color       *string `json:"color,omitempty"`
}

// EventInstance records how one occurrence deviates from the series default.
// At most one row exists per (EventID, InstanceDate); writes are upserts on
// that pair. A row exists only for overridden occurrences, never for dates
// that were merely cancelled.
type EventInstance struct {
	ID           string
	EventID      string
	InstanceDate string // YYYY-MM-DD
	Start        *time.Time
	End          *time.Time // nil start/end means "compute the shifted default"
	IsException  bool
	Exception    ExceptionData
	Status       EventStatus
}

// =============================================================================
// OCCURRENCE - Ephemeral merged view (never persisted)
// =============================================================================

type Occurrence struct {
	ID                  string
	OriginalEventID     string
	CalendarID          string
	Title               string
	Description         string
	Location            string
	Color               string
	Visibility          Visibility
	Status              EventStatus
	IsAllDay            bool
	Start               time.Time
	End                 time.Time
	IsRecurringInstance bool
	IsException         bool
	InstanceDate        string
}

// =============================================================================
// PATCHES - Partial updates for series and instances
// =============================================================================

// EventPatch is a partial update to a series. Nil fields are left untouched.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
	IsAllDay    *bool
	Color       *string
	Visibility  *Visibility
	Status      *EventStatus
}

// Apply copies the set fields onto the event.
func (p EventPatch) Apply(e *Event) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Start != nil {
		e.Start = p.Start.UTC()
	}
	if p.End != nil {
		e.End = p.End.UTC()
	}
	if p.IsAllDay != nil {
		e.IsAllDay = *p.IsAllDay
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.Visibility != nil {
		e.Visibility = *p.Visibility
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
}

// RuleChange expresses the tri-state rule intent of a series update:
// replace (Set non-nil), remove (Clear true), or keep (zero value).
type RuleChange struct {
	Set   *RecurrenceRule
	Clear bool
}

// InstancePatch is a partial update to a single occurrence.
type InstancePatch struct {
	Start       *time.Time
	End         *time.Time
	Title       *string
	Description *string
	Location    *string
	Color       *string
	Status      *EventStatus
}

// DeleteScope is the breadth of a delete operation.
type DeleteScope string

const (
	ScopeThis   DeleteScope = "this"
	ScopeFuture DeleteScope = "future"
	ScopeAll    DeleteScope = "all"
)

// ParseScope validates a scope string; empty means ScopeAll.
func ParseScope(s string) (DeleteScope, error) {
	switch DeleteScope(s) {
	case ScopeThis, ScopeFuture, ScopeAll:
		return DeleteScope(s), nil
	case "":
		return ScopeAll, nil
	}
	return "", &ValidationError{Field: "scope", Reason: fmt.Sprintf("unknown scope %q", s)}
}
