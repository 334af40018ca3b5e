/*
merge.go - The occurrence merger (read path)

PURPOSE:
  Produces the final occurrence list for a time window by combining three
  sources: the base event, the recurrence expansion (minus exception
  dates), and the persisted override instances.

MERGE ALGORITHM (per event):
  1. No rule: include the event itself iff it intersects the window.
  2. defaultDates = expand(rule, anchor, window, exceptionDates).
  3. overrides   = instances(eventID, window) - fetched INDEPENDENTLY of
     step 2. An override's date was placed into exceptionDates when it was
     created, so filtering overrides against the post-exclusion date list
     would silently drop every edited occurrence from range results. The
     two sources are unioned instead; by construction a date never appears
     in both.
  4. Sort by start time.

ERROR RECOVERY:
  A corrupt rule inside a window query is logged and yields no occurrences
  for that series, so one damaged row cannot fail a batch. A targeted
  lookup (GetOccurrence) surfaces the same condition as an error.

SEE ALSO:
  - expander.go: Step 2
  - planner.go: Write path
*/
package calendar

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"
)

// =============================================================================
// WINDOW QUERIES
// =============================================================================

// OccurrencesInWindow returns every occurrence on the given calendars whose
// start falls in [from, to], merged and sorted by start time. A "none" role
// on any requested calendar is a hard denial.
func (s *Service) OccurrencesInWindow(ctx context.Context, userID string, calendarIDs []string, from, to time.Time) ([]Occurrence, error) {
	if to.Before(from) {
		return nil, &ValidationError{Field: "window", Reason: "end before start"}
	}

	out := make([]Occurrence, 0)
	for _, calID := range calendarIDs {
		role, err := s.roleOn(ctx, userID, calID, nil)
		if err != nil {
			return nil, err
		}
		if !role.CanView() {
			return nil, &PermissionError{UserID: userID, CalendarID: calID, Role: role}
		}

		events, err := s.store.ListEventsByCalendar(ctx, calID)
		if err != nil {
			return nil, storageErr("list_events", err)
		}

		for _, ev := range events {
			occs, err := s.eventOccurrences(ctx, ev, from, to)
			if err != nil {
				var perr *RecurrenceParseError
				if errors.As(err, &perr) {
					log.Printf("[Expander] skipping corrupt series %s: %v", ev.ID, err)
					continue
				}
				return nil, err
			}
			out = append(out, occs...)
		}
	}

	sortOccurrences(out)
	return out, nil
}

// eventOccurrences merges one event's occurrences for a window.
func (s *Service) eventOccurrences(ctx context.Context, ev *Event, from, to time.Time) ([]Occurrence, error) {
	if !ev.IsRecurring() {
		if overlaps(ev.Start, ev.End, from, to) {
			return []Occurrence{baseOccurrence(ev)}, nil
		}
		return nil, nil
	}

	dates, err := ExpandWindow(ev.Recurrence, ev.Start, from, to, ev.ExceptionDates)
	if err != nil {
		tagEvent(err, ev.ID)
		return nil, err
	}

	overrides, err := s.store.ListInstances(ctx, ev.ID, DateOf(from), DateOf(to))
	if err != nil {
		return nil, storageErr("list_instances", err)
	}

	occs := make([]Occurrence, 0, len(dates)+len(overrides))
	for _, start := range dates {
		occs = append(occs, defaultOccurrence(ev, start))
	}
	for i := range overrides {
		occs = append(occs, overrideOccurrence(ev, &overrides[i]))
	}
	sortOccurrences(occs)
	return occs, nil
}

// =============================================================================
// TARGETED LOOKUPS
// =============================================================================

// GetEvent returns a single event (with its rule attached) by series id.
func (s *Service) GetEvent(ctx context.Context, userID, eventID string) (*Event, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, storageErr("get_event", err)
	}
	if ev == nil {
		return nil, &NotFoundError{Kind: "event", ID: eventID}
	}
	role, err := s.roleOn(ctx, userID, ev.CalendarID, ev)
	if err != nil {
		return nil, err
	}
	if !role.CanView() {
		return nil, &PermissionError{UserID: userID, CalendarID: ev.CalendarID, Role: role}
	}
	return ev, nil
}

// GetOccurrence resolves a {eventID}_{date} address into its merged view.
// Unlike window queries, recurrence parse failures surface here: a caller
// asking about one specific series deserves to know it is corrupt.
func (s *Service) GetOccurrence(ctx context.Context, userID, occurrenceID string) (*Occurrence, error) {
	eventID, date, ok := SplitOccurrenceID(occurrenceID)
	if !ok {
		return nil, &ValidationError{Field: "id", Reason: "not an occurrence address"}
	}

	ev, err := s.GetEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsRecurring() {
		return nil, &NotRecurringError{EventID: eventID}
	}

	// Overrides win: their date is excluded from default expansion.
	inst, err := s.store.GetInstance(ctx, eventID, date)
	if err != nil {
		return nil, storageErr("get_instance", err)
	}
	if inst != nil {
		occ := overrideOccurrence(ev, inst)
		return &occ, nil
	}
	if ev.ExceptionDates.Contains(date) {
		// Cancelled, no override row: the occurrence no longer exists.
		return nil, &NotFoundError{Kind: "instance", ID: occurrenceID}
	}

	day, _ := ParseDate(date)
	starts, err := ExpandWindow(ev.Recurrence, ev.Start, day, endOfDayUTC(day), ev.ExceptionDates)
	if err != nil {
		tagEvent(err, ev.ID)
		return nil, err
	}
	if len(starts) == 0 {
		return nil, &NotFoundError{Kind: "instance", ID: occurrenceID}
	}
	occ := defaultOccurrence(ev, starts[0])
	return &occ, nil
}

// =============================================================================
// OCCURRENCE SYNTHESIS
// =============================================================================

// baseOccurrence is the view of a standalone, non-recurring event.
func baseOccurrence(ev *Event) Occurrence {
	return Occurrence{
		ID:              ev.ID,
		OriginalEventID: ev.ID,
		CalendarID:      ev.CalendarID,
		Title:           ev.Title,
		Description:     ev.Description,
		Location:        ev.Location,
		Color:           ev.Color,
		Visibility:      ev.Visibility,
		Status:          ev.Status,
		IsAllDay:        ev.IsAllDay,
		Start:           ev.Start,
		End:             ev.End,
	}
}

// defaultOccurrence synthesizes an unedited recurring occurrence: the base
// event's fields shifted onto the expanded start, duration preserved.
func defaultOccurrence(ev *Event, start time.Time) Occurrence {
	occ := baseOccurrence(ev)
	occ.InstanceDate = DateOf(start)
	occ.ID = OccurrenceID(ev.ID, occ.InstanceDate)
	occ.Start = start
	occ.End = start.Add(ev.Duration())
	occ.IsRecurringInstance = true
	occ.IsException = false
	return occ
}

// overrideOccurrence synthesizes an edited occurrence: the instance's own
// start/end when present (else the shifted default), with its exception
// fields merged over the base event's.
func overrideOccurrence(ev *Event, inst *EventInstance) Occurrence {
	start := shiftToDate(ev.Start, inst.InstanceDate)
	if inst.Start != nil {
		start = *inst.Start
	}
	end := start.Add(ev.Duration())
	if inst.End != nil {
		end = *inst.End
	}

	occ := baseOccurrence(ev)
	occ.InstanceDate = inst.InstanceDate
	occ.ID = OccurrenceID(ev.ID, inst.InstanceDate)
	occ.Start = start
	occ.End = end
	occ.IsRecurringInstance = true
	occ.IsException = true

	if inst.Exception.Title != nil {
		occ.Title = *inst.Exception.Title
	}
	if inst.Exception.Description != nil {
		occ.Description = *inst.Exception.Description
	}
	if inst.Exception.Location != nil {
		occ.Location = *inst.Exception.Location
	}
	if inst.Exception.Color != nil {
		occ.Color = *inst.Exception.Color
	}
	if inst.Status != "" {
		occ.Status = inst.Status
	}
	return occ
}

func sortOccurrences(occs []Occurrence) {
	sort.Slice(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].ID < occs[j].ID
	})
}

// tagEvent attaches the owning event id to a recurrence parse error.
func tagEvent(err error, eventID string) {
	var perr *RecurrenceParseError
	if errors.As(err, &perr) {
		perr.EventID = eventID
	}
}
