/*
planner.go - The series mutation planner (write path)

PURPOSE:
  Orchestrates create/update/delete across the event row, the recurrence
  rule row, and the instance rows as atomic operations, after a role check
  through the access gate.

TRANSACTIONS:
  Every branch below runs inside a single store transaction. Failure
  anywhere rolls the whole operation back; concurrent readers never see a
  partially applied mutation.

VERSIONING:
  Event.Version increments on every successful mutation. It is advisory
  only - there is no optimistic-lock precondition, and concurrent series
  updates are last-writer-wins.

SEE ALSO:
  - merge.go: Read path
  - store.go: Transaction contract
*/
package calendar

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// CREATE
// =============================================================================

// CreateSeries inserts an event and, when present, its recurrence rule in
// one transaction. Requires edit capability on the target calendar.
func (s *Service) CreateSeries(ctx context.Context, userID string, ev Event) (*Event, error) {
	if err := validateNewEvent(&ev); err != nil {
		return nil, err
	}

	role, err := s.roleOn(ctx, userID, ev.CalendarID, nil)
	if err != nil {
		return nil, err
	}
	if !role.CanEdit() {
		return nil, &PermissionError{UserID: userID, CalendarID: ev.CalendarID, Role: role}
	}

	if ev.Recurrence != nil {
		if err := ev.Recurrence.Validate(); err != nil {
			return nil, err
		}
	}

	now := s.Clock().UTC()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.CreatedBy = userID
	ev.Start = ev.Start.UTC()
	ev.End = ev.End.UTC()
	if ev.Status == "" {
		ev.Status = StatusConfirmed
	}
	if ev.Visibility == "" {
		ev.Visibility = VisibilityDefault
	}
	ev.ExceptionDates = DateSet{}
	ev.Version = 1
	ev.CreatedAt = now
	ev.UpdatedAt = now

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveEvent(ctx, &ev); err != nil {
			return err
		}
		if ev.Recurrence != nil {
			return tx.SaveRule(ctx, ev.ID, ev.Recurrence)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("create_series", err)
	}
	return &ev, nil
}

func validateNewEvent(ev *Event) error {
	switch {
	case ev.CalendarID == "":
		return &ValidationError{Field: "calendarId", Reason: "required"}
	case ev.Title == "":
		return &ValidationError{Field: "title", Reason: "required"}
	case ev.Start.IsZero():
		return &ValidationError{Field: "startTime", Reason: "required"}
	case ev.End.IsZero():
		return &ValidationError{Field: "endTime", Reason: "required"}
	case ev.End.Before(ev.Start):
		return &ValidationError{Field: "endTime", Reason: "before startTime"}
	}
	return nil
}

// =============================================================================
// UPDATE SERIES
// =============================================================================

// UpdateSeries applies a partial patch to an event and replaces, inserts,
// or deletes its recurrence rule according to the RuleChange tri-state.
// Addressing a single occurrence here is an explicit error: callers must
// use UpdateInstance for that.
func (s *Service) UpdateSeries(ctx context.Context, userID, eventID string, patch EventPatch, rule RuleChange) (*Event, error) {
	if _, _, ok := SplitOccurrenceID(eventID); ok {
		return nil, &ValidationError{Field: "id", Reason: "addresses a single occurrence; update the instance instead"}
	}

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
	if !role.CanEdit() {
		return nil, &PermissionError{UserID: userID, CalendarID: ev.CalendarID, Role: role}
	}

	patch.Apply(ev)
	if ev.End.Before(ev.Start) {
		return nil, &ValidationError{Field: "endTime", Reason: "before startTime"}
	}
	if rule.Set != nil {
		if err := rule.Set.Validate(); err != nil {
			return nil, err
		}
	}

	ev.Version++
	ev.UpdatedAt = s.Clock().UTC()

	err = s.store.WithTx(ctx, func(tx Store) error {
		switch {
		case rule.Set != nil:
			ev.Recurrence = rule.Set
			if err := tx.SaveRule(ctx, ev.ID, rule.Set); err != nil {
				return err
			}
		case rule.Clear && ev.Recurrence != nil:
			ev.Recurrence = nil
			if err := tx.DeleteRule(ctx, ev.ID); err != nil {
				return err
			}
		}
		return tx.SaveEvent(ctx, ev)
	})
	if err != nil {
		return nil, storageErr("update_series", err)
	}
	return ev, nil
}

// =============================================================================
// UPDATE INSTANCE
// =============================================================================

// UpdateInstance upserts the override row for one occurrence of a recurring
// event. If no row exists yet, default start/end are computed the same way
// the merger would, then the patch is applied on top. The date joins
// exceptionDates so default expansion stops emitting it.
func (s *Service) UpdateInstance(ctx context.Context, userID, eventID, date string, patch InstancePatch) (*Occurrence, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

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
	if !role.CanEdit() {
		return nil, &PermissionError{UserID: userID, CalendarID: ev.CalendarID, Role: role}
	}
	if !ev.IsRecurring() {
		return nil, &NotRecurringError{EventID: eventID}
	}

	inst, err := s.store.GetInstance(ctx, eventID, date)
	if err != nil {
		return nil, storageErr("get_instance", err)
	}
	if inst == nil {
		start := shiftToDate(ev.Start, date)
		end := start.Add(ev.Duration())
		inst = &EventInstance{
			ID:           uuid.NewString(),
			EventID:      eventID,
			InstanceDate: date,
			Start:        &start,
			End:          &end,
			IsException:  true,
			Status:       ev.Status,
		}
	}
	applyInstancePatch(inst, patch)

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveInstance(ctx, inst); err != nil {
			return err
		}
		if !ev.ExceptionDates.Contains(date) {
			ev.ExceptionDates.Add(date)
		}
		ev.Version++
		ev.UpdatedAt = s.Clock().UTC()
		return tx.SaveEvent(ctx, ev)
	})
	if err != nil {
		return nil, storageErr("update_instance", err)
	}

	occ := overrideOccurrence(ev, inst)
	return &occ, nil
}

func applyInstancePatch(inst *EventInstance, patch InstancePatch) {
	if patch.Start != nil {
		t := patch.Start.UTC()
		inst.Start = &t
	}
	if patch.End != nil {
		t := patch.End.UTC()
		inst.End = &t
	}
	if patch.Title != nil {
		inst.Exception.Title = patch.Title
	}
	if patch.Description != nil {
		inst.Exception.Description = patch.Description
	}
	if patch.Location != nil {
		inst.Exception.Location = patch.Location
	}
	if patch.Color != nil {
		inst.Exception.Color = patch.Color
	}
	if patch.Status != nil {
		inst.Status = *patch.Status
	}
	inst.IsException = true
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteOccurrence deletes at one of three scopes. The id may directly
// address an occurrence ({eventID}_{date}, scope implied "this") or a
// series id with an explicit scope.
//
//	this:   add the date to exceptionDates and drop its override row;
//	        the event and rule are untouched.
//	future: rewrite the rule's UNTIL to the end of yesterday, truncating
//	        the generative boundary. Past override rows are kept.
//	all:    delete the event row, cascading the rule and all instances.
//	        Non-recurring events always take this branch.
func (s *Service) DeleteOccurrence(ctx context.Context, userID, id string, scope DeleteScope) error {
	eventID := id
	date := ""
	if evID, d, ok := SplitOccurrenceID(id); ok {
		eventID, date = evID, d
		scope = ScopeThis
	}

	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return storageErr("get_event", err)
	}
	if ev == nil {
		return &NotFoundError{Kind: "event", ID: eventID}
	}

	role, err := s.roleOn(ctx, userID, ev.CalendarID, ev)
	if err != nil {
		return err
	}
	if !role.CanEdit() {
		return &PermissionError{UserID: userID, CalendarID: ev.CalendarID, Role: role}
	}

	if !ev.IsRecurring() && scope != ScopeAll {
		if scope == ScopeThis {
			return &NotRecurringError{EventID: eventID}
		}
		scope = ScopeAll // "future" on a standalone event means the whole thing
	}

	switch scope {
	case ScopeThis:
		if date == "" {
			return &ValidationError{Field: "id", Reason: `scope "this" requires an occurrence address`}
		}
		err = s.store.WithTx(ctx, func(tx Store) error {
			if err := tx.DeleteInstance(ctx, eventID, date); err != nil {
				return err
			}
			ev.ExceptionDates.Add(date)
			ev.Version++
			ev.UpdatedAt = s.Clock().UTC()
			return tx.SaveEvent(ctx, ev)
		})
		return storageErr("delete_occurrence", err)

	case ScopeFuture:
		until := endOfDayUTC(s.Clock().UTC().AddDate(0, 0, -1))
		err = s.store.WithTx(ctx, func(tx Store) error {
			ev.Recurrence.Until = &until
			ev.Recurrence.Count = nil // COUNT and UNTIL are mutually exclusive
			if err := tx.SaveRule(ctx, eventID, ev.Recurrence); err != nil {
				return err
			}
			ev.Version++
			ev.UpdatedAt = s.Clock().UTC()
			return tx.SaveEvent(ctx, ev)
		})
		return storageErr("delete_future", err)

	default: // ScopeAll
		err = s.store.WithTx(ctx, func(tx Store) error {
			return tx.DeleteEvent(ctx, eventID)
		})
		return storageErr("delete_series", err)
	}
}
