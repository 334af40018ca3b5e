package calendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/calendar-engine/calendar"
	memstore "github.com/warp/calendar-engine/calendar/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// staticGate maps calendarID -> userID -> role. Unknown pairs are "none".
type staticGate map[string]map[string]calendar.Role

func (g staticGate) ResolveRole(_ context.Context, userID, calendarID string) (calendar.Role, error) {
	if roles, ok := g[calendarID]; ok {
		if r, ok := roles[userID]; ok {
			return r, nil
		}
	}
	return calendar.RoleNone, nil
}

// testNow is the fixed clock for every service test.
var testNow = time.Date(2024, time.June, 11, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*calendar.Service, *memstore.Memory) {
	t.Helper()
	mem := memstore.NewMemory()
	gate := staticGate{
		"cal-1": {
			"alice": calendar.RoleOwner,
			"carol": calendar.RoleEdit,
			"bob":   calendar.RoleView,
		},
	}
	svc := calendar.NewService(mem, gate)
	svc.Clock = func() time.Time { return testNow }
	return svc, mem
}

// weeklyStandup creates a Mon/Wed/Fri 10:00-10:30 series starting June 3.
func weeklyStandup(t *testing.T, svc *calendar.Service) *calendar.Event {
	t.Helper()
	ev, err := svc.CreateSeries(context.Background(), "alice", calendar.Event{
		CalendarID: "cal-1",
		Title:      "Standup",
		Start:      utc(2024, time.June, 3, 10, 0),
		End:        utc(2024, time.June, 3, 10, 30),
		Recurrence: &calendar.RecurrenceRule{
			Frequency: calendar.FreqWeekly,
			Interval:  1,
			ByDay:     []string{"MO", "WE", "FR"},
		},
	})
	require.NoError(t, err)
	return ev
}

func titles(occs []calendar.Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.Title
	}
	return out
}

// =============================================================================
// WINDOW MERGE TESTS
// =============================================================================

func TestOccurrences_DefaultExpansion(t *testing.T) {
	// GIVEN: A Mon/Wed/Fri series with no edits
	// WHEN: Querying one week
	// THEN: Three synthesized occurrences with deterministic ids

	svc, _ := newTestService(t)
	ev := weeklyStandup(t, svc)

	occs, err := svc.OccurrencesInWindow(context.Background(), "alice", []string{"cal-1"},
		utc(2024, time.June, 3, 0, 0), utc(2024, time.June, 9, 23, 59))

	require.NoError(t, err)
	require.Len(t, occs, 3)
	assert.Equal(t, ev.ID+"_2024-06-03", occs[0].ID)
	assert.True(t, occs[0].IsRecurringInstance)
	assert.False(t, occs[0].IsException)
	assert.Equal(t, 30*time.Minute, occs[0].End.Sub(occs[0].Start))
}

func TestOccurrences_OverrideAppearsInWindow(t *testing.T) {
	// GIVEN: The June 5 occurrence was retitled and moved an hour later
	// WHEN: Querying the week
	// THEN: Exactly one June 5 occurrence appears, carrying the edits.
	//       Overrides are fetched independently of the post-exclusion
	//       default dates, so the edited occurrence cannot vanish.

	svc, _ := newTestService(t)
	ev := weeklyStandup(t, svc)

	newTitle := "Standup (moved)"
	newStart := utc(2024, time.June, 5, 11, 0)
	newEnd := utc(2024, time.June, 5, 11, 30)
	_, err := svc.UpdateInstance(context.Background(), "alice", ev.ID, "2024-06-05",
		calendar.InstancePatch{Title: &newTitle, Start: &newStart, End: &newEnd})
	require.NoError(t, err)

	occs, err := svc.OccurrencesInWindow(context.Background(), "alice", []string{"cal-1"},
		utc(2024, time.June, 3, 0, 0), utc(2024, time.June, 9, 23, 59))
	require.NoError(t, err)
	require.Len(t, occs, 3, "override must not duplicate or drop the occurrence")

	var june5 []calendar.Occurrence
	for _, o := range occs {
		if o.InstanceDate == "2024-06-05" {
			june5 = append(june5, o)
		}
	}
	require.Len(t, june5, 1)
	assert.Equal(t, "Standup (moved)", june5[0].Title)
	assert.Equal(t, newStart, june5[0].Start)
	assert.True(t, june5[0].IsException)
	assert.ElementsMatch(t, []string{"Standup", "Standup (moved)", "Standup"}, titles(occs))
}

func TestOccurrences_OverrideMovedOutsideItsDate(t *testing.T) {
	// GIVEN: The June 5 occurrence moved to June 20 (outside this week)
	// WHEN: Querying the original week and the target week
	// THEN: The occurrence leaves the first window and shows in the second

	svc, _ := newTestService(t)
	ev := weeklyStandup(t, svc)

	// The override row stays keyed by its original instance date; only the
	// start timestamp moves.
	newStart := utc(2024, time.June, 5, 10, 0).AddDate(0, 0, 15)
	newEnd := newStart.Add(30 * time.Minute)
	_, err := svc.UpdateInstance(context.Background(), "alice", ev.ID, "2024-06-05",
		calendar.InstancePatch{Start: &newStart, End: &newEnd})
	require.NoError(t, err)

	// The override row is returned by instance-date range queries, so it is
	// still listed under its original date key.
	occs, err := svc.OccurrencesInWindow(context.Background(), "alice", []string{"cal-1"},
		utc(2024, time.June, 3, 0, 0), utc(2024, time.June, 9, 23, 59))
	require.NoError(t, err)
	require.Len(t, occs, 3)

	var moved *calendar.Occurrence
	for i := range occs {
		if occs[i].InstanceDate == "2024-06-05" {
			moved = &occs[i]
		}
	}
	require.NotNil(t, moved)
	assert.Equal(t, newStart, moved.Start)
}

func TestOccurrences_CancelledDateDisappears(t *testing.T) {
	// GIVEN: June 5 deleted with scope=this
	// WHEN: Querying the week, twice (idempotence)
	// THEN: Two occurrences remain, June 5 absent, stable across repeats

	svc, _ := newTestService(t)
	ev := weeklyStandup(t, svc)

	err := svc.DeleteOccurrence(context.Background(), "alice",
		calendar.OccurrenceID(ev.ID, "2024-06-05"), calendar.ScopeThis)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		occs, err := svc.OccurrencesInWindow(context.Background(), "alice", []string{"cal-1"},
			utc(2024, time.June, 3, 0, 0), utc(2024, time.June, 9, 23, 59))
		require.NoError(t, err)
		require.Len(t, occs, 2)
		for _, o := range occs {
			assert.NotEqual(t, "2024-06-05", o.InstanceDate)
		}
	}
}

func TestOccurrences_StandaloneEvent(t *testing.T) {
	// GIVEN: A non-recurring event
	// WHEN: Querying windows that do and do not intersect it
	// THEN: Included exactly when it overlaps

	svc, _ := newTestService(t)
	ev, err := svc.CreateSeries(context.Background(), "alice", calendar.Event{
		CalendarID: "cal-1",
		Title:      "Dentist",
		Start:      utc(2024, time.June, 4, 15, 0),
		End:        utc(2024, time.June, 4, 16, 0),
	})
	require.NoError(t, err)

	occs, err := svc.OccurrencesInWindow(context.Background(), "alice", []string{"cal-1"},
		utc(2024, time.June, 4, 0, 0), utc(2024, time.June, 4, 23, 59))
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, ev.ID, occs[0].ID, "standalone events keep their plain id")
	assert.False(t, occs[0].IsRecurringInstance)

	occs, err = svc.OccurrencesInWindow(context.Background(), "alice", []string{"cal-1"},
		utc(2024, time.June, 10, 0, 0), utc(2024, time.June, 12, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestOccurrences_SortedByStart(t *testing.T) {
	svc, _ := newTestService(t)
	weeklyStandup(t, svc)
	_, err := svc.CreateSeries(context.Background(), "alice", calendar.Event{
		CalendarID: "cal-1",
		Title:      "Early sync",
		Start:      utc(2024, time.June, 5, 8, 0),
		End:        utc(2024, time.June, 5, 8, 30),
	})
	require.NoError(t, err)

	occs, err := svc.OccurrencesInWindow(context.Background(), "alice", []string{"cal-1"},
		utc(2024, time.June, 3, 0, 0), utc(2024, time.June, 9, 23, 59))
	require.NoError(t, err)
	require.Len(t, occs, 4)
	for i := 1; i < len(occs); i++ {
		assert.False(t, occs[i].Start.Before(occs[i-1].Start))
	}
}

func TestOccurrences_PermissionAndValidation(t *testing.T) {
	svc, _ := newTestService(t)
	weeklyStandup(t, svc)

	// A "none" role on any requested calendar is a hard denial.
	_, err := svc.OccurrencesInWindow(context.Background(), "mallory", []string{"cal-1"},
		utc(2024, time.June, 3, 0, 0), utc(2024, time.June, 9, 0, 0))
	assert.ErrorIs(t, err, calendar.ErrPermissionDenied)

	// Viewers can read.
	occs, err := svc.OccurrencesInWindow(context.Background(), "bob", []string{"cal-1"},
		utc(2024, time.June, 3, 0, 0), utc(2024, time.June, 9, 23, 59))
	require.NoError(t, err)
	assert.Len(t, occs, 3)

	// Inverted window is a validation error on the service surface.
	_, err = svc.OccurrencesInWindow(context.Background(), "alice", []string{"cal-1"},
		utc(2024, time.June, 9, 0, 0), utc(2024, time.June, 3, 0, 0))
	assert.ErrorIs(t, err, calendar.ErrValidation)
}

func TestOccurrences_CorruptSeriesSkippedInBatch(t *testing.T) {
	// GIVEN: One healthy series and one with a damaged rule row
	// WHEN: Querying the window
	// THEN: The healthy series' occurrences come back; the corrupt one is
	//       skipped, not fatal

	svc, mem := newTestService(t)
	weeklyStandup(t, svc)

	broken, err := svc.CreateSeries(context.Background(), "alice", calendar.Event{
		CalendarID: "cal-1",
		Title:      "Broken",
		Start:      utc(2024, time.June, 3, 14, 0),
		End:        utc(2024, time.June, 3, 15, 0),
		Recurrence: &calendar.RecurrenceRule{Frequency: calendar.FreqDaily, Interval: 1},
	})
	require.NoError(t, err)

	// Damage the stored rule row directly, bypassing validation.
	require.NoError(t, mem.SaveRule(context.Background(), broken.ID,
		&calendar.RecurrenceRule{Frequency: "SOMETIMES", Interval: 1}))

	occs, err := svc.OccurrencesInWindow(context.Background(), "alice", []string{"cal-1"},
		utc(2024, time.June, 3, 0, 0), utc(2024, time.June, 9, 23, 59))
	require.NoError(t, err)
	assert.Len(t, occs, 3, "only the healthy series contributes")
}

// =============================================================================
// TARGETED LOOKUP TESTS
// =============================================================================

func TestGetOccurrence_Default(t *testing.T) {
	svc, _ := newTestService(t)
	ev := weeklyStandup(t, svc)

	occ, err := svc.GetOccurrence(context.Background(), "alice", ev.ID+"_2024-06-07")
	require.NoError(t, err)
	assert.Equal(t, "Standup", occ.Title)
	assert.Equal(t, utc(2024, time.June, 7, 10, 0), occ.Start)
	assert.False(t, occ.IsException)
}

func TestGetOccurrence_OverrideWins(t *testing.T) {
	svc, _ := newTestService(t)
	ev := weeklyStandup(t, svc)

	title := "Retro"
	_, err := svc.UpdateInstance(context.Background(), "alice", ev.ID, "2024-06-07",
		calendar.InstancePatch{Title: &title})
	require.NoError(t, err)

	occ, err := svc.GetOccurrence(context.Background(), "alice", ev.ID+"_2024-06-07")
	require.NoError(t, err)
	assert.Equal(t, "Retro", occ.Title)
	assert.True(t, occ.IsException)
	// Untouched fields fall back to the series defaults.
	assert.Equal(t, utc(2024, time.June, 7, 10, 0), occ.Start)
}

func TestGetOccurrence_CancelledIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ev := weeklyStandup(t, svc)

	id := calendar.OccurrenceID(ev.ID, "2024-06-07")
	require.NoError(t, svc.DeleteOccurrence(context.Background(), "alice", id, calendar.ScopeThis))

	_, err := svc.GetOccurrence(context.Background(), "alice", id)
	assert.ErrorIs(t, err, calendar.ErrNotFound)
}

func TestGetOccurrence_DateNotInPattern(t *testing.T) {
	// June 4 is a Tuesday; the MO/WE/FR pattern never generates it.
	svc, _ := newTestService(t)
	ev := weeklyStandup(t, svc)

	_, err := svc.GetOccurrence(context.Background(), "alice", ev.ID+"_2024-06-04")
	assert.ErrorIs(t, err, calendar.ErrNotFound)
}

func TestGetOccurrence_Errors(t *testing.T) {
	svc, _ := newTestService(t)

	standalone, err := svc.CreateSeries(context.Background(), "alice", calendar.Event{
		CalendarID: "cal-1",
		Title:      "One-off",
		Start:      utc(2024, time.June, 4, 9, 0),
		End:        utc(2024, time.June, 4, 10, 0),
	})
	require.NoError(t, err)

	// Not an occurrence address at all.
	_, err = svc.GetOccurrence(context.Background(), "alice", "plainid")
	assert.ErrorIs(t, err, calendar.ErrValidation)

	// Occurrence address on a non-recurring event.
	_, err = svc.GetOccurrence(context.Background(), "alice", standalone.ID+"_2024-06-04")
	assert.ErrorIs(t, err, calendar.ErrNotRecurring)
}

func TestGetOccurrence_CorruptRuleSurfaces(t *testing.T) {
	// Unlike batch window queries, a targeted lookup reports corruption.
	svc, mem := newTestService(t)
	ev := weeklyStandup(t, svc)

	require.NoError(t, mem.SaveRule(context.Background(), ev.ID,
		&calendar.RecurrenceRule{Frequency: "SOMETIMES", Interval: 1}))

	_, err := svc.GetOccurrence(context.Background(), "alice", ev.ID+"_2024-06-05")
	require.Error(t, err)
	assert.ErrorIs(t, err, calendar.ErrRecurrenceParse)

	var perr *calendar.RecurrenceParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ev.ID, perr.EventID)
}
