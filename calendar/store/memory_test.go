package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/calendar-engine/calendar"
	"github.com/warp/calendar-engine/calendar/store"
)

func sampleEvent(id string) *calendar.Event {
	return &calendar.Event{
		ID:         id,
		CalendarID: "cal-1",
		Title:      "Standup",
		Start:      time.Date(2024, time.June, 3, 10, 0, 0, 0, time.UTC),
		End:        time.Date(2024, time.June, 3, 10, 30, 0, 0, time.UTC),
		Status:     calendar.StatusConfirmed,
		Version:    1,
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	// GIVEN: A stored event
	// WHEN: Mutating the value a read returned
	// THEN: The stored state is unaffected

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveEvent(ctx, sampleEvent("ev-1")))

	got, err := mem.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	got.Title = "mutated"
	got.ExceptionDates.Add("2024-06-05")

	again, err := mem.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, "Standup", again.Title)
	assert.False(t, again.ExceptionDates.Contains("2024-06-05"))
}

func TestMemory_RuleManagedSeparately(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	ev := sampleEvent("ev-1")
	ev.Recurrence = &calendar.RecurrenceRule{Frequency: calendar.FreqDaily, Interval: 1}
	require.NoError(t, mem.SaveEvent(ctx, ev))

	// SaveEvent persists the event row only; the rule row needs SaveRule.
	got, err := mem.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.Nil(t, got.Recurrence)

	require.NoError(t, mem.SaveRule(ctx, "ev-1", ev.Recurrence))
	got, err = mem.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, calendar.FreqDaily, got.Recurrence.Frequency)
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveEvent(ctx, sampleEvent("ev-1")))

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(tx calendar.Store) error {
		if err := tx.DeleteEvent(ctx, "ev-1"); err != nil {
			return err
		}
		if err := tx.SaveEvent(ctx, sampleEvent("ev-2")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := mem.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.NotNil(t, got, "rollback restores the deleted event")

	got, err = mem.GetEvent(ctx, "ev-2")
	require.NoError(t, err)
	assert.Nil(t, got, "rollback discards the new event")
}

func TestMemory_ListInstances_Range(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	for _, date := range []string{"2024-06-05", "2024-06-20", "2024-07-01"} {
		require.NoError(t, mem.SaveInstance(ctx, &calendar.EventInstance{
			ID:           "inst-" + date,
			EventID:      "ev-1",
			InstanceDate: date,
			IsException:  true,
		}))
	}

	rows, err := mem.ListInstances(ctx, "ev-1", "2024-06-01", "2024-06-30")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
