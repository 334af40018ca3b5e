package calendar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/calendar-engine/calendar"
)

func TestParseRuleText_WeeklyByDay(t *testing.T) {
	rule, err := calendar.ParseRuleText("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE,FR")

	require.NoError(t, err)
	assert.Equal(t, calendar.FreqWeekly, rule.Frequency)
	assert.Equal(t, 2, rule.Interval)
	assert.Equal(t, []string{"MO", "WE", "FR"}, rule.ByDay)
	assert.Nil(t, rule.Count)
	assert.Nil(t, rule.Until)
}

func TestParseRuleText_RRulePrefixAccepted(t *testing.T) {
	rule, err := calendar.ParseRuleText("RRULE:FREQ=DAILY;COUNT=10")

	require.NoError(t, err)
	assert.Equal(t, calendar.FreqDaily, rule.Frequency)
	require.NotNil(t, rule.Count)
	assert.Equal(t, 10, *rule.Count)
}

func TestParseRuleText_Until(t *testing.T) {
	rule, err := calendar.ParseRuleText("FREQ=MONTHLY;UNTIL=20241231T235959Z")

	require.NoError(t, err)
	require.NotNil(t, rule.Until)
	assert.Equal(t, 2024, rule.Until.Year())
	assert.Equal(t, "2024-12-31", calendar.DateOf(*rule.Until))
}

func TestParseRuleText_Rejections(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"garbage", "every other tuesday"},
		{"sub-daily frequency", "FREQ=HOURLY"},
		{"minutely frequency", "FREQ=MINUTELY;INTERVAL=5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := calendar.ParseRuleText(tc.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, calendar.ErrRecurrenceParse)
		})
	}
}

func TestRuleText_Canonical(t *testing.T) {
	// Text() round-trips through the parser.
	rule, err := calendar.ParseRuleText("FREQ=WEEKLY;BYDAY=TU,TH;COUNT=8")
	require.NoError(t, err)

	again, err := calendar.ParseRuleText(rule.Text())
	require.NoError(t, err)
	assert.Equal(t, rule.Frequency, again.Frequency)
	assert.Equal(t, rule.ByDay, again.ByDay)
	assert.Equal(t, *rule.Count, *again.Count)
}

func TestRuleValidate(t *testing.T) {
	ok := &calendar.RecurrenceRule{Frequency: calendar.FreqDaily, Interval: 1}
	assert.NoError(t, ok.Validate())

	badFreq := &calendar.RecurrenceRule{Frequency: "FORTNIGHTLY", Interval: 1}
	assert.ErrorIs(t, badFreq.Validate(), calendar.ErrRecurrenceParse)

	badDay := &calendar.RecurrenceRule{Frequency: calendar.FreqWeekly, Interval: 1, ByDay: []string{"XX"}}
	assert.ErrorIs(t, badDay.Validate(), calendar.ErrRecurrenceParse)

	badCount := &calendar.RecurrenceRule{Frequency: calendar.FreqDaily, Interval: 1, Count: intPtr(0)}
	assert.ErrorIs(t, badCount.Validate(), calendar.ErrValidation)
}

func TestSplitOccurrenceID(t *testing.T) {
	// GIVEN: Event ids may themselves contain underscores
	// WHEN: Splitting occurrence addresses
	// THEN: The date is taken from the last separator and must parse

	eventID, date, ok := calendar.SplitOccurrenceID("evt_abc_2024-06-15")
	require.True(t, ok)
	assert.Equal(t, "evt_abc", eventID)
	assert.Equal(t, "2024-06-15", date)

	_, _, ok = calendar.SplitOccurrenceID("evt-plain")
	assert.False(t, ok)

	_, _, ok = calendar.SplitOccurrenceID("evt_notadate")
	assert.False(t, ok)
}
