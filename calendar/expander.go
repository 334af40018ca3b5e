/*
expander.go - Pure recurrence expansion

PURPOSE:
  Expands a recurrence rule into concrete occurrence start timestamps
  within a window, excluding exception dates. This is a pure function of
  its inputs; persistence and permissions live elsewhere.

BEHAVIOR:
  - The series anchor supplies DTSTART, so occurrences carry the anchor's
    time of day.
  - The window [from, to] is inclusive on both ends.
  - A rule whose UNTIL lies before the window, or whose COUNT is exhausted
    before the window, yields an empty result, not an error.
  - BYDAY filters intersect with FREQ rather than overriding it.
  - Corrupt rules yield RecurrenceParseError; the window-query path in
    merge.go recovers from it locally so one damaged series cannot fail a
    batch, while targeted lookups surface it.

SEE ALSO:
  - rule.go: Rule text handling
  - merge.go: Consumes expansion output
*/
package calendar

import (
	"time"

	"github.com/teambition/rrule-go"
)

// maxOccurrencesPerWindow caps a single expansion as a safety valve against
// degenerate rules. Window queries are calendar views, never unbounded scans.
const maxOccurrencesPerWindow = 1000

// ExpandWindow returns the ordered, de-duplicated occurrence start times of
// rule within [from, to], skipping any date present in excluded.
func ExpandWindow(rule *RecurrenceRule, anchor, from, to time.Time, excluded DateSet) ([]time.Time, error) {
	if rule == nil || to.Before(from) {
		return nil, nil
	}

	opt, err := rule.rruleOptions(anchor)
	if err != nil {
		return nil, &RecurrenceParseError{RuleText: rule.Text(), Err: err}
	}

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, &RecurrenceParseError{RuleText: rule.Text(), Err: err}
	}

	times := rr.Between(from.UTC(), to.UTC(), true)
	if len(times) > maxOccurrencesPerWindow {
		times = times[:maxOccurrencesPerWindow]
	}

	out := make([]time.Time, 0, len(times))
	var last time.Time
	for _, t := range times {
		if excluded.Contains(DateOf(t)) {
			continue
		}
		if !last.IsZero() && t.Equal(last) {
			continue
		}
		out = append(out, t)
		last = t
	}
	return out, nil
}
