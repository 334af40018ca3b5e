/*
rule.go - Recurrence rule text parsing and serialization

PURPOSE:
  Converts between the single-line rule text accepted on the wire
  (FREQ, INTERVAL, COUNT, UNTIL, BYDAY - a subset of the RRULE grammar)
  and the structured RecurrenceRule value object, and builds the rrule
  evaluator used by the expander.

ANCHOR INJECTION:
  Rule text never carries its own DTSTART. The series anchor (the event's
  start timestamp) is injected when the evaluator is built, so the same
  stored rule stays valid if the series start moves.

SEE ALSO:
  - expander.go: Uses the evaluator built here
*/
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var freqToRRule = map[Frequency]rrule.Frequency{
	FreqDaily:   rrule.DAILY,
	FreqWeekly:  rrule.WEEKLY,
	FreqMonthly: rrule.MONTHLY,
	FreqYearly:  rrule.YEARLY,
}

var freqFromRRule = map[rrule.Frequency]Frequency{
	rrule.DAILY:   FreqDaily,
	rrule.WEEKLY:  FreqWeekly,
	rrule.MONTHLY: FreqMonthly,
	rrule.YEARLY:  FreqYearly,
}

var weekdayToRRule = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// ParseRuleText parses single-line rule text into a RecurrenceRule.
// Frequencies outside DAILY/WEEKLY/MONTHLY/YEARLY are rejected: the engine
// does not do sub-daily recurrence.
func ParseRuleText(text string) (*RecurrenceRule, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "RRULE:"))
	if trimmed == "" {
		return nil, &RecurrenceParseError{RuleText: text, Err: fmt.Errorf("empty rule")}
	}

	opt, err := rrule.StrToROption(trimmed)
	if err != nil {
		return nil, &RecurrenceParseError{RuleText: text, Err: err}
	}

	freq, ok := freqFromRRule[opt.Freq]
	if !ok {
		return nil, &RecurrenceParseError{RuleText: text, Err: fmt.Errorf("unsupported frequency")}
	}

	rule := &RecurrenceRule{Frequency: freq, Interval: opt.Interval}
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	if opt.Count > 0 {
		count := opt.Count
		rule.Count = &count
	}
	if !opt.Until.IsZero() {
		until := opt.Until.UTC()
		rule.Until = &until
	}
	for _, wd := range opt.Byweekday {
		rule.ByDay = append(rule.ByDay, wd.String())
	}

	return rule, nil
}

// rruleOptions maps the rule onto an rrule evaluator configuration with the
// given anchor injected as DTSTART. Field-level corruption (unknown
// frequency or day code, typically from a damaged stored row) surfaces as
// an error here rather than producing a silently wrong expansion.
func (r *RecurrenceRule) rruleOptions(anchor time.Time) (rrule.ROption, error) {
	freq, ok := freqToRRule[r.Frequency]
	if !ok {
		return rrule.ROption{}, fmt.Errorf("unsupported frequency %q", r.Frequency)
	}

	opt := rrule.ROption{
		Freq:    freq,
		Dtstart: anchor.UTC(),
	}
	if r.Interval > 1 {
		opt.Interval = r.Interval
	}
	if r.Count != nil {
		opt.Count = *r.Count
	}
	if r.Until != nil {
		opt.Until = r.Until.UTC()
	}
	for _, day := range r.ByDay {
		wd, ok := weekdayToRRule[strings.ToUpper(day)]
		if !ok {
			return rrule.ROption{}, fmt.Errorf("unknown BYDAY value %q", day)
		}
		opt.Byweekday = append(opt.Byweekday, wd)
	}

	return opt, nil
}

// Text returns the canonical single-line rule text, or "" if the rule does
// not serialize (which only happens for corrupt field values).
func (r *RecurrenceRule) Text() string {
	opt, err := r.rruleOptions(time.Time{})
	if err != nil {
		return ""
	}
	return opt.RRuleString()
}

// Validate checks the rule's field values without building an evaluator.
func (r *RecurrenceRule) Validate() error {
	if _, err := r.rruleOptions(time.Time{}); err != nil {
		return &RecurrenceParseError{RuleText: r.Text(), Err: err}
	}
	if r.Count != nil && *r.Count < 1 {
		return &ValidationError{Field: "rule.count", Reason: "must be at least 1"}
	}
	return nil
}
