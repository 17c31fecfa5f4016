package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Unit is the calendar unit a rule repeats over.
type Unit string

const (
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
	UnitYear  Unit = "year"
)

// EndKind selects how a rule stops producing occurrences.
type EndKind string

const (
	// EndNever runs until the instance cap.
	EndNever EndKind = "never"
	// EndOnDate includes occurrences up to and including the given calendar day.
	EndOnDate EndKind = "on_date"
	// EndAfterCount stops after a fixed number of occurrences.
	EndAfterCount EndKind = "after_count"
)

// End is the active end condition of a rule. Exactly one variant applies,
// selected by Kind.
type End struct {
	Kind  EndKind   `json:"kind"`
	Date  time.Time `json:"date,omitzero"`
	Count int       `json:"count,omitempty"`
}

const (
	// InstanceCap bounds occurrence generation per rule regardless of the
	// end condition.
	InstanceCap = 200

	// MaxMonthDay keeps monthly rules below 28 so every month can hold the
	// selected day without ambiguity.
	MaxMonthDay = 27
)

// Rule describes how an appointment series repeats.
// A disabled rule expands to the anchor occurrence only.
type Rule struct {
	Enabled  bool          `json:"enabled"`
	Interval int           `json:"interval"`
	Unit     Unit          `json:"unit"`
	Weekday  *time.Weekday `json:"weekday,omitempty"`  // week rules only
	MonthDay *int          `json:"monthDay,omitempty"` // month rules only
	End      End           `json:"end"`
}

// ErrInvalidRule is wrapped by all structural rule validation failures.
var ErrInvalidRule = errors.New("invalid recurrence rule")

func invalidRulef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRule, fmt.Sprintf(format, args...))
}

// Validate checks the rule's structure. It runs before any generation or I/O
// so a failure never leaves partial state behind.
func (r *Rule) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Interval < 1 {
		return invalidRulef("interval must be at least 1, got %d", r.Interval)
	}
	switch r.Unit {
	case UnitDay, UnitYear:
	case UnitWeek:
		if r.Weekday != nil && (*r.Weekday < time.Sunday || *r.Weekday > time.Saturday) {
			return invalidRulef("weekday out of range: %d", *r.Weekday)
		}
	case UnitMonth:
		if r.MonthDay == nil {
			return invalidRulef("monthly rules require a day of month")
		}
		if *r.MonthDay < 1 || *r.MonthDay > MaxMonthDay {
			return invalidRulef("day of month must be within [1, %d], got %d", MaxMonthDay, *r.MonthDay)
		}
	default:
		return invalidRulef("unknown unit %q", r.Unit)
	}
	switch r.End.Kind {
	case EndNever:
	case EndOnDate:
		if r.End.Date.IsZero() {
			return invalidRulef("end date is required")
		}
	case EndAfterCount:
		if r.End.Count < 1 {
			return invalidRulef("occurrence count must be at least 1, got %d", r.End.Count)
		}
	default:
		return invalidRulef("unknown end condition %q", r.End.Kind)
	}
	return nil
}

// Expand generates the ordered occurrence start times for a rule anchored at
// start. The result is strictly increasing and never longer than cap
// (InstanceCap when cap <= 0). The first candidate is always emitted, so an
// end date before the effective start still yields the anchor occurrence.
//
// Expand assumes a structurally valid rule; call Validate first.
func Expand(start time.Time, r Rule, cap int) []time.Time {
	if cap <= 0 || cap > InstanceCap {
		cap = InstanceCap
	}
	if !r.Enabled {
		return []time.Time{start}
	}

	limit := cap
	if r.End.Kind == EndAfterCount && r.End.Count < limit {
		limit = r.End.Count
	}

	var endOfDay time.Time
	if r.End.Kind == EndOnDate {
		d := r.End.Date
		endOfDay = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, start.Location())
	}

	candidate := candidateFunc(start, r)
	out := make([]time.Time, 0, limit)
	for i := 0; len(out) < limit; i++ {
		c := candidate(i)
		if r.End.Kind == EndOnDate && len(out) > 0 && c.After(endOfDay) {
			break
		}
		out = append(out, c)
	}
	return out
}

// candidateFunc returns the i-th candidate for the rule. Candidates are
// computed from the anchor rather than the previous candidate so month-length
// clamping never accumulates (a yearly rule anchored on Feb 29 lands on
// Feb 29 again in leap years).
func candidateFunc(start time.Time, r Rule) func(int) time.Time {
	switch r.Unit {
	case UnitWeek:
		first := start
		if r.Weekday != nil {
			for first.Weekday() != *r.Weekday {
				first = first.AddDate(0, 0, 1)
			}
		}
		return func(i int) time.Time { return first.AddDate(0, 0, i*r.Interval*7) }
	case UnitMonth:
		day := *r.MonthDay
		first := time.Date(start.Year(), start.Month(), day,
			start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), start.Location())
		if day < start.Day() {
			first = addMonths(first, r.Interval)
		}
		return func(i int) time.Time { return addMonths(first, i*r.Interval) }
	case UnitYear:
		return func(i int) time.Time { return addYears(start, i*r.Interval) }
	default: // UnitDay
		return func(i int) time.Time { return start.AddDate(0, 0, i*r.Interval) }
	}
}

// addMonths advances the month field by n, preserving time-of-day and
// clamping the day to the target month's length. time.AddDate is avoided
// because it normalizes overflow (Jan 31 + 1 month = Mar 3) instead of
// clamping.
func addMonths(t time.Time, n int) time.Time {
	months := int(t.Month()) - 1 + n
	year := t.Year() + months/12
	months %= 12
	if months < 0 {
		months += 12
		year--
	}
	month := time.Month(months + 1)

	day := t.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// addYears advances the year field by n with the same day clamping rule
// (Feb 29 clamps to Feb 28 in non-leap years).
func addYears(t time.Time, n int) time.Time {
	return addMonths(t, n*12)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CeilToStep rounds t forward to the next multiple of stepMinutes from the
// top of the hour, zeroing seconds. A timestamp already on a boundary is
// returned unchanged.
func CeilToStep(t time.Time, stepMinutes int) time.Time {
	if stepMinutes < 1 {
		stepMinutes = 1
	}
	minute := t.Minute() - t.Minute()%stepMinutes
	rounded := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, t.Location())
	if rounded.Before(t) {
		rounded = rounded.Add(time.Duration(stepMinutes) * time.Minute)
	}
	return rounded
}
