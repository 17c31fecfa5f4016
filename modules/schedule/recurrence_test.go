package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekdayPtr(d time.Weekday) *time.Weekday { return &d }
func intPtr(n int) *int                       { return &n }

func TestExpandDaily(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	rule := Rule{Enabled: true, Interval: 2, Unit: UnitDay, End: End{Kind: EndAfterCount, Count: 4}}

	occ := Expand(start, rule, 0)
	require.Len(t, occ, 4)
	assert.Equal(t, start, occ[0])
	assert.Equal(t, start.AddDate(0, 0, 2), occ[1])
	assert.Equal(t, start.AddDate(0, 0, 4), occ[2])
	assert.Equal(t, start.AddDate(0, 0, 6), occ[3])
}

func TestExpandWeekly(t *testing.T) {
	// Start is already a Monday, so the first occurrence is the anchor itself.
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, start.Weekday())

	rule := Rule{Enabled: true, Interval: 1, Unit: UnitWeek, Weekday: weekdayPtr(time.Monday), End: End{Kind: EndAfterCount, Count: 3}}
	occ := Expand(start, rule, 0)
	require.Len(t, occ, 3)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), occ[0])
	assert.Equal(t, time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC), occ[1])
	assert.Equal(t, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), occ[2])
}

func TestExpandWeeklyShiftsToSelectedWeekday(t *testing.T) {
	// Wednesday anchor with a Monday selector: the series starts the
	// following Monday, preserving the time of day.
	start := time.Date(2024, 1, 3, 14, 15, 0, 0, time.UTC)
	require.Equal(t, time.Wednesday, start.Weekday())

	rule := Rule{Enabled: true, Interval: 2, Unit: UnitWeek, Weekday: weekdayPtr(time.Monday), End: End{Kind: EndAfterCount, Count: 2}}
	occ := Expand(start, rule, 0)
	require.Len(t, occ, 2)
	assert.Equal(t, time.Date(2024, 1, 8, 14, 15, 0, 0, time.UTC), occ[0])
	assert.Equal(t, time.Date(2024, 1, 22, 14, 15, 0, 0, time.UTC), occ[1])
}

func TestExpandMonthlyPushesPastAnchor(t *testing.T) {
	// Day 27 already passed relative to a Jan 31 anchor, so the first
	// occurrence lands in February.
	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	rule := Rule{Enabled: true, Interval: 1, Unit: UnitMonth, MonthDay: intPtr(27), End: End{Kind: EndAfterCount, Count: 3}}

	occ := Expand(start, rule, 0)
	require.Len(t, occ, 3)
	assert.Equal(t, time.Date(2024, 2, 27, 10, 0, 0, 0, time.UTC), occ[0])
	assert.Equal(t, time.Date(2024, 3, 27, 10, 0, 0, 0, time.UTC), occ[1])
	assert.Equal(t, time.Date(2024, 4, 27, 10, 0, 0, 0, time.UTC), occ[2])
}

func TestExpandMonthlyKeepsAnchorMonth(t *testing.T) {
	start := time.Date(2024, 5, 10, 16, 45, 0, 0, time.UTC)
	rule := Rule{Enabled: true, Interval: 3, Unit: UnitMonth, MonthDay: intPtr(15), End: End{Kind: EndAfterCount, Count: 2}}

	occ := Expand(start, rule, 0)
	require.Len(t, occ, 2)
	assert.Equal(t, time.Date(2024, 5, 15, 16, 45, 0, 0, time.UTC), occ[0])
	assert.Equal(t, time.Date(2024, 8, 15, 16, 45, 0, 0, time.UTC), occ[1])
}

func TestExpandYearlyLeapDayClamps(t *testing.T) {
	start := time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)
	rule := Rule{Enabled: true, Interval: 1, Unit: UnitYear, End: End{Kind: EndAfterCount, Count: 5}}

	occ := Expand(start, rule, 0)
	require.Len(t, occ, 5)
	assert.Equal(t, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), occ[0])
	assert.Equal(t, time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC), occ[1])
	assert.Equal(t, time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC), occ[2])
	assert.Equal(t, time.Date(2027, 2, 28, 12, 0, 0, 0, time.UTC), occ[3])
	// Steps are computed from the anchor, so the next leap year recovers Feb 29.
	assert.Equal(t, time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC), occ[4])
}

func TestExpandEndDateInclusive(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rule := Rule{Enabled: true, Interval: 1, Unit: UnitDay, End: End{Kind: EndOnDate, Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)}}

	// An occurrence on the end date itself is included.
	occ := Expand(start, rule, 0)
	require.Len(t, occ, 3)
	assert.Equal(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), occ[2])
}

func TestExpandEndDateBeforeStart(t *testing.T) {
	// The anchor occurrence is always emitted, even when the end date
	// precedes it. This mirrors the original product behavior.
	start := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	rule := Rule{Enabled: true, Interval: 1, Unit: UnitDay, End: End{Kind: EndOnDate, Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}}

	occ := Expand(start, rule, 0)
	require.Len(t, occ, 1)
	assert.Equal(t, start, occ[0])
}

func TestExpandCap(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	// A never-ending rule stops at the cap.
	occ := Expand(start, Rule{Enabled: true, Interval: 1, Unit: UnitDay, End: End{Kind: EndNever}}, 0)
	assert.Len(t, occ, InstanceCap)

	// A count above the cap is clamped to it.
	occ = Expand(start, Rule{Enabled: true, Interval: 1, Unit: UnitDay, End: End{Kind: EndAfterCount, Count: 10_000}}, 0)
	assert.Len(t, occ, InstanceCap)

	// A custom cap below the count wins.
	occ = Expand(start, Rule{Enabled: true, Interval: 1, Unit: UnitDay, End: End{Kind: EndAfterCount, Count: 50}}, 10)
	assert.Len(t, occ, 10)
}

func TestExpandDisabledRule(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	occ := Expand(start, Rule{Enabled: false}, 0)
	require.Len(t, occ, 1)
	assert.Equal(t, start, occ[0])
}

func TestExpandDeterministicAndOrdered(t *testing.T) {
	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	rules := []Rule{
		{Enabled: true, Interval: 3, Unit: UnitDay, End: End{Kind: EndAfterCount, Count: 40}},
		{Enabled: true, Interval: 2, Unit: UnitWeek, Weekday: weekdayPtr(time.Friday), End: End{Kind: EndNever}},
		{Enabled: true, Interval: 1, Unit: UnitMonth, MonthDay: intPtr(27), End: End{Kind: EndAfterCount, Count: 24}},
		{Enabled: true, Interval: 1, Unit: UnitYear, End: End{Kind: EndAfterCount, Count: 10}},
	}
	for _, rule := range rules {
		first := Expand(start, rule, 0)
		second := Expand(start, rule, 0)
		assert.Equal(t, first, second)

		for i := 1; i < len(first); i++ {
			assert.True(t, first[i-1].Before(first[i]), "occurrences must be strictly increasing (%s)", rule.Unit)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Rule{Enabled: true, Interval: 1, Unit: UnitWeek, Weekday: weekdayPtr(time.Monday), End: End{Kind: EndNever}}
	require.NoError(t, valid.Validate())

	// A disabled rule is always structurally fine.
	require.NoError(t, (&Rule{}).Validate())

	bad := []Rule{
		{Enabled: true, Interval: 0, Unit: UnitDay, End: End{Kind: EndNever}},
		{Enabled: true, Interval: 1, Unit: "fortnight", End: End{Kind: EndNever}},
		{Enabled: true, Interval: 1, Unit: UnitMonth, End: End{Kind: EndNever}},
		{Enabled: true, Interval: 1, Unit: UnitMonth, MonthDay: intPtr(28), End: End{Kind: EndNever}},
		{Enabled: true, Interval: 1, Unit: UnitMonth, MonthDay: intPtr(0), End: End{Kind: EndNever}},
		{Enabled: true, Interval: 1, Unit: UnitDay, End: End{Kind: EndOnDate}},
		{Enabled: true, Interval: 1, Unit: UnitDay, End: End{Kind: EndAfterCount, Count: 0}},
		{Enabled: true, Interval: 1, Unit: UnitDay, End: End{Kind: "sometime"}},
	}
	for _, rule := range bad {
		assert.ErrorIs(t, rule.Validate(), ErrInvalidRule, "rule: %+v", rule)
	}
}

func TestAddMonthsClamping(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC), addMonths(jan31, 1), "leap February keeps day 29")
	assert.Equal(t, time.Date(2023, 2, 28, 10, 0, 0, 0, time.UTC), addMonths(jan31.AddDate(-1, 0, 0), 1), "non-leap February clamps to 28")
	assert.Equal(t, time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC), addMonths(jan31, 3))
	assert.Equal(t, time.Date(2023, 12, 31, 10, 0, 0, 0, time.UTC), addMonths(jan31, -1), "negative steps cross year boundaries")
}

func TestCeilToStep(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, base, CeilToStep(base, 15), "a boundary timestamp is unchanged")
	assert.Equal(t, base.Add(15*time.Minute), CeilToStep(base.Add(time.Second), 15), "seconds push to the next boundary")
	assert.Equal(t, time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC), CeilToStep(time.Date(2024, 5, 1, 10, 7, 30, 0, time.UTC), 15))
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), CeilToStep(time.Date(2024, 5, 1, 10, 59, 1, 0, time.UTC), 15), "rolls over the hour")
}
