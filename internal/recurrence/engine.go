// Package recurrence computes successor due dates for recurring
// commitments. It is pure date arithmetic: no I/O, no clock reads.
package recurrence

import (
	"sort"
	"time"

	"github.com/duebook-dev/duebook/internal/model"
)

// NextDueDate computes the due date of the next occurrence after from,
// where from is the current occurrence's own due date. Basing the
// computation on the current due date rather than the series start keeps
// drift from accumulating and keeps edits to one occurrence from moving
// earlier ones.
//
// The second return value is false when the rule is absent or malformed;
// that is an end-of-series outcome, not an error.
func NextDueDate(rule *model.Rule, from time.Time) (time.Time, bool) {
	if rule == nil || rule.Interval < 1 || !model.ValidFrequency(rule.Frequency) {
		return time.Time{}, false
	}
	from = dateOnly(from)

	switch rule.Frequency {
	case model.FrequencyDaily:
		return from.AddDate(0, 0, rule.Interval), true
	case model.FrequencyWeekly:
		return nextWeekly(rule, from), true
	case model.FrequencyMonthly:
		return nextMonthly(rule, from), true
	case model.FrequencyYearly:
		return clampedAddMonths(from, 12*rule.Interval), true
	}
	return time.Time{}, false
}

func nextWeekly(rule *model.Rule, from time.Time) time.Time {
	span := 7 * rule.Interval
	days := normalizeSet(rule.ByWeekday, 0, 6)
	if len(days) == 0 {
		return from.AddDate(0, 0, span)
	}
	// Scan forward one day at a time; the first matching weekday wins.
	for offset := 1; offset <= span; offset++ {
		candidate := from.AddDate(0, 0, offset)
		if containsInt(days, int(candidate.Weekday())) {
			return candidate
		}
	}
	return from.AddDate(0, 0, span)
}

func nextMonthly(rule *model.Rule, from time.Time) time.Time {
	days := normalizeSet(rule.ByMonthDay, 1, 31)
	if len(days) == 0 {
		return clampedAddMonths(from, rule.Interval)
	}
	// A configured day later in the current month wins before the series
	// advances to the next interval.
	for _, day := range days {
		if day > from.Day() {
			return dateInMonth(from.Year(), from.Month(), day)
		}
	}
	next := from.AddDate(0, 0, -from.Day()+1).AddDate(0, rule.Interval, 0)
	return dateInMonth(next.Year(), next.Month(), days[0])
}

// clampedAddMonths advances by months keeping the day-of-month, clamped to
// the target month's length (Jan 31 + 1 month = Feb 28/29, not Mar 3).
func clampedAddMonths(from time.Time, months int) time.Time {
	firstOfTarget := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	return dateInMonth(firstOfTarget.Year(), firstOfTarget.Month(), from.Day())
}

// dateInMonth builds a date clamping day to the month's last day.
func dateInMonth(year int, month time.Month, day int) time.Time {
	last := daysIn(year, month)
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// normalizeSet sorts ascending, drops duplicates and out-of-range values.
func normalizeSet(values []int, min, max int) []int {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(values))
	var result []int
	for _, v := range values {
		if v < min || v > max || seen[v] {
			continue
		}
		seen[v] = true
		result = append(result, v)
	}
	sort.Ints(result)
	return result
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
