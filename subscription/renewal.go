package subscription

import "time"

// CalculateRenewalDate returns start advanced by exactly one interval of the
// given frequency. Month and year arithmetic is calendar-aware with a clamp
// policy: when the start day does not exist in the target month, the result
// clamps to the last valid day of that month (Jan 31 + 1 month is Feb 28, or
// Feb 29 on a leap year; Feb 29 + 1 year is Feb 28). The result is always
// strictly after start.
func CalculateRenewalDate(start time.Time, frequency Frequency) (time.Time, error) {
	switch frequency {
	case FrequencyDaily:
		return start.AddDate(0, 0, 1), nil
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7), nil
	case FrequencyMonthly:
		return addMonthsClamped(start, 1), nil
	case FrequencyYearly:
		return addMonthsClamped(start, 12), nil
	default:
		return time.Time{}, &InvalidArgumentError{Argument: "frequency", Value: string(frequency)}
	}
}

// addMonthsClamped advances t by the given number of calendar months,
// clamping the day instead of letting it overflow into the following month
// the way AddDate does (Jan 31 + 1 month must not become Mar 2/3)
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month, 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	if last := daysIn(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month; day 0 of the next
// month normalizes to the last day of this one
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// sameCalendarDay reports whether two instants fall on the same calendar day
// in UTC. The reminder sequence uses day granularity: a reminder whose day
// has fully passed is skipped, never delivered late.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
