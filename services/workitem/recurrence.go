package workitem

import "time"

// NextOccurrence computes the next occurrence after anchor for the given rule.
// It is pure and deterministic; the boolean is false when the rule has run out
// (the computed date falls past the rule's end date) or the rule is invalid,
// in which case the caller must finalize the item instead of re-arming it.
//
// Monthly and yearly arithmetic clamps to the last valid day of the target
// month, so Jan 31 + 1 month lands on Feb 29 in a leap year and Feb 28
// otherwise.
func NextOccurrence(anchor time.Time, rule Recurrence) (time.Time, bool) {
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	var next time.Time
	switch rule.Pattern {
	case RecurDaily:
		next = anchor.AddDate(0, 0, interval)
	case RecurWeekly:
		next = anchor.AddDate(0, 0, 7*interval)
	case RecurMonthly:
		next = addMonthsClamped(anchor, interval)
	case RecurYearly:
		next = addMonthsClamped(anchor, 12*interval)
	default:
		return time.Time{}, false
	}

	if rule.EndDate != nil && next.After(*rule.EndDate) {
		return time.Time{}, false
	}

	return next, true
}

func addMonthsClamped(t time.Time, months int) time.Time {
	// Normalize via the first of the month so Go's date arithmetic cannot
	// spill into the following month (Jan 31 + 1 month would be Mar 2).
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)

	day := t.Day()
	if last := daysIn(target.Month(), target.Year()); day > last {
		day = last
	}

	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
