package ledger

import "time"

// =============================================================================
// BILLING CALENDAR - Pure period and due date arithmetic
// =============================================================================

// postpaidOffsetMonths is how far after the service month a postpaid
// period's rent falls due. One calendar month unless a deployment says
// otherwise.
const postpaidOffsetMonths = 1

// DaysInMonth returns the number of days in the given calendar month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PeriodsBetween returns every calendar month from start through end
// inclusive, in chronological order. Returns nil when end precedes start's
// month.
func PeriodsBetween(start, end time.Time) []PeriodKey {
	first := KeyOf(start)
	last := KeyOf(end)
	if last.Before(first) {
		return nil
	}

	var keys []PeriodKey
	for k := first; !last.Before(k); k = k.Next() {
		keys = append(keys, k)
	}
	return keys
}

// DueDateOf computes when rent for a period falls due. The due day is
// clamped to the month's length (due day 31 in February becomes Feb 28/29).
// Prepaid rent is due within the service month itself; postpaid rent is due
// in the month following the service month.
func DueDateOf(key PeriodKey, dueDay int, mode BillingMode) time.Time {
	billing := key
	if mode == BillingPostpaid {
		for i := 0; i < postpaidOffsetMonths; i++ {
			billing = billing.Next()
		}
	}

	day := dueDay
	if day < 1 {
		day = 1
	}
	if max := DaysInMonth(billing.Year, billing.Month); day > max {
		day = max
	}
	return time.Date(billing.Year, billing.Month, day, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// TIME HELPERS
// =============================================================================

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// daysBetween returns whole days from a to b, negative when b precedes a.
func daysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
