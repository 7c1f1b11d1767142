// Package schedule computes run times for payment schedules. All
// computation is in UTC; the next occurrence is strictly after the
// reference instant so an execution at time T never re-arms to T itself.
package schedule

import (
	"time"

	"arcpay/internal/domain"
)

// NextRun returns the next execution time for the schedule relative to ref.
// For one-shot schedules the payment is due immediately, so ref itself is
// returned. The boolean is false when no further run exists.
func NextRun(s domain.Schedule, ref time.Time) (time.Time, bool) {
	ref = ref.UTC()
	switch s.Kind {
	case domain.ScheduleOnce:
		return ref, true
	case domain.ScheduleRecurring:
	default:
		return time.Time{}, false
	}

	switch s.Rule {
	case domain.RuleInterval:
		if s.Interval <= 0 {
			return time.Time{}, false
		}
		return ref.Add(s.Interval), true
	case domain.RuleWeekly:
		return nextWeekly(ref, s.Weekday), true
	case domain.RuleMonthly:
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return time.Time{}, false
		}
		return nextMonthly(ref, s.DayOfMonth), true
	}
	return time.Time{}, false
}

func nextWeekly(ref time.Time, day time.Weekday) time.Time {
	days := (int(day) - int(ref.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return ref.AddDate(0, 0, days)
}

// nextMonthly keeps the reference clock time and clamps the requested day
// to the length of each candidate month (31st in February runs on the 28th
// or 29th).
func nextMonthly(ref time.Time, day int) time.Time {
	year, month := ref.Year(), ref.Month()
	for {
		last := daysIn(year, month)
		runDay := day
		if runDay > last {
			runDay = last
		}
		candidate := time.Date(year, month, runDay,
			ref.Hour(), ref.Minute(), ref.Second(), 0, time.UTC)
		if candidate.After(ref) {
			return candidate
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
