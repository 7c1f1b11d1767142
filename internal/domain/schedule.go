package domain

import (
	"time"

	dErrors "arcpay/pkg/domain-errors"
)

// ScheduleKind distinguishes one-shot from recurring payments.
type ScheduleKind string

const (
	ScheduleOnce      ScheduleKind = "once"
	ScheduleRecurring ScheduleKind = "recurring"
)

// RuleKind selects the recurrence rule for recurring schedules.
type RuleKind string

const (
	RuleInterval RuleKind = "interval"
	RuleWeekly   RuleKind = "weekly"
	RuleMonthly  RuleKind = "monthly"
)

// Schedule describes when a payment runs. One-shot schedules carry no rule;
// recurring ones carry exactly one of a fixed interval or a calendar rule.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`
	Rule RuleKind     `json:"rule,omitempty"`
	// Interval applies when Rule == RuleInterval.
	Interval time.Duration `json:"interval,omitempty"`
	// Weekday applies when Rule == RuleWeekly (time.Sunday..time.Saturday).
	Weekday time.Weekday `json:"dayOfWeek,omitempty"`
	// DayOfMonth applies when Rule == RuleMonthly; clamped to month length.
	DayOfMonth int `json:"dayOfMonth,omitempty"`
}

// Once is a convenience constructor for one-shot schedules.
func Once() Schedule { return Schedule{Kind: ScheduleOnce} }

// Every builds a fixed-interval recurring schedule.
func Every(interval time.Duration) Schedule {
	return Schedule{Kind: ScheduleRecurring, Rule: RuleInterval, Interval: interval}
}

// Weekly builds a calendar-rule schedule firing on the given weekday.
func Weekly(day time.Weekday) Schedule {
	return Schedule{Kind: ScheduleRecurring, Rule: RuleWeekly, Weekday: day}
}

// MonthlyOn builds a calendar-rule schedule firing on the given day of month.
func MonthlyOn(day int) Schedule {
	return Schedule{Kind: ScheduleRecurring, Rule: RuleMonthly, DayOfMonth: day}
}

// Recurring reports whether the schedule re-arms after execution.
func (s Schedule) Recurring() bool { return s.Kind == ScheduleRecurring }

// Validate enforces the closed rule set.
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleOnce:
		return nil
	case ScheduleRecurring:
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown schedule kind "+string(s.Kind))
	}
	switch s.Rule {
	case RuleInterval:
		if s.Interval <= 0 {
			return dErrors.New(dErrors.CodeValidation, "recurring interval must be positive")
		}
	case RuleWeekly:
		if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
			return dErrors.New(dErrors.CodeValidation, "weekly rule requires a valid weekday")
		}
	case RuleMonthly:
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return dErrors.New(dErrors.CodeValidation, "monthly rule requires day of month 1-31")
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown recurrence rule "+string(s.Rule))
	}
	return nil
}
