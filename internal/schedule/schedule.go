// Package schedule implements due-time computation for the two schedule
// kinds: fixed intervals and crontab patterns. Definitions are validated
// and resolved once, then evaluated as pure in-memory calculations by the
// scheduler loop.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"cronbeat/internal/domain"
)

// Schedule decides when a periodic task fires.
//
// IsDue reports whether the schedule is due at now given the time of the
// most recent dispatch (zero if it never ran), and returns the earliest
// instant at which the schedule fires given that same lastRun. When the
// schedule is due the returned instant is not after now; callers that
// dispatch must re-evaluate with the updated lastRun to find the following
// fire time.
type Schedule interface {
	IsDue(now, lastRun time.Time) (bool, time.Time)
}

// Interval fires on a fixed duration since the last run.
type Interval struct {
	every time.Duration
}

// NewInterval validates and resolves an interval definition.
func NewInterval(every int, period domain.Period) (Interval, error) {
	if every <= 0 {
		return Interval{}, domain.Invalid("every", "must be a positive integer, got %d", every)
	}
	if !period.Valid() {
		return Interval{}, domain.Invalid("period", "unknown unit %q", period)
	}
	return Interval{every: period.Duration(every)}, nil
}

// Every returns the resolved interval duration.
func (s Interval) Every() time.Duration { return s.every }

func (s Interval) IsDue(now, lastRun time.Time) (bool, time.Time) {
	if lastRun.IsZero() {
		// Never ran: due immediately.
		return true, now
	}
	next := lastRun.Add(s.every)
	return !next.After(now), next
}

// Crontab fires when the current minute matches all five pattern fields,
// evaluated in the schedule's timezone. The pattern is parsed once at
// construction; standard semantics apply, including the rule that a
// restricted day-of-month and day-of-week are OR'd together.
type Crontab struct {
	spec cron.Schedule
	expr string
}

// NewCrontab validates the five pattern fields and the timezone, and
// resolves them into an evaluable schedule.
func NewCrontab(def domain.CrontabSchedule) (Crontab, error) {
	applyCrontabDefaults(&def)

	if _, err := time.LoadLocation(def.Timezone); err != nil {
		return Crontab{}, domain.Invalid("timezone", "unknown timezone %q", def.Timezone)
	}

	// Parse each field against wildcards first so a malformed field is
	// reported by name rather than as a whole-expression error.
	fields := []struct{ name, expr string }{
		{"minute", def.Minute + " * * * *"},
		{"hour", "* " + def.Hour + " * * *"},
		{"day_of_month", "* * " + def.DayOfMonth + " * *"},
		{"month_of_year", "* * * " + def.MonthOfYear + " *"},
		{"day_of_week", "* * * * " + def.DayOfWeek},
	}
	for _, f := range fields {
		if _, err := cron.ParseStandard(f.expr); err != nil {
			return Crontab{}, domain.Invalid(f.name, "bad crontab field: %v", err)
		}
	}

	expr := "CRON_TZ=" + def.Timezone + " " + def.Expr()
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return Crontab{}, domain.Invalid("crontab", "%v", err)
	}
	return Crontab{spec: spec, expr: expr}, nil
}

func applyCrontabDefaults(def *domain.CrontabSchedule) {
	if def.Minute == "" {
		def.Minute = "*"
	}
	if def.Hour == "" {
		def.Hour = "*"
	}
	if def.DayOfWeek == "" {
		def.DayOfWeek = "*"
	}
	if def.DayOfMonth == "" {
		def.DayOfMonth = "*"
	}
	if def.MonthOfYear == "" {
		def.MonthOfYear = "*"
	}
	if def.Timezone == "" {
		def.Timezone = "UTC"
	}
}

// Expr returns the resolved cron expression including its CRON_TZ prefix.
func (s Crontab) Expr() string { return s.expr }

func (s Crontab) IsDue(now, lastRun time.Time) (bool, time.Time) {
	ref := lastRun
	if ref.IsZero() {
		// Never ran: anchor just before the start of the current minute so
		// a matching current minute fires immediately.
		ref = now.Truncate(time.Minute).Add(-time.Second)
	}
	// Next is strictly after lastRun, so a minute that already fired cannot
	// fire again however fast the loop polls.
	next := s.spec.Next(ref)
	return !next.After(now), next
}

// Validate checks an interval definition without keeping the result.
func Validate(every int, period domain.Period) error {
	_, err := NewInterval(every, period)
	return err
}

// ValidateCrontab checks a crontab definition without keeping the result.
func ValidateCrontab(def domain.CrontabSchedule) error {
	_, err := NewCrontab(def)
	return err
}
