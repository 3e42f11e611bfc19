package schedule

import (
	"errors"
	"testing"
	"time"

	"cronbeat/internal/domain"
)

func TestIntervalDueBoundary(t *testing.T) {
	s, err := NewInterval(5, domain.PeriodMinutes)
	if err != nil {
		t.Fatalf("NewInterval: %v", err)
	}

	lastRun := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	due, next := s.IsDue(lastRun.Add(5*time.Minute-time.Second), lastRun)
	if due {
		t.Error("due one second before the interval elapsed")
	}
	if want := lastRun.Add(5 * time.Minute); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	due, _ = s.IsDue(lastRun.Add(5*time.Minute), lastRun)
	if !due {
		t.Error("not due exactly when the interval elapsed")
	}
}

func TestIntervalNeverRanIsDueImmediately(t *testing.T) {
	s, err := NewInterval(1, domain.PeriodHours)
	if err != nil {
		t.Fatalf("NewInterval: %v", err)
	}
	now := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	due, next := s.IsDue(now, time.Time{})
	if !due {
		t.Error("schedule that never ran should be due")
	}
	if next.After(now) {
		t.Errorf("next = %v, want not after %v", next, now)
	}
}

func TestIntervalValidation(t *testing.T) {
	if _, err := NewInterval(0, domain.PeriodSeconds); !domain.IsValidation(err) {
		t.Errorf("every=0: got %v, want validation error", err)
	}
	if _, err := NewInterval(-3, domain.PeriodSeconds); !domain.IsValidation(err) {
		t.Errorf("every=-3: got %v, want validation error", err)
	}
	if _, err := NewInterval(10, domain.Period("fortnights")); !domain.IsValidation(err) {
		t.Errorf("bad period: got %v, want validation error", err)
	}
}

func TestPeriodDurations(t *testing.T) {
	cases := []struct {
		period domain.Period
		every  int
		want   time.Duration
	}{
		{domain.PeriodSeconds, 30, 30 * time.Second},
		{domain.PeriodMinutes, 2, 2 * time.Minute},
		{domain.PeriodHours, 6, 6 * time.Hour},
		{domain.PeriodDays, 1, 24 * time.Hour},
	}
	for _, c := range cases {
		s, err := NewInterval(c.every, c.period)
		if err != nil {
			t.Fatalf("NewInterval(%d, %s): %v", c.every, c.period, err)
		}
		if s.Every() != c.want {
			t.Errorf("%d %s = %v, want %v", c.every, c.period, s.Every(), c.want)
		}
	}
}

func hourly(t *testing.T) Crontab {
	t.Helper()
	s, err := NewCrontab(domain.CrontabSchedule{Minute: "0", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("NewCrontab: %v", err)
	}
	return s
}

func TestCrontabTopOfHour(t *testing.T) {
	s := hourly(t)
	lastRun := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	due, next := s.IsDue(time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), lastRun)
	if due {
		t.Error("due at 10:30 after firing at 10:00")
	}
	if want := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	due, _ = s.IsDue(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), lastRun)
	if !due {
		t.Error("not due at 11:00")
	}
}

func TestCrontabNoDoubleFireWithinMinute(t *testing.T) {
	s := hourly(t)
	// Fired 10 seconds into the matching minute; polling again within the
	// same minute must not report due.
	lastRun := time.Date(2024, 1, 1, 10, 0, 10, 0, time.UTC)
	due, _ := s.IsDue(time.Date(2024, 1, 1, 10, 0, 40, 0, time.UTC), lastRun)
	if due {
		t.Error("fired twice within the same matching minute")
	}
}

func TestCrontabNeverRanMatchingMinute(t *testing.T) {
	s := hourly(t)
	due, _ := s.IsDue(time.Date(2024, 1, 1, 10, 0, 25, 0, time.UTC), time.Time{})
	if !due {
		t.Error("not due within a matching minute on first evaluation")
	}
	due, _ = s.IsDue(time.Date(2024, 1, 1, 10, 20, 0, 0, time.UTC), time.Time{})
	if due {
		t.Error("due outside the matching minute")
	}
}

func TestCrontabTimezone(t *testing.T) {
	s, err := NewCrontab(domain.CrontabSchedule{
		Minute:   "0",
		Hour:     "9",
		Timezone: "America/New_York",
	})
	if err != nil {
		t.Fatalf("NewCrontab: %v", err)
	}
	// 9:00 in New York is 14:00 UTC in January (EST).
	lastRun := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	_, next := s.IsDue(time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), lastRun)
	if want := time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestCrontabDefaultsToEveryMinuteUTC(t *testing.T) {
	s, err := NewCrontab(domain.CrontabSchedule{})
	if err != nil {
		t.Fatalf("NewCrontab: %v", err)
	}
	if want := "CRON_TZ=UTC * * * * *"; s.Expr() != want {
		t.Errorf("expr = %q, want %q", s.Expr(), want)
	}
}

func TestCrontabValidation(t *testing.T) {
	cases := []struct {
		name string
		def  domain.CrontabSchedule
	}{
		{"bad minute", domain.CrontabSchedule{Minute: "61"}},
		{"bad hour", domain.CrontabSchedule{Hour: "25"}},
		{"garbage field", domain.CrontabSchedule{DayOfWeek: "%%"}},
		{"bad timezone", domain.CrontabSchedule{Timezone: "Mars/Olympus"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewCrontab(c.def)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}
}

func TestCrontabListsRangesSteps(t *testing.T) {
	s, err := NewCrontab(domain.CrontabSchedule{
		Minute: "*/15",
		Hour:   "9-17",
	})
	if err != nil {
		t.Fatalf("NewCrontab: %v", err)
	}
	lastRun := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, next := s.IsDue(time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC), lastRun)
	if want := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}
