package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Period is the unit of an interval schedule.
type Period string

const (
	PeriodSeconds Period = "seconds"
	PeriodMinutes Period = "minutes"
	PeriodHours   Period = "hours"
	PeriodDays    Period = "days"
)

// Valid reports whether p is one of the known period units.
func (p Period) Valid() bool {
	switch p {
	case PeriodSeconds, PeriodMinutes, PeriodHours, PeriodDays:
		return true
	}
	return false
}

// Duration returns every units of p as a time.Duration.
func (p Period) Duration(every int) time.Duration {
	switch p {
	case PeriodMinutes:
		return time.Duration(every) * time.Minute
	case PeriodHours:
		return time.Duration(every) * time.Hour
	case PeriodDays:
		return time.Duration(every) * 24 * time.Hour
	default:
		return time.Duration(every) * time.Second
	}
}

// IntervalSchedule fires every N units. Many tasks may share one interval.
type IntervalSchedule struct {
	ID     string `json:"id"`
	Every  int    `json:"every"`
	Period Period `json:"period"`
}

func (s IntervalSchedule) String() string {
	return fmt.Sprintf("every %d %s", s.Every, s.Period)
}

// CrontabSchedule holds the five crontab pattern fields plus a timezone.
// Each field uses standard crontab syntax (lists, ranges, steps, wildcard).
type CrontabSchedule struct {
	ID          string `json:"id"`
	Minute      string `json:"minute"`
	Hour        string `json:"hour"`
	DayOfWeek   string `json:"day_of_week"`
	DayOfMonth  string `json:"day_of_month"`
	MonthOfYear string `json:"month_of_year"`
	Timezone    string `json:"timezone"`
}

// Expr renders the five fields as a standard cron expression in the usual
// minute hour dom month dow order.
func (s CrontabSchedule) Expr() string {
	return fmt.Sprintf("%s %s %s %s %s", s.Minute, s.Hour, s.DayOfMonth, s.MonthOfYear, s.DayOfWeek)
}

func (s CrontabSchedule) String() string {
	return s.Expr() + " (" + s.Timezone + ")"
}

// PeriodicTask binds a named external task to exactly one schedule.
// IntervalID and CrontabID are mutually exclusive and one is required.
type PeriodicTask struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Task        string          `json:"task"`
	IntervalID  *string         `json:"interval_id,omitempty"`
	CrontabID   *string         `json:"crontab_id,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	Kwargs      json.RawMessage `json:"kwargs,omitempty"`
	Queue       string          `json:"queue,omitempty"`
	Priority    *int            `json:"priority,omitempty"`
	Expires     *time.Time      `json:"expires,omitempty"`
	OneOff      bool            `json:"one_off"`
	StartTime   *time.Time      `json:"start_time,omitempty"`
	Enabled     bool            `json:"enabled"`
	LastRunAt   *time.Time      `json:"last_run_at,omitempty"`
	TotalRuns   int64           `json:"total_run_count"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ResultStatus is the lifecycle state of a dispatched task execution.
type ResultStatus string

const (
	StatusPending ResultStatus = "pending"
	StatusStarted ResultStatus = "started"
	StatusSuccess ResultStatus = "success"
	StatusFailure ResultStatus = "failure"
	StatusRetry   ResultStatus = "retry"
)

func (s ResultStatus) Valid() bool {
	switch s {
	case StatusPending, StatusStarted, StatusSuccess, StatusFailure, StatusRetry:
		return true
	}
	return false
}

// TaskResult records one execution of a dispatched task. Rows are written by
// the external execution system; the scheduler only creates the pending row
// for run-now requests and purges old rows.
type TaskResult struct {
	ID          string          `json:"id"`
	TaskName    string          `json:"task_name"`
	Status      ResultStatus    `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	Kwargs      json.RawMessage `json:"kwargs,omitempty"`
	DateCreated time.Time       `json:"date_created"`
	DateDone    *time.Time      `json:"date_done,omitempty"`
	Traceback   string          `json:"traceback,omitempty"`
}

// Statistics aggregates task and result counts for the admin surface.
type Statistics struct {
	TotalTasks      int              `json:"total_tasks"`
	EnabledTasks    int              `json:"enabled_tasks"`
	DisabledTasks   int              `json:"disabled_tasks"`
	ResultsByStatus map[string]int64 `json:"results_by_status"`
}
