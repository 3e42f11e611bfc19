package beat

import (
	"encoding/json"
	"time"

	"cronbeat/internal/domain"
	"cronbeat/internal/schedule"
	"cronbeat/internal/store"
)

// Entry is the loop's resolved snapshot of one enabled periodic task. The
// schedule kind is resolved once at load time; due-ness evaluation is pure
// and touches no I/O. Entries are owned exclusively by the loop goroutine.
type Entry struct {
	TaskID    string
	Name      string
	Task      string
	Schedule  schedule.Schedule
	Args      json.RawMessage
	Kwargs    json.RawMessage
	Queue     string
	Priority  *int
	Expires   *time.Time
	OneOff    bool
	StartTime *time.Time

	Enabled  bool
	LastRun  time.Time // zero if the task never ran
	RunCount int64

	// dirty marks bookkeeping not yet persisted; broken excludes an entry
	// whose evaluation failed until the next reload.
	dirty  bool
	broken bool
}

// newEntry resolves a loaded task into an evaluable entry. A task with no
// schedule binding is rejected; creation-time validation should have made
// that impossible, so the caller logs and skips such rows.
func newEntry(lt store.LoadedTask) (*Entry, error) {
	var (
		sched schedule.Schedule
		err   error
	)
	switch {
	case lt.Interval != nil:
		sched, err = schedule.NewInterval(lt.Interval.Every, lt.Interval.Period)
	case lt.Crontab != nil:
		sched, err = schedule.NewCrontab(*lt.Crontab)
	default:
		return nil, domain.Invalid("schedule", "task %q has no interval or crontab binding", lt.Task.Name)
	}
	if err != nil {
		return nil, err
	}

	e := &Entry{
		TaskID:    lt.Task.ID,
		Name:      lt.Task.Name,
		Task:      lt.Task.Task,
		Schedule:  sched,
		Args:      lt.Task.Args,
		Kwargs:    lt.Task.Kwargs,
		Queue:     lt.Task.Queue,
		Priority:  lt.Task.Priority,
		Expires:   lt.Task.Expires,
		OneOff:    lt.Task.OneOff,
		StartTime: lt.Task.StartTime,
		Enabled:   lt.Task.Enabled,
		RunCount:  lt.Task.TotalRuns,
	}
	if lt.Task.LastRunAt != nil {
		e.LastRun = *lt.Task.LastRunAt
	}
	return e, nil
}

// isDue applies the start-time gate on top of the schedule calculation.
// The returned instant is the earliest time the entry can fire given its
// current LastRun.
func (e *Entry) isDue(now time.Time) (bool, time.Time) {
	due, next := e.Schedule.IsDue(now, e.LastRun)
	if e.StartTime != nil && now.Before(*e.StartTime) {
		if e.StartTime.After(next) {
			next = *e.StartTime
		}
		return false, next
	}
	return due, next
}

// markDispatched records a successful dispatch at now. One-off tasks
// disable themselves after their single firing.
func (e *Entry) markDispatched(now time.Time) {
	e.LastRun = now
	e.RunCount++
	if e.OneOff {
		e.Enabled = false
	}
	e.dirty = true
}
