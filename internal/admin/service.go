// Package admin implements the mutation surface over the schedule store:
// validation, schedule-binding rules, run-now dispatch, statistics, and
// result cleanup. Every mutation goes through the store's transactional
// marker bump so the scheduler loop converges on the new state.
package admin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"cronbeat/internal/dispatch"
	"cronbeat/internal/domain"
	"cronbeat/internal/registry"
	"cronbeat/internal/schedule"
	"cronbeat/internal/store"
)

type Service struct {
	repo       store.Repository
	dispatcher dispatch.Dispatcher
	registry   *registry.Registry
}

func NewService(repo store.Repository, d dispatch.Dispatcher, reg *registry.Registry) *Service {
	return &Service{repo: repo, dispatcher: d, registry: reg}
}

func (s *Service) CreateInterval(ctx context.Context, def domain.IntervalSchedule) (domain.IntervalSchedule, error) {
	if err := schedule.Validate(def.Every, def.Period); err != nil {
		return domain.IntervalSchedule{}, err
	}
	id, err := s.repo.CreateInterval(ctx, def)
	if err != nil {
		return domain.IntervalSchedule{}, err
	}
	def.ID = id
	return def, nil
}

func (s *Service) ListIntervals(ctx context.Context) ([]domain.IntervalSchedule, error) {
	return s.repo.ListIntervals(ctx)
}

func (s *Service) DeleteInterval(ctx context.Context, id string) error {
	return s.repo.DeleteInterval(ctx, id)
}

func (s *Service) CreateCrontab(ctx context.Context, def domain.CrontabSchedule) (domain.CrontabSchedule, error) {
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
	if err := schedule.ValidateCrontab(def); err != nil {
		return domain.CrontabSchedule{}, err
	}
	id, err := s.repo.CreateCrontab(ctx, def)
	if err != nil {
		return domain.CrontabSchedule{}, err
	}
	def.ID = id
	return def, nil
}

func (s *Service) ListCrontabs(ctx context.Context) ([]domain.CrontabSchedule, error) {
	return s.repo.ListCrontabs(ctx)
}

func (s *Service) DeleteCrontab(ctx context.Context, id string) error {
	return s.repo.DeleteCrontab(ctx, id)
}

// validateBinding enforces the exactly-one-of rule and checks the referenced
// schedule row exists. Tasks with no binding are rejected outright rather
// than silently falling back to a default period.
func (s *Service) validateBinding(ctx context.Context, t *domain.PeriodicTask) error {
	switch {
	case t.IntervalID != nil && t.CrontabID != nil:
		return domain.Invalid("schedule", "interval_id and crontab_id are mutually exclusive")
	case t.IntervalID != nil:
		if _, err := s.repo.GetInterval(ctx, *t.IntervalID); err != nil {
			return domain.Invalid("interval_id", "no interval schedule %q", *t.IntervalID)
		}
	case t.CrontabID != nil:
		if _, err := s.repo.GetCrontab(ctx, *t.CrontabID); err != nil {
			return domain.Invalid("crontab_id", "no crontab schedule %q", *t.CrontabID)
		}
	default:
		return domain.Invalid("schedule", "exactly one of interval_id or crontab_id is required")
	}
	return nil
}

func (s *Service) CreateTask(ctx context.Context, t domain.PeriodicTask) (domain.PeriodicTask, error) {
	if t.Name == "" {
		return domain.PeriodicTask{}, domain.Invalid("name", "is required")
	}
	if t.Task == "" {
		return domain.PeriodicTask{}, domain.Invalid("task", "is required")
	}
	if err := s.validateBinding(ctx, &t); err != nil {
		return domain.PeriodicTask{}, err
	}
	if s.registry != nil && !s.registry.Known(t.Task) {
		log.Warn().Str("task", t.Task).Msg("creating schedule for unregistered task")
	}
	id, err := s.repo.CreateTask(ctx, t)
	if err != nil {
		return domain.PeriodicTask{}, err
	}
	return s.repo.GetTask(ctx, id)
}

func (s *Service) GetTask(ctx context.Context, id string) (domain.PeriodicTask, error) {
	return s.repo.GetTask(ctx, id)
}

func (s *Service) ListTasks(ctx context.Context, f store.TaskFilter) ([]domain.PeriodicTask, int, error) {
	return s.repo.ListTasks(ctx, f)
}

// TaskUpdate carries the mutable task fields; nil pointers leave the
// current value in place. Schedule rebinding swaps the whole binding.
type TaskUpdate struct {
	Name        *string          `json:"name"`
	Task        *string          `json:"task"`
	IntervalID  *string          `json:"interval_id"`
	CrontabID   *string          `json:"crontab_id"`
	Args        *json.RawMessage `json:"args"`
	Kwargs      *json.RawMessage `json:"kwargs"`
	Queue       *string          `json:"queue"`
	Priority    *int             `json:"priority"`
	Expires     *time.Time       `json:"expires"`
	OneOff      *bool            `json:"one_off"`
	StartTime   *time.Time       `json:"start_time"`
	Enabled     *bool            `json:"enabled"`
	Description *string          `json:"description"`
}

func (s *Service) UpdateTask(ctx context.Context, id string, u TaskUpdate) (domain.PeriodicTask, error) {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return domain.PeriodicTask{}, err
	}

	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Task != nil {
		t.Task = *u.Task
	}
	if u.IntervalID != nil || u.CrontabID != nil {
		t.IntervalID = u.IntervalID
		t.CrontabID = u.CrontabID
	}
	if u.Args != nil {
		t.Args = *u.Args
	}
	if u.Kwargs != nil {
		t.Kwargs = *u.Kwargs
	}
	if u.Queue != nil {
		t.Queue = *u.Queue
	}
	if u.Priority != nil {
		t.Priority = u.Priority
	}
	if u.Expires != nil {
		t.Expires = u.Expires
	}
	if u.OneOff != nil {
		t.OneOff = *u.OneOff
	}
	if u.StartTime != nil {
		t.StartTime = u.StartTime
	}
	if u.Enabled != nil {
		t.Enabled = *u.Enabled
	}
	if u.Description != nil {
		t.Description = *u.Description
	}

	if t.Name == "" {
		return domain.PeriodicTask{}, domain.Invalid("name", "is required")
	}
	if err := s.validateBinding(ctx, &t); err != nil {
		return domain.PeriodicTask{}, err
	}
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return domain.PeriodicTask{}, err
	}
	return s.repo.GetTask(ctx, id)
}

func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return s.repo.DeleteTask(ctx, id)
}

func (s *Service) EnableTask(ctx context.Context, id string) error {
	return s.repo.SetTaskEnabled(ctx, id, true)
}

func (s *Service) DisableTask(ctx context.Context, id string) error {
	return s.repo.SetTaskEnabled(ctx, id, false)
}

// RunTaskNow dispatches a task immediately, bypassing its schedule, and
// records a pending result row carrying the dispatch id. Run bookkeeping is
// untouched: manual runs don't shift the periodic cadence.
func (s *Service) RunTaskNow(ctx context.Context, id string) (string, error) {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return "", err
	}

	dispatchID, err := s.dispatcher.Dispatch(ctx, dispatch.Message{
		Task:     t.Task,
		Args:     t.Args,
		Kwargs:   t.Kwargs,
		Queue:    t.Queue,
		Priority: t.Priority,
		Expires:  t.Expires,
	})
	if err != nil {
		return "", err
	}

	if _, err := s.repo.InsertResult(ctx, domain.TaskResult{
		ID:       dispatchID,
		TaskName: t.Task,
		Status:   domain.StatusPending,
		Args:     t.Args,
		Kwargs:   t.Kwargs,
	}); err != nil {
		// Dispatch already happened; a missing pending row only loses
		// traceability, not the execution.
		log.Error().Err(err).Str("dispatch_id", dispatchID).Msg("failed to record pending result")
	}

	log.Info().Str("task_name", t.Name).Str("dispatch_id", dispatchID).Msg("task dispatched manually")
	return dispatchID, nil
}

func (s *Service) GetResult(ctx context.Context, id string) (domain.TaskResult, error) {
	return s.repo.GetResult(ctx, id)
}

func (s *Service) ListResults(ctx context.Context, f store.ResultFilter) ([]domain.TaskResult, int, error) {
	return s.repo.ListResults(ctx, f)
}

// CleanupResults purges results older than the retention window and returns
// how many rows were removed.
func (s *Service) CleanupResults(ctx context.Context, retention time.Duration) (int, error) {
	return s.repo.DeleteResultsBefore(ctx, time.Now().UTC().Add(-retention))
}

func (s *Service) Statistics(ctx context.Context) (domain.Statistics, error) {
	return s.repo.Statistics(ctx)
}

func (s *Service) AvailableTasks() []registry.TaskInfo {
	if s.registry == nil {
		return nil
	}
	return s.registry.List()
}
