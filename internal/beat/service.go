// Package beat runs the scheduler loop: a single background goroutine that
// keeps an in-memory snapshot of enabled periodic tasks, dispatches the due
// ones to the broker, and writes run bookkeeping back to the store.
//
// Dispatch is at-least-once: bookkeeping persistence is best-effort, so a
// crash between dispatch and sync may repeat a firing after restart.
// Running two instances against one store double-dispatches; a single
// instance is assumed.
package beat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"cronbeat/internal/dispatch"
	"cronbeat/internal/domain"
	"cronbeat/internal/store"
)

// Store is the slice of the schedule store the loop needs.
type Store interface {
	ListEnabled(ctx context.Context) ([]store.LoadedTask, error)
	LastChanged(ctx context.Context) (time.Time, error)
	UpdateRunInfo(ctx context.Context, id string, lastRun time.Time, totalRuns int64, enabled bool) error
}

// Options tune the loop. Zero values take the defaults below.
type Options struct {
	// RefreshEvery bounds cache staleness: a full reload happens at least
	// this often even without a change-marker bump.
	RefreshEvery time.Duration
	// MinTick is the shortest sleep between cycles, guarding against
	// busy-looping when an entry is due immediately.
	MinTick time.Duration
	// DispatchTimeout bounds each broker call.
	DispatchTimeout time.Duration
	// Now substitutes the clock, for tests.
	Now func() time.Time
}

const (
	defaultRefreshEvery    = 5 * time.Second
	defaultMinTick         = time.Second
	defaultDispatchTimeout = 10 * time.Second
)

// Service is the scheduler loop. Construct with New, then call Run in its
// own goroutine; the cache is owned by that goroutine and never shared.
type Service struct {
	store      Store
	dispatcher dispatch.Dispatcher

	refreshEvery    time.Duration
	minTick         time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time

	entries     map[string]*Entry
	initialized bool
	lastRefresh time.Time
	markerSeen  time.Time

	// Broker-outage warnings are rate limited so a long outage does not
	// flood the log once per entry per cycle.
	brokerWarn *rate.Limiter
}

func New(st Store, d dispatch.Dispatcher, opts Options) *Service {
	if opts.RefreshEvery <= 0 {
		opts.RefreshEvery = defaultRefreshEvery
	}
	if opts.MinTick <= 0 {
		opts.MinTick = defaultMinTick
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = defaultDispatchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:           st,
		dispatcher:      d,
		refreshEvery:    opts.RefreshEvery,
		minTick:         opts.MinTick,
		dispatchTimeout: opts.DispatchTimeout,
		now:             opts.Now,
		entries:         map[string]*Entry{},
		brokerWarn:      rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
}

// Run executes the loop until ctx is cancelled, then flushes pending
// bookkeeping best-effort.
func (s *Service) Run(ctx context.Context) {
	log.Info().
		Dur("refresh_every", s.refreshEvery).
		Dur("min_tick", s.minTick).
		Msg("scheduler loop started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-timer.C:
			sleep := s.runCycle(ctx)
			timer.Reset(sleep)
		}
	}
}

func (s *Service) shutdown() {
	// Detached context: the loop's context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.syncDirty(ctx)
	log.Info().Msg("scheduler loop stopped")
}

// runCycle performs one pass over the cache and returns how long to sleep:
// the time to the next known due entry or the next refresh boundary,
// whichever comes first, clamped to the minimum tick.
func (s *Service) runCycle(ctx context.Context) time.Duration {
	now := s.now()
	s.refreshIfStale(ctx, now)

	next := s.lastRefresh.Add(s.refreshEvery).Sub(now)
	for _, e := range s.entries {
		if e.broken || !e.Enabled {
			continue
		}
		wait, ok := s.evaluate(ctx, e, now)
		if !ok {
			continue
		}
		if wait < next {
			next = wait
		}
	}

	s.syncDirty(ctx)

	if next < s.minTick {
		next = s.minTick
	}
	return next
}

// evaluate computes due-ness for one entry, dispatching if due. It returns
// the wait until the entry next fires and whether that wait is usable for
// sleep planning. A panic or evaluation failure marks the entry broken and
// never aborts the cycle for the others.
func (s *Service) evaluate(ctx context.Context, e *Entry, now time.Time) (wait time.Duration, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.broken = true
			log.Error().
				Str("task_name", e.Name).
				Interface("panic", r).
				Msg("entry evaluation failed; excluding until next reload")
			ok = false
		}
	}()

	due, next := e.isDue(now)
	if !due {
		return next.Sub(now), true
	}

	if err := s.dispatchEntry(ctx, e, now); err != nil {
		if errors.Is(err, domain.ErrDispatchUnavailable) {
			// Transient: bookkeeping untouched, so the entry stays due and
			// retries next cycle with the polling interval as backoff.
			if s.brokerWarn.Allow() {
				log.Warn().Err(err).Msg("broker unavailable, will retry due entries")
			}
		} else {
			log.Error().Err(err).Str("task_name", e.Name).Msg("dispatch failed")
		}
		return s.minTick, true
	}

	e.markDispatched(now)
	_, next = e.isDue(now)
	return next.Sub(now), true
}

func (s *Service) dispatchEntry(ctx context.Context, e *Entry, now time.Time) error {
	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	id, err := s.dispatcher.Dispatch(dctx, dispatch.Message{
		Task:     e.Task,
		Args:     e.Args,
		Kwargs:   e.Kwargs,
		Queue:    e.Queue,
		Priority: e.Priority,
		Expires:  e.Expires,
		SentAt:   now,
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("task_name", e.Name).
		Str("task", e.Task).
		Str("dispatch_id", id).
		Int64("run_count", e.RunCount+1).
		Msg("periodic task dispatched")
	return nil
}

// refreshIfStale reloads the cache when the staleness bound elapsed or the
// change marker moved past the value seen at the last reload. It reports
// whether a reload happened.
func (s *Service) refreshIfStale(ctx context.Context, now time.Time) bool {
	marker, markerErr := s.store.LastChanged(ctx)
	if markerErr != nil {
		log.Error().Err(markerErr).Msg("failed to read change marker")
	}

	stale := !s.initialized ||
		now.Sub(s.lastRefresh) >= s.refreshEvery ||
		(markerErr == nil && marker.After(s.markerSeen))
	if !stale {
		return false
	}

	loaded, err := s.store.ListEnabled(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to reload schedule from store")
		return false
	}

	fresh := make(map[string]*Entry, len(loaded))
	for _, lt := range loaded {
		e, err := newEntry(lt)
		if err != nil {
			log.Error().Err(err).Str("task_name", lt.Task.Name).Msg("skipping unresolvable task")
			continue
		}
		// In-memory bookkeeping is authoritative until synced: keep newer
		// run state (and its dirty flag) across the reload.
		if old, exists := s.entries[e.Name]; exists && old.TaskID == e.TaskID && old.LastRun.After(e.LastRun) {
			e.LastRun = old.LastRun
			e.RunCount = old.RunCount
			e.Enabled = e.Enabled && old.Enabled
			e.dirty = old.dirty
		}
		fresh[e.Name] = e
	}

	s.entries = fresh
	s.initialized = true
	s.lastRefresh = now
	if markerErr == nil {
		s.markerSeen = marker
	}
	log.Debug().Int("entries", len(fresh)).Msg("schedule cache reloaded")
	return true
}

// syncDirty persists run bookkeeping for every entry touched since the last
// successful sync. Persistence failure is logged, not fatal: the in-memory
// state stays authoritative and the write is retried next cycle.
func (s *Service) syncDirty(ctx context.Context) {
	for _, e := range s.entries {
		if !e.dirty {
			continue
		}
		if err := s.store.UpdateRunInfo(ctx, e.TaskID, e.LastRun, e.RunCount, e.Enabled); err != nil {
			log.Error().Err(err).Str("task_name", e.Name).Msg("failed to sync run bookkeeping")
			continue
		}
		e.dirty = false
	}
}
