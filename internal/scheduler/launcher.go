// Package scheduler runs the dispatch engine: a poll loop that stages due
// tasks and recovers stuck ones, a de-duplicating dispatch queue feeding
// per-task workers, and the execution tracker that runs a task's job under
// the retry and timeout policy.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gensched/internal/events"
	"github.com/watzon/gensched/internal/job"
	"github.com/watzon/gensched/internal/metrics"
	"github.com/watzon/gensched/internal/store"
	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/trigger"
)

// stagingWindow is how far ahead of its next execution a Ready task is
// promoted to Waiting.
const stagingWindow = time.Minute

const pruneBatchSize = 500

var ErrAlreadyRunning = errors.New("scheduler is already running")

// Archiver receives history records before retention deletes them.
type Archiver interface {
	Archive(ctx context.Context, records []*task.History) error
}

// Launcher owns the poll loop and the management operations that need the
// scheduler's clock, job registry and event bus.
type Launcher struct {
	cfg        Config
	store      *store.Store
	jobs       *job.Registry
	bus        *events.EventBus
	archiver   Archiver
	dispatcher *Dispatcher
	running    atomic.Bool
}

type Option func(*Launcher)

func WithEventBus(bus *events.EventBus) Option {
	return func(l *Launcher) { l.bus = bus }
}

func WithArchiver(a Archiver) Option {
	return func(l *Launcher) { l.archiver = a }
}

func NewLauncher(cfg Config, st *store.Store, jobs *job.Registry, opts ...Option) *Launcher {
	l := &Launcher{
		cfg:   cfg.withDefaults(),
		store: st,
		jobs:  jobs,
	}
	for _, opt := range opts {
		opt(l)
	}
	tracker := NewTracker(l.cfg, st, jobs, l.bus)
	l.dispatcher = NewDispatcher(l.cfg, st, tracker, l.bus)
	return l
}

// Jobs returns the job registry tasks are validated and decoded with.
func (l *Launcher) Jobs() *job.Registry {
	return l.jobs
}

// Running reports whether Run is active.
func (l *Launcher) Running() bool {
	return l.running.Load()
}

// QueueDepth returns the number of tasks waiting for a worker.
func (l *Launcher) QueueDepth() int {
	return l.dispatcher.Queue().Len()
}

// Run polls the database until ctx is canceled, then waits for in-flight
// workers to record their outcome before returning.
func (l *Launcher) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	log.Info().
		Dur("interval", l.cfg.DatabaseCheckInterval).
		Int("parallelism", l.cfg.MaxTasksDegreeOfParallelism).
		Bool("retry_on_failure", l.cfg.RetryOnFailure).
		Msg("Scheduler started")

	l.recoverRunning(ctx)

	ticker := time.NewTicker(l.cfg.DatabaseCheckInterval)
	defer ticker.Stop()

	for {
		l.cycle(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopping, waiting for running tasks")
			l.dispatcher.Wait()
			log.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// recoverRunning resets tasks left Running by a previous process. Nothing
// in this process can be executing them yet.
func (l *Launcher) recoverRunning(ctx context.Context) {
	var n int64
	err := l.store.Do(ctx, func(s *store.Session) error {
		var err error
		n, err = s.Tasks().UpdateWhere(ctx,
			store.TaskFilter{Statuses: []task.Status{task.StatusRunning, task.StatusWaiting}},
			store.TaskChanges{Status: store.Ptr(task.StatusReady)},
		)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to recover interrupted tasks")
		return
	}
	if n > 0 {
		log.Warn().Int64("count", n).Msg("Reset tasks interrupted by a previous run")
	}
}

func (l *Launcher) cycle(ctx context.Context) {
	start := time.Now()

	tasks, err := l.refresh(ctx)
	result := "ok"
	if err != nil {
		result = "error"
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to refresh tasks")
		}
	}

	if len(tasks) > 0 && ctx.Err() == nil {
		l.dispatcher.Dispatch(ctx, tasks)
	}

	if l.cfg.HistoryRetention > 0 && ctx.Err() == nil {
		if _, err := l.pruneBatch(ctx, l.cfg.now().Add(-l.cfg.HistoryRetention)); err != nil {
			log.Error().Err(err).Msg("Failed to prune history")
		}
	}

	metrics.RecordPoll(result, time.Since(start))
}

// refresh reconciles task statuses and returns the Waiting tasks to
// dispatch. Tasks whose triggers were all missed are flagged and handed
// back to Ready instead.
func (l *Launcher) refresh(ctx context.Context) ([]*task.ScheduledTask, error) {
	now := l.cfg.now()
	tol := l.cfg.LateExecutionTolerance
	inProgress := l.dispatcher.Queue().InProgressIDs()

	var (
		dispatch []*task.ScheduledTask
		stuck    []*task.ScheduledTask
		missed   []*task.ScheduledTask
		flagged  int
	)

	err := l.store.Do(ctx, func(s *store.Session) error {
		promoted, err := s.Tasks().UpdateWhere(ctx,
			store.TaskFilter{
				Statuses:   []task.Status{task.StatusReady},
				Active:     store.Ptr(true),
				DueBefore:  store.Ptr(now.Add(stagingWindow)),
				ExcludeIDs: inProgress,
			},
			store.TaskChanges{Status: store.Ptr(task.StatusWaiting)},
		)
		if err != nil {
			return err
		}
		if promoted > 0 {
			log.Debug().Int64("count", promoted).Msg("Promoted due tasks to Waiting")
		}

		stuckFilter := store.TaskFilter{
			Stuck:      &store.StuckCriteria{Now: now, Tolerance: tol},
			ExcludeIDs: inProgress,
		}
		stuck, err = s.Tasks().GetAll(ctx, stuckFilter)
		if err != nil {
			return err
		}
		if len(stuck) > 0 {
			if _, err := s.Tasks().UpdateWhere(ctx,
				store.TaskFilter{IDs: taskIDs(stuck)},
				store.TaskChanges{Status: store.Ptr(task.StatusReady)},
			); err != nil {
				return err
			}
		}

		if l.cfg.AutoDeleteInactiveTasks {
			n, err := s.Tasks().DeleteWhere(ctx, store.TaskFilter{
				Active:     store.Ptr(false),
				ExcludeIDs: inProgress,
			})
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info().Int64("count", n).Msg("Deleted inactive tasks")
			}
		}

		waiting, err := s.Tasks().GetAll(ctx, store.TaskFilter{
			Statuses: []task.Status{task.StatusWaiting},
			Active:   store.Ptr(true),
		})
		if err != nil {
			return err
		}

		var missfireIDs []string
		for _, t := range waiting {
			if t.EligibleTrigger(now, tol) != nil || contains(inProgress, t.ID) {
				dispatch = append(dispatch, t)
				continue
			}

			changed, flaggedHere := false, false
			for _, tr := range t.Triggers {
				if !tr.IsMissed(now, tol) {
					continue
				}
				if tr.LastTriggeredStatus != trigger.StatusMissfire {
					tr.LastTriggeredStatus = trigger.StatusMissfire
					missfireIDs = append(missfireIDs, tr.ID)
					flaggedHere = true
				}
				// Roll a missed occurrence forward so the task stops
				// pointing at the past.
				if tr.NextExecution == nil || tr.NextExecution.Before(now.Add(-tol)) {
					tr.RefreshNext(now)
					changed = true
				}
			}

			if changed {
				t.RefreshNextExecution()
			}
			if t.NextExecution == nil || t.NextExecution.After(now.Add(stagingWindow)) {
				t.Status = task.StatusReady
				changed = true
			} else {
				dispatch = append(dispatch, t)
			}

			if changed {
				if err := s.Tasks().Update(ctx, t); err != nil {
					return err
				}
			}
			if flaggedHere {
				missed = append(missed, t)
			}
		}

		if len(missfireIDs) > 0 {
			n, err := s.Triggers().UpdateWhere(ctx,
				store.TriggerFilter{IDs: missfireIDs},
				store.TriggerChanges{LastTriggeredStatus: store.Ptr(trigger.StatusMissfire)},
			)
			if err != nil {
				return err
			}
			flagged = int(n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, t := range stuck {
		log.Warn().
			Str("task_id", t.ID).
			Str("task_name", t.Name).
			Msg("Reset stuck task to Ready")
		l.bus.Publish(ctx, &events.Event{
			Type:     events.EventTypeTaskStuck,
			TaskID:   t.ID,
			TaskName: t.Name,
			Status:   string(task.StatusReady),
		})
	}
	metrics.AddStuckResets(len(stuck))

	if flagged > 0 {
		log.Info().Int("count", flagged).Msg("Flagged missed triggers")
	}
	for _, t := range missed {
		l.bus.Publish(ctx, &events.Event{
			Type:     events.EventTypeTriggerMissfire,
			TaskID:   t.ID,
			TaskName: t.Name,
			Status:   string(trigger.StatusMissfire),
		})
	}
	metrics.AddMissfires(flagged)

	return dispatch, nil
}

// PruneHistory deletes history started before olderThan, archiving it
// first when an archiver is configured. It returns the number deleted.
func (l *Launcher) PruneHistory(ctx context.Context, olderThan time.Time) (int, error) {
	total := 0
	for {
		n, err := l.pruneBatch(ctx, olderThan)
		total += n
		if err != nil {
			return total, err
		}
		if n < pruneBatchSize {
			return total, nil
		}
	}
}

func (l *Launcher) pruneBatch(ctx context.Context, olderThan time.Time) (int, error) {
	var batch []*task.History
	err := l.store.Do(ctx, func(s *store.Session) error {
		var err error
		batch, err = s.History().GetAll(ctx, store.HistoryFilter{
			StartedBefore: &olderThan,
			Oldest:        true,
			Limit:         pruneBatchSize,
		})
		return err
	})
	if err != nil || len(batch) == 0 {
		return 0, err
	}

	if l.archiver != nil {
		if err := l.archiver.Archive(ctx, batch); err != nil {
			return 0, err
		}
	}

	ids := make([]string, len(batch))
	for i, h := range batch {
		ids[i] = h.ID
	}

	var n int64
	err = l.store.Do(ctx, func(s *store.Session) error {
		var err error
		n, err = s.History().DeleteWhere(ctx, store.HistoryFilter{IDs: ids})
		return err
	})
	if err != nil {
		return 0, err
	}

	metrics.AddHistoryPruned(int(n))
	log.Debug().Int64("count", n).Time("older_than", olderThan).Msg("Pruned history")
	return int(n), nil
}

func taskIDs(tasks []*task.ScheduledTask) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
