package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watzon/gensched/internal/events"
	"github.com/watzon/gensched/internal/job"
	"github.com/watzon/gensched/internal/metrics"
	"github.com/watzon/gensched/internal/store"
	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/trigger"
)

var (
	ErrExecutionTimeout  = errors.New("execution timed out")
	ErrExecutionCanceled = errors.New("execution canceled")
)

// Tracker runs one activation of a task: it marks the task Running, fires
// the trigger as long as it stays eligible, records one history entry per
// attempt sequence and finally returns the task to Ready.
type Tracker struct {
	cfg   Config
	store *store.Store
	jobs  *job.Registry
	bus   *events.EventBus
}

func NewTracker(cfg Config, st *store.Store, jobs *job.Registry, bus *events.EventBus) *Tracker {
	return &Tracker{cfg: cfg.withDefaults(), store: st, jobs: jobs, bus: bus}
}

// Execute runs t fired by the trigger with triggerID. t must be freshly
// loaded; Execute owns it until it returns.
func (tk *Tracker) Execute(ctx context.Context, t *task.ScheduledTask, triggerID string) {
	logger := log.With().
		Str("task_id", t.ID).
		Str("task_name", t.Name).
		Str("trigger_id", triggerID).
		Logger()

	tr := t.Trigger(triggerID)
	if tr == nil {
		logger.Error().Msg("Trigger not found on task")
		return
	}

	// Writes must land even while shutting down.
	pctx := context.WithoutCancel(ctx)

	if err := tk.markRunning(pctx, t, tr); err != nil {
		logger.Error().Err(err).Msg("Failed to mark task running")
		return
	}
	defer tk.finish(pctx, t, tr, logger)

	actx := ctx
	if t.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, t.MaxExecutionTime)
		defer cancel()
	}

	started := tk.cfg.now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("Task execution panicked")
			h := tk.newHistory(t, tr)
			status := task.HistoryStatusFailed
			if ctx.Err() != nil {
				status = task.HistoryStatusCanceled
			}
			h.Finish(tk.cfg.now(), status, fmt.Errorf("panic: %v", p))
			tk.record(pctx, t, h)
		}
	}()

	logger.Info().Str("job", t.Job.Type).Msg("Task execution started")
	tk.bus.Publish(pctx, &events.Event{
		Type:      events.EventTypeExecutionStarted,
		TaskID:    t.ID,
		TaskName:  t.Name,
		TriggerID: tr.ID,
		Status:    string(task.StatusRunning),
	})

	j, err := tk.jobs.Decode(t.Job)
	if err != nil {
		h := tk.newHistory(t, tr)
		h.Finish(tk.cfg.now(), task.HistoryStatusFailed, err)
		tk.record(pctx, t, h)
		tr.Advance(tk.cfg.now())
		return
	}

	for {
		h := tk.runSequence(ctx, actx, t, tr, j, logger)
		tk.record(pctx, t, h)
		tr.Advance(tk.cfg.now())

		if h.Status == task.HistoryStatusCanceled {
			return
		}
		if err := tk.saveProgress(pctx, t, tr); err != nil {
			logger.Error().Err(err).Msg("Failed to persist trigger progress")
		}

		if !sleep(actx, tr.ExecutionInterval) {
			if ctx.Err() == nil {
				h := tk.newHistory(t, tr)
				h.Finish(tk.cfg.now(), task.HistoryStatusCanceled, tk.cancelCause(ctx, t))
				tk.record(pctx, t, h)
			}
			return
		}
		if !tr.IsEligible(tk.cfg.now(), tk.cfg.LateExecutionTolerance) {
			break
		}
	}

	logger.Info().
		Dur("elapsed", tk.cfg.now().Sub(started)).
		Int("executions", tr.Executions).
		Msg("Task execution finished")
}

// runSequence runs the attempt sequence of one firing and returns its
// history record. Failures that are retried are not recorded separately.
func (tk *Tracker) runSequence(ctx, actx context.Context, t *task.ScheduledTask, tr *trigger.Trigger, j job.Job, logger zerolog.Logger) *task.History {
	h := tk.newHistory(t, tr)
	maxAttempts := tk.cfg.attempts()

	for attempt := 1; ; attempt++ {
		h.Attempts = attempt

		result, err := runAttempt(actx, j)
		if err == nil {
			if err := h.SetResult(result); err != nil {
				logger.Warn().Err(err).Msg("Discarding job result")
			}
			h.Finish(tk.cfg.now(), task.HistoryStatusSuccess, nil)
			break
		}

		if actx.Err() != nil {
			h.Finish(tk.cfg.now(), task.HistoryStatusCanceled, tk.cancelCause(ctx, t))
			break
		}

		if attempt >= maxAttempts {
			logger.Error().Err(err).Int("attempts", attempt).Msg("Task execution failed")
			h.Finish(tk.cfg.now(), task.HistoryStatusFailed, err)
			break
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("retry_in", tk.cfg.RetryWaitDelay).
			Msg("Attempt failed, retrying")

		if !sleep(actx, tk.cfg.RetryWaitDelay) {
			h.Finish(tk.cfg.now(), task.HistoryStatusCanceled, tk.cancelCause(ctx, t))
			break
		}
	}

	metrics.RecordExecution(t.Job.Type, string(h.Status), h.Attempts, h.Duration())
	return h
}

func runAttempt(ctx context.Context, j job.Job) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return j.Execute(ctx)
}

func (tk *Tracker) cancelCause(ctx context.Context, t *task.ScheduledTask) error {
	if ctx.Err() != nil {
		return ErrExecutionCanceled
	}
	return fmt.Errorf("%w after %s", ErrExecutionTimeout, t.MaxExecutionTime)
}

func (tk *Tracker) newHistory(t *task.ScheduledTask, tr *trigger.Trigger) *task.History {
	return &task.History{
		TaskID:    t.ID,
		TriggerID: tr.ID,
		StartedAt: tk.cfg.now(),
		Attempts:  1,
	}
}

func (tk *Tracker) record(ctx context.Context, t *task.ScheduledTask, h *task.History) {
	err := tk.store.Do(ctx, func(s *store.Session) error {
		return s.History().Add(ctx, h)
	})
	if err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Msg("Failed to record execution history")
	}

	tk.bus.Publish(ctx, &events.Event{
		Type:      events.EventTypeExecutionFinished,
		TaskID:    t.ID,
		TaskName:  t.Name,
		TriggerID: h.TriggerID,
		Status:    string(h.Status),
		Error:     h.Error,
		Payload:   h,
	})
}

func (tk *Tracker) markRunning(ctx context.Context, t *task.ScheduledTask, tr *trigger.Trigger) error {
	now := tk.cfg.now()
	t.Status = task.StatusRunning
	t.LastExecution = &now
	tr.LastTriggeredStatus = trigger.StatusSuccess
	// Point past the occurrence being served so an unbounded run is not
	// mistaken for a stuck one.
	t.NextExecution = t.UpcomingExecution(now)

	return tk.store.Do(ctx, func(s *store.Session) error {
		return s.Tasks().Update(ctx, t)
	})
}

// saveProgress persists the trigger between firings of one activation.
func (tk *Tracker) saveProgress(ctx context.Context, t *task.ScheduledTask, tr *trigger.Trigger) error {
	return tk.store.Do(ctx, func(s *store.Session) error {
		fresh, err := s.Tasks().GetByID(ctx, t.ID)
		if err != nil {
			return err
		}
		replaceTrigger(fresh, tr)
		fresh.Status = task.StatusRunning
		fresh.NextExecution = fresh.UpcomingExecution(tk.cfg.now())
		return s.Tasks().Update(ctx, fresh)
	})
}

// finish returns the task to Ready with the fired trigger's final state,
// applying trigger and task auto-delete.
func (tk *Tracker) finish(ctx context.Context, t *task.ScheduledTask, tr *trigger.Trigger, logger zerolog.Logger) {
	now := tk.cfg.now()
	deleted := false

	err := tk.store.Do(ctx, func(s *store.Session) error {
		fresh, err := s.Tasks().GetByID(ctx, t.ID)
		if errors.Is(err, task.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		fresh.Status = task.StatusReady
		if tr.ShouldAutoDelete && (!tr.IsValid || tr.Expired(now)) {
			removeTrigger(fresh, tr.ID)
			logger.Debug().Msg("Trigger auto-deleted")
		} else {
			replaceTrigger(fresh, tr)
		}
		fresh.RefreshNextExecution()

		if fresh.AutoDelete && !fresh.HasValidTrigger() {
			deleted = true
			return s.Tasks().Delete(ctx, fresh.ID)
		}
		return s.Tasks().Update(ctx, fresh)
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to finalize task execution")
		return
	}

	if deleted {
		logger.Info().Msg("Task auto-deleted")
		tk.bus.Publish(ctx, &events.Event{
			Type:     events.EventTypeTaskDeleted,
			TaskID:   t.ID,
			TaskName: t.Name,
		})
	}
}

func replaceTrigger(t *task.ScheduledTask, tr *trigger.Trigger) {
	for i, existing := range t.Triggers {
		if existing.ID == tr.ID {
			t.Triggers[i] = tr
			return
		}
	}
}

func removeTrigger(t *task.ScheduledTask, id string) {
	kept := t.Triggers[:0]
	for _, existing := range t.Triggers {
		if existing.ID != id {
			kept = append(kept, existing)
		}
	}
	t.Triggers = kept
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
