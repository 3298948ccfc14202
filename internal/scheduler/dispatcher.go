package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/watzon/gensched/internal/events"
	"github.com/watzon/gensched/internal/metrics"
	"github.com/watzon/gensched/internal/store"
	"github.com/watzon/gensched/internal/task"
)

// maxEligibilityWait bounds how long a dispatched worker waits past the
// task's next execution before handing the task back.
const maxEligibilityWait = time.Minute

// Dispatcher turns queued tasks into workers. Each worker waits for its
// task to become eligible, then executes it while holding one slot of the
// parallelism semaphore.
type Dispatcher struct {
	cfg     Config
	queue   *Queue
	sem     *semaphore.Weighted
	store   *store.Store
	tracker *Tracker
	bus     *events.EventBus
	wg      sync.WaitGroup
}

func NewDispatcher(cfg Config, st *store.Store, tracker *Tracker, bus *events.EventBus) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:     cfg,
		queue:   NewQueue(),
		sem:     semaphore.NewWeighted(int64(cfg.MaxTasksDegreeOfParallelism)),
		store:   st,
		tracker: tracker,
		bus:     bus,
	}
}

// Queue exposes the dispatch queue and in-progress set.
func (d *Dispatcher) Queue() *Queue {
	return d.queue
}

// Dispatch queues tasks and starts a worker for every queued task that
// has none. Tasks already in progress are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []*task.ScheduledTask) {
	for _, t := range tasks {
		if d.queue.Enqueue(t) {
			d.bus.Publish(ctx, &events.Event{
				Type:     events.EventTypeTaskQueued,
				TaskID:   t.ID,
				TaskName: t.Name,
				Status:   string(t.Status),
			})
		}
	}
	metrics.SetQueueDepth(d.queue.Len())

	for {
		t, ok := d.queue.Dequeue()
		if !ok {
			break
		}
		if !d.queue.Claim(t.ID) {
			log.Debug().Str("task_id", t.ID).Msg("Task already in progress, skipping")
			continue
		}

		d.wg.Add(1)
		go d.work(ctx, t)
	}
	metrics.SetQueueDepth(d.queue.Len())
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, t *task.ScheduledTask) {
	metrics.WorkerStarted()
	defer func() {
		d.queue.Release(t.ID)
		metrics.WorkerFinished()
		d.wg.Done()
	}()

	logger := log.With().Str("task_id", t.ID).Str("task_name", t.Name).Logger()

	if !d.awaitEligible(ctx, t) {
		logger.Debug().Msg("Task not eligible, returning it to Ready")
		d.resetReady(ctx, t.ID)
		return
	}

	var fresh *task.ScheduledTask
	var parent task.HistoryStatus
	err := d.store.Do(ctx, func(s *store.Session) error {
		var err error
		fresh, err = s.Tasks().GetByID(ctx, t.ID)
		if err != nil {
			return err
		}
		parent = task.HistoryStatusNone
		if fresh.DependsOnTaskID != "" {
			parent, err = s.History().LatestStatus(ctx, fresh.DependsOnTaskID)
		}
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reload task")
		d.resetReady(ctx, t.ID)
		return
	}

	if !fresh.AvailableToRun(parent) {
		logger.Debug().
			Bool("active", fresh.IsActive).
			Str("status", string(fresh.Status)).
			Str("parent_status", string(parent)).
			Msg("Task not available to run")
		d.resetReady(ctx, t.ID)
		return
	}

	tr := fresh.EligibleTrigger(d.cfg.now(), d.cfg.LateExecutionTolerance)
	if tr == nil {
		d.resetReady(ctx, t.ID)
		return
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.resetReady(ctx, t.ID)
		return
	}
	metrics.JobStarted()
	defer func() {
		metrics.JobFinished()
		d.sem.Release(1)
	}()

	d.tracker.Execute(ctx, fresh, tr.ID)
}

// awaitEligible polls t's triggers until one is eligible. It gives up once
// the task's next execution and the tolerance have passed, or when ctx is
// done.
func (d *Dispatcher) awaitEligible(ctx context.Context, t *task.ScheduledTask) bool {
	tol := d.cfg.LateExecutionTolerance
	now := d.cfg.now()
	if t.EligibleTrigger(now, tol) != nil {
		return true
	}
	if t.NextExecution == nil {
		return false
	}

	deadline := t.NextExecution.Add(tol + d.cfg.EligibilityPollInterval)
	if deadline.Before(now) {
		deadline = now
	}
	if limit := now.Add(maxEligibilityWait + tol); deadline.After(limit) {
		deadline = limit
	}

	ticker := time.NewTicker(d.cfg.EligibilityPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			now = d.cfg.now()
			if t.EligibleTrigger(now, tol) != nil {
				return true
			}
			if now.After(deadline) {
				return false
			}
		}
	}
}

// resetReady hands a Waiting task back to the poll cycle.
func (d *Dispatcher) resetReady(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	err := d.store.Do(ctx, func(s *store.Session) error {
		_, err := s.Tasks().UpdateWhere(ctx,
			store.TaskFilter{IDs: []string{id}, Statuses: []task.Status{task.StatusWaiting}},
			store.TaskChanges{Status: store.Ptr(task.StatusReady)},
		)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("task_id", id).Msg("Failed to reset task to Ready")
	}
}
