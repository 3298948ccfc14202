package scheduler

import (
	"sync"

	"github.com/watzon/gensched/internal/task"
)

// Queue is a FIFO of tasks keyed by id. Enqueuing a task that is already
// queued replaces its definition in place, so an id is queued at most once.
// The in-progress set records which ids currently have a worker.
//
// Dispatch drains the queue in the same call that fills it, so replacement
// only collapses duplicates within one batch. Workers reload their task
// from the store before running it; the queued definition is only used to
// wait for eligibility.
type Queue struct {
	mu         sync.Mutex
	order      []string
	defs       map[string]*task.ScheduledTask
	inProgress map[string]struct{}
}

func NewQueue() *Queue {
	return &Queue{
		defs:       make(map[string]*task.ScheduledTask),
		inProgress: make(map[string]struct{}),
	}
}

// Enqueue adds t, or replaces the queued definition with the same id. It
// reports whether a new entry was created.
func (q *Queue) Enqueue(t *task.ScheduledTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.defs[t.ID]; ok {
		q.defs[t.ID] = t
		return false
	}
	q.defs[t.ID] = t
	q.order = append(q.order, t.ID)
	return true
}

// Dequeue removes and returns the oldest entry.
func (q *Queue) Dequeue() (*task.ScheduledTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) == 0 {
		return nil, false
	}
	id := q.order[0]
	q.order[0] = ""
	q.order = q.order[1:]
	t := q.defs[id]
	delete(q.defs, id)
	return t, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Claim marks id as in progress. It fails when another worker holds it.
func (q *Queue) Claim(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, busy := q.inProgress[id]; busy {
		return false
	}
	q.inProgress[id] = struct{}{}
	return true
}

// Release removes id from the in-progress set.
func (q *Queue) Release(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inProgress, id)
}

func (q *Queue) InProgress(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inProgress[id]
	return ok
}

// InProgressIDs returns the ids that currently have a worker.
func (q *Queue) InProgressIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, 0, len(q.inProgress))
	for id := range q.inProgress {
		ids = append(ids, id)
	}
	return ids
}
