// Package store persists tasks, triggers and execution history in SQLite.
//
// Every logical operation runs in its own Session: a short-lived
// transaction that exposes the three repositories and is committed or
// rolled back when the operation ends. Sessions must not be nested on one
// goroutine; with a single SQLite connection the inner one would wait for
// the outer one forever.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/gensched/internal/database"
	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/trigger"
)

var ErrNotFound = errors.New("not found")

// TaskRepository stores scheduled tasks together with their triggers.
type TaskRepository interface {
	Add(ctx context.Context, t *task.ScheduledTask) error
	GetByID(ctx context.Context, id string) (*task.ScheduledTask, error)
	GetByName(ctx context.Context, name string) (*task.ScheduledTask, error)
	GetAll(ctx context.Context, filter TaskFilter) ([]*task.ScheduledTask, error)
	Count(ctx context.Context, filter TaskFilter) (int, error)
	Update(ctx context.Context, t *task.ScheduledTask) error
	UpdateWhere(ctx context.Context, filter TaskFilter, changes TaskChanges) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteWhere(ctx context.Context, filter TaskFilter) (int64, error)
}

// TriggerRepository stores triggers and their calendar entries.
type TriggerRepository interface {
	Add(ctx context.Context, tr *trigger.Trigger) error
	GetByID(ctx context.Context, id string) (*trigger.Trigger, error)
	GetByTaskID(ctx context.Context, taskID string) ([]*trigger.Trigger, error)
	GetAll(ctx context.Context, filter TriggerFilter) ([]*trigger.Trigger, error)
	Update(ctx context.Context, tr *trigger.Trigger) error
	UpdateWhere(ctx context.Context, filter TriggerFilter, changes TriggerChanges) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteWhere(ctx context.Context, filter TriggerFilter) (int64, error)
}

// HistoryRepository stores execution history records.
type HistoryRepository interface {
	Add(ctx context.Context, h *task.History) error
	GetByID(ctx context.Context, id string) (*task.History, error)
	GetByTaskID(ctx context.Context, taskID string, limit int) ([]*task.History, error)
	GetAll(ctx context.Context, filter HistoryFilter) ([]*task.History, error)
	LatestStatus(ctx context.Context, taskID string) (task.HistoryStatus, error)
	DeleteWhere(ctx context.Context, filter HistoryFilter) (int64, error)
}

type Store struct {
	db  *database.DB
	now func() time.Time
}

// New returns a store over db. now stamps created/updated columns and
// defaults to time.Now.
func New(db *database.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// DB exposes the underlying database for health checks.
func (s *Store) DB() *database.DB {
	return s.db
}

// Begin opens a session. The caller must Commit or Rollback it.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	sess := &Session{tx: tx, now: s.now}
	sess.tasks = &taskRepo{sess: sess}
	sess.triggers = &triggerRepo{sess: sess}
	sess.history = &historyRepo{sess: sess}
	return sess, nil
}

// Do runs fn in a session, committing when it returns nil and rolling back
// otherwise.
func (s *Store) Do(ctx context.Context, fn func(*Session) error) error {
	sess, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sess.Rollback()
			panic(p)
		}
	}()

	if err := fn(sess); err != nil {
		if rbErr := sess.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %w)", rbErr, err)
		}
		return err
	}

	return sess.Commit()
}

// Session is one unit of work over the three repositories.
type Session struct {
	tx   *database.Tx
	now  func() time.Time
	done bool

	tasks    *taskRepo
	triggers *triggerRepo
	history  *historyRepo
}

func (s *Session) Tasks() TaskRepository       { return s.tasks }
func (s *Session) Triggers() TriggerRepository { return s.triggers }
func (s *Session) History() HistoryRepository  { return s.history }

func (s *Session) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("committing session: %w", err)
	}
	return nil
}

// Rollback discards the session; it is a no-op after Commit.
func (s *Session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Rollback()
}

func (s *Session) stamp() string {
	return database.FormatTime(s.now())
}
