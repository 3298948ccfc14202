package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/watzon/gensched/internal/database"
	"github.com/watzon/gensched/internal/task"
)

const historyColumns = `id, task_id, trigger_id, started_at, ended_at, status,
	attempts, error, result, result_encoding`

type historyRepo struct {
	sess *Session
}

func (r *historyRepo) Add(ctx context.Context, h *task.History) error {
	if h.TaskID == "" {
		return errors.New("history record has no task")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	var result any
	var encoding string
	if len(h.Result) > 0 {
		encoded, enc, err := encodeResult(h.Result)
		if err != nil {
			return err
		}
		result, encoding = encoded, enc
	}

	q, args := database.NewInsert("task_history").
		Set("id", h.ID).
		Set("task_id", h.TaskID).
		Set("trigger_id", h.TriggerID).
		Set("started_at", database.FormatTime(h.StartedAt)).
		Set("ended_at", database.FormatTimePtr(h.EndedAt)).
		Set("status", string(h.Status)).
		Set("attempts", h.Attempts).
		Set("error", h.Error).
		Set("result", result).
		Set("result_encoding", encoding).
		Build()
	if _, err := r.sess.tx.Run(ctx, q, args); err != nil {
		if database.IsForeignKeyError(err) {
			return fmt.Errorf("%w: %s", task.ErrNotFound, h.TaskID)
		}
		return fmt.Errorf("inserting history: %w", err)
	}
	return nil
}

func (r *historyRepo) GetByID(ctx context.Context, id string) (*task.History, error) {
	records, err := r.GetAll(ctx, HistoryFilter{IDs: []string{id}})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("history %s: %w", id, ErrNotFound)
	}
	return records[0], nil
}

// GetByTaskID returns the task's newest records first. A limit of zero
// returns all of them.
func (r *historyRepo) GetByTaskID(ctx context.Context, taskID string, limit int) ([]*task.History, error) {
	return r.GetAll(ctx, HistoryFilter{TaskIDs: []string{taskID}, Limit: limit})
}

func (r *historyRepo) GetAll(ctx context.Context, filter HistoryFilter) ([]*task.History, error) {
	qb := database.NewQuery("task_history").
		Select(historyColumns).
		Apply(filter.conditions())
	if filter.Oldest {
		qb.OrderBy("started_at").OrderBy("rowid")
	} else {
		qb.OrderByDesc("started_at").OrderByDesc("rowid")
	}
	q, args := qb.Limit(filter.Limit).Offset(filter.Offset).Build()

	rows, err := r.sess.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []*task.History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return out, nil
}

func scanHistory(rows *sql.Rows) (*task.History, error) {
	var (
		h                 task.History
		startedAt, status string
		endedAt           sql.NullString
		result            []byte
		encoding          string
	)

	err := rows.Scan(
		&h.ID, &h.TaskID, &h.TriggerID, &startedAt, &endedAt, &status,
		&h.Attempts, &h.Error, &result, &encoding,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning history: %w", err)
	}

	h.Status = task.HistoryStatus(status)
	if h.StartedAt, err = database.ParseTime(startedAt); err != nil {
		return nil, err
	}
	if h.EndedAt, err = database.ParseTimePtr(endedAt); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		if h.Result, err = decodeResult(result, encoding); err != nil {
			return nil, fmt.Errorf("history %s: %w", h.ID, err)
		}
	}

	return &h, nil
}

// LatestStatus returns the status of the task's most recent record, or
// None when it has never run.
func (r *historyRepo) LatestStatus(ctx context.Context, taskID string) (task.HistoryStatus, error) {
	q, args := database.NewQuery("task_history").
		Select("status").
		Where("task_id", taskID).
		OrderByDesc("started_at").
		OrderByDesc("rowid").
		Limit(1).
		Build()

	var status string
	err := r.sess.tx.QueryRowContext(ctx, q, args...).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return task.HistoryStatusNone, nil
	}
	if err != nil {
		return "", fmt.Errorf("querying latest status: %w", err)
	}
	return task.HistoryStatus(status), nil
}

func (r *historyRepo) DeleteWhere(ctx context.Context, filter HistoryFilter) (int64, error) {
	q, args := database.NewDelete("task_history").Apply(filter.conditions()).Build()
	n, err := r.sess.tx.Run(ctx, q, args)
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}
	return n, nil
}
