package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/gensched/internal/database"
	"github.com/watzon/gensched/internal/job"
	"github.com/watzon/gensched/internal/task"
)

const taskColumns = `id, name, description, status, next_execution, last_execution,
	auto_delete, is_active, max_execution_time, job_type, job_data,
	depends_on_task_id, depends_on_status, created_at, updated_at`

type taskRepo struct {
	sess *Session
}

// Add inserts the task and every trigger it owns.
func (r *taskRepo) Add(ctx context.Context, t *task.ScheduledTask) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.sess.now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	q, args := setTaskColumns(database.NewInsert("tasks").Set("id", t.ID), t).
		Set("created_at", database.FormatTime(t.CreatedAt)).
		Build()
	if _, err := r.sess.tx.Run(ctx, q, args); err != nil {
		return taskWriteError(err, t)
	}

	for _, tr := range t.Triggers {
		tr.TaskID = t.ID
		if err := r.sess.triggers.Add(ctx, tr); err != nil {
			return err
		}
	}
	return nil
}

func setTaskColumns[B setter[B]](b B, t *task.ScheduledTask) B {
	var jobData any
	if len(t.Job.Data) > 0 {
		jobData = string(t.Job.Data)
	}
	var parent any
	if t.DependsOnTaskID != "" {
		parent = t.DependsOnTaskID
	}

	return b.
		Set("name", t.Name).
		Set("description", t.Description).
		Set("status", string(t.Status)).
		Set("next_execution", database.FormatTimePtr(t.NextExecution)).
		Set("last_execution", database.FormatTimePtr(t.LastExecution)).
		Set("auto_delete", boolInt(t.AutoDelete)).
		Set("is_active", boolInt(t.IsActive)).
		Set("max_execution_time", int64(t.MaxExecutionTime)).
		Set("job_type", t.Job.Type).
		Set("job_data", jobData).
		Set("depends_on_task_id", parent).
		Set("depends_on_status", joinStatuses(t.DependsOnStatus)).
		Set("updated_at", database.FormatTime(t.UpdatedAt))
}

func taskWriteError(err error, t *task.ScheduledTask) error {
	if database.IsUniqueError(err) {
		return fmt.Errorf("%w: %s", task.ErrDuplicateName, t.Name)
	}
	if database.IsForeignKeyError(err) {
		return fmt.Errorf("parent task %s: %w", t.DependsOnTaskID, ErrNotFound)
	}
	return fmt.Errorf("writing task: %w", err)
}

func (r *taskRepo) GetByID(ctx context.Context, id string) (*task.ScheduledTask, error) {
	tasks, err := r.GetAll(ctx, TaskFilter{IDs: []string{id}})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: %s", task.ErrNotFound, id)
	}
	return tasks[0], nil
}

// GetByName returns the active task with the given name.
func (r *taskRepo) GetByName(ctx context.Context, name string) (*task.ScheduledTask, error) {
	tasks, err := r.GetAll(ctx, TaskFilter{Names: []string{name}, Active: Ptr(true)})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: %s", task.ErrNotFound, name)
	}
	return tasks[0], nil
}

// GetAll returns matching tasks, oldest first, with their triggers loaded.
func (r *taskRepo) GetAll(ctx context.Context, filter TaskFilter) ([]*task.ScheduledTask, error) {
	match, err := filter.matcher()
	if err != nil {
		return nil, err
	}

	qb := database.NewQuery("tasks").
		Select(taskColumns).
		Apply(filter.conditions()).
		OrderBy("created_at").
		OrderBy("rowid")
	if match == nil {
		qb.Limit(filter.Limit).Offset(filter.Offset)
	}
	q, args := qb.Build()

	tasks, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}

	if match != nil {
		kept := tasks[:0]
		for _, t := range tasks {
			if match.Match(t.Name) {
				kept = append(kept, t)
			}
		}
		tasks = paginate(kept, filter.Limit, filter.Offset)
	}

	if err := r.attachTriggers(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (r *taskRepo) Count(ctx context.Context, filter TaskFilter) (int, error) {
	if filter.NamePattern != "" {
		filter.Limit, filter.Offset = 0, 0
		ids, err := r.matchingIDs(ctx, filter)
		if err != nil {
			return 0, err
		}
		return len(ids), nil
	}

	q, args := database.NewQuery("tasks").Apply(filter.conditions()).BuildCount()
	var n int
	if err := r.sess.tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return n, nil
}

func (r *taskRepo) query(ctx context.Context, q string, args []any) ([]*task.ScheduledTask, error) {
	rows, err := r.sess.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	return out, nil
}

func scanTask(rows *sql.Rows) (*task.ScheduledTask, error) {
	var (
		t                    task.ScheduledTask
		status, jobType      string
		createdAt, updatedAt string
		dependsOnStatus      string
		nextExec, lastExec   sql.NullString
		jobData, parent      sql.NullString
		autoDelete, isActive int
		maxExec              int64
	)

	err := rows.Scan(
		&t.ID, &t.Name, &t.Description, &status, &nextExec, &lastExec,
		&autoDelete, &isActive, &maxExec, &jobType, &jobData,
		&parent, &dependsOnStatus, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	t.Status = task.Status(status)
	t.AutoDelete = autoDelete != 0
	t.IsActive = isActive != 0
	t.MaxExecutionTime = time.Duration(maxExec)
	t.Job = job.Payload{Type: jobType}
	if jobData.Valid && jobData.String != "" {
		t.Job.Data = []byte(jobData.String)
	}
	t.DependsOnTaskID = parent.String

	if t.DependsOnStatus, err = splitStatuses(dependsOnStatus); err != nil {
		return nil, err
	}
	if t.NextExecution, err = database.ParseTimePtr(nextExec); err != nil {
		return nil, err
	}
	if t.LastExecution, err = database.ParseTimePtr(lastExec); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *taskRepo) attachTriggers(ctx context.Context, tasks []*task.ScheduledTask) error {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[string]*task.ScheduledTask, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	triggers, err := r.sess.triggers.GetAll(ctx, TriggerFilter{TaskIDs: ids})
	if err != nil {
		return err
	}
	for _, tr := range triggers {
		if t := byID[tr.TaskID]; t != nil {
			t.Triggers = append(t.Triggers, tr)
		}
	}
	return nil
}

// Update writes the task row and reconciles its triggers: new triggers are
// added, known ones updated and the ones no longer owned deleted.
func (r *taskRepo) Update(ctx context.Context, t *task.ScheduledTask) error {
	t.UpdatedAt = r.sess.now().UTC()

	q, args := setTaskColumns(database.NewUpdate("tasks"), t).Where("id", t.ID).Build()
	n, err := r.sess.tx.Run(ctx, q, args)
	if err != nil {
		return taskWriteError(err, t)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", task.ErrNotFound, t.ID)
	}

	stored, err := r.sess.triggers.GetByTaskID(ctx, t.ID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(stored))
	for _, tr := range stored {
		known[tr.ID] = true
	}

	keep := make([]string, 0, len(t.Triggers))
	for _, tr := range t.Triggers {
		tr.TaskID = t.ID
		if tr.ID != "" && known[tr.ID] {
			err = r.sess.triggers.Update(ctx, tr)
		} else {
			err = r.sess.triggers.Add(ctx, tr)
		}
		if err != nil {
			return err
		}
		keep = append(keep, tr.ID)
	}

	_, err = r.sess.triggers.DeleteWhere(ctx, TriggerFilter{TaskIDs: []string{t.ID}, ExcludeIDs: keep})
	return err
}

func (r *taskRepo) UpdateWhere(ctx context.Context, filter TaskFilter, changes TaskChanges) (int64, error) {
	b := database.NewUpdate("tasks")
	if changes.Status != nil {
		b.Set("status", string(*changes.Status))
	}
	if changes.IsActive != nil {
		b.Set("is_active", boolInt(*changes.IsActive))
	}
	if !b.HasSets() {
		return 0, nil
	}

	cond, err := r.resolve(ctx, filter)
	if err != nil {
		return 0, err
	}

	q, args := b.Set("updated_at", r.sess.stamp()).Apply(cond).Build()
	n, err := r.sess.tx.Run(ctx, q, args)
	if err != nil {
		if database.IsUniqueError(err) {
			return 0, task.ErrDuplicateName
		}
		return 0, fmt.Errorf("updating tasks: %w", err)
	}
	return n, nil
}

func (r *taskRepo) Delete(ctx context.Context, id string) error {
	q, args := database.NewDelete("tasks").Where("id", id).Build()
	n, err := r.sess.tx.Run(ctx, q, args)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", task.ErrNotFound, id)
	}
	return nil
}

// DeleteWhere removes matching tasks. Triggers, calendar entries and
// history go with them.
func (r *taskRepo) DeleteWhere(ctx context.Context, filter TaskFilter) (int64, error) {
	cond, err := r.resolve(ctx, filter)
	if err != nil {
		return 0, err
	}
	q, args := database.NewDelete("tasks").Apply(cond).Build()
	n, err := r.sess.tx.Run(ctx, q, args)
	if err != nil {
		return 0, fmt.Errorf("deleting tasks: %w", err)
	}
	return n, nil
}

// resolve turns a filter into SQL conditions. A name pattern cannot be
// expressed in SQL, so matching ids are looked up first.
func (r *taskRepo) resolve(ctx context.Context, filter TaskFilter) (database.Conditions, error) {
	if filter.NamePattern == "" {
		return filter.conditions(), nil
	}
	ids, err := r.matchingIDs(ctx, filter)
	if err != nil {
		return database.Conditions{}, err
	}
	var c database.Conditions
	c.Filter("id", database.OpIn, database.Values(ids))
	return c, nil
}

func (r *taskRepo) matchingIDs(ctx context.Context, filter TaskFilter) ([]string, error) {
	match, err := filter.matcher()
	if err != nil {
		return nil, err
	}

	q, args := database.NewQuery("tasks").
		Select("id", "name").
		Apply(filter.conditions()).
		OrderBy("created_at").
		OrderBy("rowid").
		Build()
	rows, err := r.sess.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying task names: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning task name: %w", err)
		}
		if match == nil || match.Match(name) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paginate(ids, filter.Limit, filter.Offset), nil
}
