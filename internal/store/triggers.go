package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/gensched/internal/database"
	"github.com/watzon/gensched/internal/trigger"
)

const triggerColumns = `id, task_id, kind, description, starts_at, ends_at, auto_delete,
	execution_interval, is_valid, last_execution, next_execution, max_executions,
	executions, last_triggered_status, cron_expression, time_of_day, days_of_week,
	days_of_month, months_of_year, created_at, updated_at`

type triggerRepo struct {
	sess *Session
}

func (r *triggerRepo) Add(ctx context.Context, tr *trigger.Trigger) error {
	if tr.TaskID == "" {
		return errors.New("trigger has no task")
	}
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	now := r.sess.now().UTC()
	tr.CreatedAt = now
	tr.UpdatedAt = now

	q, args := setTriggerColumns(database.NewInsert("triggers").Set("id", tr.ID).Set("task_id", tr.TaskID), tr).
		Set("created_at", database.FormatTime(tr.CreatedAt)).
		Build()
	if _, err := r.sess.tx.Run(ctx, q, args); err != nil {
		return fmt.Errorf("inserting trigger: %w", err)
	}

	return r.insertEntries(ctx, tr)
}

// setter is satisfied by the insert and update builders.
type setter[B any] interface {
	Set(field string, value any) B
}

func setTriggerColumns[B setter[B]](b B, tr *trigger.Trigger) B {
	return b.
		Set("kind", string(tr.Kind)).
		Set("description", tr.Description).
		Set("starts_at", database.FormatTime(tr.StartsAt)).
		Set("ends_at", database.FormatTimePtr(tr.EndsAt)).
		Set("auto_delete", boolInt(tr.ShouldAutoDelete)).
		Set("execution_interval", int64(tr.ExecutionInterval)).
		Set("is_valid", boolInt(tr.IsValid)).
		Set("last_execution", database.FormatTimePtr(tr.LastExecution)).
		Set("next_execution", database.FormatTimePtr(tr.NextExecution)).
		Set("max_executions", tr.MaxExecutions).
		Set("executions", tr.Executions).
		Set("last_triggered_status", string(tr.LastTriggeredStatus)).
		Set("cron_expression", tr.CronExpression).
		Set("time_of_day", tr.TimeOfDay.String()).
		Set("days_of_week", joinInts(tr.DaysOfWeek)).
		Set("days_of_month", joinInts(tr.DaysOfMonth)).
		Set("months_of_year", joinInts(tr.MonthsOfYear)).
		Set("updated_at", database.FormatTime(tr.UpdatedAt))
}

func (r *triggerRepo) insertEntries(ctx context.Context, tr *trigger.Trigger) error {
	for i := range tr.Entries {
		e := &tr.Entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		q, args := database.NewInsert("calendar_entries").
			Set("id", e.ID).
			Set("trigger_id", tr.ID).
			Set("scheduled_at", database.FormatTime(e.ScheduledAt)).
			Set("executed", boolInt(e.Executed)).
			Build()
		if _, err := r.sess.tx.Run(ctx, q, args); err != nil {
			return fmt.Errorf("inserting calendar entry: %w", err)
		}
	}
	return nil
}

func (r *triggerRepo) GetByID(ctx context.Context, id string) (*trigger.Trigger, error) {
	triggers, err := r.GetAll(ctx, TriggerFilter{IDs: []string{id}})
	if err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		return nil, fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}
	return triggers[0], nil
}

func (r *triggerRepo) GetByTaskID(ctx context.Context, taskID string) ([]*trigger.Trigger, error) {
	return r.GetAll(ctx, TriggerFilter{TaskIDs: []string{taskID}})
}

func (r *triggerRepo) GetAll(ctx context.Context, filter TriggerFilter) ([]*trigger.Trigger, error) {
	q, args := database.NewQuery("triggers").
		Select(triggerColumns).
		Apply(filter.conditions()).
		OrderBy("task_id").
		OrderBy("rowid").
		Build()

	triggers, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if err := r.loadEntries(ctx, triggers); err != nil {
		return nil, err
	}
	return triggers, nil
}

func (r *triggerRepo) query(ctx context.Context, q string, args []any) ([]*trigger.Trigger, error) {
	rows, err := r.sess.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying triggers: %w", err)
	}
	defer rows.Close()

	var out []*trigger.Trigger
	for rows.Next() {
		tr, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating triggers: %w", err)
	}
	return out, nil
}

func scanTrigger(rows *sql.Rows) (*trigger.Trigger, error) {
	var (
		tr                                    trigger.Trigger
		kind, status, timeOfDay               string
		startsAt, createdAt, updatedAt        string
		endsAt, lastExec, nextExec            sql.NullString
		autoDelete, isValid                   int
		interval                              int64
		daysOfWeek, daysOfMonth, monthsOfYear string
	)

	err := rows.Scan(
		&tr.ID, &tr.TaskID, &kind, &tr.Description, &startsAt, &endsAt, &autoDelete,
		&interval, &isValid, &lastExec, &nextExec, &tr.MaxExecutions,
		&tr.Executions, &status, &tr.CronExpression, &timeOfDay, &daysOfWeek,
		&daysOfMonth, &monthsOfYear, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning trigger: %w", err)
	}

	tr.Kind = trigger.Kind(kind)
	tr.LastTriggeredStatus = trigger.TriggeredStatus(status)
	tr.ShouldAutoDelete = autoDelete != 0
	tr.IsValid = isValid != 0
	tr.ExecutionInterval = time.Duration(interval)

	if tr.TimeOfDay, err = trigger.ParseTimeOfDay(timeOfDay); err != nil {
		return nil, err
	}
	if tr.DaysOfWeek, err = splitInts[time.Weekday](daysOfWeek); err != nil {
		return nil, err
	}
	if tr.DaysOfMonth, err = splitInts[int](daysOfMonth); err != nil {
		return nil, err
	}
	if tr.MonthsOfYear, err = splitInts[time.Month](monthsOfYear); err != nil {
		return nil, err
	}

	if tr.StartsAt, err = database.ParseTime(startsAt); err != nil {
		return nil, err
	}
	if tr.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if tr.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if tr.EndsAt, err = database.ParseTimePtr(endsAt); err != nil {
		return nil, err
	}
	if tr.LastExecution, err = database.ParseTimePtr(lastExec); err != nil {
		return nil, err
	}
	if tr.NextExecution, err = database.ParseTimePtr(nextExec); err != nil {
		return nil, err
	}

	return &tr, nil
}

// loadEntries attaches calendar entries to the calendar triggers in triggers.
func (r *triggerRepo) loadEntries(ctx context.Context, triggers []*trigger.Trigger) error {
	byID := make(map[string]*trigger.Trigger)
	var ids []string
	for _, tr := range triggers {
		if tr.Kind == trigger.KindCalendar {
			byID[tr.ID] = tr
			ids = append(ids, tr.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	q, args := database.NewQuery("calendar_entries").
		Select("id", "trigger_id", "scheduled_at", "executed").
		Filter("trigger_id", database.OpIn, database.Values(ids)).
		OrderBy("scheduled_at").
		Build()

	rows, err := r.sess.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("querying calendar entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                    trigger.CalendarEntry
			triggerID, scheduled string
			executed             int
		)
		if err := rows.Scan(&e.ID, &triggerID, &scheduled, &executed); err != nil {
			return fmt.Errorf("scanning calendar entry: %w", err)
		}
		if e.ScheduledAt, err = database.ParseTime(scheduled); err != nil {
			return err
		}
		e.Executed = executed != 0
		if tr := byID[triggerID]; tr != nil {
			tr.Entries = append(tr.Entries, e)
		}
	}
	return rows.Err()
}

func (r *triggerRepo) Update(ctx context.Context, tr *trigger.Trigger) error {
	tr.UpdatedAt = r.sess.now().UTC()

	q, args := setTriggerColumns(database.NewUpdate("triggers"), tr).
		Where("id", tr.ID).
		Build()
	n, err := r.sess.tx.Run(ctx, q, args)
	if err != nil {
		return fmt.Errorf("updating trigger: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trigger %s: %w", tr.ID, ErrNotFound)
	}

	if tr.Kind != trigger.KindCalendar {
		return nil
	}
	q, args = database.NewDelete("calendar_entries").Where("trigger_id", tr.ID).Build()
	if _, err := r.sess.tx.Run(ctx, q, args); err != nil {
		return fmt.Errorf("replacing calendar entries: %w", err)
	}
	return r.insertEntries(ctx, tr)
}

func (r *triggerRepo) UpdateWhere(ctx context.Context, filter TriggerFilter, changes TriggerChanges) (int64, error) {
	b := database.NewUpdate("triggers")
	if changes.LastTriggeredStatus != nil {
		b.Set("last_triggered_status", string(*changes.LastTriggeredStatus))
	}
	if changes.IsValid != nil {
		b.Set("is_valid", boolInt(*changes.IsValid))
	}
	if !b.HasSets() {
		return 0, nil
	}

	q, args := b.Set("updated_at", r.sess.stamp()).Apply(filter.conditions()).Build()
	n, err := r.sess.tx.Run(ctx, q, args)
	if err != nil {
		return 0, fmt.Errorf("updating triggers: %w", err)
	}
	return n, nil
}

func (r *triggerRepo) Delete(ctx context.Context, id string) error {
	q, args := database.NewDelete("triggers").Where("id", id).Build()
	n, err := r.sess.tx.Run(ctx, q, args)
	if err != nil {
		return fmt.Errorf("deleting trigger: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *triggerRepo) DeleteWhere(ctx context.Context, filter TriggerFilter) (int64, error) {
	q, args := database.NewDelete("triggers").Apply(filter.conditions()).Build()
	n, err := r.sess.tx.Run(ctx, q, args)
	if err != nil {
		return 0, fmt.Errorf("deleting triggers: %w", err)
	}
	return n, nil
}
