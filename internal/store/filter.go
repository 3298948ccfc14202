package store

import (
	"fmt"
	"time"

	"github.com/gobwas/glob"

	"github.com/watzon/gensched/internal/database"
	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/trigger"
)

// TaskFilter selects tasks. Zero fields do not restrict the result.
type TaskFilter struct {
	IDs        []string
	ExcludeIDs []string
	Names      []string
	Statuses   []task.Status
	Active     *bool

	// NamePattern is a glob such as "backup-*", matched after the SQL
	// predicates.
	NamePattern string

	// DueBefore keeps tasks whose NextExecution is at or before the time.
	DueBefore *time.Time

	// Stuck keeps Running tasks that overran their budget.
	Stuck *StuckCriteria

	Limit  int
	Offset int
}

// StuckCriteria describes when a Running task is considered abandoned:
// bounded tasks once LastExecution+MaxExecutionTime+Tolerance has passed,
// unbounded tasks once their NextExecution (and LastExecution) lie more
// than Tolerance in the past.
type StuckCriteria struct {
	Now       time.Time
	Tolerance time.Duration
}

// TaskChanges lists the columns a bulk update sets. Nil fields are left alone.
type TaskChanges struct {
	Status   *task.Status
	IsActive *bool
}

// TriggerFilter selects triggers.
type TriggerFilter struct {
	IDs        []string
	ExcludeIDs []string
	TaskIDs    []string
	Kinds      []trigger.Kind
	Valid      *bool
}

// TriggerChanges lists the trigger columns a bulk update sets.
type TriggerChanges struct {
	LastTriggeredStatus *trigger.TriggeredStatus
	IsValid             *bool
}

// HistoryFilter selects history records, newest first unless Oldest is set.
type HistoryFilter struct {
	IDs           []string
	TaskIDs       []string
	Statuses      []task.HistoryStatus
	StartedBefore *time.Time
	Oldest        bool
	Limit         int
	Offset        int
}

func Ptr[T any](v T) *T { return &v }

func stringValues[T ~string](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = string(v)
	}
	return out
}

func (f TaskFilter) conditions() database.Conditions {
	var c database.Conditions

	if f.IDs != nil {
		c.Filter("id", database.OpIn, database.Values(f.IDs))
	}
	if len(f.ExcludeIDs) > 0 {
		c.Filter("id", database.OpNotIn, database.Values(f.ExcludeIDs))
	}
	if f.Names != nil {
		c.Filter("name", database.OpIn, database.Values(f.Names))
	}
	if f.Statuses != nil {
		c.Filter("status", database.OpIn, stringValues(f.Statuses))
	}
	if f.Active != nil {
		c.Where("is_active", boolInt(*f.Active))
	}
	if f.DueBefore != nil {
		c.Filter("next_execution", database.OpNotNull, nil)
		c.Filter("next_execution", database.OpLte, database.FormatTime(*f.DueBefore))
	}
	if f.Stuck != nil {
		now := f.Stuck.Now.UTC()
		cutoff := database.FormatTime(now.Add(-f.Stuck.Tolerance))
		c.Where("status", string(task.StatusRunning))
		c.WhereRaw(`(max_execution_time > 0 AND last_execution IS NOT NULL
			AND (julianday(?) - julianday(last_execution)) * 86400000000000.0 > max_execution_time + ?)
			OR (max_execution_time = 0 AND next_execution IS NOT NULL AND next_execution < ?
			AND (last_execution IS NULL OR last_execution < ?))`,
			database.FormatTime(now), int64(f.Stuck.Tolerance), cutoff, cutoff)
	}

	return c
}

func (f TaskFilter) matcher() (glob.Glob, error) {
	if f.NamePattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(f.NamePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid name pattern %q: %w", f.NamePattern, err)
	}
	return g, nil
}

func (f TriggerFilter) conditions() database.Conditions {
	var c database.Conditions

	if f.IDs != nil {
		c.Filter("id", database.OpIn, database.Values(f.IDs))
	}
	if len(f.ExcludeIDs) > 0 {
		c.Filter("id", database.OpNotIn, database.Values(f.ExcludeIDs))
	}
	if f.TaskIDs != nil {
		c.Filter("task_id", database.OpIn, database.Values(f.TaskIDs))
	}
	if f.Kinds != nil {
		c.Filter("kind", database.OpIn, stringValues(f.Kinds))
	}
	if f.Valid != nil {
		c.Where("is_valid", boolInt(*f.Valid))
	}

	return c
}

func (f HistoryFilter) conditions() database.Conditions {
	var c database.Conditions

	if f.IDs != nil {
		c.Filter("id", database.OpIn, database.Values(f.IDs))
	}
	if f.TaskIDs != nil {
		c.Filter("task_id", database.OpIn, database.Values(f.TaskIDs))
	}
	if f.Statuses != nil {
		c.Filter("status", database.OpIn, stringValues(f.Statuses))
	}
	if f.StartedBefore != nil {
		c.Filter("started_at", database.OpLt, database.FormatTime(*f.StartedBefore))
	}

	return c
}
