// Package task holds the scheduled task entity, its execution history
// record and the rules that decide whether a task may run.
package task

import (
	"errors"
	"time"

	"github.com/watzon/gensched/internal/job"
	"github.com/watzon/gensched/internal/trigger"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrDuplicateName = errors.New("an active task with this name already exists")
	ErrNoTriggers    = errors.New("task has no triggers")
)

// Status is the dispatch state of a task.
type Status string

const (
	StatusReady   Status = "Ready"
	StatusWaiting Status = "Waiting"
	StatusRunning Status = "Running"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusReady, StatusWaiting, StatusRunning:
		return Status(s), nil
	}
	return "", errors.New("unknown task status: " + s)
}

// ScheduledTask is a job plus the triggers that decide when it runs.
type ScheduledTask struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Status        Status     `json:"status"`
	NextExecution *time.Time `json:"next_execution,omitempty"`
	LastExecution *time.Time `json:"last_execution,omitempty"`

	AutoDelete bool `json:"auto_delete"`
	IsActive   bool `json:"is_active"`

	// MaxExecutionTime bounds one activation; zero means unbounded.
	MaxExecutionTime time.Duration `json:"max_execution_time,omitempty"`

	Job      job.Payload        `json:"job"`
	Triggers []*trigger.Trigger `json:"triggers"`
	History  []*History         `json:"history,omitempty"`

	DependsOnTaskID string          `json:"depends_on_task_id,omitempty"`
	DependsOnStatus []HistoryStatus `json:"depends_on_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an active task in status Ready.
func New(name string, payload job.Payload, triggers ...*trigger.Trigger) *ScheduledTask {
	return &ScheduledTask{
		Name:     name,
		Status:   StatusReady,
		IsActive: true,
		Job:      payload,
		Triggers: triggers,
	}
}

// DependencySatisfied reports whether the parent's latest outcome allows
// this task to run. parentStatus is the status of the parent's most recent
// history record, or None when it has none. Tasks without a parent are
// always satisfied.
func (t *ScheduledTask) DependencySatisfied(parentStatus HistoryStatus) bool {
	if t.DependsOnTaskID == "" {
		return true
	}
	if parentStatus == HistoryStatusNone {
		return false
	}
	for _, s := range t.DependsOnStatus {
		if s == parentStatus {
			return true
		}
	}
	return false
}

// AvailableToRun reports whether the task may be executed now: active, not
// already running, owning at least one trigger, with its dependency met.
func (t *ScheduledTask) AvailableToRun(parentStatus HistoryStatus) bool {
	return t.IsActive &&
		t.Status != StatusRunning &&
		len(t.Triggers) > 0 &&
		t.DependencySatisfied(parentStatus)
}

// EligibleTrigger returns the first trigger eligible to fire at now.
func (t *ScheduledTask) EligibleTrigger(now time.Time, tolerance time.Duration) *trigger.Trigger {
	for _, tr := range t.Triggers {
		if tr.IsEligible(now, tolerance) {
			return tr
		}
	}
	return nil
}

// HasValidTrigger reports whether any trigger can still fire.
func (t *ScheduledTask) HasValidTrigger() bool {
	for _, tr := range t.Triggers {
		if tr.IsValid {
			return true
		}
	}
	return false
}

// RefreshNextExecution sets NextExecution to the earliest stored
// NextExecution among the valid triggers.
func (t *ScheduledTask) RefreshNextExecution() {
	var next *time.Time
	for _, tr := range t.Triggers {
		if !tr.IsValid || tr.NextExecution == nil {
			continue
		}
		if next == nil || tr.NextExecution.Before(*next) {
			n := *tr.NextExecution
			next = &n
		}
	}
	t.NextExecution = next
}

// Trigger returns the trigger with the given id.
func (t *ScheduledTask) Trigger(id string) *trigger.Trigger {
	for _, tr := range t.Triggers {
		if tr.ID == id {
			return tr
		}
	}
	return nil
}

// UpcomingExecution returns the earliest occurrence of any trigger strictly
// after after, or nil when no trigger can fire again.
func (t *ScheduledTask) UpcomingExecution(after time.Time) *time.Time {
	var next *time.Time
	for _, tr := range t.Triggers {
		n, ok := tr.Next(after.Add(time.Nanosecond))
		if !ok {
			continue
		}
		if next == nil || n.Before(*next) {
			next = &n
		}
	}
	return next
}
