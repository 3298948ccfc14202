package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/watzon/gensched/internal/job"
	"github.com/watzon/gensched/internal/trigger"
)

// Validate checks a task definition and all of its triggers. When jobs is
// non-nil the payload must decode with it. All problems are reported at once.
func (t *ScheduledTask) Validate(now time.Time, jobs *job.Registry) error {
	var errs trigger.ValidationErrors

	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, trigger.ValidationError{Field: "name", Message: "is required"})
	}

	if t.Job.IsZero() {
		errs = append(errs, trigger.ValidationError{Field: "job", Message: "is required"})
	} else if jobs != nil {
		if _, err := jobs.Decode(t.Job); err != nil {
			errs = append(errs, trigger.ValidationError{Field: "job", Message: err.Error()})
		}
	}

	if t.MaxExecutionTime < 0 {
		errs = append(errs, trigger.ValidationError{Field: "max_execution_time", Message: "must be non-negative"})
	}

	if len(t.Triggers) == 0 {
		errs = append(errs, trigger.ValidationError{Field: "triggers", Message: ErrNoTriggers.Error()})
	}
	for i, tr := range t.Triggers {
		if tr == nil {
			errs = append(errs, trigger.ValidationError{Field: fmt.Sprintf("triggers[%d]", i), Message: "is empty"})
			continue
		}
		errs = append(errs, tr.Validate(now).Prefixed(fmt.Sprintf("triggers[%d].", i))...)
	}

	if t.DependsOnTaskID != "" {
		if t.DependsOnTaskID == t.ID {
			errs = append(errs, trigger.ValidationError{Field: "depends_on", Message: "a task cannot depend on itself"})
		}
		if len(t.DependsOnStatus) == 0 {
			errs = append(errs, trigger.ValidationError{Field: "depends_on_status", Message: "at least one status is required"})
		}
		for _, s := range t.DependsOnStatus {
			if s == HistoryStatusNone {
				errs = append(errs, trigger.ValidationError{Field: "depends_on_status", Message: "None is not an outcome"})
			} else if _, err := ParseHistoryStatus(string(s)); err != nil {
				errs = append(errs, trigger.ValidationError{Field: "depends_on_status", Message: err.Error()})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Normalize prepares a new or edited definition for storage: default
// status, UTC trigger times, fresh trigger state and NextExecution.
func (t *ScheduledTask) Normalize(now time.Time) {
	if t.Status == "" {
		t.Status = StatusReady
	}
	for _, tr := range t.Triggers {
		tr.TaskID = t.ID
		tr.Normalize(now)
	}
	t.RefreshNextExecution()
}
