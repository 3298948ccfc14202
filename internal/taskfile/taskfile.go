// Package taskfile reads task definitions from YAML and applies them to
// the scheduler.
//
// A file looks like:
//
//	tasks:
//	  - name: nightly-backup
//	    job:
//	      type: command
//	      data:
//	        command: /usr/local/bin/backup
//	        args: ["--all"]
//	    max_execution_time: 30m
//	    triggers:
//	      - kind: daily
//	        time_of_day: "02:30"
//	  - name: report
//	    depends_on: nightly-backup
//	    depends_on_status: [Success]
//	    job: {type: log, data: {message: backup finished}}
//	    triggers:
//	      - kind: cron
//	        cron: "0 3 * * *"
package taskfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/watzon/gensched/internal/job"
	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/trigger"
)

var (
	ErrDuplicateTask  = errors.New("task defined more than once")
	ErrDependencyLoop = errors.New("task dependencies form a cycle")
)

// File is the root of a task file.
type File struct {
	Tasks []Definition `yaml:"tasks"`
}

// Definition declares one task.
type Definition struct {
	Name             string              `yaml:"name"`
	Description      string              `yaml:"description"`
	Job              JobDefinition       `yaml:"job"`
	Triggers         []TriggerDefinition `yaml:"triggers"`
	MaxExecutionTime time.Duration       `yaml:"max_execution_time"`
	AutoDelete       bool                `yaml:"auto_delete"`
	Active           *bool               `yaml:"active"`
	DependsOn        string              `yaml:"depends_on"`
	DependsOnStatus  []string            `yaml:"depends_on_status"`
}

type JobDefinition struct {
	Type string         `yaml:"type"`
	Data map[string]any `yaml:"data"`
}

// TriggerDefinition declares one trigger. Day and month lists use the
// token syntax of the trigger package ("1,15", "1-5", "0", "mon-fri").
type TriggerDefinition struct {
	Kind          string        `yaml:"kind"`
	Description   string        `yaml:"description"`
	StartsAt      *time.Time    `yaml:"starts_at"`
	EndsAt        *time.Time    `yaml:"ends_at"`
	AutoDelete    bool          `yaml:"auto_delete"`
	Interval      time.Duration `yaml:"interval"`
	MaxExecutions int           `yaml:"max_executions"`
	Cron          string        `yaml:"cron"`
	TimeOfDay     string        `yaml:"time_of_day"`
	DaysOfWeek    string        `yaml:"days_of_week"`
	DaysOfMonth   string        `yaml:"days_of_month"`
	Months        string        `yaml:"months"`
	Entries       []time.Time   `yaml:"entries"`
}

// Load reads and parses a task file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a task file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing task file: %w", err)
	}

	seen := make(map[string]bool, len(f.Tasks))
	for _, d := range f.Tasks {
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, d.Name)
		}
		seen[d.Name] = true
	}
	return &f, nil
}

// Build converts a definition into a task. parentID is the resolved id of
// DependsOn, if any.
func (d Definition) Build(parentID string) (*task.ScheduledTask, error) {
	var data any
	if d.Job.Data != nil {
		data = d.Job.Data
	}
	payload, err := job.NewPayload(d.Job.Type, data)
	if err != nil {
		return nil, err
	}

	t := task.New(d.Name, payload)
	t.Description = d.Description
	t.MaxExecutionTime = d.MaxExecutionTime
	t.AutoDelete = d.AutoDelete
	if d.Active != nil {
		t.IsActive = *d.Active
	}
	t.DependsOnTaskID = parentID

	for _, s := range d.DependsOnStatus {
		status, err := task.ParseHistoryStatus(s)
		if err != nil {
			return nil, err
		}
		t.DependsOnStatus = append(t.DependsOnStatus, status)
	}

	for i, td := range d.Triggers {
		tr, err := td.Build()
		if err != nil {
			return nil, fmt.Errorf("triggers[%d]: %w", i, err)
		}
		t.Triggers = append(t.Triggers, tr)
	}
	return t, nil
}

// Build converts a trigger definition. A missing starts_at is left zero so
// the scheduler can default it.
func (td TriggerDefinition) Build() (*trigger.Trigger, error) {
	kind, err := trigger.ParseKind(td.Kind)
	if err != nil {
		return nil, err
	}

	var startsAt time.Time
	if td.StartsAt != nil {
		startsAt = *td.StartsAt
	}
	tr := trigger.New(kind, startsAt)
	tr.Description = td.Description
	tr.ShouldAutoDelete = td.AutoDelete
	tr.ExecutionInterval = td.Interval
	tr.MaxExecutions = td.MaxExecutions
	tr.CronExpression = td.Cron
	if td.EndsAt != nil {
		ends := td.EndsAt.UTC()
		tr.EndsAt = &ends
	}

	if tr.TimeOfDay, err = trigger.ParseTimeOfDay(td.TimeOfDay); err != nil {
		return nil, err
	}
	if td.DaysOfWeek != "" {
		if tr.DaysOfWeek, err = trigger.ParseWeekdays(td.DaysOfWeek); err != nil {
			return nil, err
		}
	}
	if td.DaysOfMonth != "" {
		if tr.DaysOfMonth, err = trigger.ParseDaysOfMonth(td.DaysOfMonth); err != nil {
			return nil, err
		}
	}
	if td.Months != "" {
		if tr.MonthsOfYear, err = trigger.ParseMonths(td.Months); err != nil {
			return nil, err
		}
	} else if kind == trigger.KindMonthly {
		tr.MonthsOfYear = allMonths()
	}
	for _, at := range td.Entries {
		tr.Entries = append(tr.Entries, trigger.CalendarEntry{ScheduledAt: at.UTC()})
	}

	return tr, nil
}

func allMonths() []time.Month {
	months := make([]time.Month, 12)
	for i := range months {
		months[i] = time.Month(i + 1)
	}
	return months
}

// Applier stores tasks. *scheduler.Launcher implements it.
type Applier interface {
	ApplyTask(ctx context.Context, t *task.ScheduledTask) (bool, error)
	ResolveTask(ctx context.Context, ref string) (*task.ScheduledTask, error)
}

// Summary lists the task names an Apply created and updated in place.
type Summary struct {
	Created []string
	Applied []string
}

// Apply stores every definition, parents before the tasks depending on
// them. A definition that fails does not stop the others; all failures
// are returned joined.
func Apply(ctx context.Context, a Applier, f *File) (Summary, error) {
	var sum Summary
	var errs []error

	pending := make(map[string]Definition, len(f.Tasks))
	order := make([]string, 0, len(f.Tasks))
	for _, d := range f.Tasks {
		pending[d.Name] = d
		order = append(order, d.Name)
	}

	for len(pending) > 0 {
		progressed := false
		for _, name := range order {
			d, ok := pending[name]
			if !ok {
				continue
			}
			if _, waiting := pending[d.DependsOn]; waiting && d.DependsOn != name {
				continue
			}
			delete(pending, name)
			progressed = true

			created, err := applyOne(ctx, a, d)
			switch {
			case err != nil:
				errs = append(errs, fmt.Errorf("task %s: %w", name, err))
			case created:
				sum.Created = append(sum.Created, name)
			default:
				sum.Applied = append(sum.Applied, name)
			}
		}
		if !progressed {
			for name := range pending {
				errs = append(errs, fmt.Errorf("task %s: %w", name, ErrDependencyLoop))
			}
			break
		}
	}

	return sum, errors.Join(errs...)
}

func applyOne(ctx context.Context, a Applier, d Definition) (bool, error) {
	var parentID string
	if d.DependsOn != "" {
		parent, err := a.ResolveTask(ctx, d.DependsOn)
		if err != nil {
			return false, fmt.Errorf("resolving depends_on %q: %w", d.DependsOn, err)
		}
		parentID = parent.ID
	}

	t, err := d.Build(parentID)
	if err != nil {
		return false, err
	}
	return a.ApplyTask(ctx, t)
}

// ApplyFile loads path and applies it.
func ApplyFile(ctx context.Context, a Applier, path string) error {
	f, err := Load(path)
	if err != nil {
		return err
	}

	sum, err := Apply(ctx, a, f)
	log.Info().
		Str("path", path).
		Strs("created", sum.Created).
		Int("applied", len(sum.Applied)).
		Msg("Applied task file")
	return err
}
