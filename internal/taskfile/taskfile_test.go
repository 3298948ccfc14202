package taskfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/trigger"
)

const sample = `
tasks:
  - name: report
    description: summary after the backup
    depends_on: backup
    depends_on_status: [Success, Failed]
    job:
      type: log
      data:
        message: backup finished
    triggers:
      - kind: weekly
        time_of_day: "06:15"
        days_of_week: mon-fri
  - name: backup
    max_execution_time: 30m
    auto_delete: true
    active: false
    job:
      type: command
      data:
        command: /usr/local/bin/backup
        args: ["--all"]
    triggers:
      - kind: monthly
        time_of_day: "02:30"
        days_of_month: "1,0"
      - kind: cron
        cron: "*/5 * * * *"
        starts_at: 2026-01-01T00:00:00Z
        ends_at: 2027-01-01T00:00:00Z
        max_executions: 10
        auto_delete: true
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, f.Tasks, 2)

	backup := f.Tasks[1]
	assert.Equal(t, "backup", backup.Name)
	assert.Equal(t, 30*time.Minute, backup.MaxExecutionTime)
	require.NotNil(t, backup.Active)
	assert.False(t, *backup.Active)
	require.Len(t, backup.Triggers, 2)
	require.NotNil(t, backup.Triggers[1].StartsAt)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), backup.Triggers[1].StartsAt.UTC())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:  "unknown key",
			input: "tasks:\n  - name: a\n    schedule: daily\n",
		},
		{
			name:    "duplicate name",
			input:   "tasks:\n  - name: a\n  - name: a\n",
			wantErr: ErrDuplicateTask,
		},
		{
			name:  "bad duration",
			input: "tasks:\n  - name: a\n    max_execution_time: soon\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatalf("Parse() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Tasks)
}

func TestBuild(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	report, err := f.Tasks[0].Build("parent-id")
	require.NoError(t, err)
	assert.Equal(t, "report", report.Name)
	assert.True(t, report.IsActive)
	assert.Equal(t, "parent-id", report.DependsOnTaskID)
	assert.Equal(t, []task.HistoryStatus{task.HistoryStatusSuccess, task.HistoryStatusFailed}, report.DependsOnStatus)
	assert.Equal(t, "log", report.Job.Type)

	var data map[string]string
	require.NoError(t, json.Unmarshal(report.Job.Data, &data))
	assert.Equal(t, "backup finished", data["message"])

	require.Len(t, report.Triggers, 1)
	weekly := report.Triggers[0]
	assert.Equal(t, trigger.KindWeekly, weekly.Kind)
	assert.True(t, weekly.StartsAt.IsZero(), "start is left for the scheduler to default")
	assert.Equal(t, trigger.TimeOfDay{Hour: 6, Minute: 15}, weekly.TimeOfDay)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, weekly.DaysOfWeek)

	backup, err := f.Tasks[1].Build("")
	require.NoError(t, err)
	assert.False(t, backup.IsActive)
	assert.True(t, backup.AutoDelete)

	monthly := backup.Triggers[0]
	assert.Equal(t, []int{0, 1}, monthly.DaysOfMonth)
	assert.Len(t, monthly.MonthsOfYear, 12, "months default to every month")

	cron := backup.Triggers[1]
	assert.Equal(t, "*/5 * * * *", cron.CronExpression)
	assert.Equal(t, 10, cron.MaxExecutions)
	assert.True(t, cron.ShouldAutoDelete)
	require.NotNil(t, cron.EndsAt)
	assert.Equal(t, 2027, cron.EndsAt.Year())
}

func TestBuildRejectsBadTokens(t *testing.T) {
	tests := []struct {
		name string
		def  TriggerDefinition
	}{
		{"unknown kind", TriggerDefinition{Kind: "hourly"}},
		{"bad time", TriggerDefinition{Kind: "daily", TimeOfDay: "25:00"}},
		{"bad weekday", TriggerDefinition{Kind: "weekly", DaysOfWeek: "funday"}},
		{"bad day", TriggerDefinition{Kind: "monthly", DaysOfMonth: "32"}},
		{"bad month", TriggerDefinition{Kind: "monthly", DaysOfMonth: "1", Months: "13"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.def.Build(); err == nil {
				t.Errorf("Build() error = nil, want error")
			}
		})
	}
}

type fakeApplier struct {
	applied []string
	ids     map[string]string
	fail    map[string]error
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{ids: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeApplier) ApplyTask(ctx context.Context, t *task.ScheduledTask) (bool, error) {
	if err := f.fail[t.Name]; err != nil {
		return false, err
	}
	_, existed := f.ids[t.Name]
	f.ids[t.Name] = "id-" + t.Name
	f.applied = append(f.applied, t.Name)
	return !existed, nil
}

func (f *fakeApplier) ResolveTask(ctx context.Context, ref string) (*task.ScheduledTask, error) {
	id, ok := f.ids[ref]
	if !ok {
		return nil, task.ErrNotFound
	}
	return &task.ScheduledTask{ID: id, Name: ref}, nil
}

func TestApplyOrdersParentsFirst(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	a := newFakeApplier()
	sum, err := Apply(context.Background(), a, f)
	require.NoError(t, err)

	assert.Equal(t, []string{"backup", "report"}, a.applied)
	assert.ElementsMatch(t, []string{"backup", "report"}, sum.Created)

	sum, err = Apply(context.Background(), a, f)
	require.NoError(t, err)
	assert.Empty(t, sum.Created)
	assert.ElementsMatch(t, []string{"backup", "report"}, sum.Applied)
}

func TestApplyContinuesPastFailures(t *testing.T) {
	f := &File{Tasks: []Definition{
		{Name: "a", Job: JobDefinition{Type: "log"}},
		{Name: "b", Job: JobDefinition{Type: "log"}},
		{Name: "c", DependsOn: "missing", Job: JobDefinition{Type: "log"}},
	}}

	boom := errors.New("boom")
	a := newFakeApplier()
	a.fail["a"] = boom

	sum, err := Apply(context.Background(), a, f)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, task.ErrNotFound)
	assert.Equal(t, []string{"b"}, sum.Created)
}

func TestApplyDetectsCycles(t *testing.T) {
	f := &File{Tasks: []Definition{
		{Name: "a", DependsOn: "b", Job: JobDefinition{Type: "log"}},
		{Name: "b", DependsOn: "a", Job: JobDefinition{Type: "log"}},
	}}

	_, err := Apply(context.Background(), newFakeApplier(), f)
	assert.ErrorIs(t, err, ErrDependencyLoop)
}

func TestApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	a := newFakeApplier()
	require.NoError(t, ApplyFile(context.Background(), a, path))
	assert.Len(t, a.applied, 2)

	err := ApplyFile(context.Background(), a, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
