package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gensched/internal/events"
	"github.com/watzon/gensched/internal/store"
	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/trigger"
)

var ErrTaskInactive = errors.New("task is inactive")

// ResolveTask loads a task by id, falling back to its active name.
func (l *Launcher) ResolveTask(ctx context.Context, ref string) (*task.ScheduledTask, error) {
	var t *task.ScheduledTask
	err := l.store.Do(ctx, func(s *store.Session) error {
		var err error
		t, err = resolve(ctx, s, ref)
		return err
	})
	return t, err
}

func resolve(ctx context.Context, s *store.Session, ref string) (*task.ScheduledTask, error) {
	t, err := s.Tasks().GetByID(ctx, ref)
	if errors.Is(err, task.ErrNotFound) {
		return s.Tasks().GetByName(ctx, ref)
	}
	return t, err
}

// CreateTask validates, normalizes and stores a new task. Triggers without
// a start time start now.
func (l *Launcher) CreateTask(ctx context.Context, t *task.ScheduledTask) error {
	now := l.cfg.now()
	for _, tr := range t.Triggers {
		defaultStart(tr, now)
	}
	if err := t.Validate(now, l.jobs); err != nil {
		return err
	}
	t.Normalize(now)

	err := l.store.Do(ctx, func(s *store.Session) error {
		return s.Tasks().Add(ctx, t)
	})
	if err != nil {
		return err
	}

	log.Info().Str("task_id", t.ID).Str("task_name", t.Name).Msg("Task created")
	return nil
}

// ApplyTask creates t, or updates the active task with the same name to
// match it. Triggers whose definition is unchanged keep their id and
// firing state; a trigger without a start time matches an existing one
// that differs only in its start. It reports whether a task was created.
func (l *Launcher) ApplyTask(ctx context.Context, t *task.ScheduledTask) (bool, error) {
	now := l.cfg.now()
	created := false

	err := l.store.Do(ctx, func(s *store.Session) error {
		existing, err := s.Tasks().GetByName(ctx, t.Name)
		if errors.Is(err, task.ErrNotFound) {
			for _, tr := range t.Triggers {
				defaultStart(tr, now)
			}
			if err := t.Validate(now, l.jobs); err != nil {
				return err
			}
			t.Normalize(now)
			created = true
			return s.Tasks().Add(ctx, t)
		}
		if err != nil {
			return err
		}

		t.ID = existing.ID
		reused := matchTriggers(existing.Triggers, t.Triggers)
		for i, tr := range t.Triggers {
			if _, ok := reused[i]; !ok && tr != nil {
				defaultStart(tr, now)
			}
		}
		if err := l.validateApplied(t, reused, now); err != nil {
			return err
		}
		if sameDefinition(existing, t) && len(reused) == len(t.Triggers) && len(reused) == len(existing.Triggers) {
			return nil
		}

		for i, tr := range t.Triggers {
			if old, ok := reused[i]; ok {
				t.Triggers[i] = old
				continue
			}
			tr.TaskID = t.ID
			tr.Normalize(now)
		}
		t.Status = existing.Status
		t.LastExecution = existing.LastExecution
		t.CreatedAt = existing.CreatedAt
		t.RefreshNextExecution()

		return s.Tasks().Update(ctx, t)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// validateApplied validates t but ignores trigger errors for triggers that
// are carried over unchanged: a one-shot that already passed stays valid
// for an existing task.
func (l *Launcher) validateApplied(t *task.ScheduledTask, reused map[int]*trigger.Trigger, now time.Time) error {
	err := t.Validate(now, l.jobs)
	var verrs trigger.ValidationErrors
	if err == nil || !errors.As(err, &verrs) {
		return err
	}

	var kept trigger.ValidationErrors
	for _, ve := range verrs {
		skip := false
		for i := range reused {
			if strings.HasPrefix(ve.Field, fmt.Sprintf("triggers[%d].", i)) {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, ve)
		}
	}
	if len(kept) > 0 {
		return kept
	}
	return nil
}

// matchTriggers pairs incoming triggers with existing ones of identical
// definition, by index into incoming.
func matchTriggers(existing, incoming []*trigger.Trigger) map[int]*trigger.Trigger {
	taken := make(map[*trigger.Trigger]bool, len(existing))
	reused := make(map[int]*trigger.Trigger)

	for i, tr := range incoming {
		if tr == nil {
			continue
		}
		floating := tr.StartsAt.IsZero()
		key := definitionKey(tr, floating)
		for _, old := range existing {
			if !taken[old] && definitionKey(old, floating) == key {
				reused[i] = old
				taken[old] = true
				break
			}
		}
	}
	return reused
}

// defaultStart starts a trigger declared without a start time now, or at
// its first entry for calendar triggers.
func defaultStart(tr *trigger.Trigger, now time.Time) {
	if tr == nil || !tr.StartsAt.IsZero() {
		return
	}
	if tr.Kind == trigger.KindCalendar {
		for _, e := range tr.Entries {
			if tr.StartsAt.IsZero() || e.ScheduledAt.Before(tr.StartsAt) {
				tr.StartsAt = e.ScheduledAt
			}
		}
		if !tr.StartsAt.IsZero() {
			return
		}
	}
	tr.StartsAt = now
}

// definitionKey identifies what a trigger was declared as, ignoring its
// runtime state. A floating key also ignores the start time.
func definitionKey(tr *trigger.Trigger, floating bool) string {
	def := struct {
		Kind              trigger.Kind
		Description       string
		StartsAt          int64
		EndsAt            int64
		ShouldAutoDelete  bool
		ExecutionInterval int64
		MaxExecutions     int
		CronExpression    string
		TimeOfDay         string
		DaysOfWeek        any
		DaysOfMonth       any
		MonthsOfYear      any
		Entries           []int64
	}{
		Kind:              tr.Kind,
		Description:       tr.Description,
		ShouldAutoDelete:  tr.ShouldAutoDelete,
		ExecutionInterval: int64(tr.ExecutionInterval),
		MaxExecutions:     tr.MaxExecutions,
		CronExpression:    tr.CronExpression,
		TimeOfDay:         tr.TimeOfDay.String(),
		DaysOfWeek:        tr.DaysOfWeek,
		DaysOfMonth:       tr.DaysOfMonth,
		MonthsOfYear:      tr.MonthsOfYear,
	}
	if !floating {
		def.StartsAt = tr.StartsAt.UnixNano()
	}
	if tr.EndsAt != nil {
		def.EndsAt = tr.EndsAt.UnixNano()
	}
	for _, e := range tr.Entries {
		def.Entries = append(def.Entries, e.ScheduledAt.UnixNano())
	}

	b, _ := json.Marshal(def)
	return string(b)
}

func sameDefinition(a, b *task.ScheduledTask) bool {
	return a.Description == b.Description &&
		a.AutoDelete == b.AutoDelete &&
		a.IsActive == b.IsActive &&
		a.MaxExecutionTime == b.MaxExecutionTime &&
		a.Job.Type == b.Job.Type &&
		string(a.Job.Data) == string(b.Job.Data) &&
		a.DependsOnTaskID == b.DependsOnTaskID &&
		sameStatuses(a.DependsOnStatus, b.DependsOnStatus)
}

func sameStatuses(a, b []task.HistoryStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SetActive enables or disables a task.
func (l *Launcher) SetActive(ctx context.Context, ref string, active bool) (*task.ScheduledTask, error) {
	var t *task.ScheduledTask
	err := l.store.Do(ctx, func(s *store.Session) error {
		var err error
		t, err = resolve(ctx, s, ref)
		if err != nil {
			return err
		}
		if t.IsActive == active {
			return nil
		}
		t.IsActive = active
		if active {
			t.RefreshNextExecution()
		}
		return s.Tasks().Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("task_id", t.ID).Bool("active", active).Msg("Task activation changed")
	return t, nil
}

// DeleteTask removes a task with its triggers and history.
func (l *Launcher) DeleteTask(ctx context.Context, ref string) error {
	var t *task.ScheduledTask
	err := l.store.Do(ctx, func(s *store.Session) error {
		var err error
		t, err = resolve(ctx, s, ref)
		if err != nil {
			return err
		}
		return s.Tasks().Delete(ctx, t.ID)
	})
	if err != nil {
		return err
	}

	log.Info().Str("task_id", t.ID).Str("task_name", t.Name).Msg("Task deleted")
	l.bus.Publish(ctx, &events.Event{
		Type:     events.EventTypeTaskDeleted,
		TaskID:   t.ID,
		TaskName: t.Name,
	})
	return nil
}

// Trigger adds a one-shot trigger at now so the next poll cycle runs the
// task. The trigger deletes itself after firing.
func (l *Launcher) Trigger(ctx context.Context, ref string) (*task.ScheduledTask, error) {
	now := l.cfg.now()

	var t *task.ScheduledTask
	err := l.store.Do(ctx, func(s *store.Session) error {
		var err error
		t, err = resolve(ctx, s, ref)
		if err != nil {
			return err
		}
		if !t.IsActive {
			return fmt.Errorf("%w: %s", ErrTaskInactive, t.Name)
		}

		tr := trigger.New(trigger.KindOnce, now)
		tr.Description = "manual run"
		tr.ShouldAutoDelete = true
		tr.TaskID = t.ID
		tr.Normalize(now)

		t.Triggers = append(t.Triggers, tr)
		t.RefreshNextExecution()
		return s.Tasks().Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("task_id", t.ID).Str("task_name", t.Name).Msg("Manual run requested")
	return t, nil
}
