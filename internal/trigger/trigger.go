// Package trigger implements the firing rules attached to scheduled tasks.
//
// A Trigger is a single struct tagged by Kind. The kind selects a schedule
// (once, interval, cron, daily, weekly, monthly, calendar) that knows how to
// find occurrences; the shared state machine in this file turns occurrences
// into eligibility, misfire detection and post-firing state updates.
// Every evaluation takes the current time explicitly and never reads the
// wall clock.
package trigger

import (
	"fmt"
	"time"
)

// Kind discriminates the trigger variants.
type Kind string

const (
	KindOnce     Kind = "once"
	KindInterval Kind = "interval"
	KindCron     Kind = "cron"
	KindDaily    Kind = "daily"
	KindWeekly   Kind = "weekly"
	KindMonthly  Kind = "monthly"
	KindCalendar Kind = "calendar"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindOnce, KindInterval, KindCron, KindDaily, KindWeekly, KindMonthly, KindCalendar}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// TriggeredStatus records the outcome of the last evaluation that touched a trigger.
type TriggeredStatus string

const (
	StatusNotTriggered TriggeredStatus = "NotTriggered"
	StatusSuccess      TriggeredStatus = "Success"
	StatusMissfire     TriggeredStatus = "Missfire"
)

// Trigger is a firing rule owned by a task.
type Trigger struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description,omitempty"`

	StartsAt         time.Time  `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	ShouldAutoDelete bool       `json:"auto_delete"`

	// ExecutionInterval is the repeat period for interval triggers and the
	// pause between consecutive firings inside one activation for the rest.
	ExecutionInterval time.Duration `json:"execution_interval,omitempty"`

	IsValid             bool            `json:"is_valid"`
	LastExecution       *time.Time      `json:"last_execution,omitempty"`
	NextExecution       *time.Time      `json:"next_execution,omitempty"`
	MaxExecutions       int             `json:"max_executions,omitempty"` // 0 means unbounded
	Executions          int             `json:"executions"`
	LastTriggeredStatus TriggeredStatus `json:"last_triggered_status"`

	CronExpression string          `json:"cron_expression,omitempty"`
	TimeOfDay      TimeOfDay       `json:"time_of_day"`
	DaysOfWeek     []time.Weekday  `json:"days_of_week,omitempty"`
	DaysOfMonth    []int           `json:"days_of_month,omitempty"` // 0 is the last day of the month
	MonthsOfYear   []time.Month    `json:"months_of_year,omitempty"`
	Entries        []CalendarEntry `json:"entries,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalendarEntry is one explicit firing time of a calendar trigger.
type CalendarEntry struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Executed    bool      `json:"executed"`
}

// New returns a valid, never-fired trigger of the given kind.
func New(kind Kind, startsAt time.Time) *Trigger {
	return &Trigger{
		Kind:                kind,
		StartsAt:            startsAt.UTC(),
		IsValid:             true,
		LastTriggeredStatus: StatusNotTriggered,
	}
}

// Exhausted reports whether MaxExecutions has been reached.
func (t *Trigger) Exhausted() bool {
	return t.MaxExecutions > 0 && t.Executions >= t.MaxExecutions
}

// Expired reports whether now is past EndsAt.
func (t *Trigger) Expired(now time.Time) bool {
	return t.EndsAt != nil && now.After(*t.EndsAt)
}

// Next returns the earliest occurrence at or after max(now, StartsAt) that
// does not pass EndsAt. It reports false for invalid or exhausted triggers
// and when no occurrence exists within the kind's search horizon.
func (t *Trigger) Next(now time.Time) (time.Time, bool) {
	if !t.IsValid || t.Exhausted() {
		return time.Time{}, false
	}

	s := scheduleFor(t.Kind)
	if s == nil {
		return time.Time{}, false
	}

	from := now.UTC()
	if from.Before(t.StartsAt) {
		from = t.StartsAt.UTC()
	}

	next, ok := s.next(t, from)
	if !ok {
		return time.Time{}, false
	}
	if t.EndsAt != nil && next.After(*t.EndsAt) {
		return time.Time{}, false
	}
	return next, true
}

// Expected returns the occurrence that eligibility at now is judged against:
// the latest occurrence at or before now, not earlier than StartsAt and not
// later than EndsAt.
func (t *Trigger) Expected(now time.Time, tolerance time.Duration) (time.Time, bool) {
	s := scheduleFor(t.Kind)
	if s == nil {
		return time.Time{}, false
	}

	expected, ok := s.prev(t, now.UTC(), tolerance)
	if !ok || expected.Before(t.StartsAt) {
		return time.Time{}, false
	}
	if t.EndsAt != nil && expected.After(*t.EndsAt) {
		return time.Time{}, false
	}
	return expected, true
}

// IsEligible reports whether the trigger should fire at now: it is valid,
// not exhausted, not expired, the expected occurrence has not fired yet and
// now lies within [expected, expected+tolerance].
func (t *Trigger) IsEligible(now time.Time, tolerance time.Duration) bool {
	if !t.IsValid || t.Exhausted() || t.Expired(now) {
		return false
	}

	expected, ok := t.Expected(now, tolerance)
	if !ok {
		return false
	}
	if now.Before(expected) || now.After(expected.Add(tolerance)) {
		return false
	}

	// Calendar entries carry their own executed flag.
	if t.Kind != KindCalendar && t.LastExecution != nil && !t.LastExecution.Before(expected) {
		return false
	}

	return true
}

// IsMissed reports whether the first occurrence after the last firing (or
// after StartsAt when the trigger never fired) went by without firing: now is
// strictly past that occurrence plus tolerance.
func (t *Trigger) IsMissed(now time.Time, tolerance time.Duration) bool {
	if !t.IsValid || t.Exhausted() {
		return false
	}

	pending, ok := t.pending()
	if !ok {
		return false
	}
	if t.EndsAt != nil && pending.After(*t.EndsAt) {
		return false
	}

	return now.After(pending.Add(tolerance))
}

func (t *Trigger) pending() (time.Time, bool) {
	if t.Kind == KindCalendar {
		entry := t.earliestUnexecuted()
		if entry == nil {
			return time.Time{}, false
		}
		return entry.ScheduledAt, true
	}

	s := scheduleFor(t.Kind)
	if s == nil {
		return time.Time{}, false
	}

	from := t.StartsAt.UTC()
	if t.LastExecution != nil && !t.LastExecution.Before(from) {
		from = t.LastExecution.UTC().Add(time.Nanosecond)
	}
	return s.next(t, from)
}

// Advance records a completed firing at now. It increments the execution
// counter, stamps LastExecution, invalidates the trigger when it reached a
// terminal condition and recomputes NextExecution.
func (t *Trigger) Advance(now time.Time) {
	now = now.UTC()

	if t.Kind == KindCalendar {
		t.consumeEntry(now)
	}

	t.Executions++
	t.LastExecution = &now
	t.UpdatedAt = now

	switch {
	case t.Kind == KindOnce:
		t.IsValid = false
	case t.MaxExecutions > 0 && t.Executions >= t.MaxExecutions:
		t.IsValid = false
		t.Executions = t.MaxExecutions
	case t.EndsAt != nil && !now.Before(*t.EndsAt):
		t.IsValid = false
	}

	t.RefreshNext(now.Add(time.Nanosecond))
}

// RefreshNext recomputes NextExecution for now, invalidating the trigger when
// it has no future occurrence left.
func (t *Trigger) RefreshNext(now time.Time) {
	if !t.IsValid {
		t.NextExecution = nil
		return
	}

	next, ok := t.Next(now)
	if !ok {
		t.IsValid = false
		t.NextExecution = nil
		return
	}
	t.NextExecution = &next
}

func (t *Trigger) earliestUnexecuted() *CalendarEntry {
	var found *CalendarEntry
	for i := range t.Entries {
		e := &t.Entries[i]
		if e.Executed {
			continue
		}
		if found == nil || e.ScheduledAt.Before(found.ScheduledAt) {
			found = e
		}
	}
	return found
}

// consumeEntry marks the most recently due unexecuted entry as executed.
func (t *Trigger) consumeEntry(now time.Time) {
	var due *CalendarEntry
	for i := range t.Entries {
		e := &t.Entries[i]
		if e.Executed || e.ScheduledAt.After(now) {
			continue
		}
		if due == nil || e.ScheduledAt.After(due.ScheduledAt) {
			due = e
		}
	}
	if due != nil {
		due.Executed = true
	}
}
