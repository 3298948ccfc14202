package trigger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownKind      = errors.New("unknown trigger kind")
	ErrInvalidDays      = errors.New("invalid days")
	ErrInvalidMonths    = errors.New("invalid months")
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
	ErrInvalidTrigger   = errors.New("invalid trigger")
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Is lets callers match any validation failure with ErrInvalidTrigger.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidTrigger
}

// Prefixed returns the errors with prefix prepended to every field.
func (e ValidationErrors) Prefixed(prefix string) ValidationErrors {
	out := make(ValidationErrors, len(e))
	for i, err := range e {
		out[i] = ValidationError{Field: prefix + err.Field, Message: err.Message}
	}
	return out
}

// Validate checks a trigger definition. now is used to reject one-shot
// triggers that could never fire.
func (t *Trigger) Validate(now time.Time) ValidationErrors {
	var errs ValidationErrors

	if _, err := ParseKind(string(t.Kind)); err != nil {
		return append(errs, ValidationError{Field: "kind", Message: err.Error()})
	}

	if t.StartsAt.IsZero() {
		errs = append(errs, ValidationError{Field: "starts_at", Message: "is required"})
	}
	if t.EndsAt != nil && !t.EndsAt.After(t.StartsAt) {
		errs = append(errs, ValidationError{Field: "ends_at", Message: "must be after starts_at"})
	}
	if t.MaxExecutions < 0 {
		errs = append(errs, ValidationError{Field: "max_executions", Message: "must be non-negative"})
	}
	if t.ExecutionInterval < 0 {
		errs = append(errs, ValidationError{Field: "execution_interval", Message: "must be non-negative"})
	}

	switch t.Kind {
	case KindOnce:
		if !t.StartsAt.IsZero() && t.StartsAt.Before(now) && t.Executions == 0 {
			errs = append(errs, ValidationError{Field: "starts_at", Message: "must be in the future"})
		}
	case KindInterval:
		if t.ExecutionInterval <= 0 {
			errs = append(errs, ValidationError{Field: "execution_interval", Message: "must be greater than zero"})
		}
	case KindCron:
		if strings.TrimSpace(t.CronExpression) == "" {
			errs = append(errs, ValidationError{Field: "cron_expression", Message: "is required"})
		} else if _, err := ParseCron(t.CronExpression); err != nil {
			errs = append(errs, ValidationError{Field: "cron_expression", Message: err.Error()})
		}
	case KindWeekly:
		if len(t.DaysOfWeek) == 0 {
			errs = append(errs, ValidationError{Field: "days_of_week", Message: "at least one weekday is required"})
		}
		for _, d := range t.DaysOfWeek {
			if d < time.Sunday || d > time.Saturday {
				errs = append(errs, ValidationError{Field: "days_of_week", Message: fmt.Sprintf("invalid weekday %d", d)})
			}
		}
	case KindMonthly:
		if len(t.DaysOfMonth) == 0 {
			errs = append(errs, ValidationError{Field: "days_of_month", Message: "at least one day is required"})
		}
		for _, d := range t.DaysOfMonth {
			if d < 0 || d > 31 {
				errs = append(errs, ValidationError{Field: "days_of_month", Message: fmt.Sprintf("invalid day %d", d)})
			}
		}
		if len(t.MonthsOfYear) == 0 {
			errs = append(errs, ValidationError{Field: "months_of_year", Message: "at least one month is required"})
		}
		for _, m := range t.MonthsOfYear {
			if m < time.January || m > time.December {
				errs = append(errs, ValidationError{Field: "months_of_year", Message: fmt.Sprintf("invalid month %d", m)})
			}
		}
	case KindCalendar:
		if len(t.Entries) == 0 {
			errs = append(errs, ValidationError{Field: "entries", Message: "at least one entry is required"})
		}
		for i, e := range t.Entries {
			if e.ScheduledAt.IsZero() {
				errs = append(errs, ValidationError{Field: fmt.Sprintf("entries[%d].scheduled_at", i), Message: "is required"})
			}
		}
	}

	if err := t.TimeOfDay.validate(); err != nil {
		errs = append(errs, ValidationError{Field: "time_of_day", Message: err.Error()})
	}

	return errs
}

func (d TimeOfDay) validate() error {
	if d.Hour < 0 || d.Hour > 23 || d.Minute < 0 || d.Minute > 59 || d.Second < 0 || d.Second > 59 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeOfDay, d)
	}
	return nil
}

// Normalize fills derived defaults before a trigger is first stored: UTC
// timestamps, the initial state and, for calendar triggers without a start,
// the earliest entry as StartsAt.
func (t *Trigger) Normalize(now time.Time) {
	if t.Kind == KindCalendar && t.StartsAt.IsZero() {
		for _, e := range t.Entries {
			if t.StartsAt.IsZero() || e.ScheduledAt.Before(t.StartsAt) {
				t.StartsAt = e.ScheduledAt
			}
		}
	}

	t.StartsAt = t.StartsAt.UTC()
	if t.EndsAt != nil {
		ends := t.EndsAt.UTC()
		t.EndsAt = &ends
	}
	for i := range t.Entries {
		t.Entries[i].ScheduledAt = t.Entries[i].ScheduledAt.UTC()
	}

	if t.LastTriggeredStatus == "" {
		t.LastTriggeredStatus = StatusNotTriggered
	}
	if t.Executions == 0 && t.LastExecution == nil {
		t.IsValid = true
	}

	t.RefreshNext(now)
}
