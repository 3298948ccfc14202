package trigger

import "time"

// schedule finds occurrences for one trigger kind. Both methods work in UTC
// and ignore EndsAt, which the caller applies.
type schedule interface {
	// next returns the earliest occurrence at or after from.
	next(t *Trigger, from time.Time) (time.Time, bool)
	// prev returns the latest occurrence at or before now.
	prev(t *Trigger, now time.Time, tolerance time.Duration) (time.Time, bool)
}

func scheduleFor(k Kind) schedule {
	switch k {
	case KindOnce:
		return onceSchedule{}
	case KindInterval:
		return intervalSchedule{}
	case KindCron:
		return cronSchedule{}
	case KindDaily:
		return dailySchedule{}
	case KindWeekly:
		return weeklySchedule{}
	case KindMonthly:
		return monthlySchedule{}
	case KindCalendar:
		return calendarSchedule{}
	default:
		return nil
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type onceSchedule struct{}

func (onceSchedule) next(t *Trigger, from time.Time) (time.Time, bool) {
	if t.StartsAt.Before(from) {
		return time.Time{}, false
	}
	return t.StartsAt.UTC(), true
}

func (onceSchedule) prev(t *Trigger, now time.Time, _ time.Duration) (time.Time, bool) {
	if t.StartsAt.After(now) {
		return time.Time{}, false
	}
	return t.StartsAt.UTC(), true
}

// intervalSchedule anchors occurrences at StartsAt + k*interval so firing
// late never shifts later occurrences.
type intervalSchedule struct{}

func (intervalSchedule) next(t *Trigger, from time.Time) (time.Time, bool) {
	interval := t.ExecutionInterval
	if interval <= 0 {
		return time.Time{}, false
	}

	start := t.StartsAt.UTC()
	if !from.After(start) {
		return start, true
	}

	elapsed := from.Sub(start)
	k := elapsed / interval
	if elapsed%interval != 0 {
		k++
	}
	return start.Add(k * interval), true
}

func (intervalSchedule) prev(t *Trigger, now time.Time, _ time.Duration) (time.Time, bool) {
	interval := t.ExecutionInterval
	if interval <= 0 || now.Before(t.StartsAt) {
		return time.Time{}, false
	}

	start := t.StartsAt.UTC()
	k := now.Sub(start) / interval
	return start.Add(k * interval), true
}

type dailySchedule struct{}

func (dailySchedule) next(t *Trigger, from time.Time) (time.Time, bool) {
	candidate := t.TimeOfDay.On(midnight(from))
	if candidate.Before(from) {
		candidate = t.TimeOfDay.On(midnight(from).AddDate(0, 0, 1))
	}
	return candidate, true
}

func (dailySchedule) prev(t *Trigger, now time.Time, _ time.Duration) (time.Time, bool) {
	candidate := t.TimeOfDay.On(midnight(now))
	if candidate.After(now) {
		candidate = t.TimeOfDay.On(midnight(now).AddDate(0, 0, -1))
	}
	return candidate, true
}

// weeklySearchDays bounds the weekly search; two weeks always contain every
// weekday at least once after any starting point.
const weeklySearchDays = 14

type weeklySchedule struct{}

func (weeklySchedule) next(t *Trigger, from time.Time) (time.Time, bool) {
	day := midnight(from)
	for i := 0; i < weeklySearchDays; i++ {
		d := day.AddDate(0, 0, i)
		if !hasWeekday(t.DaysOfWeek, d.Weekday()) {
			continue
		}
		if candidate := t.TimeOfDay.On(d); !candidate.Before(from) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

func (weeklySchedule) prev(t *Trigger, now time.Time, _ time.Duration) (time.Time, bool) {
	day := midnight(now)
	for i := 0; i < weeklySearchDays; i++ {
		d := day.AddDate(0, 0, -i)
		if !hasWeekday(t.DaysOfWeek, d.Weekday()) {
			continue
		}
		if candidate := t.TimeOfDay.On(d); !candidate.After(now) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

func hasWeekday(days []time.Weekday, wd time.Weekday) bool {
	for _, d := range days {
		if d == wd {
			return true
		}
	}
	return false
}

// monthlySearchMonths is the horizon for monthly triggers.
const monthlySearchMonths = 36

type monthlySchedule struct{}

func (monthlySchedule) next(t *Trigger, from time.Time) (time.Time, bool) {
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < monthlySearchMonths; i++ {
		month := first.AddDate(0, i, 0)
		if !hasMonth(t.MonthsOfYear, month.Month()) {
			continue
		}
		for _, day := range resolveDays(t.DaysOfMonth, month.Year(), month.Month()) {
			candidate := t.TimeOfDay.On(time.Date(month.Year(), month.Month(), day, 0, 0, 0, 0, time.UTC))
			if !candidate.Before(from) {
				return candidate, true
			}
		}
	}
	return time.Time{}, false
}

func (monthlySchedule) prev(t *Trigger, now time.Time, _ time.Duration) (time.Time, bool) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < monthlySearchMonths; i++ {
		month := first.AddDate(0, -i, 0)
		if !hasMonth(t.MonthsOfYear, month.Month()) {
			continue
		}
		days := resolveDays(t.DaysOfMonth, month.Year(), month.Month())
		for j := len(days) - 1; j >= 0; j-- {
			candidate := t.TimeOfDay.On(time.Date(month.Year(), month.Month(), days[j], 0, 0, 0, 0, time.UTC))
			if !candidate.After(now) {
				return candidate, true
			}
		}
	}
	return time.Time{}, false
}

func hasMonth(months []time.Month, m time.Month) bool {
	for _, mm := range months {
		if mm == m {
			return true
		}
	}
	return false
}

type calendarSchedule struct{}

func (calendarSchedule) next(t *Trigger, from time.Time) (time.Time, bool) {
	var found time.Time
	for _, e := range t.Entries {
		if e.Executed || e.ScheduledAt.Before(from) {
			continue
		}
		if found.IsZero() || e.ScheduledAt.Before(found) {
			found = e.ScheduledAt
		}
	}
	return found.UTC(), !found.IsZero()
}

func (calendarSchedule) prev(t *Trigger, now time.Time, _ time.Duration) (time.Time, bool) {
	var found time.Time
	for _, e := range t.Entries {
		if e.Executed || e.ScheduledAt.After(now) {
			continue
		}
		if found.IsZero() || e.ScheduledAt.After(found) {
			found = e.ScheduledAt
		}
	}
	return found.UTC(), !found.IsZero()
}
