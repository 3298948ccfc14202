package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLookback is the minimum window searched backwards for the current
// cron occurrence, so a firing delayed by the poll cycle still counts as due.
const cronLookback = time.Minute

var (
	cronParser = cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	cronCache sync.Map // expression -> cron.Schedule
)

// ParseCron parses a standard 5-field cron expression or a descriptor such
// as @daily.
func ParseCron(expression string) (cron.Schedule, error) {
	if cached, ok := cronCache.Load(expression); ok {
		return cached.(cron.Schedule), nil
	}

	sched, err := cronParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression: %w", err)
	}

	cronCache.Store(expression, sched)
	return sched, nil
}

type cronSchedule struct{}

func (cronSchedule) next(t *Trigger, from time.Time) (time.Time, bool) {
	sched, err := ParseCron(t.CronExpression)
	if err != nil {
		return time.Time{}, false
	}

	// cron.Schedule.Next is strictly after its argument.
	next := sched.Next(from.Add(-time.Nanosecond))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next.UTC(), true
}

func (cronSchedule) prev(t *Trigger, now time.Time, tolerance time.Duration) (time.Time, bool) {
	sched, err := ParseCron(t.CronExpression)
	if err != nil {
		return time.Time{}, false
	}

	window := cronLookback
	if tolerance > window {
		window = tolerance
	}

	current := sched.Next(now.Add(-window).Add(-time.Nanosecond))
	if current.IsZero() || current.After(now) {
		return time.Time{}, false
	}

	for {
		following := sched.Next(current)
		if following.IsZero() || following.After(now) {
			return current.UTC(), true
		}
		current = following
	}
}
