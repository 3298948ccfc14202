package scheduler

import (
	"time"

	"github.com/watzon/gensched/internal/config"
)

// Config holds the settings the launcher and every worker run with.
type Config struct {
	RetryOnFailure              bool
	MaxRetry                    int
	RetryWaitDelay              time.Duration
	LateExecutionTolerance      time.Duration
	DatabaseCheckInterval       time.Duration
	MaxTasksDegreeOfParallelism int
	AutoDeleteInactiveTasks     bool
	EligibilityPollInterval     time.Duration
	HistoryRetention            time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// ConfigFrom converts the loaded scheduler section.
func ConfigFrom(c config.SchedulerConfig) Config {
	return Config{
		RetryOnFailure:              c.RetryOnFailure,
		MaxRetry:                    c.MaxRetry,
		RetryWaitDelay:              c.RetryWaitDelay,
		LateExecutionTolerance:      c.LateExecutionTolerance,
		DatabaseCheckInterval:       c.DatabaseCheckInterval,
		MaxTasksDegreeOfParallelism: c.MaxTasksDegreeOfParallelism,
		AutoDeleteInactiveTasks:     c.AutoDeleteInactiveTasks,
		EligibilityPollInterval:     c.EligibilityPollInterval,
		HistoryRetention:            c.HistoryRetention,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRetry <= 0 {
		c.MaxRetry = config.DefaultMaxRetry
	}
	if c.RetryWaitDelay < 0 {
		c.RetryWaitDelay = 0
	}
	if c.LateExecutionTolerance <= 0 {
		c.LateExecutionTolerance = config.DefaultLateExecutionTolerance
	}
	if c.DatabaseCheckInterval <= 0 {
		c.DatabaseCheckInterval = config.DefaultDatabaseCheckInterval
	}
	if c.DatabaseCheckInterval > config.MaxDatabaseCheckInterval {
		c.DatabaseCheckInterval = config.MaxDatabaseCheckInterval
	}
	if c.MaxTasksDegreeOfParallelism <= 0 {
		c.MaxTasksDegreeOfParallelism = config.DefaultDegreeOfParallelism
	}
	if c.EligibilityPollInterval <= 0 {
		c.EligibilityPollInterval = config.DefaultEligibilityPollInterval
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// attempts is the number of attempts one firing may use.
func (c Config) attempts() int {
	if !c.RetryOnFailure {
		return 1
	}
	return max(1, c.MaxRetry)
}

func (c Config) now() time.Time {
	return c.Clock().UTC()
}
