package config

import "time"

// Default configuration values.
const (
	// Scheduler defaults.
	DefaultMaxRetry                = 3
	DefaultRetryWaitDelay          = 15 * time.Second
	DefaultLateExecutionTolerance  = time.Minute
	DefaultDatabaseCheckInterval   = 30 * time.Second
	MaxDatabaseCheckInterval       = 30 * time.Second
	DefaultDegreeOfParallelism     = 5
	DefaultEligibilityPollInterval = 500 * time.Millisecond

	// Database defaults.
	DefaultDBPath       = "gensched.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8095
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 1024 * 1024 // 1MB
	DefaultJWTIssuer    = "gensched"

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// Archive defaults.
	DefaultArchivePrefix = "history"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			RetryOnFailure:              false,
			MaxRetry:                    DefaultMaxRetry,
			RetryWaitDelay:              DefaultRetryWaitDelay,
			LateExecutionTolerance:      DefaultLateExecutionTolerance,
			DatabaseCheckInterval:       DefaultDatabaseCheckInterval,
			MaxTasksDegreeOfParallelism: DefaultDegreeOfParallelism,
			EligibilityPollInterval:     DefaultEligibilityPollInterval,
		},
		Database: DatabaseConfig{
			Path:         DefaultDBPath,
			WALMode:      true,
			CacheSize:    DefaultCacheSize,
			BusyTimeout:  DefaultBusyTimeout,
			ForeignKeys:  true,
			MaxOpenConns: DefaultMaxOpenConns,
			MaxIdleConns: DefaultMaxIdleConns,
		},
		Server: ServerConfig{
			Enabled:      true,
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
			Auth: AuthConfig{
				Issuer: DefaultJWTIssuer,
			},
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Timestamp: true,
		},
		Archive: ArchiveConfig{
			Prefix: DefaultArchivePrefix,
		},
	}
}
