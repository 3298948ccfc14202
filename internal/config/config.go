// Package config provides configuration management for gensched.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration structure for gensched.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

// SchedulerConfig holds the dispatch engine settings.
type SchedulerConfig struct {
	// Retry failed attempts within one firing
	RetryOnFailure bool `mapstructure:"retry_on_failure"`

	// Attempts per firing when retrying is enabled
	MaxRetry int `mapstructure:"max_retry"`

	// Pause between attempts
	RetryWaitDelay time.Duration `mapstructure:"retry_wait_delay"`

	// How late a firing may start and still count as on time
	LateExecutionTolerance time.Duration `mapstructure:"late_execution_tolerance"`

	// Poll period; values above 30s are capped
	DatabaseCheckInterval time.Duration `mapstructure:"database_check_interval"`

	// Maximum number of jobs executing at once
	MaxTasksDegreeOfParallelism int `mapstructure:"max_tasks_degree_of_parallelism"`

	// Delete inactive tasks during the poll cycle
	AutoDeleteInactiveTasks bool `mapstructure:"auto_delete_inactive_tasks"`

	// How often a dispatched task re-checks its triggers while waiting
	EligibilityPollInterval time.Duration `mapstructure:"eligibility_poll_interval"`

	// Age after which history is pruned; zero keeps everything
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Serve the HTTP API alongside the scheduler
	Enabled bool `mapstructure:"enabled"`

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`

	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig enables bearer token checks on /api routes.
type AuthConfig struct {
	// HS256 signing secret; empty leaves the API unauthenticated
	JWTSecret string `mapstructure:"jwt_secret"`

	// Expected issuer claim, if set
	Issuer string `mapstructure:"issuer"`
}

// Enabled reports whether API authentication is configured.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller"`

	// Include timestamp
	Timestamp bool `mapstructure:"timestamp"`

	// Output file (empty for stdout)
	Output string `mapstructure:"output"`
}

// TasksConfig points at a YAML file of task definitions applied at startup.
type TasksConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

// ArchiveConfig holds settings for exporting pruned history to S3.
type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`

	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`

	// Custom endpoint for S3-compatible services (MinIO, R2)
	Endpoint string `mapstructure:"endpoint"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	UsePathStyle bool `mapstructure:"use_path_style"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
