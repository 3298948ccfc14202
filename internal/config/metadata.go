package config

import (
	"fmt"
	"time"
)

// Setting describes one configuration key with its default and current value.
type Setting struct {
	Key         string `json:"key" yaml:"key"`
	Description string `json:"description" yaml:"description"`
	Default     string `json:"default" yaml:"default"`
	Current     string `json:"current" yaml:"current"`
	Sensitive   bool   `json:"sensitive,omitempty" yaml:"sensitive,omitempty"`
}

// Describe lists every configuration key in file order. Secrets are masked.
func Describe(current *Config) []Setting {
	d := Default()

	settings := []Setting{
		{Key: "scheduler.retry_on_failure", Description: "Retry failed attempts within one firing", Default: fmtBool(d.Scheduler.RetryOnFailure), Current: fmtBool(current.Scheduler.RetryOnFailure)},
		{Key: "scheduler.max_retry", Description: "Attempts per firing when retrying", Default: fmtInt(d.Scheduler.MaxRetry), Current: fmtInt(current.Scheduler.MaxRetry)},
		{Key: "scheduler.retry_wait_delay", Description: "Pause between attempts", Default: formatDuration(d.Scheduler.RetryWaitDelay), Current: formatDuration(current.Scheduler.RetryWaitDelay)},
		{Key: "scheduler.late_execution_tolerance", Description: "How late a firing may start", Default: formatDuration(d.Scheduler.LateExecutionTolerance), Current: formatDuration(current.Scheduler.LateExecutionTolerance)},
		{Key: "scheduler.database_check_interval", Description: "Poll period (capped at 30s)", Default: formatDuration(d.Scheduler.DatabaseCheckInterval), Current: formatDuration(current.Scheduler.DatabaseCheckInterval)},
		{Key: "scheduler.max_tasks_degree_of_parallelism", Description: "Jobs executing at once", Default: fmtInt(d.Scheduler.MaxTasksDegreeOfParallelism), Current: fmtInt(current.Scheduler.MaxTasksDegreeOfParallelism)},
		{Key: "scheduler.auto_delete_inactive_tasks", Description: "Delete inactive tasks while polling", Default: fmtBool(d.Scheduler.AutoDeleteInactiveTasks), Current: fmtBool(current.Scheduler.AutoDeleteInactiveTasks)},
		{Key: "scheduler.eligibility_poll_interval", Description: "Trigger re-check period of a waiting task", Default: formatDuration(d.Scheduler.EligibilityPollInterval), Current: formatDuration(current.Scheduler.EligibilityPollInterval)},
		{Key: "scheduler.history_retention", Description: "Prune history older than this (0 keeps all)", Default: formatDuration(d.Scheduler.HistoryRetention), Current: formatDuration(current.Scheduler.HistoryRetention)},

		{Key: "database.path", Description: "Path to SQLite database file", Default: d.Database.Path, Current: current.Database.Path},
		{Key: "database.wal_mode", Description: "Enable WAL mode", Default: fmtBool(d.Database.WALMode), Current: fmtBool(current.Database.WALMode)},
		{Key: "database.busy_timeout", Description: "SQLite busy timeout", Default: formatDuration(d.Database.BusyTimeout), Current: formatDuration(current.Database.BusyTimeout)},
		{Key: "database.max_open_conns", Description: "Maximum open connections", Default: fmtInt(d.Database.MaxOpenConns), Current: fmtInt(current.Database.MaxOpenConns)},

		{Key: "server.enabled", Description: "Serve the HTTP API", Default: fmtBool(d.Server.Enabled), Current: fmtBool(current.Server.Enabled)},
		{Key: "server.host", Description: "Host to bind the server to", Default: d.Server.Host, Current: current.Server.Host},
		{Key: "server.port", Description: "Port to listen on", Default: fmtInt(d.Server.Port), Current: fmtInt(current.Server.Port)},
		{Key: "server.auth.jwt_secret", Description: "HS256 secret for API tokens", Default: "", Current: maskSecret(current.Server.Auth.JWTSecret), Sensitive: true},
		{Key: "server.auth.issuer", Description: "Expected token issuer", Default: d.Server.Auth.Issuer, Current: current.Server.Auth.Issuer},

		{Key: "logging.level", Description: "Log level", Default: d.Logging.Level, Current: current.Logging.Level},
		{Key: "logging.format", Description: "Log format (json, console)", Default: d.Logging.Format, Current: current.Logging.Format},
		{Key: "logging.output", Description: "Output file (empty for stderr)", Default: d.Logging.Output, Current: current.Logging.Output},

		{Key: "tasks.file", Description: "YAML task definitions applied at startup", Default: d.Tasks.File, Current: current.Tasks.File},
		{Key: "tasks.watch", Description: "Reload the task file on change", Default: fmtBool(d.Tasks.Watch), Current: fmtBool(current.Tasks.Watch)},

		{Key: "archive.enabled", Description: "Export pruned history to S3", Default: fmtBool(d.Archive.Enabled), Current: fmtBool(current.Archive.Enabled)},
		{Key: "archive.bucket", Description: "Target bucket", Default: d.Archive.Bucket, Current: current.Archive.Bucket},
		{Key: "archive.prefix", Description: "Object key prefix", Default: d.Archive.Prefix, Current: current.Archive.Prefix},
		{Key: "archive.region", Description: "Bucket region", Default: d.Archive.Region, Current: current.Archive.Region},
		{Key: "archive.endpoint", Description: "Custom S3 endpoint", Default: d.Archive.Endpoint, Current: current.Archive.Endpoint},
		{Key: "archive.secret_access_key", Description: "S3 secret key", Default: "", Current: maskSecret(current.Archive.SecretAccessKey), Sensitive: true},
	}

	return settings
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	if d%time.Millisecond == 0 {
		return fmt.Sprintf("%dms", d/time.Millisecond)
	}
	return d.String()
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***SET***"
}

func fmtBool(b bool) string { return fmt.Sprintf("%t", b) }

func fmtInt(i int) string { return fmt.Sprintf("%d", i) }
