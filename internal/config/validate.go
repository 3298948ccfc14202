package config

import (
	"fmt"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
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
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateArchive(&cfg.Archive)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateScheduler(cfg *SchedulerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MaxRetry < 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.max_retry",
			Message: "must be non-negative",
		})
	}

	if cfg.RetryWaitDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.retry_wait_delay",
			Message: "must be non-negative",
		})
	}

	if cfg.LateExecutionTolerance < 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.late_execution_tolerance",
			Message: "must be non-negative",
		})
	}

	if cfg.DatabaseCheckInterval < time.Second {
		errs = append(errs, ValidationError{
			Field:   "scheduler.database_check_interval",
			Message: "must be at least 1s",
		})
	}

	if cfg.MaxTasksDegreeOfParallelism < 1 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.max_tasks_degree_of_parallelism",
			Message: "must be at least 1",
		})
	}

	if cfg.EligibilityPollInterval < 10*time.Millisecond {
		errs = append(errs, ValidationError{
			Field:   "scheduler.eligibility_poll_interval",
			Message: "must be at least 10ms to prevent high CPU usage",
		})
	}

	if cfg.HistoryRetention < 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.history_retention",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "required",
		})
	}

	if cfg.MaxOpenConns < 1 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be non-negative",
		})
	}

	if cfg.Auth.Enabled() {
		if err := ValidateJWTSecret(cfg.Auth.JWTSecret); err != nil {
			errs = append(errs, *err)
		}
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		})
	}

	return errs
}

func validateArchive(cfg *ArchiveConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	if cfg.Bucket == "" {
		errs = append(errs, ValidationError{
			Field:   "archive.bucket",
			Message: "required when archiving is enabled",
		})
	}

	if cfg.Region == "" {
		errs = append(errs, ValidationError{
			Field:   "archive.region",
			Message: "required when archiving is enabled",
		})
	}

	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		errs = append(errs, ValidationError{
			Field:   "archive.access_key_id",
			Message: "access_key_id and secret_access_key must be set together",
		})
	}

	if strings.HasPrefix(cfg.Prefix, "/") {
		errs = append(errs, ValidationError{
			Field:   "archive.prefix",
			Message: "must not start with /",
		})
	}

	return errs
}

// ValidateJWTSecret checks that an API signing secret is long enough.
func ValidateJWTSecret(secret string) *ValidationError {
	if secret == "" {
		return &ValidationError{
			Field:   "server.auth.jwt_secret",
			Message: "required",
		}
	}
	if len(secret) < 32 {
		return &ValidationError{
			Field:   "server.auth.jwt_secret",
			Message: "must be at least 32 characters",
		}
	}
	return nil
}
