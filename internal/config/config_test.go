package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Scheduler.MaxRetry != 3 {
		t.Errorf("expected max_retry 3, got %d", cfg.Scheduler.MaxRetry)
	}

	if cfg.Scheduler.RetryOnFailure {
		t.Error("expected retry_on_failure to be disabled by default")
	}

	if cfg.Scheduler.RetryWaitDelay != 15*time.Second {
		t.Errorf("expected retry_wait_delay 15s, got %v", cfg.Scheduler.RetryWaitDelay)
	}

	if cfg.Scheduler.LateExecutionTolerance != time.Minute {
		t.Errorf("expected tolerance 1m, got %v", cfg.Scheduler.LateExecutionTolerance)
	}

	if cfg.Scheduler.DatabaseCheckInterval != 30*time.Second {
		t.Errorf("expected check interval 30s, got %v", cfg.Scheduler.DatabaseCheckInterval)
	}

	if cfg.Scheduler.MaxTasksDegreeOfParallelism != 5 {
		t.Errorf("expected parallelism 5, got %d", cfg.Scheduler.MaxTasksDegreeOfParallelism)
	}

	if cfg.Database.Path != DefaultDBPath {
		t.Errorf("expected db path %s, got %s", DefaultDBPath, cfg.Database.Path)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"negative retry", func(c *Config) { c.Scheduler.MaxRetry = -1 }, "scheduler.max_retry"},
		{"zero parallelism", func(c *Config) { c.Scheduler.MaxTasksDegreeOfParallelism = 0 }, "scheduler.max_tasks_degree_of_parallelism"},
		{"tiny check interval", func(c *Config) { c.Scheduler.DatabaseCheckInterval = time.Millisecond }, "scheduler.database_check_interval"},
		{"negative tolerance", func(c *Config) { c.Scheduler.LateExecutionTolerance = -time.Second }, "scheduler.late_execution_tolerance"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "invalid" }, "logging.level"},
		{"short jwt secret", func(c *Config) { c.Server.Auth.JWTSecret = "short" }, "server.auth.jwt_secret"},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Region = "us-east-1"
		}, "archive.bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}

			errs, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}

			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error for %s field, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidate_DisabledServerSkipsPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Enabled = false
	cfg.Server.Port = 0

	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidateJWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"empty", "", true},
		{"too short", "short", true},
		{"valid", "this-is-a-very-long-secret-key-for-jwt-signing", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJWTSecret(tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateJWTSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "gensched.yaml")

	content := `
scheduler:
  retry_on_failure: true
  max_retry: 5
  retry_wait_delay: 2s
  max_tasks_degree_of_parallelism: 2
database:
  path: "test.db"
logging:
  level: "debug"
tasks:
  file: "tasks.yaml"
  watch: true
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Scheduler.RetryOnFailure {
		t.Error("expected retry_on_failure true")
	}

	if cfg.Scheduler.MaxRetry != 5 {
		t.Errorf("expected max_retry 5, got %d", cfg.Scheduler.MaxRetry)
	}

	if cfg.Scheduler.RetryWaitDelay != 2*time.Second {
		t.Errorf("expected retry_wait_delay 2s, got %v", cfg.Scheduler.RetryWaitDelay)
	}

	if cfg.Scheduler.MaxTasksDegreeOfParallelism != 2 {
		t.Errorf("expected parallelism 2, got %d", cfg.Scheduler.MaxTasksDegreeOfParallelism)
	}

	if cfg.Scheduler.LateExecutionTolerance != DefaultLateExecutionTolerance {
		t.Errorf("expected default tolerance, got %v", cfg.Scheduler.LateExecutionTolerance)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("expected db path test.db, got %s", cfg.Database.Path)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}

	if cfg.Tasks.File != "tasks.yaml" || !cfg.Tasks.Watch {
		t.Errorf("unexpected tasks config: %+v", cfg.Tasks)
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("GENSCHED_SERVER_PORT", "7777")
	t.Setenv("GENSCHED_DATABASE_PATH", "env-test.db")
	t.Setenv("GENSCHED_SCHEDULER_MAX_RETRY", "7")

	cfg, err := Load(LoadOptions{ConfigFile: writeEmptyConfig(t)})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777 from env, got %d", cfg.Server.Port)
	}

	if cfg.Database.Path != "env-test.db" {
		t.Errorf("expected db path env-test.db from env, got %s", cfg.Database.Path)
	}

	if cfg.Scheduler.MaxRetry != 7 {
		t.Errorf("expected max_retry 7 from env, got %d", cfg.Scheduler.MaxRetry)
	}
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("TEST_ARCHIVE_BUCKET", "from-env")

	path := filepath.Join(t.TempDir(), "gensched.yaml")
	content := `
archive:
  enabled: true
  bucket: "${TEST_ARCHIVE_BUCKET}"
  region: "us-east-1"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Archive.Bucket != "from-env" {
		t.Errorf("expected bucket from env, got %s", cfg.Archive.Bucket)
	}
}

func TestServerAddress(t *testing.T) {
	cfg := &ServerConfig{Host: "localhost", Port: 8095}
	if addr := cfg.Address(); addr != "localhost:8095" {
		t.Errorf("expected localhost:8095, got %s", addr)
	}
}

func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gensched.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDescribe_MasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Server.Auth.JWTSecret = "this-is-a-very-long-secret-key-for-jwt-signing"
	cfg.Scheduler.RetryWaitDelay = 90 * time.Second

	var secret, delay *Setting
	settings := Describe(cfg)
	for i := range settings {
		switch settings[i].Key {
		case "server.auth.jwt_secret":
			secret = &settings[i]
		case "scheduler.retry_wait_delay":
			delay = &settings[i]
		}
	}

	if secret == nil || secret.Current != "***SET***" {
		t.Errorf("expected masked secret, got %+v", secret)
	}
	if delay == nil || delay.Current != "90s" || delay.Default != "15s" {
		t.Errorf("unexpected retry_wait_delay setting: %+v", delay)
	}
}
