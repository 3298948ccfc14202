package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/gensched/internal/auth"
	"github.com/watzon/gensched/internal/config"
	"github.com/watzon/gensched/internal/scheduler"
	"github.com/watzon/gensched/internal/task"
)

// resetFlags restores every flag to its default; cobra commands are
// package globals and keep parsed values between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gensched.yaml")
	content := "database:\n  path: " + filepath.Join(dir, "gensched.db") + "\nlogging:\n  level: error\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const pipelineTasks = `
tasks:
  - name: load
    depends_on: extract
    job:
      type: log
      data:
        message: loading
    triggers:
      - kind: interval
        interval: 1h
  - name: extract
    job:
      type: log
      data:
        message: extracting
    triggers:
      - kind: daily
        time_of_day: "03:00"
`

func TestTaskCommands(t *testing.T) {
	cfgPath := writeConfig(t, "")
	tasksPath := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(tasksPath, []byte(pipelineTasks), 0o600))

	out, err := runCLI(t, "--config", cfgPath, "task", "apply", "-f", tasksPath)
	require.NoError(t, err)
	assert.Contains(t, out, "task/extract created")
	assert.Contains(t, out, "task/load created")

	out, err = runCLI(t, "--config", cfgPath, "task", "apply", "-f", tasksPath)
	require.NoError(t, err)
	assert.Contains(t, out, "task/extract configured")

	out, err = runCLI(t, "--config", cfgPath, "task", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "extract")
	assert.Contains(t, out, "load")

	out, err = runCLI(t, "--config", cfgPath, "task", "list", "--name", "ext*", "-o", "json")
	require.NoError(t, err)
	var listed []task.ScheduledTask
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "extract", listed[0].Name)

	out, err = runCLI(t, "--config", cfgPath, "task", "get", "load", "-o", "json")
	require.NoError(t, err)
	var load task.ScheduledTask
	require.NoError(t, json.Unmarshal([]byte(out), &load))
	assert.Equal(t, listed[0].ID, load.DependsOnTaskID)

	out, err = runCLI(t, "--config", cfgPath, "task", "disable", "load")
	require.NoError(t, err)
	assert.Contains(t, out, "task/load disabled")

	out, err = runCLI(t, "--config", cfgPath, "task", "list", "--active", "false", "-o", "json")
	require.NoError(t, err)
	listed = nil
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)

	_, err = runCLI(t, "--config", cfgPath, "task", "run", load.ID)
	assert.ErrorIs(t, err, scheduler.ErrTaskInactive)

	_, err = runCLI(t, "--config", cfgPath, "task", "enable", load.ID)
	require.NoError(t, err)

	out, err = runCLI(t, "--config", cfgPath, "task", "run", "load")
	require.NoError(t, err)
	assert.Contains(t, out, "task/load queued")

	out, err = runCLI(t, "--config", cfgPath, "history", "list", "extract")
	require.NoError(t, err)
	assert.Contains(t, out, "No executions recorded.")

	out, err = runCLI(t, "--config", cfgPath, "history", "prune", "--older-than", "720h")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 0 history records.")

	_, err = runCLI(t, "--config", cfgPath, "task", "delete", "load")
	require.NoError(t, err)

	_, err = runCLI(t, "--config", cfgPath, "task", "get", "load")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestTaskListRejectsBadFlags(t *testing.T) {
	cfgPath := writeConfig(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"status", []string{"--status", "Sleeping"}},
		{"active", []string{"--active", "maybe"}},
		{"output", []string{"-o", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfgPath, "task", "list"}, tt.args...)
			if _, err := runCLI(t, args...); err == nil {
				t.Errorf("task list %v: expected error", tt.args)
			}
		})
	}
}

func TestJobsCommand(t *testing.T) {
	out, err := runCLI(t, "--config", writeConfig(t, ""), "jobs")
	require.NoError(t, err)
	assert.Equal(t, "command\nhttp\nlog\n", out)
}

func TestConfigShow(t *testing.T) {
	cfgPath := writeConfig(t, "server:\n  auth:\n    jwt_secret: "+strings.Repeat("s", 32)+"\n")

	out, err := runCLI(t, "--config", cfgPath, "config", "show", "-o", "json")
	require.NoError(t, err)

	var settings []config.Setting
	require.NoError(t, json.Unmarshal([]byte(out), &settings))

	byKey := make(map[string]config.Setting, len(settings))
	for _, s := range settings {
		byKey[s.Key] = s
	}
	assert.Equal(t, "error", byKey["logging.level"].Current)
	assert.Equal(t, "***SET***", byKey["server.auth.jwt_secret"].Current)
	assert.NotContains(t, out, strings.Repeat("s", 32))
}

func TestTokenCommand(t *testing.T) {
	_, err := runCLI(t, "--config", writeConfig(t, ""), "token", "--subject", "ci")
	assert.Error(t, err, "no secret configured")

	secret := strings.Repeat("k", 32)
	cfgPath := writeConfig(t, "server:\n  auth:\n    jwt_secret: "+secret+"\n    issuer: gensched\n")

	out, err := runCLI(t, "--config", cfgPath, "token", "--subject", "ci", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := auth.NewTokenService(config.AuthConfig{JWTSecret: secret, Issuer: "gensched"}).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Subject)
}

func TestMigrateStatus(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := runCLI(t, "--config", cfgPath, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending migrations:")

	_, err = runCLI(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)

	out, err = runCLI(t, "--config", cfgPath, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending migrations.")
}

func TestPrintStructuredYAML(t *testing.T) {
	v := struct {
		Name    string `json:"name"`
		NextRun string `json:"next_run"`
		Flag    string `json:"flag"`
	}{Name: "backup", NextRun: "2026-01-01T00:00:00Z", Flag: "true"}

	var buf bytes.Buffer
	require.NoError(t, printStructured(&buf, outputYAML, v))

	out := buf.String()
	assert.Contains(t, out, "name: backup\n")
	assert.Contains(t, out, "next_run:")
	assert.Regexp(t, `flag: ["']true["']`, out, "string values that look like bools stay quoted")
	assert.Less(t, strings.Index(out, "name:"), strings.Index(out, "next_run:"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a much longer string", 10, "a much ..."},
		{"two\nlines", 20, "two lines"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
