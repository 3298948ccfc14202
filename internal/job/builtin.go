package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	HTTPJobType    = "http"
	LogJobType     = "log"
	CommandJobType = "command"
)

// maxCapturedOutput bounds how much response body or command output is kept
// in a job result.
const maxCapturedOutput = 4096

// HTTPJob calls an HTTP endpoint.
type HTTPJob struct {
	Method         string            `json:"method,omitempty"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	ExpectedStatus int               `json:"expected_status,omitempty"`
	Timeout        string            `json:"timeout,omitempty"` // Go duration, e.g. "10s"
}

// HTTPResult is returned by a successful HTTPJob.
type HTTPResult struct {
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
}

func (j *HTTPJob) Execute(ctx context.Context) (any, error) {
	if j.URL == "" {
		return nil, errors.New("http job: url is required")
	}

	method := j.Method
	if method == "" {
		method = http.MethodGet
	}

	if j.Timeout != "" {
		timeout, err := time.ParseDuration(j.Timeout)
		if err != nil {
			return nil, fmt.Errorf("http job: invalid timeout: %w", err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if j.Body != "" {
		body = strings.NewReader(j.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, j.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range j.Headers {
		req.Header.Set(k, v)
	}
	if j.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedOutput))
	result := &HTTPResult{Status: resp.StatusCode, Body: string(respBody)}

	if j.ExpectedStatus != 0 {
		if resp.StatusCode != j.ExpectedStatus {
			return nil, fmt.Errorf("unexpected status %d, want %d", resp.StatusCode, j.ExpectedStatus)
		}
	} else if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return result, nil
}

// LogJob writes a message to the scheduler log.
type LogJob struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}

func (j *LogJob) Execute(ctx context.Context) (any, error) {
	level, err := zerolog.ParseLevel(j.Level)
	if err != nil || j.Level == "" {
		level = zerolog.InfoLevel
	}
	log.WithLevel(level).Str("job", LogJobType).Msg(j.Message)
	return nil, nil
}

// CommandJob runs an executable and captures its combined output.
type CommandJob struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Dir     string            `json:"dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// CommandResult is returned by a successful CommandJob.
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
}

func (j *CommandJob) Execute(ctx context.Context) (any, error) {
	if j.Command == "" {
		return nil, errors.New("command job: command is required")
	}

	cmd := exec.CommandContext(ctx, j.Command, j.Args...)
	cmd.Dir = j.Dir
	if len(j.Env) > 0 {
		cmd.Env = cmd.Environ()
		for k, v := range j.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := out.String()
	if len(output) > maxCapturedOutput {
		output = output[len(output)-maxCapturedOutput:]
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("command exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(output))
		}
		return nil, fmt.Errorf("running command: %w", err)
	}

	return &CommandResult{ExitCode: 0, Output: output}, nil
}
