package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/health", "/health"},
		{"GET /api/tasks/{id}", "/api/tasks/:id"},
		{"POST /api/tasks/{id}/run", "/api/tasks/:id/run"},
		{"/files/{path...}", "/files/:path"},
	}

	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHandlerExposesSchedulerMetrics(t *testing.T) {
	RecordExecution("log", "Success", 2, 150*time.Millisecond)
	RecordPoll("ok", 10*time.Millisecond)
	AddMissfires(1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"gensched_executions_total",
		"gensched_execution_attempts",
		"gensched_poll_cycles_total",
		"gensched_trigger_missfires_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
