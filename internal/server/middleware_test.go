package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/watzon/gensched/internal/requestctx"
)

func TestRecoveryMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	RecoveryMiddleware(handler).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["error"] != "internal server error" {
		t.Errorf("expected error message 'internal server error', got %v", response["error"])
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"propagated", "req-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = requestctx.RequestID(r.Context())
				if requestctx.RequestTime(r.Context()).IsZero() {
					t.Error("expected request time in context")
				}
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if seen == "" {
				t.Fatal("expected request id in context")
			}
			if tt.incoming != "" && seen != tt.incoming {
				t.Errorf("RequestID() = %q, want %q", seen, tt.incoming)
			}
			if got := w.Header().Get("X-Request-ID"); got != seen {
				t.Errorf("X-Request-ID header = %q, want %q", got, seen)
			}
		})
	}
}

func TestMaxBodySizeMiddleware(t *testing.T) {
	handler := MaxBodySizeMiddleware(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"small", "short", http.StatusOK},
		{"large", strings.Repeat("x", 100), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	w.WriteHeader(http.StatusTeapot)
	n, err := w.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if w.status != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.status, http.StatusTeapot)
	}
	if n != 5 || w.bytes != 5 {
		t.Errorf("bytes = %d, want 5", w.bytes)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	var pattern string
	mux.HandleFunc("GET /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		pattern = r.Pattern
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/abc", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if pattern != "GET /api/tasks/{id}" {
		t.Errorf("Pattern = %q, want %q", pattern, "GET /api/tasks/{id}")
	}
}
