package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gensched/internal/scheduler"
	"github.com/watzon/gensched/internal/store"
	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/trigger"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Warn().Err(err).Msg("Failed to encode response")
		}
	}
}

func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// StoreError maps scheduler and store errors to responses.
func StoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs trigger.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		JSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Task definition is invalid",
			Code:    "VALIDATION_FAILED",
			Details: verrs,
		})
	case errors.Is(err, task.ErrNotFound), errors.Is(err, store.ErrNotFound):
		NotFound(w, "Task not found")
	case errors.Is(err, task.ErrDuplicateName):
		Error(w, http.StatusConflict, "DUPLICATE_NAME", err.Error())
	case errors.Is(err, scheduler.ErrTaskInactive):
		Error(w, http.StatusConflict, "TASK_INACTIVE", err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		InternalError(w, "Internal server error")
	}
}
