package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// HistoryStatus is the outcome of one attempt sequence.
type HistoryStatus string

const (
	HistoryStatusNone     HistoryStatus = "None"
	HistoryStatusSuccess  HistoryStatus = "Success"
	HistoryStatusFailed   HistoryStatus = "Failed"
	HistoryStatusCanceled HistoryStatus = "Canceled"
)

// ParseHistoryStatus validates a history status name.
func ParseHistoryStatus(s string) (HistoryStatus, error) {
	switch HistoryStatus(s) {
	case HistoryStatusNone, HistoryStatusSuccess, HistoryStatusFailed, HistoryStatusCanceled:
		return HistoryStatus(s), nil
	}
	return "", fmt.Errorf("unknown history status: %s", s)
}

// History is the immutable record of one firing of a task. It is written
// once, after the attempt sequence finished.
type History struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	TriggerID string          `json:"trigger_id,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Status    HistoryStatus   `json:"status"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Duration is how long the sequence ran, zero while it has not ended.
func (h *History) Duration() time.Duration {
	if h.EndedAt == nil {
		return 0
	}
	return h.EndedAt.Sub(h.StartedAt)
}

// Finish closes the record. It has no effect on a record that already ended.
func (h *History) Finish(at time.Time, status HistoryStatus, err error) {
	if h.EndedAt != nil {
		return
	}
	at = at.UTC()
	h.EndedAt = &at
	h.Status = status
	if err != nil {
		h.Error = err.Error()
	}
}

// SetResult JSON-encodes a job result onto the record.
func (h *History) SetResult(v any) error {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding job result: %w", err)
	}
	h.Result = b
	return nil
}
