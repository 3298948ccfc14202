package events

import "time"

// EventType represents the type of event.
type EventType string

const (
	// EventTypeTaskQueued is published when the poll loop hands a task to the dispatch queue.
	EventTypeTaskQueued EventType = "task.queued"
	// EventTypeExecutionStarted is published when a task is marked Running.
	EventTypeExecutionStarted EventType = "execution.started"
	// EventTypeExecutionFinished is published once per attempt sequence, with its history record.
	EventTypeExecutionFinished EventType = "execution.finished"
	// EventTypeTaskStuck is published when stuck Running tasks are reset to Ready.
	EventTypeTaskStuck EventType = "task.stuck"
	// EventTypeTriggerMissfire is published when triggers are flagged as missed.
	EventTypeTriggerMissfire EventType = "trigger.missfire"
	// EventTypeTaskDeleted is published when a task is removed by auto-delete or cleanup.
	EventTypeTaskDeleted EventType = "task.deleted"
)

// Event is a notification about scheduler activity.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	TaskName  string    `json:"task_name,omitempty"`
	TriggerID string    `json:"trigger_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
