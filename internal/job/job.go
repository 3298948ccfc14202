// Package job defines the unit of work a scheduled task runs and the
// registry that turns a serialized job back into something executable.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownJob   = errors.New("unknown job type")
	ErrEmptyPayload = errors.New("job payload is empty")
)

// Job is user code run by the scheduler. Execute must observe ctx and
// return promptly once it is done. The result, when non-nil, is stored
// JSON-encoded in the execution history.
type Job interface {
	Execute(ctx context.Context) (any, error)
}

// Func adapts a function to the Job interface.
type Func func(ctx context.Context) (any, error)

func (f Func) Execute(ctx context.Context) (any, error) {
	return f(ctx)
}

// Payload is the at-rest form of a job: a registered type name and its
// JSON-encoded parameters.
type Payload struct {
	Type string          `json:"type" yaml:"type"`
	Data json.RawMessage `json:"data,omitempty" yaml:"-"`
}

// NewPayload encodes v as the data of a job of the given type.
func NewPayload(typeName string, v any) (Payload, error) {
	p := Payload{Type: typeName}
	if v == nil {
		return p, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("encoding %s job: %w", typeName, err)
	}
	p.Data = data
	return p, nil
}

// IsZero reports whether no job is set.
func (p Payload) IsZero() bool {
	return p.Type == ""
}

// Marshal returns the JSON envelope stored alongside the task.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPayload parses a stored JSON envelope.
func UnmarshalPayload(b []byte) (Payload, error) {
	if len(b) == 0 {
		return Payload{}, ErrEmptyPayload
	}

	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("decoding job payload: %w", err)
	}
	return p, nil
}
