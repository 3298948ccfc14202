// Package requestctx carries per-request values through HTTP handlers.
package requestctx

import (
	"context"
	"time"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	requestTimeKey contextKey = "request_time"
	subjectKey     contextKey = "subject"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithRequestTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}

// WithSubject records the authenticated token subject.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func RequestTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// Subject returns the authenticated subject, or "" for anonymous requests.
func Subject(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub
	}
	return ""
}
