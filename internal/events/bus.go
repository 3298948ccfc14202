// Package events broadcasts scheduler activity to in-process subscribers
// such as the websocket stream and metrics hooks.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event *Event) error

// EventBus fans events out to handlers and streams. Publishing never blocks
// on a slow stream: a full stream buffer drops the event for that stream.
type EventBus struct {
	subscribers map[string][]EventHandler // key: "type:task_id"
	streams     map[uint64]*stream
	nextStream  uint64
	mu          sync.RWMutex
	now         func() time.Time
}

type stream struct {
	ch      chan *Event
	types   map[EventType]bool
	dropped int
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		streams:     make(map[uint64]*stream),
		now:         time.Now,
	}
}

// Publish stamps the event and delivers it to matching handlers and streams.
// Handler errors are logged and returned joined with the first one.
func (bus *EventBus) Publish(ctx context.Context, event *Event) error {
	if bus == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = bus.now().UTC()
	}

	handlers := bus.findHandlers(event)
	bus.broadcast(event)

	var handlerErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID).
				Str("type", string(event.Type)).
				Msg("Event handler failed")
			if handlerErr == nil {
				handlerErr = err
			}
		}
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("task_id", event.TaskID).
		Int("handlers", len(handlers)).
		Msg("Event published")

	return handlerErr
}

// Subscribe registers a handler for events of the given type concerning
// taskID. Use "*" for either to match all.
func (bus *EventBus) Subscribe(eventType EventType, taskID string, handler EventHandler) {
	key := bus.makeKey(eventType, taskID)

	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.subscribers[key] = append(bus.subscribers[key], handler)

	log.Debug().
		Str("type", string(eventType)).
		Str("task_id", taskID).
		Msg("Handler subscribed")
}

// Stream returns a buffered channel receiving events of the given types
// (all types when none are given) and a function that closes it.
func (bus *EventBus) Stream(buffer int, types ...EventType) (<-chan *Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	s := &stream{ch: make(chan *Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	bus.mu.Lock()
	id := bus.nextStream
	bus.nextStream++
	bus.streams[id] = s
	bus.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			bus.mu.Lock()
			delete(bus.streams, id)
			bus.mu.Unlock()
			close(s.ch)
		})
	}
}

// StreamCount returns the number of open streams.
func (bus *EventBus) StreamCount() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.streams)
}

func (bus *EventBus) broadcast(event *Event) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for _, s := range bus.streams {
		if s.types != nil && !s.types[event.Type] {
			continue
		}
		select {
		case s.ch <- event:
		default:
			s.dropped++
			log.Debug().
				Str("event_id", event.ID).
				Int("dropped", s.dropped).
				Msg("Event stream full, dropping event")
		}
	}
}

// findHandlers finds all handlers matching the event.
func (bus *EventBus) findHandlers(event *Event) []EventHandler {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	var handlers []EventHandler
	for _, key := range []string{
		bus.makeKey(event.Type, event.TaskID),
		bus.makeKey(event.Type, "*"),
		bus.makeKey("*", event.TaskID),
		bus.makeKey("*", "*"),
	} {
		if h, ok := bus.subscribers[key]; ok {
			handlers = append(handlers, h...)
		}
	}
	return handlers
}

// makeKey creates a subscription key.
func (bus *EventBus) makeKey(eventType EventType, taskID string) string {
	return fmt.Sprintf("%s:%s", eventType, taskID)
}
