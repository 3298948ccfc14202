package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/watzon/gensched/internal/events"
	"github.com/watzon/gensched/internal/metrics"
)

const (
	eventStreamBuffer = 256
	eventWriteTimeout = 5 * time.Second
	eventPingInterval = 30 * time.Second
)

// EventsHandler streams scheduler events over a websocket.
type EventsHandler struct {
	bus *events.EventBus
}

func NewEventsHandler(bus *events.EventBus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// Stream sends every event as a JSON text message. ?types= takes a comma
// separated list of event types; ?task_id= keeps one task's events.
// Messages sent by the client are ignored.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var types []events.EventType
	if v := r.URL.Query().Get("types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			types = append(types, events.EventType(strings.TrimSpace(t)))
		}
	}
	taskID := r.URL.Query().Get("task_id")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to accept WebSocket connection")
		return
	}
	defer conn.CloseNow()

	ch, unsubscribe := h.bus.Stream(eventStreamBuffer, types...)
	metrics.UpdateEventStreams(h.bus.StreamCount())
	defer func() {
		unsubscribe()
		metrics.UpdateEventStreams(h.bus.StreamCount())
	}()

	// CloseRead handles control frames and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Event stream opened")

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Event stream closed")
			return
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case event, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if taskID != "" && event.TaskID != taskID {
				continue
			}
			if err := writeEvent(ctx, conn, event); err != nil {
				log.Debug().Err(err).Msg("Failed to write event")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
