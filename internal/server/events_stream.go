package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/events"
)

// streamedEventTypes is every event class pushed to connected clients.
var streamedEventTypes = []events.EventType{
	events.JobStarted,
	events.JobProgress,
	events.JobCompleted,
	events.JobFailed,
	events.JobAborted,
	events.HistoryImported,
}

// EventsStreamHandler handles Server-Sent Events (SSE) streaming of job
// lifecycle and progress events.
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	typesFilter := r.URL.Query().Get("types")
	allowedTypes := parseTypesFilter(typesFilter)

	h.log.Info().
		Str("types_filter", typesFilter).
		Msg("Client connected to event stream")

	// Buffered channel per connection; the bus handler never blocks
	eventChan := make(chan *events.Event, 100)
	unsubscribe := subscribeStream(h.eventBus, allowedTypes, eventChan, h.log)
	defer unsubscribe()

	done := r.Context().Done()

	// Send initial connection message
	fmt.Fprintf(w, "data: %s\n\n", encodeStreamEvent(h.log, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}))
	flusher.Flush()

	// Heartbeat ticker to keep connection alive
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", encodeStreamEvent(h.log, map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			}))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", encodeStreamEvent(h.log, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// parseTypesFilter turns the comma-separated ?types= parameter into a set.
// Nil means no filter, stream everything.
func parseTypesFilter(raw string) map[events.EventType]bool {
	if raw == "" {
		return nil
	}
	allowed := make(map[events.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		allowed[events.EventType(strings.TrimSpace(t))] = true
	}
	return allowed
}

// subscribeStream registers a drop-on-full forwarder for every streamed (or
// filtered) event type and returns a function removing all subscriptions.
func subscribeStream(bus *events.Bus, allowed map[events.EventType]bool, eventChan chan *events.Event, log zerolog.Logger) func() {
	forward := func(event *events.Event) {
		if allowed != nil && !allowed[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	var cancels []func()
	if allowed == nil {
		for _, eventType := range streamedEventTypes {
			cancels = append(cancels, bus.Subscribe(eventType, forward))
		}
	} else {
		for eventType := range allowed {
			cancels = append(cancels, bus.Subscribe(eventType, forward))
		}
	}

	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// encodeStreamEvent encodes an event map to a JSON string.
func encodeStreamEvent(log zerolog.Logger, event map[string]interface{}) string {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
