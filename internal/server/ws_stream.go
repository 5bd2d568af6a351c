package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/crucible/internal/events"
)

const wsWriteTimeout = 10 * time.Second

// WSStreamHandler pushes the same job events as the SSE stream over a
// WebSocket, for clients that prefer a duplex transport.
type WSStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewWSStreamHandler creates a new WebSocket stream handler.
func NewWSStreamHandler(eventBus *events.Bus, log zerolog.Logger) *WSStreamHandler {
	return &WSStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "ws_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws requests.
func (h *WSStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	typesFilter := r.URL.Query().Get("types")
	allowedTypes := parseTypesFilter(typesFilter)

	h.log.Info().
		Str("types_filter", typesFilter).
		Msg("Client connected to WebSocket stream")

	// The server only writes. CloseRead keeps processing control frames
	// and cancels the context when the client goes away.
	ctx := conn.CloseRead(r.Context())

	eventChan := make(chan *events.Event, 100)
	unsubscribe := subscribeStream(h.eventBus, allowedTypes, eventChan, h.log)
	defer unsubscribe()

	if err := h.writeFrame(ctx, conn, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			h.log.Info().Msg("Client disconnected from WebSocket stream")
			return

		case event := <-eventChan:
			if err := h.writeFrame(ctx, conn, map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			}); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := h.writeFrame(ctx, conn, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}
	}
}

// writeFrame sends one JSON text frame with a write deadline.
func (h *WSStreamHandler) writeFrame(ctx context.Context, conn *websocket.Conn, payload map[string]interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	err := conn.Write(writeCtx, websocket.MessageText, []byte(encodeStreamEvent(h.log, payload)))
	if err != nil {
		closeStatus := websocket.CloseStatus(err)
		if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
			h.log.Debug().Msg("WebSocket closed by client")
		} else {
			h.log.Warn().Err(err).Msg("WebSocket write failed")
		}
	}
	return err
}
