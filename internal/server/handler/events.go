package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

const maxEventBatch = 500

// StreamReader reads the durable event stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler lets clients catch up on position events they missed while
// disconnected from /ws.
type EventsHandler struct {
	stream StreamReader
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(stream StreamReader, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{stream: stream, logger: logHandler(logger, "events")}
}

type eventEnvelope struct {
	ID    string               `json:"id"`
	Event domain.PositionEvent `json:"event"`
}

// ListEvents returns up to count events recorded after the stream ID in
// ?after (from the start when omitted).
// GET /api/events?after=...&count=100
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	count := 100
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = min(n, maxEventBatch)
	}

	msgs, err := h.stream.StreamRead(r.Context(), domain.StreamPositions, q.Get("after"), count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read event stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	events := make([]eventEnvelope, 0, len(msgs))
	for _, m := range msgs {
		var evt domain.PositionEvent
		if err := json.Unmarshal(m.Payload, &evt); err != nil {
			continue
		}
		events = append(events, eventEnvelope{ID: m.ID, Event: evt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
