package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nomis52/scriptdash/broadcast"
)

// DefaultKeepAlive is the interval between keep-alive comments on an idle
// event stream.
const DefaultKeepAlive = 15 * time.Second

// EventsHandler streams run events to the browser as Server-Sent Events.
type EventsHandler struct {
	logger    *slog.Logger
	source    EventSource
	keepAlive time.Duration
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(logger *slog.Logger, source EventSource) *EventsHandler {
	return &EventsHandler{
		logger:    logger,
		source:    source,
		keepAlive: DefaultKeepAlive,
	}
}

// ServeHTTP implements http.Handler. It returns when the client goes away or
// the event source is closed.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported"})
		return
	}

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sub := h.source.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	h.logger.Debug("event observer connected", "subscription", sub.ID)
	defer h.logger.Debug("event observer disconnected", "subscription", sub.ID, "dropped", sub.Dropped())

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes a single SSE event (event + data line).
func writeEvent(w http.ResponseWriter, ev broadcast.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}
