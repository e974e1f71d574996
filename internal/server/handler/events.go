package handler

import (
	"net/http"
	"strconv"

	"github.com/alanyoungcy/sniperbot/internal/eventlog"
)

// EventsHandler exposes the in-process event log.
type EventsHandler struct {
	log *eventlog.Log
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(log *eventlog.Log) *EventsHandler {
	return &EventsHandler{log: log}
}

// ListEvents returns recent events, newest first. With ?since=<seq> it
// returns every buffered event after seq, oldest first, so a poller can
// resume where it left off. ?kind= filters by event kind.
// GET /api/events
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1000)

	var events []eventlog.Event
	if v := r.URL.Query().Get("since"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		events = h.log.Since(seq)
		if len(events) > limit {
			events = events[:limit]
		}
	} else {
		events = h.log.Recent(limit)
	}

	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := events[:0:0]
		for _, e := range events {
			if string(e.Kind) == kind {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if events == nil {
		events = []eventlog.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"count":    len(events),
		"buffered": h.log.Len(),
		"capacity": h.log.Cap(),
		"dropped":  h.log.Dropped(),
	})
}
