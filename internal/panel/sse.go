package panel

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rendis/diagramflow/internal/streaming"
)

// snapshotEvent is the event name of the initial state frame.
const snapshotEvent = "snapshot"

// handleSSEGlobal streams all view events to the client via Server-Sent Events.
func (s *PanelServer) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{})
}

// handleSSEView streams events for a specific view. If the view is open its
// current state is sent first.
func (s *PanelServer) handleSSEView(w http.ResponseWriter, r *http.Request) {
	viewID := r.PathValue("id")
	s.serveSSE(w, r, streaming.EventFilter{ViewID: viewID})
}

// serveSSE is the common SSE implementation.
func (s *PanelServer) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	w.WriteHeader(http.StatusOK)
	if filter.ViewID != "" {
		if c, err := s.deps.Registry.Get(filter.ViewID); err == nil {
			state := c.State()
			writeSSE(w, snapshotEvent, streaming.StateEvent{
				ViewID:    filter.ViewID,
				Token:     state.Token,
				EventType: snapshotEvent,
				State:     state,
			})
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event.EventType, event)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, name string, event streaming.StateEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
