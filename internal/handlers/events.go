package handlers

import (
	"fmt"
	"net/http"
)

// EventsHandler streams client events (PLAY_ADHAN, LOG_PRAYER, STOP_AUDIO)
// to connected tabs over SSE, backed by the redis pub/sub channel.
func (h *Handler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		h.writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	pubsub := h.Events.SubscribeEvents(r.Context())
	defer pubsub.Close()

	fmt.Fprintf(w, "data: %s\n\n", "connected")
	flusher.Flush()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
