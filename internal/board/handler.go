package board

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is handled by the CORS middleware upstream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeBoard upgrades GET /events/{eventID}/board to a websocket and streams
// queue changes for the event. The feed is push-only; inbound messages are
// discarded.
func (h *Hub) ServeBoard(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("board upgrade failed", "event_id", eventID, "error", err)
		return
	}

	sub := h.Subscribe(eventID)
	defer h.Unsubscribe(sub)
	defer conn.Close()

	// Reader goroutine: consume and discard inbound frames so pings are
	// answered and closes are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case change, ok := <-sub.Changes():
			if !ok {
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
