package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the API listens on loopback by default
	},
}

// streamEvents sends every bus event to the client as JSON until either
// side goes away.
func (h *handlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.app.Bus.Subscribe(eventBuffer)
	defer unsubscribe()

	// Reads only detect disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Event stream client connected")
	for {
		select {
		case <-gone:
			log.Debug().Str("remote", r.RemoteAddr).Msg("Event stream client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("Event stream write failed")
				return
			}
		}
	}
}
