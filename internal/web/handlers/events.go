package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// EventsSSE streams live events as server-sent events
func (h *Handlers) EventsSSE(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		h.jsonError(w, "Live events are disabled", http.StatusServiceUnavailable)
		return
	}
	h.broker.ServeHTTP(w, r)
}

// EventsWebSocket streams live events over a websocket. Each broker message
// is sent as one text frame holding the event JSON.
func (h *Handlers) EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		h.jsonError(w, "Live events are disabled", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	client, unsubscribe := h.broker.Subscribe()
	defer unsubscribe()

	log.Debug().Str("client_id", client.ID).Msg("Websocket client connected")

	// The read loop only handles control frames and notices a closed peer
	closed := make(chan struct{})
	pongWait := h.pingInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case msg, ok := <-client.Messages:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				log.Debug().Err(err).Str("client_id", client.ID).Msg("Websocket write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
