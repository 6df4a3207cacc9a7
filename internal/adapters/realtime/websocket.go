package realtime

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// NewUpgrader builds the websocket upgrader. With no allowed origins the
// gorilla same-origin check applies.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	up := &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(allowedOrigins) > 0 {
		up.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		}
	}
	return up
}

// ServeWS upgrades the request and streams messages of ?channel= to the client
// until either side closes.
func (h *Hub) ServeWS(up *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Query().Get("channel")
		if !IsChannel(channel) {
			http.Error(w, "unknown channel", http.StatusBadRequest)
			return
		}

		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			slog.Warn("websocket_upgrade_failed", "error", err)
			return
		}
		defer conn.Close()

		msgs, cancel := h.Subscribe(channel)
		defer cancel()

		slog.Info("websocket_connected", "channel", channel, "remote_addr", r.RemoteAddr)
		closed := make(chan struct{})
		go readPump(conn, closed)

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				slog.Info("websocket_disconnected", "channel", channel, "remote_addr", r.RemoteAddr)
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					slog.Info("websocket_write_failed", "channel", channel, "error", err)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

// readPump drains client frames so control messages are processed; the
// client never sends data we act on.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
