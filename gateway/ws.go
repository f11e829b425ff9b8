package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// statusStreamInterval is how often a status frame is pushed to each
// websocket subscriber.
const statusStreamInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleStatusStream upgrades the connection and pushes a status
// snapshot periodically until the client goes away or the request
// context is cancelled by server shutdown.
func (g *Gateway) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.requestsFailed.Add(1)
		g.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// Drain control frames so pings and the client's close handshake
	// are processed.
	go func() {
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusStreamInterval)
	defer ticker.Stop()

	for {
		frame := statusResponse{
			Components: g.sched.ComponentStatus(),
			Reports:    g.sched.Report(),
		}
		if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}

		select {
		case <-r.Context().Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				deadline)
			return
		case <-ticker.C:
		}
	}
}
