// Package websocket exposes the progress hub to browser clients.
package websocket

import (
	"net/http"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/broadcast"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Route is the pattern the gateway is mounted on.
const Route = "GET /ws/jobs/{id}"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Gateway streams the events of one job to a websocket client, starting
// from the moment it subscribed. The connection is closed once the job's
// completion or failure event has been written.
type Gateway struct {
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewGateway(hub *broadcast.Hub, logger *zap.Logger) *Gateway {
	return &Gateway{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}
	defer conn.Close()

	sub := g.hub.Subscribe(jobID)
	defer g.hub.Unsubscribe(sub)

	log := g.logger.With(zap.String("job_id", jobID.String()))
	log.Debug("progress observer connected", zap.Int("observers", g.hub.Subscribers(jobID)))

	gone := make(chan struct{})
	go readUntilClosed(conn, gone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			log.Debug("progress observer disconnected")
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Debug("failed to write progress event", zap.Error(err))
				return
			}
			if event.IsTerminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.Kind)),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}

// readUntilClosed drains client frames so control messages are handled, and
// signals gone when the peer goes away.
func readUntilClosed(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
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
