package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/events"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// UI processes connect over loopback; origin is not meaningful there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterWS mounts GET /ws, a stream of store change notifications for UI
// processes. Each connection gets its own subscription; a subscriber that
// falls behind is dropped and should reconnect and reload.
func RegisterWS(rg *gin.RouterGroup, bus *events.Bus, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "ws")
	rg.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		changes, cancel := bus.Subscribe()
		log.Debug("ui stream opened", "remote", c.Request.RemoteAddr)

		go streamReadPump(conn, cancel)
		streamWritePump(conn, changes)
		cancel()
		log.Debug("ui stream closed", "remote", c.Request.RemoteAddr)
	})
}

// streamReadPump only services control frames; it cancels the
// subscription when the peer goes away.
func streamReadPump(conn *websocket.Conn, cancel func()) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func streamWritePump(conn *websocket.Conn, changes <-chan events.Change) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case ch, ok := <-changes:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(ch)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
