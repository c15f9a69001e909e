package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/hub"
)

// AuthSurfaceHandler bridges the login page to a pending handshake attempt.
// The page connects to /ws/auth?attempt=<id> and sends one terminal
// AUTH_SUCCESS or AUTH_ERROR message once the identity provider resolves.
type AuthSurfaceHandler struct {
	Hub *hub.Hub
	Log *slog.Logger
}

type surfaceAck struct {
	Type string `json:"type"`
}

// Local page only; the browser enforces same-origin before we see the request.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *AuthSurfaceHandler) Serve(c *gin.Context) {
	attemptID := c.Query("attempt")
	if attemptID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing attempt ID"})
		return
	}
	attempt, ok := h.Hub.Get(attemptID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown or expired attempt"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	attempt.Connect()
	defer func() {
		attempt.Disconnect()
		_ = ws.Close()
	}()

	ws.SetReadLimit(64 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() {
		closeOnce.Do(func() {
			close(done)
		})
	}
	defer closeDone()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg hub.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			out, _ := json.Marshal(surfaceAck{Type: "pong"})
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.TextMessage, out)
		case hub.MessageAuthSuccess, hub.MessageAuthError:
			accepted := attempt.Deliver(msg)
			if !accepted {
				h.Log.Debug("duplicate terminal signal dropped", "attempt", attemptID, "type", msg.Type)
			}
			out, _ := json.Marshal(surfaceAck{Type: "ACK"})
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.TextMessage, out)
			return
		}
	}
}
