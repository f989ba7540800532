package handler

import (
	"net/http"

	"strangerchat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict to the configured front-end origin once it is deployed separately.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades an authenticated request and hands the
// connection to the hub. The client then subscribes to topics by frame.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "participant", participantID(c), "error", err)
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, participantID(c))
	h.Hub.Register(client)
}
