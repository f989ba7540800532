// Package handler exposes the chat hub over gin HTTP routes and a WebSocket.
package handler

import (
	"log/slog"

	"strangerchat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

// Handler holds the hub and the token issuer shared by every route.
type Handler struct {
	Hub    *chathub.ManagerService
	Tokens *TokenIssuer
	Logger *slog.Logger
}

func NewHandler(hub *chathub.ManagerService, tokens *TokenIssuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Hub: hub, Tokens: tokens, Logger: logger}
}

// RegisterRoutes mounts the API on r. Everything except registration
// requires a bearer token.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/participants", h.CreateParticipant)

	auth := r.Group("/", h.RequireParticipant())
	auth.GET("/ws", h.ServeWebSocket)

	api := auth.Group("/api")
	api.POST("/heartbeat", h.Heartbeat)
	api.POST("/queue", h.Enqueue)
	api.DELETE("/queue", h.Dequeue)
	api.POST("/match", h.Match)
	api.GET("/sessions/active", h.ActiveSession)
	api.POST("/sessions/:id/end", h.EndSession)
	api.GET("/sessions/:id/messages", h.History)
	api.POST("/sessions/:id/messages", h.SendMessage)
	api.POST("/sessions/:id/typing", h.Typing)
}
