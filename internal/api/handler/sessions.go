package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sendRequest struct {
	Content string `json:"content"`
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// ActiveSession returns the caller's active session, or 204 when idle.
func (h *Handler) ActiveSession(c *gin.Context) {
	id := participantID(c)
	session, err := h.Hub.Sessions.GetActiveFor(c.Request.Context(), id)
	if err != nil {
		h.abort(c, err)
		return
	}
	if session == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, MatchResponse{Session: session, PartnerID: session.Partner(id)})
}

func (h *Handler) EndSession(c *gin.Context) {
	session, err := h.Hub.Sessions.End(c.Request.Context(), c.Param("id"), participantID(c))
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) History(c *gin.Context) {
	messages, err := h.Hub.Relay.History(c.Request.Context(), c.Param("id"), participantID(c))
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.Hub.Relay.Send(c.Request.Context(), c.Param("id"), participantID(c), req.Content)
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) Typing(c *gin.Context) {
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.Hub.Presence.SetTyping(c.Request.Context(), c.Param("id"), participantID(c), req.IsTyping); err != nil {
		h.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
