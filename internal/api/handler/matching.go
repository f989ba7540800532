package handler

import (
	"errors"
	"net/http"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Match attempt statuses reported with 202 Accepted.
const (
	StatusWaiting   = "waiting"
	StatusNotQueued = "not_queued"
)

// MatchResponse is returned for a successful or passive pairing.
type MatchResponse struct {
	Session   *models.Session `json:"session"`
	PartnerID string          `json:"partner_id"`
	Duplicate bool            `json:"duplicate,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (h *Handler) Heartbeat(c *gin.Context) {
	if err := h.Hub.Presence.Heartbeat(c.Request.Context(), participantID(c)); err != nil {
		h.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Enqueue(c *gin.Context) {
	entry, err := h.Hub.Queue.Enqueue(c.Request.Context(), participantID(c))
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, entry)
}

func (h *Handler) Dequeue(c *gin.Context) {
	if err := h.Hub.Queue.Dequeue(c.Request.Context(), participantID(c)); err != nil {
		h.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Match runs one pairing attempt. The strategy query parameter overrides
// the server default for this attempt.
func (h *Handler) Match(c *gin.Context) {
	ctx := c.Request.Context()
	id := participantID(c)

	var (
		match *chathub.Match
		err   error
	)
	switch c.Query("strategy") {
	case "":
		match, err = h.Hub.Matcher.Attempt(ctx, id)
	case config.MatchAtomic:
		match, err = h.Hub.Matcher.Match(ctx, id)
	case config.MatchFallback:
		match, err = h.Hub.Matcher.MatchFallback(ctx, id)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown strategy"})
		return
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, MatchResponse{Session: match.Session, PartnerID: match.PartnerID, Duplicate: match.Duplicate})
	case errors.Is(err, chathub.ErrAlreadyMatched) && match != nil:
		c.JSON(http.StatusConflict, MatchResponse{Session: match.Session, PartnerID: match.PartnerID, Error: err.Error()})
	case errors.Is(err, chathub.ErrNotQueued):
		c.JSON(http.StatusAccepted, gin.H{"status": StatusNotQueued})
	case errors.Is(err, chathub.ErrNoPartnerAvailable):
		c.JSON(http.StatusAccepted, gin.H{"status": StatusWaiting})
	default:
		h.abort(c, err)
	}
}
