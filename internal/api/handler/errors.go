package handler

import (
	"errors"
	"net/http"

	"strangerchat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, chathub.ErrEmptyMessage),
		errors.Is(err, chathub.ErrMessageTooLong),
		errors.Is(err, chathub.ErrInvalidParticipant),
		errors.Is(err, chathub.ErrSelfMatch):
		return http.StatusBadRequest
	case errors.Is(err, chathub.ErrNotParticipant),
		errors.Is(err, chathub.ErrForbiddenTopic):
		return http.StatusForbidden
	case errors.Is(err, chathub.ErrSessionNotFound),
		errors.Is(err, chathub.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, chathub.ErrAlreadyMatched):
		return http.StatusConflict
	case errors.Is(err, chathub.ErrSessionEnded):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

// abort writes err with its mapped status. Unmapped errors are logged and
// reported without detail.
func (h *Handler) abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "path", c.FullPath(), "participant", participantID(c), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
