package chathub

import (
	"errors"

	"strangerchat/backend/internal/storage"
)

// Re-exported so front-ends can match outcomes without importing storage.
var (
	ErrNoPartnerAvailable  = storage.ErrNoPartnerAvailable
	ErrAlreadyMatched      = storage.ErrAlreadyMatched
	ErrDuplicateSession    = storage.ErrDuplicateSession
	ErrNotQueued           = storage.ErrNotQueued
	ErrSelfMatch           = storage.ErrSelfMatch
	ErrSessionNotFound     = storage.ErrSessionNotFound
	ErrSessionEnded        = storage.ErrSessionEnded
	ErrNotParticipant      = storage.ErrNotParticipant
	ErrParticipantNotFound = storage.ErrParticipantNotFound
)

var (
	ErrEmptyMessage       = errors.New("message content is empty")
	ErrMessageTooLong     = errors.New("message content is too long")
	ErrInvalidParticipant = errors.New("participant id is required")
	ErrForbiddenTopic     = errors.New("topic is not available to this participant")
)
