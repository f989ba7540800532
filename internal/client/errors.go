// Package client is the participant-side SDK: it keeps the anonymous
// identity, throttles sensitive actions, reconciles the optimistic
// transcript and drives a chat through a Backend and a Notifier.
package client

import (
	"errors"

	"strangerchat/backend/internal/chathub"
)

var (
	ErrNoPartnerAvailable = chathub.ErrNoPartnerAvailable
	ErrAlreadyMatched     = chathub.ErrAlreadyMatched
	ErrNotQueued          = chathub.ErrNotQueued
	ErrSessionEnded       = chathub.ErrSessionEnded
	ErrSessionNotFound    = chathub.ErrSessionNotFound
	ErrNotParticipant     = chathub.ErrNotParticipant
	ErrEmptyMessage       = chathub.ErrEmptyMessage

	// ErrDeliveryFailure marks transient transport failures. Callers may retry.
	ErrDeliveryFailure = errors.New("delivery failure")
	ErrInvalidRequest  = errors.New("request rejected")
	ErrUnauthorized    = errors.New("participant token rejected")
	ErrNotChatting     = errors.New("no active chat")
	ErrClosed          = errors.New("chat closed")
)
