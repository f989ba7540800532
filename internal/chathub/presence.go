package chathub

import (
	"context"
	"log/slog"
	"time"

	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage"
)

// Presence handles ephemeral typing signals and liveness heartbeats.
type Presence struct {
	storage storage.Storage
	broker  pubsub.Broker
	logger  *slog.Logger
	now     func() time.Time
}

func NewPresence(s storage.Storage, b pubsub.Broker, logger *slog.Logger) *Presence {
	return &Presence{storage: s, broker: b, logger: logger, now: time.Now}
}

// SetTyping broadcasts the participant's typing state to the session.
func (p *Presence) SetTyping(ctx context.Context, sessionID, participantID string, isTyping bool) error {
	session, err := p.storage.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Has(participantID) {
		return ErrNotParticipant
	}
	if !session.IsActive() {
		return ErrSessionEnded
	}
	ev := models.Event{
		Type: models.EventTyping,
		Typing: &models.TypingSignal{
			SessionID:     sessionID,
			ParticipantID: participantID,
			IsTyping:      isTyping,
		},
	}
	return p.broker.Publish(ctx, models.SessionTypingTopic(sessionID), ev)
}

// Heartbeat records that the participant is still connected.
func (p *Presence) Heartbeat(ctx context.Context, participantID string) error {
	if participantID == "" {
		return ErrInvalidParticipant
	}
	return p.storage.TouchParticipant(ctx, participantID, p.now().UTC())
}

// LastSeen returns the participant's latest heartbeat time.
func (p *Presence) LastSeen(ctx context.Context, participantID string) (time.Time, error) {
	participant, err := p.storage.GetParticipant(ctx, participantID)
	if err != nil {
		return time.Time{}, err
	}
	return participant.LastSeen, nil
}
