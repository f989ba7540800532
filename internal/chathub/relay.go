package chathub

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage"
)

// Relay persists chat messages and pushes them to the session topic.
type Relay struct {
	storage storage.Storage
	broker  pubsub.Broker
	logger  *slog.Logger
}

func NewRelay(s storage.Storage, b pubsub.Broker, logger *slog.Logger) *Relay {
	return &Relay{storage: s, broker: b, logger: logger}
}

// Send stores the trimmed content and publishes it. A message that was
// stored but not published is still returned without error; the partner
// picks it up from History.
func (r *Relay) Send(ctx context.Context, sessionID, senderID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > config.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	msg, err := r.storage.AppendMessage(ctx, sessionID, senderID, content)
	if err != nil {
		return nil, err
	}

	ev := models.Event{Type: models.EventMessage, Message: msg}
	if err := r.broker.Publish(ctx, models.SessionMessagesTopic(sessionID), ev); err != nil {
		r.logger.Warn("message not delivered", "session", sessionID, "message", msg.ID, "error", err)
	}
	return msg, nil
}

// History returns the session's messages in creation order to a participant.
func (r *Relay) History(ctx context.Context, sessionID, participantID string) ([]models.Message, error) {
	session, err := r.storage.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Has(participantID) {
		return nil, ErrNotParticipant
	}
	return r.storage.Messages(ctx, sessionID)
}
