package client

import (
	"context"

	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
)

// Pairing is a session seen from one participant.
type Pairing struct {
	Session   *models.Session
	PartnerID string
}

// Backend is the server API as seen by one participant. Use must be called
// with the participant's identity before any other call except Register.
type Backend interface {
	Registrar
	Use(identity Identity)

	Heartbeat(ctx context.Context) error
	Enqueue(ctx context.Context) error
	Dequeue(ctx context.Context) error
	// Match runs one pairing attempt. A passive pairing is reported as
	// ErrAlreadyMatched together with the pairing.
	Match(ctx context.Context) (*Pairing, error)
	// ActiveSession returns nil when the participant is not chatting.
	ActiveSession(ctx context.Context) (*Pairing, error)
	EndSession(ctx context.Context, sessionID string) error
	Send(ctx context.Context, sessionID, content string) (*models.Message, error)
	History(ctx context.Context, sessionID string) ([]models.Message, error)
	SetTyping(ctx context.Context, sessionID string, isTyping bool) error
}

// Notifier delivers push events for topics the participant may read.
type Notifier interface {
	Subscribe(ctx context.Context, topic string) (pubsub.Subscription, error)
	// Reconnected fires after the channel came back from an outage. Events
	// published while it was down are lost.
	Reconnected() <-chan struct{}
	Close() error
}
