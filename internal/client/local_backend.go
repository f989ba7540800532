package client

import (
	"context"
	"errors"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
)

// LocalBackend drives the hub in-process, for single-binary front-ends and tests.
type LocalBackend struct {
	hub *chathub.ManagerService
	id  string
}

var _ Backend = (*LocalBackend)(nil)

func NewLocalBackend(hub *chathub.ManagerService) *LocalBackend {
	return &LocalBackend{hub: hub}
}

func (b *LocalBackend) Register(ctx context.Context) (Identity, error) {
	p, err := b.hub.Storage.CreateParticipant(ctx)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ParticipantID: p.ID}, nil
}

func (b *LocalBackend) Use(identity Identity) {
	b.id = identity.ParticipantID
}

func (b *LocalBackend) Heartbeat(ctx context.Context) error {
	return b.hub.Presence.Heartbeat(ctx, b.id)
}

func (b *LocalBackend) Enqueue(ctx context.Context) error {
	_, err := b.hub.Queue.Enqueue(ctx, b.id)
	return err
}

func (b *LocalBackend) Dequeue(ctx context.Context) error {
	return b.hub.Queue.Dequeue(ctx, b.id)
}

func (b *LocalBackend) Match(ctx context.Context) (*Pairing, error) {
	match, err := b.hub.Matcher.Attempt(ctx, b.id)
	if match == nil {
		return nil, err
	}
	return &Pairing{Session: match.Session, PartnerID: match.PartnerID}, err
}

func (b *LocalBackend) ActiveSession(ctx context.Context) (*Pairing, error) {
	session, err := b.hub.Sessions.GetActiveFor(ctx, b.id)
	if err != nil || session == nil {
		return nil, err
	}
	return &Pairing{Session: session, PartnerID: session.Partner(b.id)}, nil
}

func (b *LocalBackend) EndSession(ctx context.Context, sessionID string) error {
	_, err := b.hub.Sessions.End(ctx, sessionID, b.id)
	return err
}

func (b *LocalBackend) Send(ctx context.Context, sessionID, content string) (*models.Message, error) {
	return b.hub.Relay.Send(ctx, sessionID, b.id, content)
}

func (b *LocalBackend) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	return b.hub.Relay.History(ctx, sessionID, b.id)
}

func (b *LocalBackend) SetTyping(ctx context.Context, sessionID string, isTyping bool) error {
	return b.hub.Presence.SetTyping(ctx, sessionID, b.id, isTyping)
}

// LocalNotifier subscribes straight on the hub's broker after the same
// topic check the WebSocket endpoint applies.
type LocalNotifier struct {
	hub *chathub.ManagerService
	id  string
}

var _ Notifier = (*LocalNotifier)(nil)

func NewLocalNotifier(hub *chathub.ManagerService, participantID string) *LocalNotifier {
	return &LocalNotifier{hub: hub, id: participantID}
}

func (n *LocalNotifier) Subscribe(ctx context.Context, topic string) (pubsub.Subscription, error) {
	if err := n.hub.AuthorizeTopic(ctx, n.id, topic); err != nil {
		return nil, err
	}
	sub, err := n.hub.Broker.Subscribe(ctx, topic)
	if errors.Is(err, pubsub.ErrClosed) {
		return nil, errors.Join(ErrDeliveryFailure, err)
	}
	return sub, err
}

// Reconnected never fires; the broker is in-process.
func (n *LocalNotifier) Reconnected() <-chan struct{} {
	return nil
}

// Close is a no-op; the broker belongs to the hub.
func (n *LocalNotifier) Close() error {
	return nil
}
