package chathub

import (
	"context"
	"errors"
	"log/slog"

	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage"
)

// SessionRegistry owns session lifecycle and its notifications.
type SessionRegistry struct {
	storage storage.Storage
	broker  pubsub.Broker
	logger  *slog.Logger
}

func NewSessionRegistry(s storage.Storage, b pubsub.Broker, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{storage: s, broker: b, logger: logger}
}

// Create pairs a and b. When the pair already shares an active session that
// session is returned together with ErrDuplicateSession and no new
// notification is sent.
func (r *SessionRegistry) Create(ctx context.Context, a, b string) (*models.Session, error) {
	if a == "" || b == "" {
		return nil, ErrInvalidParticipant
	}
	session, err := r.storage.CreateSession(ctx, a, b)
	if errors.Is(err, ErrDuplicateSession) {
		return session, err
	}
	if err != nil {
		return nil, err
	}
	r.announce(ctx, session)
	return session, nil
}

// announce tells both participants about a freshly created session.
func (r *SessionRegistry) announce(ctx context.Context, session *models.Session) {
	ev := models.Event{Type: models.EventSessionCreated, Session: session}
	for _, id := range []string{session.ParticipantA, session.ParticipantB} {
		if err := r.broker.Publish(ctx, models.ParticipantSessionsTopic(id), ev); err != nil {
			r.logger.Warn("session_created not delivered", "session", session.ID, "participant", id, "error", err)
		}
	}
	r.logger.Info("session created", "session", session.ID, "a", session.ParticipantA, "b", session.ParticipantB)
}

// End moves the session to ended. Ending an ended session succeeds and
// notifies nobody. An empty endedBy skips the membership check (janitor).
func (r *SessionRegistry) End(ctx context.Context, sessionID, endedBy string) (*models.Session, error) {
	if endedBy != "" {
		if _, err := r.Authorize(ctx, sessionID, endedBy); err != nil {
			return nil, err
		}
	}

	session, transitioned, err := r.storage.EndSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return session, nil
	}

	ev := models.Event{Type: models.EventSessionStatus, Session: session}
	if err := r.broker.Publish(ctx, models.SessionStatusTopic(session.ID), ev); err != nil {
		r.logger.Warn("session_status not delivered", "session", session.ID, "error", err)
	}
	r.logger.Info("session ended", "session", session.ID, "ended_by", endedBy)
	return session, nil
}

// GetActiveFor returns the participant's active session or nil.
func (r *SessionRegistry) GetActiveFor(ctx context.Context, participantID string) (*models.Session, error) {
	if participantID == "" {
		return nil, ErrInvalidParticipant
	}
	return r.storage.ActiveSessionFor(ctx, participantID)
}

func (r *SessionRegistry) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return r.storage.GetSession(ctx, sessionID)
}

// Authorize loads the session and checks participantID belongs to it.
func (r *SessionRegistry) Authorize(ctx context.Context, sessionID, participantID string) (*models.Session, error) {
	session, err := r.storage.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Has(participantID) {
		return nil, ErrNotParticipant
	}
	return session, nil
}
