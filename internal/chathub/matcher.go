package chathub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
)

// Match is the outcome of a successful pairing attempt.
type Match struct {
	Session   *models.Session
	PartnerID string
	// Duplicate is set when the fallback path found the pair already chatting.
	Duplicate bool
}

func newMatch(session *models.Session, self string) *Match {
	return &Match{Session: session, PartnerID: session.Partner(self)}
}

// MatcherService pairs waiting participants.
//
// The atomic strategy runs pick, dequeue and create in a single storage
// transaction, so a participant can never land in two sessions. The
// fallback strategy does the same steps from separate calls and only
// narrows the race with duplicate checks.
type MatcherService struct {
	storage  storage.Storage
	registry *SessionRegistry
	logger   *slog.Logger

	Strategy     string
	PollInterval time.Duration
}

func NewMatcherService(s storage.Storage, registry *SessionRegistry, logger *slog.Logger) *MatcherService {
	return &MatcherService{
		storage:      s,
		registry:     registry,
		logger:       logger,
		Strategy:     config.MatchAtomic,
		PollInterval: config.DefaultMatchPollInterval,
	}
}

// Match attempts an atomic pairing for a queued participant.
//
// If the participant was already paired by someone else's attempt the
// existing session is returned together with ErrAlreadyMatched.
func (m *MatcherService) Match(ctx context.Context, participantID string) (*Match, error) {
	if participantID == "" {
		return nil, ErrInvalidParticipant
	}
	session, err := m.storage.MatchAndCreateSession(ctx, participantID)
	switch {
	case err == nil:
		m.registry.announce(ctx, session)
		return newMatch(session, participantID), nil
	case errors.Is(err, ErrAlreadyMatched) && session != nil:
		return newMatch(session, participantID), err
	case errors.Is(err, ErrNotQueued):
		return nil, notQueued()
	}
	return nil, err
}

// notQueued reads as "no partner" to callers that only care whether a
// session exists, while Search can still tell a cancelled participant apart.
func notQueued() error {
	return fmt.Errorf("%w: %w", ErrNoPartnerAvailable, ErrNotQueued)
}

// MatchFallback pairs through separate find and create calls.
func (m *MatcherService) MatchFallback(ctx context.Context, participantID string) (*Match, error) {
	if participantID == "" {
		return nil, ErrInvalidParticipant
	}

	active, err := m.storage.ActiveSessionFor(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return newMatch(active, participantID), ErrAlreadyMatched
	}
	if _, err := m.storage.QueueEntry(ctx, participantID); err != nil {
		if errors.Is(err, ErrNotQueued) {
			return nil, notQueued()
		}
		return nil, err
	}

	candidate, err := m.storage.OldestQueuedExcept(ctx, participantID)
	if err != nil {
		return nil, err
	}

	session, err := m.registry.Create(ctx, candidate.ParticipantID, participantID)
	duplicate := false
	switch {
	case errors.Is(err, ErrDuplicateSession):
		duplicate = true
	case errors.Is(err, ErrAlreadyMatched):
		// Someone else paired one of us between find and create.
		return nil, fmt.Errorf("%w: candidate %s taken", ErrNoPartnerAvailable, candidate.ParticipantID)
	case err != nil:
		return nil, err
	}

	match := newMatch(session, participantID)
	match.Duplicate = duplicate
	return match, nil
}

// Attempt runs one pairing attempt with the configured strategy.
func (m *MatcherService) Attempt(ctx context.Context, participantID string) (*Match, error) {
	if m.Strategy == config.MatchFallback {
		return m.MatchFallback(ctx, participantID)
	}
	return m.Match(ctx, participantID)
}

// Search queues the participant and retries Attempt every PollInterval
// until a session exists, the participant leaves the queue, or ctx ends.
// A session created by a partner's attempt counts as success.
func (m *MatcherService) Search(ctx context.Context, participantID string) (*Match, error) {
	if _, err := m.storage.Enqueue(ctx, participantID); err != nil {
		if errors.Is(err, ErrAlreadyMatched) {
			active, aerr := m.storage.ActiveSessionFor(ctx, participantID)
			if aerr == nil && active != nil {
				return newMatch(active, participantID), nil
			}
		}
		return nil, err
	}

	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	for {
		match, err := m.Attempt(ctx, participantID)
		switch {
		case err == nil:
			m.logger.Info("partner found", "participant", participantID, "session", match.Session.ID)
			return match, nil
		case errors.Is(err, ErrAlreadyMatched) && match != nil:
			m.logger.Info("paired by partner", "participant", participantID, "session", match.Session.ID)
			return match, nil
		case errors.Is(err, ErrNotQueued):
			return nil, err
		case errors.Is(err, ErrNoPartnerAvailable):
		default:
			m.logger.Warn("match attempt failed", "participant", participantID, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
