package storage

import (
	"context"
	"errors"
	"fmt"

	"strangerchat/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchAndCreateSession is the atomic pairing primitive. In one transaction
// it picks the earliest other waiting participant, removes both queue
// entries and creates the session. The returned session names the partner
// as ParticipantA.
//
// Outcomes:
//   - ErrNoPartnerAvailable: nobody else is waiting; nothing changed.
//   - ErrNotQueued: the caller's entry is gone (cancelled); nothing changed.
//   - ErrAlreadyMatched: the caller was paired by someone else; the existing
//     session is returned alongside the error.
func (s *Service) MatchAndCreateSession(ctx context.Context, participantID string) (*models.Session, error) {
	var session *models.Session
	busy := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPairing(tx); err != nil {
			return err
		}

		var self models.QueueEntry
		err := tx.Where("participant_id = ?", participantID).First(&self).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			active, err := activeSessionFor(tx, participantID)
			if err != nil {
				return err
			}
			if active != nil {
				session = active
				return ErrAlreadyMatched
			}
			return ErrNotQueued
		}
		if err != nil {
			return err
		}

		// A leftover entry never outlives the caller's active session.
		active, err := activeSessionFor(tx, participantID)
		if err != nil {
			return err
		}
		if active != nil {
			// Committed, so the error is reported after the transaction.
			session, busy = active, true
			return tx.Delete(&self).Error
		}

		partner, err := oldestQueuedExcept(tx, participantID)
		if err != nil {
			return err
		}

		res := tx.Where("participant_id IN ?", []string{participantID, partner.ParticipantID}).
			Delete(&models.QueueEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 2 {
			return fmt.Errorf("%w: queue changed during match", ErrNoPartnerAvailable)
		}

		created := s.newSession(partner.ParticipantID, participantID)
		if err := tx.Create(created).Error; err != nil {
			return err
		}
		session = created
		return nil
	})
	if err == nil && busy {
		err = ErrAlreadyMatched
	}
	return session, err
}

// CreateSession pairs a and b unless either already has an active session,
// and drops both queue entries in the same transaction.
// If a and b already share an active session that session is returned with
// ErrDuplicateSession, so concurrent creators converge on one row.
func (s *Service) CreateSession(ctx context.Context, a, b string) (*models.Session, error) {
	if a == b {
		return nil, ErrSelfMatch
	}

	var session *models.Session
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPairing(tx); err != nil {
			return err
		}

		existing, err := activeSessionBetween(tx, a, b)
		if err != nil {
			return err
		}
		if existing != nil {
			session = existing
			return ErrDuplicateSession
		}

		for _, id := range []string{a, b} {
			active, err := activeSessionFor(tx, id)
			if err != nil {
				return err
			}
			if active != nil {
				return fmt.Errorf("%w: %s", ErrAlreadyMatched, id)
			}
		}

		created := s.newSession(a, b)
		if err := tx.Create(created).Error; err != nil {
			return err
		}
		if err := tx.Where("participant_id IN ?", []string{a, b}).Delete(&models.QueueEntry{}).Error; err != nil {
			return err
		}
		session = created
		return nil
	})
	if err != nil && !errors.Is(err, ErrDuplicateSession) {
		return nil, err
	}
	return session, err
}

// EndSession marks the session ended. The boolean reports whether this call
// performed the transition; ending an ended session is a no-op.
func (s *Service) EndSession(ctx context.Context, sessionID string) (*models.Session, bool, error) {
	db := s.DB.WithContext(ctx)
	now := s.Now()

	res := db.Model(&models.Session{}).
		Where("id = ? AND status = ?", sessionID, models.SessionActive).
		Updates(map[string]interface{}{
			"status":   models.SessionEnded,
			"ended_at": now,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return session, res.RowsAffected == 1, nil
}

// GetSession loads a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.DB.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ActiveSessionFor returns the participant's active session, or nil if there is none.
func (s *Service) ActiveSessionFor(ctx context.Context, participantID string) (*models.Session, error) {
	return activeSessionFor(s.DB.WithContext(ctx), participantID)
}

// ActiveSessionBetween returns the active session shared by a and b, or nil.
func (s *Service) ActiveSessionBetween(ctx context.Context, a, b string) (*models.Session, error) {
	return activeSessionBetween(s.DB.WithContext(ctx), a, b)
}

func (s *Service) newSession(a, b string) *models.Session {
	return &models.Session{
		ID:           uuid.New().String(),
		ParticipantA: a,
		ParticipantB: b,
		Status:       models.SessionActive,
		CreatedAt:    s.Now(),
	}
}

func activeSessionFor(tx *gorm.DB, participantID string) (*models.Session, error) {
	var session models.Session
	err := tx.Where("status = ? AND (participant_a = ? OR participant_b = ?)",
		models.SessionActive, participantID, participantID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func activeSessionBetween(tx *gorm.DB, a, b string) (*models.Session, error) {
	var session models.Session
	err := tx.Where("status = ? AND ((participant_a = ? AND participant_b = ?) OR (participant_a = ? AND participant_b = ?))",
		models.SessionActive, a, b, b, a).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}
