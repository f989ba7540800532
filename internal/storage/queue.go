package storage

import (
	"context"
	"errors"

	"strangerchat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Enqueue adds the participant to the waiting queue. Re-enqueueing replaces
// the entry's timestamp, moving the participant to the back of the queue;
// there is never more than one entry. Fails with ErrAlreadyMatched when the
// participant is in an active session.
func (s *Service) Enqueue(ctx context.Context, participantID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPairing(tx); err != nil {
			return err
		}
		active, err := activeSessionFor(tx, participantID)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrAlreadyMatched
		}

		fresh := models.QueueEntry{ParticipantID: participantID, EnqueuedAt: s.Now()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"enqueued_at"}),
		}).Create(&fresh).Error; err != nil {
			return err
		}
		return tx.Where("participant_id = ?", participantID).First(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Dequeue removes the participant's entry. Removing an absent entry is not an error.
func (s *Service) Dequeue(ctx context.Context, participantID string) error {
	_, err := s.RemoveFromQueue(ctx, participantID)
	return err
}

// RemoveFromQueue deletes the entries of every given participant.
func (s *Service) RemoveFromQueue(ctx context.Context, participantIDs ...string) (int64, error) {
	if len(participantIDs) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).
		Where("participant_id IN ?", participantIDs).
		Delete(&models.QueueEntry{})
	return res.RowsAffected, res.Error
}

// QueueEntry returns the participant's entry or ErrNotQueued.
func (s *Service) QueueEntry(ctx context.Context, participantID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.DB.WithContext(ctx).Where("participant_id = ?", participantID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotQueued
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// QueueEntries lists the queue in FIFO order.
func (s *Service) QueueEntries(ctx context.Context) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.DB.WithContext(ctx).Order("enqueued_at asc").Order("id asc").Find(&entries).Error
	return entries, err
}

// OldestQueuedExcept returns the longest-waiting entry other than the caller's
// whose owner is not already in an active session.
// It takes no lock; callers on the fallback path must re-check before pairing.
func (s *Service) OldestQueuedExcept(ctx context.Context, participantID string) (*models.QueueEntry, error) {
	return oldestQueuedExcept(s.DB.WithContext(ctx), participantID)
}

func oldestQueuedExcept(tx *gorm.DB, participantID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := tx.Where("participant_id <> ?", participantID).
		Where("NOT EXISTS (?)", tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.Session{}).
			Select("1").
			Where("status = ?", models.SessionActive).
			Where("(sessions.participant_a = queue_entries.participant_id OR sessions.participant_b = queue_entries.participant_id)")).
		Order("enqueued_at asc").Order("id asc").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoPartnerAvailable
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
