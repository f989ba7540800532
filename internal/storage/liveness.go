package storage

import (
	"context"
	"time"

	"strangerchat/backend/internal/models"
)

// StaleQueueEntries returns queue entries whose owner has not sent a
// heartbeat since cutoff.
func (s *Service) StaleQueueEntries(ctx context.Context, cutoff time.Time) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.DB.WithContext(ctx).
		Joins("JOIN participants ON participants.id = queue_entries.participant_id").
		Where("participants.last_seen < ?", cutoff.UTC()).
		Find(&entries).Error
	return entries, err
}

// StaleActiveSessions returns active sessions where at least one party has
// not sent a heartbeat since cutoff.
func (s *Service) StaleActiveSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	db := s.DB.WithContext(ctx)
	stale := db.Model(&models.Participant{}).Select("id").Where("last_seen < ?", cutoff.UTC())

	var sessions []models.Session
	err := db.Where("status = ? AND (participant_a IN (?) OR participant_b IN (?))",
		models.SessionActive, stale, stale).
		Find(&sessions).Error
	return sessions, err
}
