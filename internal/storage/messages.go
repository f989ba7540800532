package storage

import (
	"context"
	"errors"
	"time"

	"strangerchat/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppendMessage adds a message to an active session's transcript. The session
// row is share-locked so the append cannot interleave with EndSession.
// Message ids are UUIDv7, so (created_at, id) preserves insertion order even
// when two messages share a timestamp.
func (s *Service) AppendMessage(ctx context.Context, sessionID, senderID, content string) (*models.Message, error) {
	var msg *models.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Where("id = ?", sessionID).
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if !session.Has(senderID) {
			return ErrNotParticipant
		}
		if !session.IsActive() {
			return ErrSessionEnded
		}

		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		msg = &models.Message{
			ID:        id.String(),
			SessionID: sessionID,
			SenderID:  senderID,
			Content:   content,
			CreatedAt: s.Now(),
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Messages returns a session's transcript in creation order.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").Order("id asc").
		Find(&messages).Error
	if err != nil {
		s.Logger.Error("failed to load messages", "session_id", sessionID, "error", err)
		return nil, err
	}
	return messages, nil
}

// PurgeMessagesBefore deletes messages older than cutoff.
func (s *Service) PurgeMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.Message{})
	return res.RowsAffected, res.Error
}
