package storage

import (
	"context"
	"errors"
	"time"

	"strangerchat/backend/internal/models"

	"gorm.io/gorm"
)

// CreateParticipant issues a fresh anonymous participant.
func (s *Service) CreateParticipant(ctx context.Context) (*models.Participant, error) {
	p := &models.Participant{LastSeen: s.Now()}
	if err := s.DB.WithContext(ctx).Create(p).Error; err != nil {
		s.Logger.Error("failed to create participant", "error", err)
		return nil, err
	}
	return p, nil
}

// GetParticipant loads a participant by id.
func (s *Service) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindOrCreateTelegramParticipant maps a Telegram chat to a stable participant.
func (s *Service) FindOrCreateTelegramParticipant(ctx context.Context, telegramID int64) (*models.Participant, error) {
	var p models.Participant
	defaults := models.Participant{TelegramID: &telegramID, LastSeen: s.Now()}

	result := s.DB.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		Attrs(defaults).
		FirstOrCreate(&p)
	if result.Error != nil {
		s.Logger.Error("failed to save telegram participant", "telegram_id", telegramID, "error", result.Error)
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		s.Logger.Info("new telegram participant", "participant_id", p.ID, "telegram_id", telegramID)
	}
	return &p, nil
}

// TouchParticipant records a heartbeat.
func (s *Service) TouchParticipant(ctx context.Context, id string, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("id = ?", id).
		Update("last_seen", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// TelegramParticipantsInSessions lists Telegram participants that are part of
// an active session. The bot restores their clients on startup.
func (s *Service) TelegramParticipantsInSessions(ctx context.Context) ([]models.Participant, error) {
	db := s.DB.WithContext(ctx)
	active := db.Model(&models.Session{}).Where("status = ?", models.SessionActive)

	var ps []models.Participant
	err := db.
		Where("telegram_id IS NOT NULL").
		Where("id IN (?) OR id IN (?)",
			active.Session(&gorm.Session{}).Select("participant_a"),
			active.Session(&gorm.Session{}).Select("participant_b")).
		Order("created_at ASC").
		Find(&ps).Error
	if err != nil {
		return nil, err
	}
	return ps, nil
}
