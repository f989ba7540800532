package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant is an anonymous chatter identified only by an opaque id.
// TelegramID is set when the participant arrived through the Telegram bot.
type Participant struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	TelegramID *int64    `gorm:"uniqueIndex" json:"-"`
	LastSeen   time.Time `gorm:"index" json:"last_seen"`
	CreatedAt  time.Time `json:"created_at"`
}

// BeforeCreate generates the participant id if the caller did not set one.
func (p *Participant) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = time.Now()
	}
	return
}
