package models

import "time"

// Message is one immutable chat line. Messages are ordered within a session
// by CreatedAt, with ID as the tie-breaker.
type Message struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"not null;index:idx_session_created" json:"session_id"`
	SenderID  string    `gorm:"not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_session_created" json:"created_at"`
}
