package models

import "time"

// QueueEntry marks a participant as waiting for a partner. There is at most
// one entry per participant.
type QueueEntry struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	ParticipantID string    `gorm:"uniqueIndex;not null" json:"participant_id"`
	EnqueuedAt    time.Time `gorm:"index;not null" json:"enqueued_at"`
}
