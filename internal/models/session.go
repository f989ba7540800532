package models

import "time"

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session is a two-party chat. It only ever moves from active to ended.
type Session struct {
	// ID is the session UUID.
	ID string `gorm:"primaryKey" json:"id"`
	// ParticipantA is the participant that was waiting longer.
	ParticipantA string `gorm:"not null;index" json:"participant_a"`
	// ParticipantB is the participant whose match attempt created the session.
	ParticipantB string        `gorm:"not null;index" json:"participant_b"`
	Status       SessionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	// EndedAt is set exactly once, on the active -> ended transition.
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// IsActive reports whether the session still accepts messages.
func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

// Has reports whether participantID is one of the two parties.
func (s *Session) Has(participantID string) bool {
	return participantID != "" && (s.ParticipantA == participantID || s.ParticipantB == participantID)
}

// Partner returns the other party, or "" if participantID is not in the session.
func (s *Session) Partner(participantID string) string {
	switch participantID {
	case s.ParticipantA:
		return s.ParticipantB
	case s.ParticipantB:
		return s.ParticipantA
	}
	return ""
}
