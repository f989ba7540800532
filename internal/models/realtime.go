package models

import (
	"fmt"
	"strings"
)

// EventType names the payload carried by an Event.
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventMessage        EventType = "message"
	EventSessionStatus  EventType = "session_status"
	EventTyping         EventType = "typing"

	// Connection-level acknowledgements on the WebSocket channel.
	EventSubscribed   EventType = "subscribed"
	EventUnsubscribed EventType = "unsubscribed"
	EventError        EventType = "error"
)

// TypingSignal is broadcast to the partner and never stored.
type TypingSignal struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	IsTyping      bool   `json:"is_typing"`
}

// Event is the payload delivered on every push topic.
type Event struct {
	Type    EventType     `json:"type"`
	Topic   string        `json:"topic"`
	Session *Session      `json:"session,omitempty"`
	Message *Message      `json:"message,omitempty"`
	Typing  *TypingSignal `json:"typing,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ParticipantSessionsTopic carries session_created events naming the participant.
func ParticipantSessionsTopic(participantID string) string {
	return fmt.Sprintf("participant:%s:sessions", participantID)
}

// SessionMessagesTopic carries message events for a session.
func SessionMessagesTopic(sessionID string) string {
	return fmt.Sprintf("session:%s:messages", sessionID)
}

// SessionStatusTopic carries session_status events for a session.
func SessionStatusTopic(sessionID string) string {
	return fmt.Sprintf("session:%s:status", sessionID)
}

// SessionTypingTopic carries typing events for a session.
func SessionTypingTopic(sessionID string) string {
	return fmt.Sprintf("session:%s:typing", sessionID)
}

// SessionTopics lists every topic a session participant follows while chatting.
func SessionTopics(sessionID string) []string {
	return []string{
		SessionMessagesTopic(sessionID),
		SessionStatusTopic(sessionID),
		SessionTypingTopic(sessionID),
	}
}

// ParseSessionTopic returns the session id embedded in a session topic.
func ParseSessionTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, "session:")
	if !ok {
		return "", false
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", false
	}
	switch rest[i+1:] {
	case "messages", "status", "typing":
		return rest[:i], true
	}
	return "", false
}
