package client

import (
	"sync"
	"time"

	"strangerchat/backend/internal/models"
)

// TypingSender debounces keystrokes into typing signals: true on the first
// keystroke of a burst, false once no keystroke arrived for the idle period.
type TypingSender struct {
	send func(isTyping bool)
	idle time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	typing bool
}

func NewTypingSender(idle time.Duration, send func(isTyping bool)) *TypingSender {
	return &TypingSender{send: send, idle: idle}
}

func (s *TypingSender) Keystroke() {
	s.mu.Lock()
	started := !s.typing
	s.typing = true
	if s.timer == nil {
		s.timer = time.AfterFunc(s.idle, s.expire)
	} else {
		s.timer.Reset(s.idle)
	}
	s.mu.Unlock()

	if started {
		s.send(true)
	}
}

// Stop cancels the idle timer and clears a pending typing state.
func (s *TypingSender) Stop() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	wasTyping := s.typing
	s.typing = false
	s.mu.Unlock()

	if wasTyping {
		s.send(false)
	}
}

// Cancel stops the timer without sending anything.
func (s *TypingSender) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.typing = false
}

func (s *TypingSender) expire() {
	s.mu.Lock()
	wasTyping := s.typing
	s.typing = false
	s.mu.Unlock()

	if wasTyping {
		s.send(false)
	}
}

// TypingState tracks whether the partner is typing.
type TypingState struct {
	self string

	mu     sync.Mutex
	typing bool
}

func NewTypingState(self string) *TypingState {
	return &TypingState{self: self}
}

// Observe applies a signal and reports whether the visible state changed.
// The local participant's own echoes are ignored.
func (s *TypingState) Observe(sig models.TypingSignal) bool {
	if sig.ParticipantID == s.self {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.typing != sig.IsTyping
	s.typing = sig.IsTyping
	return changed
}

func (s *TypingState) PartnerTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

func (s *TypingState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = false
}
