package client

import (
	"sync"
	"testing"
	"time"

	"strangerchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signalRecorder struct {
	mu      sync.Mutex
	signals []bool
}

func (r *signalRecorder) send(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, v)
}

func (r *signalRecorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.signals...)
}

func TestTypingSenderDebounces(t *testing.T) {
	rec := &signalRecorder{}
	s := NewTypingSender(40*time.Millisecond, rec.send)

	for range 5 {
		s.Keystroke()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, []bool{true}, rec.get())

	require.Eventually(t, func() bool { return len(rec.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.get())

	s.Keystroke()
	s.Stop()
	assert.Equal(t, []bool{true, false, true, false}, rec.get())

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, rec.get(), 4)
}

func TestTypingSenderCancelIsSilent(t *testing.T) {
	rec := &signalRecorder{}
	s := NewTypingSender(20*time.Millisecond, rec.send)
	s.Keystroke()
	s.Cancel()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, []bool{true}, rec.get())
}

func TestTypingStateIgnoresOwnSignals(t *testing.T) {
	st := NewTypingState("me")

	assert.False(t, st.Observe(models.TypingSignal{ParticipantID: "me", IsTyping: true}))
	assert.False(t, st.PartnerTyping())

	assert.True(t, st.Observe(models.TypingSignal{ParticipantID: "them", IsTyping: true}))
	assert.False(t, st.Observe(models.TypingSignal{ParticipantID: "them", IsTyping: true}))
	assert.True(t, st.PartnerTyping())

	st.Reset()
	assert.False(t, st.PartnerTyping())
}
