package client

import (
	"context"
	"testing"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *chathub.ManagerService {
	t.Helper()
	store := storagetest.New(t)
	broker := pubsub.NewLocal(storagetest.DiscardLogger())
	t.Cleanup(func() { _ = broker.Close() })
	hub := chathub.NewManagerService(store, broker, storagetest.DiscardLogger())
	hub.Matcher.PollInterval = 10 * time.Millisecond
	return hub
}

func newLocalChat(t *testing.T, hub *chathub.ManagerService) *Chat {
	t.Helper()
	c := NewChat(ChatConfig{
		Backend: NewLocalBackend(hub),
		Dial: func(_ context.Context, id Identity) (Notifier, error) {
			return NewLocalNotifier(hub, id.ParticipantID), nil
		},
		Logger:       storagetest.DiscardLogger(),
		PollInterval: 20 * time.Millisecond,
		TypingIdle:   30 * time.Millisecond,
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitUpdate(t *testing.T, c *Chat, kind UpdateKind) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-c.Updates():
			require.True(t, ok, "updates closed")
			if u.Kind == kind {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s update", kind)
		}
	}
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }
