package chathub

import (
	"context"
	"testing"
	"time"

	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage"
	"strangerchat/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*ManagerService, *storage.Service) {
	t.Helper()
	store := storagetest.New(t)
	broker := pubsub.NewLocal(storagetest.DiscardLogger())
	t.Cleanup(func() { _ = broker.Close() })
	hub := NewManagerService(store, broker, storagetest.DiscardLogger())
	hub.Matcher.PollInterval = 10 * time.Millisecond
	return hub, store
}

func subscribe(t *testing.T, b pubsub.Broker, topic string) pubsub.Subscription {
	t.Helper()
	sub, err := b.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return sub
}

func nextEvent(t *testing.T, ch <-chan models.Event) models.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return models.Event{}
}

func noEvent(t *testing.T, ch <-chan models.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// pair queues a and b and matches them through the atomic path.
func pair(t *testing.T, hub *ManagerService, a, b string) *models.Session {
	t.Helper()
	ctx := context.Background()
	_, err := hub.Queue.Enqueue(ctx, a)
	require.NoError(t, err)
	_, err = hub.Queue.Enqueue(ctx, b)
	require.NoError(t, err)
	m, err := hub.Matcher.Match(ctx, b)
	require.NoError(t, err)
	return m.Session
}
