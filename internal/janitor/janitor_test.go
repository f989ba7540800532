package janitor

import (
	"context"
	"testing"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage"
	"strangerchat/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Janitor, *chathub.ManagerService, *storage.Service, time.Time) {
	t.Helper()
	store := storagetest.New(t)
	broker := pubsub.NewLocal(storagetest.DiscardLogger())
	t.Cleanup(func() { _ = broker.Close() })
	hub := chathub.NewManagerService(store, broker, storagetest.DiscardLogger())

	now := time.Now().UTC()
	j := New(store, hub.Sessions, storagetest.DiscardLogger())
	j.now = func() time.Time { return now }
	return j, hub, store, now
}

func TestSweepEvictsStaleQueueEntries(t *testing.T) {
	j, hub, store, now := setup(t)
	ctx := context.Background()
	ids := storagetest.Participants(t, store, 2)
	for _, id := range ids {
		_, err := hub.Queue.Enqueue(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, store.TouchParticipant(ctx, ids[0], now.Add(-time.Hour)))
	require.NoError(t, store.TouchParticipant(ctx, ids[1], now))

	report, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EvictedEntries)

	entries, err := hub.Queue.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ids[1], entries[0].ParticipantID)
}

func TestSweepEndsAbandonedSessions(t *testing.T) {
	j, hub, store, now := setup(t)
	ctx := context.Background()
	ids := storagetest.Participants(t, store, 4)

	pairUp := func(a, b string) *models.Session {
		s, err := hub.Sessions.Create(ctx, a, b)
		require.NoError(t, err)
		return s
	}
	abandoned := pairUp(ids[0], ids[1])
	alive := pairUp(ids[2], ids[3])
	for _, id := range ids {
		require.NoError(t, store.TouchParticipant(ctx, id, now))
	}
	require.NoError(t, store.TouchParticipant(ctx, ids[1], now.Add(-time.Hour)))

	status, err := hub.Broker.Subscribe(ctx, models.SessionStatusTopic(abandoned.ID))
	require.NoError(t, err)
	defer status.Close()

	report, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EndedSessions)

	select {
	case ev := <-status.Events():
		assert.Equal(t, models.SessionEnded, ev.Session.Status)
	case <-time.After(time.Second):
		t.Fatal("partner was not notified")
	}

	got, err := hub.Sessions.Get(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive())
	got, err = hub.Sessions.Get(ctx, alive.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())

	// A second sweep finds nothing left to do.
	report, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.EndedSessions)
}

func TestSweepPurgesExpiredMessages(t *testing.T) {
	j, hub, store, now := setup(t)
	ctx := context.Background()
	ids := storagetest.Participants(t, store, 2)
	for _, id := range ids {
		require.NoError(t, store.TouchParticipant(ctx, id, now))
	}
	session, err := hub.Sessions.Create(ctx, ids[0], ids[1])
	require.NoError(t, err)

	store.Now = func() time.Time { return now.Add(-48 * time.Hour) }
	_, err = hub.Relay.Send(ctx, session.ID, ids[0], "old")
	require.NoError(t, err)
	store.Now = func() time.Time { return now }
	_, err = hub.Relay.Send(ctx, session.ID, ids[1], "fresh")
	require.NoError(t, err)

	report, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.PurgedMessages)

	history, err := hub.Relay.History(ctx, session.ID, ids[0])
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "fresh", history[0].Content)
}

func TestRunStopsWithContext(t *testing.T) {
	j, _, _, _ := setup(t)
	j.Interval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
