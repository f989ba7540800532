package chathub

import (
	"context"
	"testing"
	"time"

	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTyping(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()
	ids := storagetest.Participants(t, store, 3)
	session := pair(t, hub, ids[0], ids[1])
	typing := subscribe(t, hub.Broker, models.SessionTypingTopic(session.ID))

	require.NoError(t, hub.Presence.SetTyping(ctx, session.ID, ids[0], true))
	ev := nextEvent(t, typing.Events())
	require.NotNil(t, ev.Typing)
	assert.Equal(t, ids[0], ev.Typing.ParticipantID)
	assert.True(t, ev.Typing.IsTyping)

	assert.ErrorIs(t, hub.Presence.SetTyping(ctx, session.ID, ids[2], true), ErrNotParticipant)

	_, err := hub.Sessions.End(ctx, session.ID, ids[0])
	require.NoError(t, err)
	assert.ErrorIs(t, hub.Presence.SetTyping(ctx, session.ID, ids[1], true), ErrSessionEnded)
}

func TestHeartbeatUpdatesLastSeen(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()
	ids := storagetest.Participants(t, store, 1)

	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	hub.Presence.now = func() time.Time { return at }
	require.NoError(t, hub.Presence.Heartbeat(ctx, ids[0]))

	seen, err := hub.Presence.LastSeen(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, seen.Equal(at), "last seen %v", seen)

	assert.ErrorIs(t, hub.Presence.Heartbeat(ctx, "missing"), ErrParticipantNotFound)
	assert.ErrorIs(t, hub.Presence.Heartbeat(ctx, ""), ErrInvalidParticipant)
}
