package chathub

import (
	"context"
	"testing"

	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndNotifiesOnlyOnTransition(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()
	ids := storagetest.Participants(t, store, 3)
	session := pair(t, hub, ids[0], ids[1])
	status := subscribe(t, hub.Broker, models.SessionStatusTopic(session.ID))

	_, err := hub.Sessions.End(ctx, session.ID, ids[2])
	assert.ErrorIs(t, err, ErrNotParticipant)

	ended, err := hub.Sessions.End(ctx, session.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)

	ev := nextEvent(t, status.Events())
	assert.Equal(t, models.EventSessionStatus, ev.Type)
	assert.Equal(t, models.SessionEnded, ev.Session.Status)

	again, err := hub.Sessions.End(ctx, session.ID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ended.EndedAt.Unix(), again.EndedAt.Unix())
	noEvent(t, status.Events())

	active, err := hub.Sessions.GetActiveFor(ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestEndUnknownSession(t *testing.T) {
	hub, _ := newTestHub(t)
	_, err := hub.Sessions.End(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCreateRejectsBusyParticipant(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()
	ids := storagetest.Participants(t, store, 3)
	pair(t, hub, ids[0], ids[1])

	_, err := hub.Sessions.Create(ctx, ids[2], ids[0])
	assert.ErrorIs(t, err, ErrAlreadyMatched)
	_, err = hub.Sessions.Create(ctx, ids[2], ids[2])
	assert.ErrorIs(t, err, ErrSelfMatch)
	_, err = hub.Sessions.Create(ctx, "", ids[2])
	assert.ErrorIs(t, err, ErrInvalidParticipant)
}

func TestAuthorize(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()
	ids := storagetest.Participants(t, store, 3)
	session := pair(t, hub, ids[0], ids[1])

	got, err := hub.Sessions.Authorize(ctx, session.ID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, err = hub.Sessions.Authorize(ctx, session.ID, ids[2])
	assert.ErrorIs(t, err, ErrNotParticipant)
	_, err = hub.Sessions.Authorize(ctx, session.ID, "")
	assert.ErrorIs(t, err, ErrNotParticipant)
}
