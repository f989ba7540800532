package pubsub

import (
	"context"
	"strings"
	"testing"
	"time"

	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationFitsForLongestMessages(t *testing.T) {
	for _, r := range []string{"&", "😀", "\"", " "} {
		msg := &models.Message{
			ID:        "0192f1a4-7f2e-7c3a-9d1e-5b6a7c8d9e0f",
			SessionID: "3f0e6a8c-1b2d-4e5f-8a9b-0c1d2e3f4a5b",
			SenderID:  "7a6b5c4d-3e2f-4a1b-9c8d-7e6f5a4b3c2d",
			Content:   strings.Repeat(r, config.MaxMessageLength),
			CreatedAt: time.Now(),
		}
		topic := models.SessionMessagesTopic(msg.SessionID)

		payload, err := encodeNotification(topic, models.Event{Type: models.EventMessage, Message: msg})
		require.NoError(t, err, "content %q", r)
		assert.LessOrEqual(t, len(payload), maxNotifyPayload)
		assert.NotContains(t, string(payload), msg.Content)
	}
}

func TestNotificationTooLarge(t *testing.T) {
	ev := models.Event{Type: models.EventSessionStatus, Error: strings.Repeat("x", maxNotifyPayload)}
	_, err := encodeNotification("session:s:status", ev)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDecodeLoadsMessageRow(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()
	ids := storagetest.Participants(t, store, 2)
	session, err := store.CreateSession(ctx, ids[0], ids[1])
	require.NoError(t, err)
	content := strings.Repeat("😀", config.MaxMessageLength)
	msg, err := store.AppendMessage(ctx, session.ID, ids[0], content)
	require.NoError(t, err)

	p := &Postgres{db: store.DB, logger: discardLogger()}
	topic := models.SessionMessagesTopic(session.ID)
	payload, err := encodeNotification(topic, models.Event{Type: models.EventMessage, Message: msg})
	require.NoError(t, err)

	ev, err := p.decode(topic, string(payload))
	require.NoError(t, err)
	assert.Equal(t, models.EventMessage, ev.Type)
	assert.Equal(t, topic, ev.Topic)
	require.NotNil(t, ev.Message)
	assert.Equal(t, msg.ID, ev.Message.ID)
	assert.Equal(t, content, ev.Message.Content)

	statusTopic := models.SessionStatusTopic(session.ID)
	payload, err = encodeNotification(statusTopic, models.Event{Type: models.EventSessionStatus, Session: session})
	require.NoError(t, err)
	ev, err = p.decode(statusTopic, string(payload))
	require.NoError(t, err)
	require.NotNil(t, ev.Session)
	assert.Equal(t, session.ID, ev.Session.ID)
	assert.Nil(t, ev.Message)

	_, err = p.decode(topic, `{"type":"message","message_id":"missing"}`)
	assert.Error(t, err)
}
