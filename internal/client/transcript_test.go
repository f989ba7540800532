package client

import (
	"strings"
	"testing"
	"time"

	"strangerchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgAt(id, sender, content string, at time.Time) models.Message {
	return models.Message{ID: id, SessionID: "s1", SenderID: sender, Content: content, CreatedAt: at}
}

func TestTranscriptConfirmReplacesTempEntry(t *testing.T) {
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTranscript()
	tr.now = func() time.Time { return base }

	tempID := tr.AddPending("me", "hi")
	assert.True(t, strings.HasPrefix(tempID, "temp-"))
	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Pending)

	stored := msgAt("m1", "me", "hi", base.Add(time.Millisecond))
	tr.Confirm(tempID, &stored)

	entries = tr.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
	assert.False(t, entries[0].Pending)

	// The push echo of our own message is not duplicated.
	assert.False(t, tr.Apply(stored))
	assert.Equal(t, 1, tr.Len())
}

func TestTranscriptPushBeforeConfirm(t *testing.T) {
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTranscript()
	tr.now = func() time.Time { return base }

	tempID := tr.AddPending("me", "hi")
	stored := msgAt("m1", "me", "hi", base)
	assert.True(t, tr.Apply(stored))
	tr.Confirm(tempID, &stored)

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
}

func TestTranscriptRollback(t *testing.T) {
	tr := NewTranscript()
	tempID := tr.AddPending("me", "lost")
	tr.Rollback(tempID)
	assert.Zero(t, tr.Len())
}

func TestTranscriptOrdersAndDedupes(t *testing.T) {
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTranscript()

	tr.Apply(msgAt("c", "b", "third", base.Add(2*time.Second)))
	tr.Apply(msgAt("a", "a", "first", base))
	added := tr.Merge([]models.Message{
		msgAt("a", "a", "first", base),
		msgAt("b", "b", "second", base.Add(time.Second)),
		msgAt("c", "b", "third", base.Add(2*time.Second)),
	})
	assert.Equal(t, 1, added)

	var contents []string
	for _, e := range tr.Entries() {
		contents = append(contents, e.Content)
	}
	assert.Equal(t, []string{"first", "second", "third"}, contents)
}
