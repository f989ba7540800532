package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	_, ok, err := kv.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set("a", "1"))
	v, ok, err := kv.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, kv.Delete("a"))
	require.NoError(t, kv.Delete("a"))
	_, ok, _ = kv.Get("a")
	assert.False(t, ok)
}

func TestFileKVPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")

	kv, err := OpenFileKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(KeyParticipantID, "p1"))
	require.NoError(t, kv.Set(KeySessionID, "s1"))
	require.NoError(t, kv.Delete(KeySessionID))

	reopened, err := OpenFileKV(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(KeyParticipantID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "p1", v)
	_, ok, _ = reopened.Get(KeySessionID)
	assert.False(t, ok)
}

func TestFileKVRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenFileKV(path)
	assert.Error(t, err)
}
