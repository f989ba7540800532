// Package storagetest opens throwaway SQLite-backed stores for tests.
package storagetest

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"strangerchat/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// New returns a migrated store backed by a private in-memory SQLite database.
// The database is closed when the test ends.
func New(t testing.TB) *storage.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := storage.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return storage.NewStorageService(db, DiscardLogger())
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Participants creates n participants and returns their ids in creation order.
func Participants(t testing.TB, s *storage.Service, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, err := s.CreateParticipant(t.Context())
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return ids
}
