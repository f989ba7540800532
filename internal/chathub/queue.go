package chathub

import (
	"context"
	"log/slog"

	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
)

// WaitingQueue is the shared set of participants waiting for a partner.
type WaitingQueue struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewWaitingQueue(s storage.Storage, logger *slog.Logger) *WaitingQueue {
	return &WaitingQueue{storage: s, logger: logger}
}

// Enqueue adds the participant. Enqueueing again moves it to the back of the queue.
func (q *WaitingQueue) Enqueue(ctx context.Context, participantID string) (*models.QueueEntry, error) {
	if participantID == "" {
		return nil, ErrInvalidParticipant
	}
	entry, err := q.storage.Enqueue(ctx, participantID)
	if err != nil {
		return nil, err
	}
	q.logger.Debug("participant queued", "participant", participantID, "enqueued_at", entry.EnqueuedAt)
	return entry, nil
}

// Dequeue removes the participant. Removing an absent entry is not an error.
func (q *WaitingQueue) Dequeue(ctx context.Context, participantID string) error {
	if participantID == "" {
		return ErrInvalidParticipant
	}
	if err := q.storage.Dequeue(ctx, participantID); err != nil {
		return err
	}
	q.logger.Debug("participant dequeued", "participant", participantID)
	return nil
}

// Entries returns the queue oldest first.
func (q *WaitingQueue) Entries(ctx context.Context) ([]models.QueueEntry, error) {
	return q.storage.QueueEntries(ctx)
}
