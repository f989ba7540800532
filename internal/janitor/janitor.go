// Package janitor is the liveness detector: it clears queue entries and
// sessions whose participants stopped sending heartbeats, and enforces the
// message retention window.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/storage"
)

// Report summarises one sweep.
type Report struct {
	EvictedEntries int
	EndedSessions  int
	PurgedMessages int64
}

// Janitor periodically sweeps stale state.
type Janitor struct {
	storage  storage.Storage
	sessions *chathub.SessionRegistry
	logger   *slog.Logger

	Interval   time.Duration
	StaleAfter time.Duration
	Retention  time.Duration
	now        func() time.Time
}

func New(s storage.Storage, sessions *chathub.SessionRegistry, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		storage:    s,
		sessions:   sessions,
		logger:     logger,
		Interval:   config.DefaultJanitorInterval,
		StaleAfter: config.DefaultStaleAfter,
		Retention:  config.DefaultMessageRetention,
		now:        time.Now,
	}
}

// Run sweeps every Interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info("janitor started", "interval", j.Interval, "stale_after", j.StaleAfter)
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs every cleanup step once. Each step runs even if an earlier
// one failed; the errors are joined.
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	var report Report
	now := j.now().UTC()
	staleCutoff := now.Add(-j.StaleAfter)

	evicted, errQueue := j.evictQueue(ctx, staleCutoff)
	report.EvictedEntries = evicted

	ended, errSessions := j.endAbandoned(ctx, staleCutoff)
	report.EndedSessions = ended

	purged, errPurge := j.storage.PurgeMessagesBefore(ctx, now.Add(-j.Retention))
	report.PurgedMessages = purged

	if report != (Report{}) {
		j.logger.Info("sweep finished",
			"evicted_entries", report.EvictedEntries,
			"ended_sessions", report.EndedSessions,
			"purged_messages", report.PurgedMessages)
	}
	return report, errors.Join(errQueue, errSessions, errPurge)
}

func (j *Janitor) evictQueue(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := j.storage.StaleQueueEntries(ctx, cutoff)
	if err != nil || len(entries) == 0 {
		return 0, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ParticipantID)
	}
	n, err := j.storage.RemoveFromQueue(ctx, ids...)
	return int(n), err
}

// endAbandoned ends sessions through the registry so both sides are notified.
func (j *Janitor) endAbandoned(ctx context.Context, cutoff time.Time) (int, error) {
	sessions, err := j.storage.StaleActiveSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	var errs []error
	ended := 0
	for _, s := range sessions {
		if _, err := j.sessions.End(ctx, s.ID, ""); err != nil {
			errs = append(errs, err)
			continue
		}
		ended++
	}
	return ended, errors.Join(errs...)
}
