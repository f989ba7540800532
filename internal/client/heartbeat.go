package client

import (
	"context"
	"log/slog"
	"time"

	"strangerchat/backend/internal/config"
)

// Heartbeat reports liveness on a fixed interval until its context ends.
type Heartbeat struct {
	beat     func(ctx context.Context) error
	interval time.Duration
	logger   *slog.Logger
}

func NewHeartbeat(beat func(ctx context.Context) error, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{beat: beat, interval: config.DefaultHeartbeatInterval, logger: logger}
}

// Run beats immediately and then every interval. Failures are only logged.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.beat(ctx); err != nil && ctx.Err() == nil {
			h.logger.Warn("heartbeat failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
