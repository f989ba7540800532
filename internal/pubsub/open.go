package pubsub

import (
	"context"
	"fmt"
	"log/slog"

	"strangerchat/backend/internal/config"

	"gorm.io/gorm"
)

// Open builds the broker selected by cfg.PubSubDriver. db is only used by
// the postgres driver.
func Open(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *slog.Logger) (Broker, error) {
	switch cfg.PubSubDriver {
	case "local":
		return NewLocal(logger), nil
	case "redis":
		return NewRedisFromURL(ctx, cfg.RedisURL, logger)
	case "postgres":
		return NewPostgres(db, cfg.DatabaseURL, logger), nil
	}
	return nil, fmt.Errorf("unsupported pub/sub driver %q", cfg.PubSubDriver)
}
