package pubsub

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"strangerchat/backend/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	cfg := config.Default()
	b, err := Open(ctx, cfg, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, b)
	require.NoError(t, b.Close())

	mr := miniredis.RunT(t)
	cfg.PubSubDriver = "redis"
	cfg.RedisURL = "redis://" + mr.Addr()
	b, err = Open(ctx, cfg, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, b)
	require.NoError(t, b.Close())

	cfg.PubSubDriver = "kafka"
	_, err = Open(ctx, cfg, nil, logger)
	assert.Error(t, err)
}
