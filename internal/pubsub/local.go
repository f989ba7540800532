package pubsub

import (
	"context"
	"log/slog"

	"strangerchat/backend/internal/models"
)

// Local is an in-process broker for single-server deployments and tests.
type Local struct {
	fan *fanout
}

var _ Broker = (*Local)(nil)

func NewLocal(logger *slog.Logger) *Local {
	return &Local{fan: newFanout(logger)}
}

func (l *Local) Publish(ctx context.Context, topic string, ev models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev.Topic = topic
	l.fan.deliver(ev)
	return nil
}

func (l *Local) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.fan.add(topic)
}

func (l *Local) Close() error {
	l.fan.closeAll()
	return nil
}
