package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"strangerchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// topicPatterns covers every topic the engine publishes.
var topicPatterns = []string{"participant:*", "session:*"}

// Redis relays events through Redis PUBLISH so every server process sees
// them. A single pattern subscription feeds the in-process fanout.
type Redis struct {
	client *redis.Client
	pubsub *redis.PubSub
	fan    *fanout
	logger *slog.Logger
	done   chan struct{}
	once   sync.Once
}

var _ Broker = (*Redis)(nil)

// NewRedis subscribes to the engine's topic patterns and starts the listener.
func NewRedis(ctx context.Context, client *redis.Client, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ps := client.PSubscribe(ctx, topicPatterns...)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: psubscribe: %w", err)
	}

	r := &Redis{
		client: client,
		pubsub: ps,
		fan:    newFanout(logger),
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.listen()
	return r, nil
}

// NewRedisFromURL parses a redis:// URL, pings the server and builds the broker.
func NewRedisFromURL(ctx context.Context, url string, logger *slog.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedis(ctx, client, logger)
}

func (r *Redis) listen() {
	defer close(r.done)
	for msg := range r.pubsub.Channel() {
		var ev models.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			r.logger.Error("failed to decode redis event", "channel", msg.Channel, "error", err)
			continue
		}
		ev.Topic = msg.Channel
		r.fan.deliver(ev)
	}
}

func (r *Redis) Publish(ctx context.Context, topic string, ev models.Event) error {
	ev.Topic = topic
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, topic, payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.fan.add(topic)
}

// Close stops the listener and closes every subscription. The redis client
// itself is left open.
func (r *Redis) Close() error {
	var err error
	r.once.Do(func() {
		err = r.pubsub.Close()
		<-r.done
		r.fan.closeAll()
	})
	return err
}
