// Package pubsub is the push notification channel between the coordination
// engine and connected clients. Delivery is at-least-once and unordered
// across topics; subscribers must tolerate duplicates.
package pubsub

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"strangerchat/backend/internal/models"
)

// subscriberBuffer bounds how far a subscriber may fall behind before events
// are dropped for it.
const subscriberBuffer = 256

var ErrClosed = errors.New("pubsub: broker closed")

// Subscription is a live topic subscription. Close is safe to call more than once.
type Subscription interface {
	Events() <-chan models.Event
	Close()
}

// Broker publishes events to topics and hands out subscriptions.
type Broker interface {
	Publish(ctx context.Context, topic string, ev models.Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// fanout delivers events to every in-process subscriber of a topic. The
// onFirst/onLast hooks let transport brokers start and stop listening.
type fanout struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
	logger *slog.Logger

	onFirst func(topic string) error
	onLast  func(topic string)
}

func newFanout(logger *slog.Logger) *fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &fanout{
		subs:   make(map[string]map[*subscription]struct{}),
		logger: logger,
	}
}

type subscription struct {
	topic  string
	events chan models.Event
	once   sync.Once
	parent *fanout
}

func (s *subscription) Events() <-chan models.Event { return s.events }

func (s *subscription) Close() {
	s.once.Do(func() {
		s.parent.remove(s)
	})
}

func (f *fanout) add(topic string) (*subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	set, ok := f.subs[topic]
	if !ok {
		if f.onFirst != nil {
			if err := f.onFirst(topic); err != nil {
				return nil, err
			}
		}
		set = make(map[*subscription]struct{})
		f.subs[topic] = set
	}

	sub := &subscription{
		topic:  topic,
		events: make(chan models.Event, subscriberBuffer),
		parent: f,
	}
	set[sub] = struct{}{}
	return sub, nil
}

func (f *fanout) remove(sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	set, ok := f.subs[sub.topic]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.events)
	if len(set) == 0 {
		delete(f.subs, sub.topic)
		if f.onLast != nil && !f.closed {
			f.onLast(sub.topic)
		}
	}
}

// deliver never blocks: a subscriber with a full buffer misses the event.
func (f *fanout) deliver(ev models.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for sub := range f.subs[ev.Topic] {
		select {
		case sub.events <- ev:
		default:
			f.logger.Warn("subscriber too slow, dropping event", "topic", ev.Topic, "type", ev.Type)
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for topic, set := range f.subs {
		for sub := range set {
			close(sub.events)
		}
		delete(f.subs, topic)
	}
}
