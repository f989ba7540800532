package chathub

import (
	"context"
	"sort"
	"sync"

	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
)

// Subscriptions fans a client's topic subscriptions into one event channel.
type Subscriptions struct {
	broker pubsub.Broker
	events chan models.Event

	mu   sync.Mutex
	subs map[string]pubsub.Subscription

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewSubscriptions(b pubsub.Broker) *Subscriptions {
	return &Subscriptions{
		broker: b,
		events: make(chan models.Event, 64),
		subs:   make(map[string]pubsub.Subscription),
		done:   make(chan struct{}),
	}
}

// Events is closed once Close has stopped every forwarder.
func (s *Subscriptions) Events() <-chan models.Event {
	return s.events
}

// Add subscribes to topic. Adding a topic twice is a no-op.
func (s *Subscriptions) Add(ctx context.Context, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return pubsub.ErrClosed
	default:
	}
	if _, ok := s.subs[topic]; ok {
		return nil
	}

	sub, err := s.broker.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	s.subs[topic] = sub
	s.wg.Add(1)
	go s.forward(sub)
	return nil
}

// Remove drops the subscription to topic if present.
func (s *Subscriptions) Remove(topic string) {
	s.mu.Lock()
	sub, ok := s.subs[topic]
	delete(s.subs, topic)
	s.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// Topics returns the current topics in sorted order.
func (s *Subscriptions) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.subs))
	for t := range s.subs {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (s *Subscriptions) Close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		for topic, sub := range s.subs {
			sub.Close()
			delete(s.subs, topic)
		}
		s.mu.Unlock()
		s.wg.Wait()
		close(s.events)
	})
}

func (s *Subscriptions) forward(sub pubsub.Subscription) {
	defer s.wg.Done()
	for ev := range sub.Events() {
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
