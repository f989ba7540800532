package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"

	"github.com/gorilla/websocket"
)

const (
	notifierBuffer     = 256
	notifierMinBackoff = 500 * time.Millisecond
	notifierMaxBackoff = 30 * time.Second
	notifierWriteWait  = 10 * time.Second
)

// WSNotifier multiplexes topic subscriptions over one WebSocket to /ws.
// When the connection drops it redials with backoff and re-subscribes
// every live topic.
type WSNotifier struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	reconnected chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]map[*wsSubscription]struct{}
	pending map[string][]chan error
	closed  bool

	writeMu sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ Notifier = (*WSNotifier)(nil)

// DialNotifier connects to baseURL's /ws endpoint with the identity's token.
func DialNotifier(ctx context.Context, baseURL string, identity Identity, logger *slog.Logger) (*WSNotifier, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("token", identity.Token)
	u.RawQuery = q.Encode()

	n := &WSNotifier{
		url:     u.String(),
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		subs:    make(map[string]map[*wsSubscription]struct{}),
		pending: make(map[string][]chan error),
		done:    make(chan struct{}),

		reconnected: make(chan struct{}, 1),
	}
	conn, err := n.dial(ctx)
	if err != nil {
		return nil, err
	}
	n.conn = conn
	n.wg.Add(1)
	go n.run(conn)
	return n, nil
}

func (n *WSNotifier) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := n.dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial notifier: %w", ErrDeliveryFailure, err)
	}
	return conn, nil
}

// Subscribe registers topic and waits for the server to accept it. While
// reconnecting the subscription is registered and confirmed on redial.
func (n *WSNotifier) Subscribe(ctx context.Context, topic string) (pubsub.Subscription, error) {
	sub := &wsSubscription{topic: topic, events: make(chan models.Event, notifierBuffer), parent: n}
	ack := make(chan error, 1)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	set, existed := n.subs[topic]
	if !existed {
		set = make(map[*wsSubscription]struct{})
		n.subs[topic] = set
	}
	set[sub] = struct{}{}
	conn := n.conn
	if existed || conn == nil {
		n.mu.Unlock()
		return sub, nil
	}
	n.pending[topic] = append(n.pending[topic], ack)
	n.mu.Unlock()

	if err := n.write(conn, chathub.ClientFrame{Type: chathub.FrameSubscribe, Topic: topic}); err != nil {
		// The run loop re-subscribes after redialing.
		n.logger.Warn("subscribe frame not sent", "topic", topic, "error", err)
		return sub, nil
	}

	select {
	case err := <-ack:
		if errors.Is(err, ErrDeliveryFailure) {
			return sub, nil
		}
		if err != nil {
			sub.Close()
			return nil, err
		}
		return sub, nil
	case <-ctx.Done():
		sub.Close()
		return nil, ctx.Err()
	case <-n.done:
		return nil, ErrClosed
	}
}

func (n *WSNotifier) Reconnected() <-chan struct{} {
	return n.reconnected
}

func (n *WSNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.done)
	conn := n.conn
	subs := n.subs
	n.subs = make(map[string]map[*wsSubscription]struct{})
	n.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	n.wg.Wait()
	for _, set := range subs {
		for sub := range set {
			sub.closeEvents()
		}
	}
	return nil
}

func (n *WSNotifier) write(conn *websocket.Conn, frame chathub.ClientFrame) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(notifierWriteWait))
	return conn.WriteJSON(frame)
}

func (n *WSNotifier) run(conn *websocket.Conn) {
	defer n.wg.Done()
	backoff := notifierMinBackoff

	for {
		n.readLoop(conn)

		n.mu.Lock()
		n.conn = nil
		n.failPending(ErrDeliveryFailure)
		n.mu.Unlock()

		for {
			select {
			case <-n.done:
				return
			case <-time.After(backoff):
			}
			next, err := n.dial(context.Background())
			if err == nil {
				conn = next
				backoff = notifierMinBackoff
				break
			}
			n.logger.Warn("notifier redial failed", "error", err, "retry_in", backoff)
			backoff = min(backoff*2, notifierMaxBackoff)
		}

		n.mu.Lock()
		if n.closed {
			n.mu.Unlock()
			conn.Close()
			return
		}
		n.conn = conn
		topics := make([]string, 0, len(n.subs))
		for topic := range n.subs {
			topics = append(topics, topic)
		}
		n.mu.Unlock()

		for _, topic := range topics {
			if err := n.write(conn, chathub.ClientFrame{Type: chathub.FrameSubscribe, Topic: topic}); err != nil {
				n.logger.Warn("resubscribe failed", "topic", topic, "error", err)
				break
			}
		}
		n.logger.Info("notifier reconnected", "topics", len(topics))
		select {
		case n.reconnected <- struct{}{}:
		default:
		}
	}
}

func (n *WSNotifier) readLoop(conn *websocket.Conn) {
	for {
		var ev models.Event
		if err := conn.ReadJSON(&ev); err != nil {
			select {
			case <-n.done:
			default:
				n.logger.Warn("notifier connection lost", "error", err)
			}
			conn.Close()
			return
		}
		n.dispatch(ev)
	}
}

func (n *WSNotifier) dispatch(ev models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch ev.Type {
	case models.EventSubscribed:
		n.resolve(ev.Topic, nil)
		return
	case models.EventUnsubscribed:
		return
	case models.EventError:
		if ev.Topic == "" || len(n.pending[ev.Topic]) == 0 {
			n.logger.Warn("notifier error frame", "topic", ev.Topic, "error", ev.Error)
			return
		}
		n.resolve(ev.Topic, errors.New(ev.Error))
		return
	}

	for sub := range n.subs[ev.Topic] {
		select {
		case sub.events <- ev:
		default:
			n.logger.Warn("notifier subscriber too slow, event dropped", "topic", ev.Topic, "type", ev.Type)
		}
	}
}

// resolve answers the oldest pending subscribe for topic. Callers hold mu.
func (n *WSNotifier) resolve(topic string, err error) {
	waiters := n.pending[topic]
	if len(waiters) == 0 {
		return
	}
	waiters[0] <- err
	if len(waiters) == 1 {
		delete(n.pending, topic)
	} else {
		n.pending[topic] = waiters[1:]
	}
}

// failPending answers every pending subscribe. Callers hold mu.
func (n *WSNotifier) failPending(err error) {
	for topic, waiters := range n.pending {
		for _, w := range waiters {
			w <- err
		}
		delete(n.pending, topic)
	}
}

func (n *WSNotifier) remove(sub *wsSubscription) {
	n.mu.Lock()
	set, ok := n.subs[sub.topic]
	if !ok {
		n.mu.Unlock()
		return
	}
	delete(set, sub)
	last := len(set) == 0
	if last {
		delete(n.subs, sub.topic)
	}
	conn := n.conn
	n.mu.Unlock()

	if last && conn != nil {
		if err := n.write(conn, chathub.ClientFrame{Type: chathub.FrameUnsubscribe, Topic: sub.topic}); err != nil {
			n.logger.Debug("unsubscribe frame not sent", "topic", sub.topic, "error", err)
		}
	}
}

type wsSubscription struct {
	topic  string
	events chan models.Event
	parent *WSNotifier
	once   sync.Once
}

func (s *wsSubscription) Events() <-chan models.Event {
	return s.events
}

func (s *wsSubscription) Close() {
	s.once.Do(func() {
		s.parent.remove(s)
		close(s.events)
	})
}

// closeEvents is used by the notifier's own Close; the topic map is already gone.
func (s *wsSubscription) closeEvents() {
	s.once.Do(func() { close(s.events) })
}
