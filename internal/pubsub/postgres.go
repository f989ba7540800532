package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"strangerchat/backend/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute

	// maxNotifyPayload is the largest payload pg_notify accepts.
	maxNotifyPayload = 7999
	loadTimeout      = 5 * time.Second
)

var ErrPayloadTooLarge = errors.New("pubsub: notification payload too large")

// notification is the NOTIFY payload. Message bodies are not sent; the
// listening side loads the row by id.
type notification struct {
	models.Event
	MessageID string `json:"message_id,omitempty"`
}

func encodeNotification(topic string, ev models.Event) ([]byte, error) {
	ev.Topic = topic
	n := notification{Event: ev}
	if ev.Message != nil {
		n.MessageID = ev.Message.ID
		n.Message = nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	if len(payload) > maxNotifyPayload {
		return nil, fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(payload), topic)
	}
	return payload, nil
}

// Postgres relays events with NOTIFY/LISTEN on the application database, so
// a deployment needs no extra infrastructure. Each topic is a channel that
// is LISTENed while at least one local subscriber follows it.
type Postgres struct {
	db       *gorm.DB
	listener *pq.Listener
	fan      *fanout
	logger   *slog.Logger
	done     chan struct{}
	once     sync.Once
}

var _ Broker = (*Postgres)(nil)

// NewPostgres opens a dedicated lib/pq listener connection for dsn and
// publishes through db.
func NewPostgres(db *gorm.DB, dsn string, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Postgres{
		db:     db,
		fan:    newFanout(logger),
		logger: logger,
		done:   make(chan struct{}),
	}
	p.listener = pq.NewListener(dsn, listenerMinReconnect, listenerMaxReconnect, p.onListenerEvent)
	p.fan.onFirst = func(topic string) error {
		if err := p.listener.Listen(topic); err != nil && err != pq.ErrChannelAlreadyOpen {
			return fmt.Errorf("postgres: listen %s: %w", topic, err)
		}
		return nil
	}
	p.fan.onLast = func(topic string) {
		if err := p.listener.Unlisten(topic); err != nil && err != pq.ErrChannelNotOpen {
			p.logger.Warn("postgres unlisten failed", "topic", topic, "error", err)
		}
	}
	go p.listen()
	return p
}

func (p *Postgres) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		p.logger.Warn("postgres listener connection problem", "event", ev, "error", err)
	case pq.ListenerEventReconnected:
		p.logger.Info("postgres listener reconnected")
	}
}

func (p *Postgres) listen() {
	defer close(p.done)
	for n := range p.listener.Notify {
		// A nil notification follows a reconnect; events sent meanwhile are
		// lost and clients recover them from history.
		if n == nil {
			continue
		}
		ev, err := p.decode(n.Channel, n.Extra)
		if err != nil {
			p.logger.Error("failed to decode postgres notification", "channel", n.Channel, "error", err)
			continue
		}
		p.fan.deliver(ev)
	}
}

// decode rebuilds the event from a payload, loading the message row when
// the notification refers to one.
func (p *Postgres) decode(channel, payload string) (models.Event, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return models.Event{}, err
	}
	ev := n.Event
	ev.Topic = channel
	if n.MessageID == "" {
		return ev, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	var msg models.Message
	if err := p.db.WithContext(ctx).Where("id = ?", n.MessageID).First(&msg).Error; err != nil {
		return models.Event{}, fmt.Errorf("load message %s: %w", n.MessageID, err)
	}
	ev.Message = &msg
	return ev, nil
}

func (p *Postgres) Publish(ctx context.Context, topic string, ev models.Event) error {
	payload, err := encodeNotification(topic, ev)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", topic, string(payload)).Error
}

func (p *Postgres) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.fan.add(topic)
}

func (p *Postgres) Close() error {
	var err error
	p.once.Do(func() {
		p.fan.closeAll()
		err = p.listener.Close()
		<-p.done
	})
	return err
}
