package chathub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"strangerchat/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	requestTimeout = 5 * time.Second
)

// Inbound frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameTyping      = "typing"
	FrameHeartbeat   = "heartbeat"
)

// ClientFrame is a request sent by the browser over the socket.
type ClientFrame struct {
	Type      string `json:"type"`
	Topic     string `json:"topic,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	IsTyping  bool   `json:"is_typing,omitempty"`
}

// WebSocketClient streams subscribed topics to one browser connection.
type WebSocketClient struct {
	ParticipantID string
	Conn          *websocket.Conn
	Hub           *ManagerService
	Subs          *Subscriptions

	replies chan models.Event
	once    sync.Once
	logger  *slog.Logger
}

func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, participantID string) *WebSocketClient {
	return &WebSocketClient{
		ParticipantID: participantID,
		Conn:          conn,
		Hub:           hub,
		Subs:          NewSubscriptions(hub.Broker),
		replies:       make(chan models.Event, 16),
		logger:        hub.Logger().With("participant", participantID, "client", "ws"),
	}
}

func (c *WebSocketClient) GetParticipantID() string { return c.ParticipantID }

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops both pumps. writePump exits once Subs drains.
func (c *WebSocketClient) Close() {
	c.once.Do(func() {
		c.Subs.Close()
		c.Conn.Close()
	})
}

func (c *WebSocketClient) readPump() {
	defer c.Hub.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame ClientFrame
		if err := c.Conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}
		c.handle(frame)
	}
}

func (c *WebSocketClient) handle(frame ClientFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch frame.Type {
	case FrameSubscribe:
		if err := c.Hub.AuthorizeTopic(ctx, c.ParticipantID, frame.Topic); err != nil {
			c.reply(models.Event{Type: models.EventError, Topic: frame.Topic, Error: err.Error()})
			return
		}
		if err := c.Subs.Add(ctx, frame.Topic); err != nil {
			c.reply(models.Event{Type: models.EventError, Topic: frame.Topic, Error: err.Error()})
			return
		}
		c.reply(models.Event{Type: models.EventSubscribed, Topic: frame.Topic})

	case FrameUnsubscribe:
		c.Subs.Remove(frame.Topic)
		c.reply(models.Event{Type: models.EventUnsubscribed, Topic: frame.Topic})

	case FrameTyping:
		err := c.Hub.Presence.SetTyping(ctx, frame.SessionID, c.ParticipantID, frame.IsTyping)
		if err != nil && !errors.Is(err, ErrSessionEnded) {
			c.reply(models.Event{Type: models.EventError, Topic: models.SessionTypingTopic(frame.SessionID), Error: err.Error()})
		}

	case FrameHeartbeat:
		if err := c.Hub.Presence.Heartbeat(ctx, c.ParticipantID); err != nil {
			c.logger.Warn("heartbeat failed", "error", err)
		}

	default:
		c.reply(models.Event{Type: models.EventError, Error: "unknown frame type: " + frame.Type})
	}
}

// reply queues a connection-level frame; it is dropped if the writer is behind.
func (c *WebSocketClient) reply(ev models.Event) {
	select {
	case c.replies <- ev:
	default:
		c.logger.Warn("reply dropped", "type", ev.Type)
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Subs.Events():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}

		case ev := <-c.replies:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
