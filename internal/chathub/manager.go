package chathub

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage"
)

// ManagerService wires the coordination services together and tracks the
// clients connected to this process.
type ManagerService struct {
	Storage storage.Storage
	Broker  pubsub.Broker

	Queue    *WaitingQueue
	Matcher  *MatcherService
	Sessions *SessionRegistry
	Relay    *Relay
	Presence *Presence

	RegisterCh   chan Client
	UnregisterCh chan Client

	mu      sync.RWMutex
	clients map[string]Client
	stopped chan struct{}

	logger *slog.Logger
}

func NewManagerService(s storage.Storage, b pubsub.Broker, logger *slog.Logger) *ManagerService {
	if logger == nil {
		logger = slog.Default()
	}
	registry := NewSessionRegistry(s, b, logger)
	return &ManagerService{
		Storage:      s,
		Broker:       b,
		Queue:        NewWaitingQueue(s, logger),
		Matcher:      NewMatcherService(s, registry, logger),
		Sessions:     registry,
		Relay:        NewRelay(s, b, logger),
		Presence:     NewPresence(s, b, logger),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		clients:      make(map[string]Client),
		stopped:      make(chan struct{}),
		logger:       logger,
	}
}

// Logger returns the hub's logger for clients it creates.
func (m *ManagerService) Logger() *slog.Logger {
	return m.logger
}

// Run processes client registration until ctx is done, then closes every client.
func (m *ManagerService) Run(ctx context.Context) {
	m.logger.Info("hub started")
	defer close(m.stopped)
	for {
		select {
		case c := <-m.RegisterCh:
			m.register(c)
		case c := <-m.UnregisterCh:
			m.unregister(c)
		case <-ctx.Done():
			m.mu.Lock()
			clients := m.clients
			m.clients = make(map[string]Client)
			m.mu.Unlock()
			for _, c := range clients {
				c.Close()
			}
			m.logger.Info("hub stopped", "clients", len(clients))
			return
		}
	}
}

// Register hands c to the hub. After Run has returned the client is closed instead.
func (m *ManagerService) Register(c Client) {
	select {
	case m.RegisterCh <- c:
	case <-m.stopped:
		c.Close()
	}
}

// Unregister removes c from the hub and closes it.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.stopped:
		c.Close()
	}
}

// register replaces any previous client of the same participant.
func (m *ManagerService) register(c Client) {
	id := c.GetParticipantID()
	m.mu.Lock()
	old, ok := m.clients[id]
	m.clients[id] = c
	m.mu.Unlock()

	if ok && old != c {
		old.Close()
		m.logger.Info("client replaced", "participant", id)
	}
	c.Run()
	m.logger.Debug("client registered", "participant", id)
}

func (m *ManagerService) unregister(c Client) {
	id := c.GetParticipantID()
	m.mu.Lock()
	current, ok := m.clients[id]
	if ok && current == c {
		delete(m.clients, id)
	}
	m.mu.Unlock()

	c.Close()
	m.logger.Debug("client unregistered", "participant", id)
}

// Client returns the connected client of a participant.
func (m *ManagerService) Client(participantID string) (Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[participantID]
	return c, ok
}

func (m *ManagerService) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// AuthorizeTopic checks that participantID may subscribe to topic: its own
// participant topic, or a topic of a session it belongs to.
func (m *ManagerService) AuthorizeTopic(ctx context.Context, participantID, topic string) error {
	if topic == models.ParticipantSessionsTopic(participantID) {
		return nil
	}
	if strings.HasPrefix(topic, "participant:") {
		return ErrForbiddenTopic
	}
	sessionID, ok := models.ParseSessionTopic(topic)
	if !ok {
		return ErrForbiddenTopic
	}
	_, err := m.Sessions.Authorize(ctx, sessionID, participantID)
	return err
}
