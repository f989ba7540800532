package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
)

// State is where the chat is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateChatting
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateChatting:
		return "chatting"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// UpdateKind tells a front-end what changed.
type UpdateKind string

const (
	UpdateMatched UpdateKind = "matched"
	UpdateMessage UpdateKind = "message"
	UpdateTyping  UpdateKind = "typing"
	UpdateEnded   UpdateKind = "ended"
)

type Update struct {
	Kind          UpdateKind
	Session       *models.Session
	Message       *models.Message
	PartnerTyping bool
}

const (
	updateBuffer   = 64
	cleanupTimeout = 5 * time.Second

	NoticePartnerLeft = "Your partner has left the chat."
	NoticeYouLeft     = "You left the chat."
)

// ChatConfig wires a Chat to its backend.
type ChatConfig struct {
	Backend Backend
	// Dial opens the push channel once the identity is known.
	Dial         func(ctx context.Context, identity Identity) (Notifier, error)
	KV           KV
	Logger       *slog.Logger
	PollInterval time.Duration
	// SyncInterval is how often an open chat is checked against the server.
	SyncInterval time.Duration
	TypingIdle   time.Duration
}

// Chat drives one participant through search, chat and leave.
type Chat struct {
	backend      Backend
	dial         func(ctx context.Context, identity Identity) (Notifier, error)
	identities   *IdentityStore
	limiter      *RateLimiter
	transcript   *Transcript
	logger       *slog.Logger
	pollInterval time.Duration
	syncInterval time.Duration
	typingIdle   time.Duration

	identity Identity
	notifier Notifier

	mu            sync.Mutex
	state         State
	pairing       *Pairing
	typingState   *TypingState
	typingSender  *TypingSender
	sessionSubs   []pubsub.Subscription
	sessionCancel context.CancelFunc
	updates       chan Update
	leaving       bool
	closed        bool
	closeOnce     sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewChat(cfg ChatConfig) *Chat {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.KV == nil {
		cfg.KV = NewMemoryKV()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultMatchPollInterval
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = config.DefaultHeartbeatInterval
	}
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = config.TypingIdle
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Chat{
		backend:      cfg.Backend,
		dial:         cfg.Dial,
		identities:   NewIdentityStore(cfg.KV, cfg.Backend),
		limiter:      NewRateLimiter(cfg.KV),
		transcript:   NewTranscript(),
		logger:       cfg.Logger,
		pollInterval: cfg.PollInterval,
		syncInterval: cfg.SyncInterval,
		typingIdle:   cfg.TypingIdle,
		updates:      make(chan Update, updateBuffer),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start loads or registers the identity, opens the push channel and
// starts the heartbeat and the session sync.
func (c *Chat) Start(ctx context.Context) error {
	identity, err := c.identities.Identity(ctx)
	if err != nil {
		return err
	}
	c.identity = identity
	c.backend.Use(identity)
	c.logger = c.logger.With("participant", identity.ParticipantID)

	notifier, err := c.dial(ctx, identity)
	if err != nil {
		return fmt.Errorf("open notifier: %w", err)
	}
	c.notifier = notifier

	hb := NewHeartbeat(c.backend.Heartbeat, c.logger)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		hb.Run(c.ctx)
	}()
	go c.watch(c.ctx)
	return nil
}

func (c *Chat) ParticipantID() string { return c.identity.ParticipantID }

// Updates streams changes for the front-end. Closed by Close.
func (c *Chat) Updates() <-chan Update { return c.updates }

func (c *Chat) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pairing returns the current or last session.
func (c *Chat) Pairing() *Pairing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairing
}

func (c *Chat) Messages() []Entry { return c.transcript.Entries() }

func (c *Chat) PartnerTyping() bool {
	c.mu.Lock()
	ts := c.typingState
	c.mu.Unlock()
	return ts != nil && ts.PartnerTyping()
}

// Limiter exposes the cooldown state for display.
func (c *Chat) Limiter() *RateLimiter { return c.limiter }

// Resume adopts an active session left over from a previous connection.
// It returns nil when there is nothing to resume.
func (c *Chat) Resume(ctx context.Context) (*Pairing, error) {
	p, err := c.backend.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		if _, _, ok := c.identities.StoredSession(); ok {
			if err := c.identities.ForgetSession(); err != nil {
				c.logger.Warn("clear stored session failed", "error", err)
			}
		}
		return nil, nil
	}
	return c.enter(ctx, p)
}

// FindPartner resumes an active session or queues and waits until paired,
// cancelled with Cancel, or ctx ends.
func (c *Chat) FindPartner(ctx context.Context) (*Pairing, error) {
	if p, err := c.Resume(ctx); err != nil || p != nil {
		return p, err
	}
	if err := c.limiter.Guard(ActionSearch); err != nil {
		return nil, err
	}
	if err := c.limiter.Record(ActionSearch); err != nil {
		c.logger.Warn("record search failed", "error", err)
	}

	self := c.identity.ParticipantID
	sub, err := c.notifier.Subscribe(ctx, models.ParticipantSessionsTopic(self))
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	c.setState(StateSearching)
	if err := c.backend.Enqueue(ctx); err != nil {
		if errors.Is(err, ErrAlreadyMatched) {
			if p, rerr := c.Resume(ctx); rerr == nil && p != nil {
				return p, nil
			}
		}
		c.setState(StateIdle)
		return nil, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	created := sub.Events()

	for {
		p, err := c.backend.Match(ctx)
		switch {
		case err == nil:
			return c.enter(ctx, p)
		case errors.Is(err, ErrAlreadyMatched) && p != nil:
			return c.enter(ctx, p)
		case errors.Is(err, ErrNotQueued):
			c.setState(StateIdle)
			return nil, err
		case errors.Is(err, ErrNoPartnerAvailable):
		default:
			c.logger.Warn("match attempt failed", "error", err)
		}

		select {
		case <-ctx.Done():
			c.abandonSearch()
			return nil, ctx.Err()
		case ev, ok := <-created:
			if !ok {
				created = nil
				continue
			}
			if ev.Type == models.EventSessionCreated && ev.Session != nil && ev.Session.Has(self) && ev.Session.IsActive() {
				return c.enter(ctx, &Pairing{Session: ev.Session, PartnerID: ev.Session.Partner(self)})
			}
		case <-ticker.C:
		}
	}
}

// Cancel leaves the waiting queue. A running FindPartner returns ErrNotQueued.
func (c *Chat) Cancel(ctx context.Context) error {
	if err := c.backend.Dequeue(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state == StateSearching {
		c.state = StateIdle
	}
	c.mu.Unlock()
	return nil
}

func (c *Chat) abandonSearch() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := c.backend.Dequeue(ctx); err != nil {
		c.logger.Warn("dequeue after abandoned search failed", "error", err)
	}
	c.setState(StateIdle)
}

func (c *Chat) enter(ctx context.Context, p *Pairing) (*Pairing, error) {
	c.mu.Lock()
	if c.state == StateChatting && c.pairing != nil && c.pairing.Session.ID == p.Session.ID {
		current := c.pairing
		c.mu.Unlock()
		return current, nil
	}
	c.mu.Unlock()

	sessionID := p.Session.ID
	subs := make([]pubsub.Subscription, 0, 3)
	for _, topic := range models.SessionTopics(sessionID) {
		sub, err := c.notifier.Subscribe(ctx, topic)
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
		subs = append(subs, sub)
	}

	c.transcript.Reset()
	history, err := c.backend.History(ctx, sessionID)
	if err != nil {
		c.logger.Warn("load history failed", "session", sessionID, "error", err)
	}
	c.transcript.Merge(history)

	if err := c.identities.RememberSession(sessionID, p.PartnerID); err != nil {
		c.logger.Warn("store session failed", "session", sessionID, "error", err)
	}

	sender := NewTypingSender(c.typingIdle, func(isTyping bool) {
		tctx, cancel := context.WithTimeout(c.ctx, cleanupTimeout)
		defer cancel()
		if err := c.backend.SetTyping(tctx, sessionID, isTyping); err != nil && !errors.Is(err, ErrSessionEnded) {
			c.logger.Debug("typing signal failed", "session", sessionID, "error", err)
		}
	})
	sessionCtx, cancel := context.WithCancel(c.ctx)

	c.mu.Lock()
	c.state = StateChatting
	c.pairing = p
	c.leaving = false
	c.typingState = NewTypingState(c.identity.ParticipantID)
	c.typingSender = sender
	c.sessionSubs = subs
	c.sessionCancel = cancel
	c.mu.Unlock()

	for _, sub := range subs {
		c.wg.Add(1)
		go c.pump(sessionCtx, sessionID, sub)
	}

	c.logger.Info("chat started", "session", sessionID, "partner", p.PartnerID)
	c.emit(Update{Kind: UpdateMatched, Session: p.Session})
	return p, nil
}

func (c *Chat) pump(ctx context.Context, sessionID string, sub pubsub.Subscription) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			c.handle(sessionID, ev)
		}
	}
}

func (c *Chat) handle(sessionID string, ev models.Event) {
	switch ev.Type {
	case models.EventMessage:
		if ev.Message == nil || ev.Message.SessionID != sessionID {
			return
		}
		if c.transcript.Apply(*ev.Message) {
			c.emit(Update{Kind: UpdateMessage, Message: ev.Message})
		}

	case models.EventTyping:
		if ev.Typing == nil {
			return
		}
		c.mu.Lock()
		ts := c.typingState
		c.mu.Unlock()
		if ts != nil && ts.Observe(*ev.Typing) {
			c.emit(Update{Kind: UpdateTyping, PartnerTyping: ev.Typing.IsTyping})
		}

	case models.EventSessionStatus:
		if ev.Session != nil && !ev.Session.IsActive() {
			c.ended(sessionID, ev.Session, true)
		}
	}
}

// watch resyncs the open chat whenever the notifier reconnects and on
// every sync tick.
func (c *Chat) watch(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.notifier.Reconnected():
		case <-ticker.C:
		}
		c.resync(ctx)
	}
}

// resync catches up on pushes lost while the notifier was down: missing
// messages are merged from history and a session the server no longer
// has active is ended.
func (c *Chat) resync(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateChatting || c.pairing == nil {
		c.mu.Unlock()
		return
	}
	sessionID := c.pairing.Session.ID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	p, err := c.backend.ActiveSession(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("session sync failed", "session", sessionID, "error", err)
		}
		return
	}
	history, err := c.backend.History(ctx, sessionID)
	if err != nil {
		c.logger.Warn("history sync failed", "session", sessionID, "error", err)
	}
	for i := range history {
		if c.transcript.Apply(history[i]) {
			c.emit(Update{Kind: UpdateMessage, Message: &history[i]})
		}
	}
	if p == nil || p.Session.ID != sessionID {
		c.ended(sessionID, nil, true)
	}
}

// ended tears the session down locally. Repeated notifications for the
// same session are ignored.
func (c *Chat) ended(sessionID string, session *models.Session, remote bool) {
	c.mu.Lock()
	if c.state != StateChatting || c.pairing == nil || c.pairing.Session.ID != sessionID {
		c.mu.Unlock()
		return
	}
	c.state = StateEnded
	if c.leaving {
		// Our own leave raced its status echo.
		remote = false
		c.leaving = false
	}
	if session != nil {
		c.pairing = &Pairing{Session: session, PartnerID: c.pairing.PartnerID}
	}
	subs, cancel, sender := c.sessionSubs, c.sessionCancel, c.typingSender
	c.sessionSubs, c.sessionCancel = nil, nil
	if c.typingState != nil {
		c.typingState.Reset()
	}
	c.mu.Unlock()

	sender.Cancel()
	cancel()
	for _, sub := range subs {
		sub.Close()
	}

	if remote {
		ctx, done := context.WithTimeout(context.Background(), cleanupTimeout)
		if err := c.backend.EndSession(ctx, sessionID); err != nil {
			c.logger.Warn("confirm session end failed", "session", sessionID, "error", err)
		}
		done()
		c.transcript.AddSystem(NoticePartnerLeft)
	} else {
		c.transcript.AddSystem(NoticeYouLeft)
	}

	if err := c.identities.ForgetSession(); err != nil {
		c.logger.Warn("clear stored session failed", "error", err)
	}
	c.logger.Info("chat ended", "session", sessionID, "remote", remote)
	c.emit(Update{Kind: UpdateEnded, Session: session})
}

// Send shows content optimistically and reconciles it with the server's reply.
func (c *Chat) Send(ctx context.Context, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	state, pairing := c.state, c.pairing
	c.mu.Unlock()
	switch state {
	case StateChatting:
	case StateEnded:
		return nil, ErrSessionEnded
	default:
		return nil, ErrNotChatting
	}

	sessionID := pairing.Session.ID
	tempID := c.transcript.AddPending(c.identity.ParticipantID, content)
	msg, err := c.backend.Send(ctx, sessionID, content)
	if err != nil {
		c.transcript.Rollback(tempID)
		switch {
		case errors.Is(err, ErrSessionEnded):
			c.ended(sessionID, nil, true)
			return nil, err
		case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrInvalidRequest):
			return nil, err
		case errors.Is(err, ErrDeliveryFailure):
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}
	c.transcript.Confirm(tempID, msg)
	return msg, nil
}

// Typing records a keystroke in the message box.
func (c *Chat) Typing() {
	c.mu.Lock()
	sender := c.typingSender
	chatting := c.state == StateChatting
	c.mu.Unlock()
	if chatting && sender != nil {
		sender.Keystroke()
	}
}

// Leave ends the current session. It is throttled by the leave cooldown.
func (c *Chat) Leave(ctx context.Context) error {
	if err := c.limiter.Guard(ActionLeave); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateChatting {
		c.mu.Unlock()
		return ErrNotChatting
	}
	sessionID := c.pairing.Session.ID
	c.leaving = true
	c.mu.Unlock()

	if err := c.backend.EndSession(ctx, sessionID); err != nil {
		c.mu.Lock()
		c.leaving = false
		c.mu.Unlock()
		return err
	}
	if err := c.limiter.Record(ActionLeave); err != nil {
		c.logger.Warn("record leave failed", "error", err)
	}
	c.ended(sessionID, nil, false)
	return nil
}

// Close stops every goroutine and the push channel. Safe to call twice.
func (c *Chat) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		subs, sender := c.sessionSubs, c.typingSender
		c.sessionSubs = nil
		c.mu.Unlock()

		if sender != nil {
			sender.Cancel()
		}
		c.cancel()
		for _, sub := range subs {
			sub.Close()
		}
		if c.notifier != nil {
			err = c.notifier.Close()
		}
		c.wg.Wait()

		c.mu.Lock()
		c.closed = true
		close(c.updates)
		c.mu.Unlock()
	})
	return err
}

func (c *Chat) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Chat) emit(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.updates <- u:
	default:
		c.logger.Warn("update dropped", "kind", u.Kind)
	}
}
