package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/client"
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const subscribeTimeout = 5 * time.Second

// Sender is the part of *tgbotapi.BotAPI the bridge writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client implements chathub.Client for one Telegram chat. Incoming updates
// are handled centrally by BotService; the client only pushes events out.
type Client struct {
	ParticipantID string
	ChatID        int64
	Hub           *chathub.ManagerService
	Bot           Sender
	Subs          *chathub.Subscriptions
	Limiter       *client.RateLimiter

	localizer *localization.Localizer
	logger    *slog.Logger

	mu        sync.Mutex
	lang      string
	sessionID string
	leaving   string
	search    *searchRun
	closed    bool

	once sync.Once
}

type searchRun struct {
	cancel context.CancelFunc
}

func newClient(hub *chathub.ManagerService, bot Sender, loc *localization.Localizer, participantID string, chatID int64) *Client {
	return &Client{
		ParticipantID: participantID,
		ChatID:        chatID,
		Hub:           hub,
		Bot:           bot,
		Subs:          chathub.NewSubscriptions(hub.Broker),
		Limiter:       client.NewRateLimiter(client.NewMemoryKV()),
		localizer:     loc,
		logger:        hub.Logger().With("participant", participantID, "client", "telegram"),
		lang:          localization.DefaultLanguage,
	}
}

func (c *Client) GetParticipantID() string { return c.ParticipantID }

func (c *Client) Run() {
	go c.writePump()
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.stopSearch()
		c.Subs.Close()
	})
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Session returns the id of the session the chat is in, or "".
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setLang(lang string) {
	c.mu.Lock()
	c.lang = lang
	c.mu.Unlock()
}

func (c *Client) text(key string, args ...any) string {
	c.mu.Lock()
	lang := c.lang
	c.mu.Unlock()
	if len(args) > 0 {
		return c.localizer.Format(lang, key, args...)
	}
	return c.localizer.GetString(lang, key)
}

func (c *Client) reply(key string, args ...any) {
	c.sendText(c.text(key, args...))
}

func (c *Client) sendText(text string) {
	if _, err := c.Bot.Send(tgbotapi.NewMessage(c.ChatID, text)); err != nil {
		c.logger.Error("failed to send telegram message", "chat_id", c.ChatID, "error", err)
	}
}

// beginSearch registers a running search. It returns false if one is
// already running.
func (c *Client) beginSearch(parent context.Context) (context.Context, *searchRun, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.search != nil {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	c.search = &searchRun{cancel: cancel}
	return ctx, c.search, true
}

func (c *Client) finishSearch(run *searchRun) {
	c.mu.Lock()
	if c.search == run {
		c.search = nil
	}
	c.mu.Unlock()
	run.cancel()
}

func (c *Client) searching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.search != nil
}

// stopSearch cancels the running search and reports whether there was one.
func (c *Client) stopSearch() bool {
	c.mu.Lock()
	run := c.search
	c.search = nil
	c.mu.Unlock()
	if run == nil {
		return false
	}
	run.cancel()
	return true
}

// enter follows the session's topics. It returns false if the chat was
// already in that session.
func (c *Client) enter(session *models.Session) bool {
	c.mu.Lock()
	if c.sessionID == session.ID {
		c.mu.Unlock()
		return false
	}
	previous := c.sessionID
	c.sessionID = session.ID
	c.leaving = ""
	c.mu.Unlock()

	c.stopSearch()
	if previous != "" {
		c.unfollow(previous)
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	for _, topic := range models.SessionTopics(session.ID) {
		if err := c.Subs.Add(ctx, topic); err != nil {
			c.logger.Error("failed to follow session topic", "topic", topic, "error", err)
		}
	}
	return true
}

// markLeaving records that the participant itself is ending sessionID.
func (c *Client) markLeaving(sessionID string) {
	c.mu.Lock()
	c.leaving = sessionID
	c.mu.Unlock()
}

// exit drops sessionID. current reports whether it was the chat's session,
// self whether the participant ended it.
func (c *Client) exit(sessionID string) (current, self bool) {
	c.mu.Lock()
	if c.sessionID != sessionID {
		c.mu.Unlock()
		return false, false
	}
	self = c.leaving == sessionID
	c.sessionID = ""
	c.leaving = ""
	c.mu.Unlock()

	c.unfollow(sessionID)
	return true, self
}

func (c *Client) unfollow(sessionID string) {
	for _, topic := range models.SessionTopics(sessionID) {
		c.Subs.Remove(topic)
	}
}

// writePump turns hub events into Telegram messages until Subs is closed.
func (c *Client) writePump() {
	defer c.logger.Debug("telegram write pump stopped")
	for ev := range c.Subs.Events() {
		c.handleEvent(ev)
	}
}

func (c *Client) handleEvent(ev models.Event) {
	switch ev.Type {
	case models.EventSessionCreated:
		if ev.Session == nil || !ev.Session.IsActive() || !ev.Session.Has(c.ParticipantID) {
			return
		}
		if c.enter(ev.Session) {
			c.reply("match_found")
		}

	case models.EventMessage:
		if ev.Message == nil || ev.Message.SenderID == c.ParticipantID || ev.Message.SessionID != c.Session() {
			return
		}
		c.sendText(ev.Message.Content)

	case models.EventTyping:
		if ev.Typing == nil || ev.Typing.ParticipantID == c.ParticipantID || !ev.Typing.IsTyping {
			return
		}
		if _, err := c.Bot.Request(tgbotapi.NewChatAction(c.ChatID, tgbotapi.ChatTyping)); err != nil {
			c.logger.Warn("failed to send chat action", "error", err)
		}

	case models.EventSessionStatus:
		if ev.Session == nil || ev.Session.IsActive() {
			return
		}
		if current, self := c.exit(ev.Session.ID); current && !self {
			c.reply("partner_left")
		}
	}
}
