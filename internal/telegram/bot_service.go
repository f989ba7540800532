// Package telegram bridges Telegram chats into the pairing engine. Every
// chat maps to a participant; the bot drives the queue, matcher and relay
// on its behalf and pushes hub events back as Telegram messages.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/client"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotService is responsible for receiving Telegram updates and routing them to the hub.
type BotService struct {
	BotAPI    *tgbotapi.BotAPI
	Bot       Sender
	Hub       *chathub.ManagerService
	Localizer *localization.Localizer

	// HeartbeatInterval is how often the bot reports its chats as alive.
	HeartbeatInterval time.Duration

	mu      sync.Mutex
	clients map[int64]*Client

	logger *slog.Logger
}

// NewBotService authorizes against the Bot API.
func NewBotService(token string, hub *chathub.ManagerService, logger *slog.Logger) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	s, err := NewBridge(bot, hub, logger)
	if err != nil {
		return nil, err
	}
	s.BotAPI = bot
	s.logger.Info("authorized on telegram", "account", bot.Self.UserName)
	return s, nil
}

// NewBridge builds a BotService that writes through bot. Run needs BotAPI;
// HandleUpdate does not.
func NewBridge(bot Sender, hub *chathub.ManagerService, logger *slog.Logger) (*BotService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	localizer, err := localization.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create localizer: %w", err)
	}
	return &BotService{
		Bot:               bot,
		Hub:               hub,
		Localizer:         localizer,
		HeartbeatInterval: config.DefaultHeartbeatInterval,
		clients:           make(map[int64]*Client),
		logger:            logger.With("component", "telegram"),
	}, nil
}

// Run long-polls Telegram until ctx is done.
func (s *BotService) Run(ctx context.Context) {
	s.RestoreActiveSessions(ctx)
	go s.heartbeats(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	s.logger.Info("telegram bot started")

	for {
		select {
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			s.logger.Info("telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.HandleUpdate(ctx, update)
		}
	}
}

// RestoreActiveSessions reattaches the chats that were in a session when
// the process last stopped.
func (s *BotService) RestoreActiveSessions(ctx context.Context) {
	ps, err := s.Hub.Storage.TelegramParticipantsInSessions(ctx)
	if err != nil {
		s.logger.Error("failed to load telegram sessions", "error", err)
		return
	}
	restored := 0
	for _, p := range ps {
		if p.TelegramID == nil {
			continue
		}
		if _, err := s.getOrCreateClient(ctx, *p.TelegramID); err != nil {
			s.logger.Error("failed to restore telegram client", "participant", p.ID, "error", err)
			continue
		}
		restored++
	}
	s.logger.Info("telegram sessions restored", "count", restored)
}

// HandleUpdate processes one update from Telegram.
func (s *BotService) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	c, err := s.getOrCreateClient(ctx, msg.Chat.ID)
	if err != nil {
		s.logger.Error("failed to get telegram client", "chat_id", msg.Chat.ID, "error", err)
		return
	}
	if msg.From != nil {
		c.setLang(s.Localizer.Language(msg.From.LanguageCode))
	}
	if err := s.Hub.Presence.Heartbeat(ctx, c.ParticipantID); err != nil {
		s.logger.Warn("heartbeat failed", "participant", c.ParticipantID, "error", err)
	}

	if msg.IsCommand() {
		s.handleCommand(ctx, c, msg.Command())
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		c.reply("unsupported_message_type")
		return
	}
	s.relay(ctx, c, msg.Text)
}

func (s *BotService) handleCommand(ctx context.Context, c *Client, command string) {
	switch command {
	case "start":
		c.reply("welcome")
		s.search(ctx, c)
	case "search":
		s.search(ctx, c)
	case "cancel":
		s.cancel(ctx, c)
	case "stop", "leave":
		s.leave(ctx, c)
	default:
		c.reply("welcome")
	}
}

func (s *BotService) search(ctx context.Context, c *Client) {
	if c.Session() != "" {
		c.reply("already_in_chat")
		return
	}
	if c.searching() {
		c.reply("already_searching")
		return
	}
	if err := c.Limiter.Guard(client.ActionSearch); err != nil {
		s.rejected(c, err)
		return
	}
	searchCtx, run, ok := c.beginSearch(ctx)
	if !ok {
		c.reply("already_searching")
		return
	}
	if err := c.Limiter.Record(client.ActionSearch); err != nil {
		s.logger.Warn("failed to record search", "participant", c.ParticipantID, "error", err)
	}
	c.reply("searching")

	go func() {
		defer c.finishSearch(run)
		match, err := s.Hub.Matcher.Search(searchCtx, c.ParticipantID)
		switch {
		case err == nil:
			if c.enter(match.Session) {
				c.reply("match_found")
			}
		case errors.Is(err, context.Canceled), errors.Is(err, chathub.ErrNotQueued):
		default:
			s.logger.Error("search failed", "participant", c.ParticipantID, "error", err)
			c.reply("search_failed")
		}
	}()
}

func (s *BotService) cancel(ctx context.Context, c *Client) {
	if !c.stopSearch() {
		c.reply("not_searching")
		return
	}
	if err := s.Hub.Queue.Dequeue(ctx, c.ParticipantID); err != nil {
		s.logger.Error("failed to leave queue", "participant", c.ParticipantID, "error", err)
	}
	c.reply("search_cancelled")
}

func (s *BotService) leave(ctx context.Context, c *Client) {
	if err := c.Limiter.Guard(client.ActionLeave); err != nil {
		s.rejected(c, err)
		return
	}
	sessionID := c.Session()
	if sessionID == "" {
		c.reply("not_in_chat")
		return
	}

	c.markLeaving(sessionID)
	_, err := s.Hub.Sessions.End(ctx, sessionID, c.ParticipantID)
	switch {
	case err == nil:
	case errors.Is(err, chathub.ErrSessionNotFound), errors.Is(err, chathub.ErrNotParticipant):
		c.exit(sessionID)
		c.reply("not_in_chat")
		return
	default:
		c.markLeaving("")
		s.rejected(c, err)
		return
	}

	c.exit(sessionID)
	if err := c.Limiter.Record(client.ActionLeave); err != nil {
		s.logger.Warn("failed to record leave", "participant", c.ParticipantID, "error", err)
	}
	c.reply("chat_ended_self")
}

func (s *BotService) relay(ctx context.Context, c *Client, text string) {
	sessionID := c.Session()
	if sessionID == "" {
		c.reply("not_in_chat")
		return
	}
	_, err := s.Hub.Relay.Send(ctx, sessionID, c.ParticipantID, text)
	switch {
	case err == nil:
	case errors.Is(err, chathub.ErrSessionEnded), errors.Is(err, chathub.ErrNotParticipant),
		errors.Is(err, chathub.ErrSessionNotFound):
		c.exit(sessionID)
		c.reply("not_in_chat")
	default:
		s.rejected(c, err)
	}
}

// rejected tells the chat why its request was refused.
func (s *BotService) rejected(c *Client, err error) {
	var limited *client.RateLimitedError
	switch {
	case errors.As(err, &limited):
		c.reply("rate_limited", client.FormatCooldown(limited.Remaining))
	case errors.Is(err, chathub.ErrEmptyMessage), errors.Is(err, chathub.ErrMessageTooLong):
		c.reply("message_rejected")
	default:
		s.logger.Error("telegram request failed", "participant", c.ParticipantID, "error", err)
		c.reply("something_went_wrong")
	}
}

// getOrCreateClient retrieves the chat's client or registers a new one,
// resuming the participant's active session if it has one.
func (s *BotService) getOrCreateClient(ctx context.Context, chatID int64) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[chatID]; ok && !c.isClosed() {
		return c, nil
	}

	p, err := s.Hub.Storage.FindOrCreateTelegramParticipant(ctx, chatID)
	if err != nil {
		return nil, err
	}

	c := newClient(s.Hub, s.Bot, s.Localizer, p.ID, chatID)
	if err := c.Subs.Add(ctx, models.ParticipantSessionsTopic(p.ID)); err != nil {
		c.Close()
		return nil, err
	}
	active, err := s.Hub.Sessions.GetActiveFor(ctx, p.ID)
	if err != nil {
		c.Close()
		return nil, err
	}
	if active != nil {
		c.enter(active)
		s.logger.Info("telegram client resumed session", "chat_id", chatID, "session", active.ID)
	}

	s.Hub.Register(c)
	s.clients[chatID] = c
	return c, nil
}

func (s *BotService) snapshot() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if !c.isClosed() {
			out = append(out, c)
		}
	}
	return out
}

// heartbeats keeps every known chat fresh. A Telegram chat has no
// connection to lose, so it stays alive while the bot runs.
func (s *BotService) heartbeats(ctx context.Context) {
	ticker := time.NewTicker(s.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range s.snapshot() {
				if err := s.Hub.Presence.Heartbeat(ctx, c.ParticipantID); err != nil {
					s.logger.Warn("heartbeat failed", "participant", c.ParticipantID, "error", err)
				}
			}
		}
	}
}
