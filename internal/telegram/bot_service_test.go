package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage"
	"strangerchat/backend/internal/storage/storagetest"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBot records what the bridge sends, per chat.
type fakeBot struct {
	mu      sync.Mutex
	texts   map[int64][]string
	actions map[int64][]string
}

func newFakeBot() *fakeBot {
	return &fakeBot{texts: make(map[int64][]string), actions: make(map[int64][]string)}
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.mu.Lock()
		b.texts[msg.ChatID] = append(b.texts[msg.ChatID], msg.Text)
		b.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if action, ok := c.(tgbotapi.ChatActionConfig); ok {
		b.mu.Lock()
		b.actions[action.ChatID] = append(b.actions[action.ChatID], action.Action)
		b.mu.Unlock()
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) Texts(chatID int64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts[chatID]...)
}

func (b *fakeBot) Actions(chatID int64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.actions[chatID]...)
}

func (b *fakeBot) count(chatID int64, text string) int {
	n := 0
	for _, t := range b.Texts(chatID) {
		if t == text {
			n++
		}
	}
	return n
}

type testBridge struct {
	*BotService
	bot   *fakeBot
	store *storage.Service
	ctx   context.Context
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	store := storagetest.New(t)
	broker := pubsub.NewLocal(storagetest.DiscardLogger())
	hub := chathub.NewManagerService(store, broker, storagetest.DiscardLogger())
	hub.Matcher.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = broker.Close()
	})

	bot := newFakeBot()
	s, err := NewBridge(bot, hub, storagetest.DiscardLogger())
	require.NoError(t, err)
	return &testBridge{BotService: s, bot: bot, store: store, ctx: ctx}
}

func (b *testBridge) text(key string) string {
	return b.Localizer.GetString(localization.DefaultLanguage, key)
}

func (b *testBridge) command(chatID int64, command string) {
	b.HandleUpdate(b.ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/" + command,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command) + 1}},
		From:     &tgbotapi.User{ID: chatID, LanguageCode: "en"},
		Chat:     tgbotapi.Chat{ID: chatID},
	}})
}

func (b *testBridge) say(chatID int64, text string) {
	b.HandleUpdate(b.ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: chatID, LanguageCode: "en"},
		Chat: tgbotapi.Chat{ID: chatID},
	}})
}

func (b *testBridge) waitText(t *testing.T, chatID int64, text string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.bot.count(chatID, text) > 0
	}, 2*time.Second, 10*time.Millisecond, "chat %d never received %q; got %v", chatID, text, b.bot.Texts(chatID))
}

func (b *testBridge) client(t *testing.T, chatID int64) *Client {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.clients[chatID]
	require.True(t, ok)
	return c
}

func TestSearchRelayAndLeave(t *testing.T) {
	b := newTestBridge(t)

	b.command(1, "search")
	b.waitText(t, 1, b.text("searching"))
	b.command(2, "search")

	b.waitText(t, 1, b.text("match_found"))
	b.waitText(t, 2, b.text("match_found"))
	sessionID := b.client(t, 1).Session()
	require.NotEmpty(t, sessionID)
	assert.Equal(t, sessionID, b.client(t, 2).Session())

	b.say(1, "hello stranger")
	b.waitText(t, 2, "hello stranger")
	assert.Zero(t, b.bot.count(1, "hello stranger"), "sender does not get an echo")

	history, err := b.Hub.Relay.History(b.ctx, sessionID, b.client(t, 2).ParticipantID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello stranger", history[0].Content)

	b.command(1, "stop")
	b.waitText(t, 1, b.text("chat_ended_self"))
	b.waitText(t, 2, b.text("partner_left"))
	assert.Empty(t, b.client(t, 1).Session())
	assert.Eventually(t, func() bool { return b.client(t, 2).Session() == "" }, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, b.bot.count(1, b.text("partner_left")), "the leaver is not told its partner left")
	assert.Equal(t, 1, b.bot.count(1, b.text("match_found")))
	assert.Equal(t, 1, b.bot.count(2, b.text("match_found")))

	session, err := b.store.GetSession(b.ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, session.Status)
}

func TestLeaveIsRateLimited(t *testing.T) {
	b := newTestBridge(t)

	b.command(1, "search")
	b.command(2, "search")
	b.waitText(t, 1, b.text("match_found"))
	b.waitText(t, 2, b.text("match_found"))

	b.command(1, "stop")
	b.waitText(t, 1, b.text("chat_ended_self"))

	b.command(1, "stop")
	require.Eventually(t, func() bool {
		for _, text := range b.bot.Texts(1) {
			if strings.HasPrefix(text, "⏳") {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, b.bot.count(1, b.text("not_in_chat")), "cooldown is checked before state")
}

func TestCancelSearch(t *testing.T) {
	b := newTestBridge(t)

	b.command(1, "cancel")
	b.waitText(t, 1, b.text("not_searching"))

	b.command(1, "search")
	b.waitText(t, 1, b.text("searching"))
	pid := b.client(t, 1).ParticipantID
	require.Eventually(t, func() bool {
		_, err := b.store.QueueEntry(b.ctx, pid)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	b.command(1, "search")
	b.waitText(t, 1, b.text("already_searching"))

	b.command(1, "cancel")
	b.waitText(t, 1, b.text("search_cancelled"))
	_, err := b.store.QueueEntry(b.ctx, pid)
	assert.ErrorIs(t, err, storage.ErrNotQueued)
}

func TestMessagesOutsideSession(t *testing.T) {
	b := newTestBridge(t)

	b.say(1, "anyone there?")
	b.waitText(t, 1, b.text("not_in_chat"))

	b.HandleUpdate(b.ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		Photo: []tgbotapi.PhotoSize{{FileID: "photo"}},
		Chat:  tgbotapi.Chat{ID: 1},
	}})
	b.waitText(t, 1, b.text("unsupported_message_type"))

	b.command(1, "stop")
	b.waitText(t, 1, b.text("not_in_chat"))
}

func TestBridgeTalksToWebParticipant(t *testing.T) {
	b := newTestBridge(t)

	b.command(5, "search")
	b.waitText(t, 5, b.text("searching"))
	tgID := b.client(t, 5).ParticipantID

	web, err := b.store.CreateParticipant(b.ctx)
	require.NoError(t, err)
	match, err := b.Hub.Matcher.Search(b.ctx, web.ID)
	require.NoError(t, err)
	assert.Equal(t, tgID, match.PartnerID)
	b.waitText(t, 5, b.text("match_found"))

	require.NoError(t, b.Hub.Presence.SetTyping(b.ctx, match.Session.ID, web.ID, true))
	require.Eventually(t, func() bool {
		return len(b.bot.Actions(5)) > 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, tgbotapi.ChatTyping, b.bot.Actions(5)[0])

	_, err = b.Hub.Relay.Send(b.ctx, match.Session.ID, web.ID, "hi from the browser")
	require.NoError(t, err)
	b.waitText(t, 5, "hi from the browser")

	_, err = b.Hub.Sessions.End(b.ctx, match.Session.ID, web.ID)
	require.NoError(t, err)
	b.waitText(t, 5, b.text("partner_left"))
}

func TestRestoreActiveSessions(t *testing.T) {
	b := newTestBridge(t)

	tg, err := b.store.FindOrCreateTelegramParticipant(b.ctx, 7)
	require.NoError(t, err)
	web, err := b.store.CreateParticipant(b.ctx)
	require.NoError(t, err)
	session, err := b.Hub.Sessions.Create(b.ctx, web.ID, tg.ID)
	require.NoError(t, err)

	b.RestoreActiveSessions(b.ctx)
	assert.Equal(t, session.ID, b.client(t, 7).Session())
	require.Eventually(t, func() bool {
		_, ok := b.Hub.Client(tg.ID)
		return ok
	}, time.Second, 10*time.Millisecond)

	_, err = b.Hub.Relay.Send(b.ctx, session.ID, web.ID, "still there?")
	require.NoError(t, err)
	b.waitText(t, 7, "still there?")
	assert.Zero(t, b.bot.count(7, b.text("match_found")), "a restored chat is not announced again")
}

func TestRepliesFollowUserLanguage(t *testing.T) {
	b := newTestBridge(t)

	b.HandleUpdate(b.ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/help",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
		From:     &tgbotapi.User{ID: 9, LanguageCode: "uk"},
		Chat:     tgbotapi.Chat{ID: 9},
	}})
	b.waitText(t, 9, b.Localizer.GetString("uk", "welcome"))
}
