package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/internal/database"
	"github.com/example/examprep/internal/progress"
	"github.com/example/examprep/internal/remote"
	"github.com/example/examprep/internal/remotesync"
	"github.com/example/examprep/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	msgs := f.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type fixture struct {
	bot     *Bot
	sender  *fakeSender
	manager *progress.Manager
	clock   *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Connect(database.Config{Type: database.TypeSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := remote.NewMemoryStore()
	c := clock.NewMock(time.Date(2026, 5, 13, 16, 0, 0, 0, time.Local))
	manager := progress.NewManager(progress.Deps{
		Repo:   database.NewKVRepository(db),
		Loader: remotesync.NewLoader(store, nil),
		Sync:   remotesync.NewCoordinator(store, c, nil, remotesync.Config{}),
		Clock:  c,
		Config: progress.Config{PulseDelay: 5 * time.Second},
	})
	sender := &fakeSender{}
	return &fixture{
		bot:     newBot(sender, nil, manager, nil),
		sender:  sender,
		manager: manager,
		clock:   c,
	}
}

func command(text string) *tgbotapi.Message {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return &tgbotapi.Message{
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
		From:     &tgbotapi.User{ID: 42},
		Chat:     &tgbotapi.Chat{ID: 42},
	}
}

func callback(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
		Data:    data,
	}
}

func TestIdentityMapping(t *testing.T) {
	assert.Equal(t, "telegram:42", UserID(42))
	id, ok := ChatID("telegram:42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = ChatID("web-user")
	assert.False(t, ok)
	_, ok = ChatID("telegram:abc")
	assert.False(t, ok)
}

func TestStartShowsDashboardAndPromptsCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleCommand(ctx, command("/start")))
	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Level 1")
	assert.Contains(t, msgs[0].Text, "Reeks: 1 dag\n")

	f.clock.Advance(5 * time.Second)
	assert.Contains(t, f.sender.last(t).Text, "Weekcheck")

	require.NoError(t, f.bot.HandleCallback(ctx, callback("mood:4")))
	assert.Contains(t, f.sender.last(t).Text, "Bedankt")

	require.NoError(t, f.bot.HandleCommand(ctx, command("/pulse")))
	assert.Contains(t, f.sender.last(t).Text, "al gedaan")
}

func TestOtherCommandWithdrawsPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleCommand(ctx, command("/start")))
	require.NoError(t, f.bot.HandleCommand(ctx, command("/stats")))
	count := len(f.sender.messages())

	f.clock.Advance(time.Minute)
	assert.Len(t, f.sender.messages(), count)
}

func TestReviewAndAcknowledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Session(ctx, UserID(42))
	require.NoError(t, err)
	_, err = session.RecordAnswer(ctx, progress.Answer{Subject: models.SubjectEconomie, QuestionID: 3, UserAnswer: "vraag"})
	require.NoError(t, err)

	require.NoError(t, f.bot.HandleCommand(ctx, command("/review")))
	assert.Contains(t, f.sender.last(t).Text, "Niets te herhalen")

	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.bot.HandleCommand(ctx, command("/review")))
	msg := f.sender.last(t)
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	data := *keyboard.InlineKeyboard[0][0].CallbackData
	assert.Equal(t, "ack:economie:3", data)

	require.NoError(t, f.bot.HandleCallback(ctx, callback(data)))
	assert.Contains(t, f.sender.last(t).Text, "Top!")
	assert.Equal(t, 0, session.DueReviews())

	xp := session.Snapshot().XP
	require.NoError(t, f.bot.HandleCallback(ctx, callback(data)))
	assert.Contains(t, f.sender.last(t).Text, "nog niet aan de beurt")
	assert.Equal(t, xp, session.Snapshot().XP)

	require.NoError(t, f.bot.HandleCallback(ctx, callback("ack:economie:99")))
	assert.Contains(t, f.sender.last(t).Text, "niet meer")
}

func TestQuests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleCommand(ctx, command("/quests")))
	assert.Equal(t, "Kies een vak:", f.sender.last(t).Text)

	require.NoError(t, f.bot.HandleCommand(ctx, command("/quests biologie")))
	assert.Contains(t, f.sender.last(t).Text, "Opdrachten voor biologie")

	require.NoError(t, f.bot.HandleCallback(ctx, callback("quests:latijn")))
	assert.Contains(t, f.sender.last(t).Text, "Onbekend vak")
}

func TestSendReminders(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.bot.SendReminders("telegram:42", 2))
	msg := f.sender.last(t)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "2 fouten")

	require.NoError(t, f.bot.SendReminders("web-user", 1))
	assert.Len(t, f.sender.messages(), 1)
}
