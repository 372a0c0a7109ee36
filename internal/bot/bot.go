// Package bot is the Telegram front end: a dashboard, the review queue with
// "got it" buttons, daily quests and the weekly check-in.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/example/examprep/internal/progress"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// UserIDPrefix marks progress identities that belong to Telegram users.
const UserIDPrefix = "telegram:"

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// sender is the part of the Telegram API the bot talks to.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot represents the Telegram bot application
type Bot struct {
	client  *tgbotapi.BotAPI
	api     sender
	manager *progress.Manager
	config  *BotConfig
	logger  *slog.Logger
}

// New connects to Telegram.
func New(cfg *BotConfig, manager *progress.Manager, logger *slog.Logger) (*Bot, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("telegram bot token is not set")
	}
	client, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create bot")
	}
	client.Debug = cfg.Debug

	b := newBot(client, cfg, manager, logger)
	b.client = client
	b.logger.Info("authorized on telegram", "account", client.Self.UserName)
	return b, nil
}

func newBot(api sender, cfg *BotConfig, manager *progress.Manager, logger *slog.Logger) *Bot {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:     api,
		manager: manager,
		config:  cfg,
		logger:  logger.With("component", "bot"),
	}
}

// Run handles updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if b.client == nil {
		return errors.New("bot is not connected")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout
	updates := b.client.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.client.StopReceivingUpdates()
			b.logger.Info("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, b.config.HandlerTimeout)
	defer cancel()

	var err error
	switch {
	case update.Message != nil && update.Message.IsCommand():
		err = b.HandleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Chat != nil:
		err = b.sendMessage(tgbotapi.NewMessage(update.Message.Chat.ID, "Gebruik /start om je dashboard te openen."))
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	}
	if err != nil {
		b.logger.Warn("failed to handle update", "update", update.UpdateID, "error", err)
	}
}

// SendReminders tells a Telegram user how many reviews are due. Identities
// from other front ends are skipped.
func (b *Bot) SendReminders(userID string, count int) error {
	chatID, ok := ChatID(userID)
	if !ok {
		return nil
	}
	word := "fouten"
	if count == 1 {
		word = "fout"
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Je hebt %d %s om te herhalen. Tik op Herhalen om te beginnen.", count, word))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "🔁 Herhalen", CallbackData: callbackReview}}})
	if err := b.sendMessage(msg); err != nil {
		return errors.Wrapf(err, "failed to send reminder to %s", userID)
	}
	b.logger.Info("reminder sent", "user", userID, "due", count)
	return nil
}

func (b *Bot) sendMessage(msg tgbotapi.Chattable) error {
	_, err := b.api.Send(msg)
	return err
}

// UserID maps a Telegram user to its progress identity.
func UserID(telegramID int64) string {
	return UserIDPrefix + strconv.FormatInt(telegramID, 10)
}

// ChatID maps a progress identity back to the private chat of its Telegram
// user.
func ChatID(userID string) (int64, bool) {
	if !strings.HasPrefix(userID, UserIDPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(userID, UserIDPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
