package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/examprep/internal/cadence"
	"github.com/example/examprep/internal/progress"
	"github.com/example/examprep/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// Constants for callback data
const (
	callbackMenu   = "menu"
	callbackStats  = "stats"
	callbackReview = "review"
	callbackPulse  = "pulse"

	prefixAck    = "ack:"    // ack:<subject>:<questionId>
	prefixQuests = "quests:" // quests:<subject>
	prefixMood   = "mood:"   // mood:<1-5>
)

// MainMenuButtons returns the buttons for the main menu
func MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{
			{Text: "🔁 Herhalen", CallbackData: callbackReview},
			{Text: "📊 Statistieken", CallbackData: callbackStats},
		},
		{
			{Text: "🎯 Opdrachten", CallbackData: prefixQuests + string(models.SubjectNederlands)},
			{Text: "💬 Weekcheck", CallbackData: callbackPulse},
		},
	}
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.From == nil || message.Chat == nil {
		return errors.New("invalid message: required fields are missing")
	}
	session, err := b.manager.Session(ctx, UserID(message.From.ID))
	if err != nil {
		return err
	}
	chatID := message.Chat.ID

	if message.Command() != "start" {
		// leaving the dashboard withdraws a pending check-in prompt
		session.ObserveView(cadence.ViewOther, true, nil)
	}

	switch message.Command() {
	case "start":
		return b.handleStart(session, chatID)
	case "help":
		return b.handleHelp(chatID)
	case "stats":
		return b.handleStats(session, chatID)
	case "review":
		return b.handleReview(session, chatID)
	case "quests":
		return b.handleQuests(session, chatID, models.Subject(strings.TrimSpace(message.CommandArguments())))
	case "pulse":
		return b.handlePulse(session, chatID)
	default:
		return b.handleUnknownCommand(chatID)
	}
}

// handleStart records the visit and shows the dashboard. The weekly check-in
// is offered a little later if the user stays there.
func (b *Bot) handleStart(session *progress.Session, chatID int64) error {
	visit := session.Visit()
	if err := b.sendMessage(b.dashboard(session, chatID, visit)); err != nil {
		return err
	}
	session.ObserveView(cadence.ViewDashboard, true, func() {
		if err := b.handlePulse(session, chatID); err != nil {
			b.logger.Warn("failed to send check-in prompt", "user", session.UserID(), "error", err)
		}
	})
	return nil
}

func (b *Bot) dashboard(session *progress.Session, chatID int64, visit progress.VisitResult) tgbotapi.MessageConfig {
	p := session.Snapshot()
	var sb strings.Builder
	sb.WriteString("📚 Jouw examentraining\n\n")
	fmt.Fprintf(&sb, "⭐ Level %d (%d XP)\n", p.Level, p.XP)
	fmt.Fprintf(&sb, "🔥 Reeks: %d %s\n", visit.Streak, plural(visit.Streak, "dag", "dagen"))
	fmt.Fprintf(&sb, "🔁 Te herhalen: %d\n", session.DueReviews())
	for _, badge := range visit.NewBadges {
		fmt.Fprintf(&sb, "🏅 Nieuwe badge: %s\n", badge)
	}
	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	return msg
}

func (b *Bot) handleHelp(chatID int64) error {
	text := "Beschikbare commando's:\n" +
		"/start - dashboard\n" +
		"/stats - beheersing per vak\n" +
		"/review - fouten herhalen\n" +
		"/quests <vak> - opdrachten van vandaag\n" +
		"/pulse - wekelijkse check-in"
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) handleStats(session *progress.Session, chatID int64) error {
	p := session.Snapshot()
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Statistieken\n\nLevel %d, %d XP, %d badges\n\n", p.Level, p.XP, len(p.EarnedBadges))

	answered := 0
	for _, subject := range models.Subjects {
		sp := p.Subject(subject)
		var total models.MasteryScore
		for _, score := range sp.MasteryScores {
			total.Correct += score.Correct
			total.Total += score.Total
		}
		if total.Total == 0 {
			continue
		}
		answered++
		fmt.Fprintf(&sb, "%s: %.0f%% van %d vragen, %d fouten\n", subject, total.Percentage(), total.Total, len(sp.Mistakes))
	}
	if answered == 0 {
		sb.WriteString("Je hebt nog geen vragen beantwoord.")
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, sb.String()))
}

// handleReview sends every due mistake with a "got it" button.
func (b *Bot) handleReview(session *progress.Session, chatID int64) error {
	sent := 0
	for _, subject := range models.Subjects {
		queue, err := session.ReviewQueue(subject)
		if err != nil {
			return err
		}
		for _, m := range queue {
			text := fmt.Sprintf("🔁 %s, vraag %d\nJouw antwoord: %s", subject, m.QuestionID, m.UserAnswerText)
			if m.AIFeedbackText != "" {
				text += "\n\n💡 " + m.AIFeedbackText
			}
			msg := tgbotapi.NewMessage(chatID, text)
			msg.ReplyMarkup = createKeyboard([][]MenuButton{{
				{Text: "✅ Begrepen", CallbackData: fmt.Sprintf("%s%s:%d", prefixAck, subject, m.QuestionID)},
			}})
			if err := b.sendMessage(msg); err != nil {
				return err
			}
			sent++
		}
	}
	if sent == 0 {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "🎉 Niets te herhalen vandaag."))
	}
	return nil
}

func (b *Bot) handleQuests(session *progress.Session, chatID int64, subject models.Subject) error {
	if subject == "" {
		msg := tgbotapi.NewMessage(chatID, "Kies een vak:")
		msg.ReplyMarkup = subjectKeyboard(prefixQuests)
		return b.sendMessage(msg)
	}
	set, err := session.DailyQuests(subject)
	if errors.Is(err, progress.ErrUnknownSubject) {
		return b.sendMessage(tgbotapi.NewMessage(chatID, fmt.Sprintf("Onbekend vak %q.", subject)))
	}
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎯 Opdrachten voor %s\n\n", subject)
	for _, q := range set.Quests {
		mark := "⬜"
		if q.Completed {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "%s %s (%d/%d, +%d XP)\n", mark, q.Description, q.Current, q.Target, q.XP)
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, sb.String()))
}

func (b *Bot) handlePulse(session *progress.Session, chatID int64) error {
	if !session.PulseDue() {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Je hebt de check-in van deze week al gedaan."))
	}
	row := make([]MenuButton, 0, 5)
	for mood := 1; mood <= 5; mood++ {
		row = append(row, MenuButton{Text: strconv.Itoa(mood), CallbackData: prefixMood + strconv.Itoa(mood)})
	}
	msg := tgbotapi.NewMessage(chatID, "💬 Weekcheck: hoe gaat het met leren? (1 = slecht, 5 = top)")
	msg.ReplyMarkup = createKeyboard([][]MenuButton{row})
	return b.sendMessage(msg)
}

func (b *Bot) handleUnknownCommand(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "Onbekend commando. Gebruik /help voor een overzicht.")
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	return b.sendMessage(msg)
}

// HandleCallback handles inline button presses.
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback == nil || callback.Message == nil || callback.Message.Chat == nil || callback.From == nil {
		return errors.New("invalid callback data: required fields are missing")
	}

	// Always answer the callback query to remove the loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Debug("failed to answer callback", "error", err)
	}

	session, err := b.manager.Session(ctx, UserID(callback.From.ID))
	if err != nil {
		return err
	}
	chatID := callback.Message.Chat.ID
	data := callback.Data

	switch {
	case data == callbackMenu:
		return b.sendMessage(b.dashboard(session, chatID, session.Visit()))
	case data == callbackStats:
		return b.handleStats(session, chatID)
	case data == callbackReview:
		return b.handleReview(session, chatID)
	case data == callbackPulse:
		return b.handlePulse(session, chatID)
	case strings.HasPrefix(data, prefixQuests):
		return b.handleQuests(session, chatID, models.Subject(strings.TrimPrefix(data, prefixQuests)))
	case strings.HasPrefix(data, prefixAck):
		return b.handleAcknowledge(session, chatID, strings.TrimPrefix(data, prefixAck))
	case strings.HasPrefix(data, prefixMood):
		return b.handleMood(ctx, session, chatID, strings.TrimPrefix(data, prefixMood))
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, "⚠️ Onbekende actie"))
}

func (b *Bot) handleAcknowledge(session *progress.Session, chatID int64, payload string) error {
	subject, idStr, ok := strings.Cut(payload, ":")
	if !ok {
		return errors.Errorf("malformed review callback %q", payload)
	}
	questionID, err := strconv.Atoi(idStr)
	if err != nil {
		return errors.Wrapf(err, "malformed review callback %q", payload)
	}

	res, err := session.AcknowledgeReview(models.Subject(subject), questionID)
	if errors.Is(err, progress.ErrNotFound) {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Deze fout staat niet meer in je lijst."))
	}
	if errors.Is(err, progress.ErrNotDue) {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "⏳ Deze fout is nog niet aan de beurt."))
	}
	if err != nil {
		return err
	}
	text := fmt.Sprintf("✅ Top! Volgende herhaling op %s. +%d XP", res.Mistake.NextReviewDate, res.Gained)
	if res.LevelsGained > 0 {
		text += fmt.Sprintf("\n⭐ Level %d bereikt!", res.Level)
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) handleMood(ctx context.Context, session *progress.Session, chatID int64, value string) error {
	mood, err := strconv.Atoi(value)
	if err != nil {
		return errors.Wrapf(err, "malformed mood callback %q", value)
	}
	gain, err := session.CompletePulseCheck(ctx, progress.PulseCheck{Mood: mood})
	if err != nil {
		return err
	}
	text := "Bedankt voor je check-in!"
	if gain.Gained > 0 {
		text += fmt.Sprintf(" +%d XP", gain.Gained)
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func subjectKeyboard(prefix string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]MenuButton
	for i := 0; i < len(models.Subjects); i += 2 {
		row := []MenuButton{{Text: string(models.Subjects[i]), CallbackData: prefix + string(models.Subjects[i])}}
		if i+1 < len(models.Subjects) {
			row = append(row, MenuButton{Text: string(models.Subjects[i+1]), CallbackData: prefix + string(models.Subjects[i+1])})
		}
		rows = append(rows, row)
	}
	return createKeyboard(rows)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
