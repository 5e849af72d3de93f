// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taharah_tracker/internal/app"
	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/domain/profile"
	"taharah_tracker/internal/domain/veset"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const maxStatusPredictions = 5

// CycleReader is the part of app.CycleService the bot reads from.
type CycleReader interface {
	List(ctx context.Context, userID string) ([]*cycle.Record, error)
	Predict(ctx context.Context, userID string) ([]veset.Prediction, error)
}

// BotCommands answers user commands. Replies are built separately from
// sending so they can be checked without a live bot.
type BotCommands struct {
	cycles          CycleReader
	profiles        profile.Repository
	clock           app.Clock
	adminTelegramID int64
	logger          *logrus.Entry
}

func NewBotCommands(cycles CycleReader, profiles profile.Repository, clock app.Clock, adminTelegramID int64, baseLogger *logrus.Entry) *BotCommands {
	return &BotCommands{
		cycles:          cycles,
		profiles:        profiles,
		clock:           clock,
		adminTelegramID: adminTelegramID,
		logger:          baseLogger.WithField("handler_group", "user_commands"),
	}
}

func (h *BotCommands) Register(ctx context.Context, b *telebot.Bot) {
	b.Handle("/start", func(c telebot.Context) error {
		h.logCommand("/start", c)
		return c.Send(h.startReply(ctx, c.Chat().ID))
	})
	b.Handle("/help", func(c telebot.Context) error {
		h.logCommand("/help", c)
		return c.Send(h.helpReply(c.Sender().ID), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
	b.Handle("/status", func(c telebot.Context) error {
		h.logCommand("/status", c)
		return c.Send(h.statusReply(ctx, c.Chat().ID))
	})
}

func (h *BotCommands) logCommand(command string, c telebot.Context) {
	h.logger.WithFields(logrus.Fields{"command": command, "sender_id": c.Sender().ID}).Info("Processing command")
}

func (h *BotCommands) startReply(ctx context.Context, chatID int64) string {
	_, err := h.profiles.GetByTelegramChatID(ctx, chatID)
	switch {
	case err == nil:
		return "Hello! Reminders for your cycle are delivered to this chat. Use /status to see where you are and /help for commands."
	case errors.Is(err, profile.ErrProfileNotFound):
		return fmt.Sprintf("Hello! This chat is not linked yet. Set telegram_chat_id to %d in your preferences to receive reminders here.", chatID)
	default:
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Error looking up profile for /start command")
		return "Something went wrong while checking your account. Please try again later."
	}
}

func (h *BotCommands) helpReply(senderID int64) string {
	var helpText strings.Builder
	helpText.WriteString("Available commands:\n\n")
	helpText.WriteString("`/start`\n - Show this chat's ID for linking.\n\n")
	helpText.WriteString("`/status`\n - Current cycle status and upcoming onot.\n\n")
	if h.adminTelegramID != 0 && senderID == h.adminTelegramID {
		helpText.WriteString("`/failed [limit]`\n - List failed notifications.\n\n")
		helpText.WriteString("`/reschedule <id> [id...]`\n - Queue failed notifications again.\n\n")
	}
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}

func (h *BotCommands) statusReply(ctx context.Context, chatID int64) string {
	prefs, err := h.profiles.GetByTelegramChatID(ctx, chatID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return "This chat is not linked to an account. Send /start for instructions."
	}
	if err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Error looking up profile for /status command")
		return "Something went wrong while loading your status. Please try again later."
	}

	records, err := h.cycles.List(ctx, prefs.UserID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", prefs.UserID).Error("Error listing cycles for /status command")
		return "Something went wrong while loading your cycles. Please try again later."
	}
	if len(records) == 0 {
		return "No cycles recorded yet."
	}

	loc := prefs.Location()
	latest := records[len(records)-1]
	var reply strings.Builder
	reply.WriteString(fmt.Sprintf("Current cycle started %s.\nStatus: %s\n",
		latest.PeriodStart.In(loc).Format("Mon 2 Jan 2006 15:04"), strings.ReplaceAll(string(latest.Status()), "_", " ")))

	preds, err := h.cycles.Predict(ctx, prefs.UserID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", prefs.UserID).Error("Error predicting onsets for /status command")
		return reply.String()
	}
	upcoming := veset.Upcoming(preds, h.clock.Now())
	if len(upcoming) == 0 {
		return reply.String()
	}
	reply.WriteString("\nUpcoming onot:\n")
	for i, p := range upcoming {
		if i == maxStatusPredictions {
			break
		}
		reply.WriteString(fmt.Sprintf("- %s: %s onah from %s\n", ruleLabel(p.Rule), p.Onah, p.Start.In(loc).Format("Mon 2 Jan 15:04")))
	}
	return reply.String()
}

func ruleLabel(r veset.Rule) string {
	return strings.ReplaceAll(string(r), "_", " ")
}
