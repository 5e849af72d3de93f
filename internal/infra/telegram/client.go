// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"

	"taharah_tracker/internal/domain/notification"
	"taharah_tracker/internal/domain/profile"

	"gopkg.in/telebot.v3"
)

// Client defines an interface for sending messages via a Telegram bot.
// This helps in decoupling the application logic from the specific bot library.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the specified chat.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	_, err := tba.bot.Send(telebot.ChatID(recipientChatID), text, options)
	return err
}

// NotificationSender delivers reminders to the chat linked in the user's preferences.
type NotificationSender struct {
	client   Client
	profiles profile.Repository
}

func NewNotificationSender(client Client, profiles profile.Repository) *NotificationSender {
	return &NotificationSender{client: client, profiles: profiles}
}

func (s *NotificationSender) Send(ctx context.Context, n *notification.Notification) error {
	prefs, err := s.profiles.GetPreferences(ctx, n.UserID)
	if errors.Is(err, profile.ErrProfileNotFound) || (err == nil && prefs.TelegramChatID == 0) {
		return fmt.Errorf("%w: user %s has no telegram chat", notification.ErrNoRecipient, n.UserID)
	}
	if err != nil {
		return fmt.Errorf("failed to load preferences for user %s: %w", n.UserID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.SendMessage(prefs.TelegramChatID, formatNotification(n), nil)
}

func formatNotification(n *notification.Notification) string {
	return fmt.Sprintf("%s\n\n%s", n.Title, n.Message)
}
