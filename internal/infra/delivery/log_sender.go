package delivery

import (
	"context"
	"time"

	"taharah_tracker/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

// LogSender writes notifications to the log. Used when no bot token is configured.
type LogSender struct {
	logger *logrus.Entry
}

func NewLogSender(logger *logrus.Entry) *LogSender {
	return &LogSender{logger: logger.WithField("component", "log_sender")}
}

func (s *LogSender) Send(_ context.Context, n *notification.Notification) error {
	s.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"type":            n.Type,
		"scheduled_for":   n.ScheduledFor.Format(time.RFC3339),
		"title":           n.Title,
	}).Info(n.Message)
	return nil
}
