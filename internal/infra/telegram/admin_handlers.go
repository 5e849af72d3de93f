package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taharah_tracker/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const defaultFailedListLimit = 20

const msgUnauthorized = "Error: you are not allowed to run this command."

// AdminCommands handles operator commands. Authorization is enforced by
// app.AdminService; the early sender check only avoids a service call.
type AdminCommands struct {
	adminService    *app.AdminService
	adminTelegramID int64
	logger          *logrus.Entry
}

func NewAdminCommands(adminService *app.AdminService, adminTelegramID int64, baseLogger *logrus.Entry) *AdminCommands {
	return &AdminCommands{
		adminService:    adminService,
		adminTelegramID: adminTelegramID,
		logger:          baseLogger.WithField("handler_group", "admin"),
	}
}

// Register binds the admin commands to b.
func (h *AdminCommands) Register(ctx context.Context, b *telebot.Bot) {
	b.Handle("/failed", func(c telebot.Context) error {
		return c.Send(h.failedReply(ctx, c.Sender().ID, c.Args()))
	})
	b.Handle("/reschedule", func(c telebot.Context) error {
		return c.Send(h.rescheduleReply(ctx, c.Sender().ID, c.Args()))
	})
}

func (h *AdminCommands) handlerLogger(handler string, senderID int64) *logrus.Entry {
	return h.logger.WithFields(logrus.Fields{
		"handler":   handler,
		"sender_id": senderID,
	})
}

func (h *AdminCommands) failedReply(ctx context.Context, senderID int64, args []string) string {
	handlerLogger := h.handlerLogger("/failed", senderID)
	handlerLogger.Info("Command received")

	if senderID != h.adminTelegramID {
		handlerLogger.Warn("Unauthorized access attempt")
		return msgUnauthorized
	}

	limit := defaultFailedListLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return "Invalid format. Use: /failed [limit]"
		}
		limit = n
	}

	failed, err := h.adminService.ListFailed(ctx, senderID, limit)
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			return msgUnauthorized
		}
		handlerLogger.WithError(err).Error("Failed to list failed notifications")
		return fmt.Sprintf("An error occurred while listing failed notifications: %s", err.Error())
	}
	if len(failed) == 0 {
		return "No failed notifications."
	}

	handlerLogger.WithField("failed_count", len(failed)).Info("Successfully retrieved failed notifications")
	var response strings.Builder
	response.WriteString("--- Failed notifications ---\n")
	for _, n := range failed {
		response.WriteString(fmt.Sprintf("ID: %s, User: %s, Type: %s, Scheduled: %s, Reason: %s\n",
			n.ID,
			n.UserID,
			n.Type,
			n.ScheduledFor.UTC().Format(time.RFC3339),
			n.FailureReason))
	}
	return response.String()
}

func (h *AdminCommands) rescheduleReply(ctx context.Context, senderID int64, args []string) string {
	handlerLogger := h.handlerLogger("/reschedule", senderID)
	handlerLogger.Info("Command received")

	if senderID != h.adminTelegramID {
		handlerLogger.Warn("Unauthorized access attempt")
		return msgUnauthorized
	}
	// Expected format: /reschedule <id> [id...]
	if len(args) == 0 {
		return "Invalid format. Use: /reschedule <id> [id...]"
	}

	rescheduled, skipped, err := h.adminService.RescheduleMany(ctx, senderID, args, time.Time{})
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			return msgUnauthorized
		}
		handlerLogger.WithError(err).Error("Failed to reschedule notifications")
		return fmt.Sprintf("An error occurred while rescheduling: %s", err.Error())
	}

	handlerLogger.WithFields(logrus.Fields{
		"rescheduled": len(rescheduled),
		"skipped":     len(skipped),
	}).Info("Notifications rescheduled")

	var response strings.Builder
	response.WriteString(fmt.Sprintf("Rescheduled %d notification(s).", len(rescheduled)))
	if len(skipped) > 0 {
		response.WriteString(fmt.Sprintf("\nSkipped (unknown or not failed): %s", strings.Join(skipped, ", ")))
	}
	return response.String()
}
