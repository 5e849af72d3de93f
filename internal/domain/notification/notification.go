package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotPending           = errors.New("notification is no longer pending")
	ErrDelivery             = errors.New("delivery failed")
	ErrDeliveryTimeout      = errors.New("delivery timed out")
	ErrNoRecipient          = errors.New("recipient has no linked delivery channel")
)

// Notification is a reminder scheduled for one user.
// Corresponds to the 'notifications' table.
type Notification struct {
	ID            string
	UserID        string
	CycleID       string // Weak reference, lookup only
	Type          Type
	Title         string
	Message       string
	ScheduledFor  time.Time
	Status        Status
	FailureReason string // Only set when Status is failed
	SentAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New builds a pending notification.
func New(userID, cycleID string, t Type, title, message string, scheduledFor, now time.Time) *Notification {
	return &Notification{
		ID:           uuid.NewString(),
		UserID:       userID,
		CycleID:      cycleID,
		Type:         t,
		Title:        title,
		Message:      message,
		ScheduledFor: scheduledFor,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Key is the idempotency tuple for pending notifications.
type Key struct {
	UserID       string
	CycleID      string
	Type         Type
	ScheduledFor time.Time
}

func (n *Notification) Key() Key {
	return Key{UserID: n.UserID, CycleID: n.CycleID, Type: n.Type, ScheduledFor: n.ScheduledFor.UTC()}
}

// IsDue reports whether n should be dispatched at now.
func (n *Notification) IsDue(now time.Time) bool {
	return n.Status == StatusPending && !n.ScheduledFor.After(now)
}
