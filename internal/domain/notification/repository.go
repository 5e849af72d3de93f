// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"
)

// Repository defines persistence for notifications.
type Repository interface {
	// CreatePending inserts n unless a pending notification with the same Key
	// exists; in that case the existing one is returned and created is false.
	CreatePending(ctx context.Context, n *Notification) (stored *Notification, created bool, err error)
	GetByID(ctx context.Context, id string) (*Notification, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Notification, error) // Unknown IDs are skipped
	// ListDuePending returns up to limit pending notifications with
	// ScheduledFor <= now, oldest first.
	ListDuePending(ctx context.Context, now time.Time, limit int) ([]*Notification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	ListFailed(ctx context.Context, limit int) ([]*Notification, error)
	// MarkSent and MarkFailed only transition a pending notification;
	// anything else returns ErrNotPending.
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
}

// Sender delivers a notification through an external channel.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}
