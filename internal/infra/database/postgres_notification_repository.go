// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taharah_tracker/internal/domain/notification"

	"github.com/lib/pq" // For pq.Array
)

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

const notificationColumns = `id, user_id, cycle_id, type, title, message, scheduled_for,
               status, failure_reason, sent_at, created_at, updated_at`

func scanNotification(row rowScanner) (*notification.Notification, error) {
	n := &notification.Notification{}
	var sentAt sql.NullTime
	err := row.Scan(&n.ID, &n.UserID, &n.CycleID, &n.Type, &n.Title, &n.Message, &n.ScheduledFor,
		&n.Status, &n.FailureReason, &sentAt, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.SentAt = timePtr(sentAt)
	return n, nil
}

// Helper to scan multiple rows
func scanNotifications(rows *sql.Rows) ([]*notification.Notification, error) {
	list := make([]*notification.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification row: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return list, nil
}

// CreatePending relies on the partial unique index over pending rows, so two
// racing schedulers produce one row.
func (r *PostgresNotificationRepository) CreatePending(ctx context.Context, n *notification.Notification) (*notification.Notification, bool, error) {
	insert := `INSERT INTO notifications (` + notificationColumns + `)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
               ON CONFLICT (user_id, cycle_id, type, scheduled_for) WHERE status = 'pending' DO NOTHING`
	res, err := r.db.ExecContext(ctx, insert, n.ID, n.UserID, n.CycleID, n.Type, n.Title, n.Message, n.ScheduledFor.UTC(),
		notification.StatusPending, "", nullTime(n.SentAt), n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("error creating notification: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 1 {
		stored := *n
		stored.Status = notification.StatusPending
		return &stored, true, nil
	}

	existing := `SELECT ` + notificationColumns + ` FROM notifications
               WHERE user_id = $1 AND cycle_id = $2 AND type = $3 AND scheduled_for = $4 AND status = 'pending'`
	stored, err := scanNotification(r.db.QueryRowContext(ctx, existing, n.UserID, n.CycleID, n.Type, n.ScheduledFor.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The conflicting row left pending between the two statements.
			return nil, false, fmt.Errorf("error creating notification: pending duplicate vanished, retry")
		}
		return nil, false, fmt.Errorf("error loading existing pending notification: %w", err)
	}
	return stored, false, nil
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notification.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("error getting notification by ID: %w", err)
	}
	return n, nil
}

func limitArg(limit int) sql.NullInt64 {
	if limit <= 0 {
		return sql.NullInt64{} // LIMIT NULL is no limit
	}
	return sql.NullInt64{Int64: int64(limit), Valid: true}
}

func (r *PostgresNotificationRepository) ListDuePending(ctx context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
               WHERE status = 'pending' AND scheduled_for <= $1
               ORDER BY scheduled_for ASC
               LIMIT $2` // Process older ones first
	rows, err := r.db.QueryContext(ctx, query, now, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying due notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *PostgresNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
               WHERE user_id = $1 ORDER BY scheduled_for ASC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying notifications by user: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *PostgresNotificationRepository) ListFailed(ctx context.Context, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
               WHERE status = 'failed' ORDER BY updated_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying failed notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// transition updates a notification that is still pending. A row that exists
// in another state yields ErrNotPending.
func (r *PostgresNotificationRepository) transition(ctx context.Context, id string, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("error updating notification %s: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	} else if affected == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return notification.ErrNotPending
}

func (r *PostgresNotificationRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, `UPDATE notifications
               SET status = 'sent', sent_at = $2, updated_at = $2
               WHERE id = $1 AND status = 'pending'`, at)
}

func (r *PostgresNotificationRepository) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	return r.transition(ctx, id, `UPDATE notifications
               SET status = 'failed', failure_reason = $2, updated_at = $3
               WHERE id = $1 AND status = 'pending'`, reason, at)
}

func (r *PostgresNotificationRepository) ListByIDs(ctx context.Context, ids []string) ([]*notification.Notification, error) {
	if len(ids) == 0 {
		return []*notification.Notification{}, nil
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications
               WHERE id = ANY($1::text[]) ORDER BY scheduled_for ASC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error querying notifications by IDs: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}
