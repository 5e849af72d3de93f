// internal/domain/cycle/repository.go
package cycle

import (
	"context"
	"time"
)

// Repository defines operations for cycle records and their activity log.
type Repository interface {
	// Cycle record methods
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	ListByUser(ctx context.Context, userID string) ([]*Record, error) // Non-deleted, ordered by period start
	// Update persists r only if the stored version equals expectedVersion,
	// then bumps r.Version. A mismatch returns ErrConflict.
	Update(ctx context.Context, r *Record, expectedVersion int64) error

	// Retention methods. Both are idempotent and return the number of rows removed.
	DeleteExpired(ctx context.Context, createdBefore time.Time) (int64, error)
	DeleteSoftDeleted(ctx context.Context, deletedBefore time.Time) (int64, error)

	// Activity log methods
	AppendActivity(ctx context.Context, a *ActivityLog) error
	ListActivity(ctx context.Context, userID string, limit int) ([]*ActivityLog, error)
	DeleteActivityBefore(ctx context.Context, createdBefore time.Time) (int64, error)
}
