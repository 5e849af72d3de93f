// internal/domain/cycle/activity.go
package cycle

import (
	"time"

	"github.com/google/uuid"
)

// Activity actions recorded alongside cycle mutations.
const (
	ActionCreated = "cycle_created"
	ActionDeleted = "cycle_deleted"
)

// ActivityLog is an audit entry for a user-visible cycle change.
// Corresponds to the 'activity_logs' table.
type ActivityLog struct {
	ID        string
	UserID    string
	CycleID   string
	Action    string // cycle_created, cycle_deleted or an EventType
	Detail    string
	CreatedAt time.Time
}

// NewActivity builds an audit entry stamped with the caller's clock.
func NewActivity(userID, cycleID, action, detail string, now time.Time) *ActivityLog {
	return &ActivityLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		CycleID:   cycleID,
		Action:    action,
		Detail:    detail,
		CreatedAt: now,
	}
}
