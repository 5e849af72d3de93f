// internal/domain/notification/status.go
package notification

// Status is the delivery lifecycle of a notification.
// pending -> sent | failed, exactly once; terminal states are never left.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether s can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}
