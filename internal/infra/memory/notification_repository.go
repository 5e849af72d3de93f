package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"taharah_tracker/internal/domain/notification"
)

type NotificationRepository struct {
	mu    sync.Mutex
	items map[string]*notification.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{items: make(map[string]*notification.Notification)}
}

func clone(n *notification.Notification) *notification.Notification {
	cp := *n
	if n.SentAt != nil {
		t := *n.SentAt
		cp.SentAt = &t
	}
	return &cp
}

func (r *NotificationRepository) CreatePending(_ context.Context, n *notification.Notification) (*notification.Notification, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := n.Key()
	for _, existing := range r.items {
		if existing.Status == notification.StatusPending && existing.Key() == key {
			return clone(existing), false, nil
		}
	}
	r.items[n.ID] = clone(n)
	return clone(n), true, nil
}

func (r *NotificationRepository) GetByID(_ context.Context, id string) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, notification.ErrNotificationNotFound
	}
	return clone(n), nil
}

func (r *NotificationRepository) ListByIDs(_ context.Context, ids []string) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return r.filter(
		func(n *notification.Notification) bool { return want[n.ID] },
		func(a, b *notification.Notification) bool { return a.ScheduledFor.Before(b.ScheduledFor) },
		0,
	), nil
}

func (r *NotificationRepository) filter(keep func(*notification.Notification) bool, less func(a, b *notification.Notification) bool, limit int) []*notification.Notification {
	out := make([]*notification.Notification, 0)
	for _, n := range r.items {
		if keep(n) {
			out = append(out, clone(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *NotificationRepository) ListDuePending(_ context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(
		func(n *notification.Notification) bool { return n.IsDue(now) },
		func(a, b *notification.Notification) bool { return a.ScheduledFor.Before(b.ScheduledFor) },
		limit,
	), nil
}

func (r *NotificationRepository) ListByUser(_ context.Context, userID string, limit int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(
		func(n *notification.Notification) bool { return n.UserID == userID },
		func(a, b *notification.Notification) bool { return a.ScheduledFor.Before(b.ScheduledFor) },
		limit,
	), nil
}

func (r *NotificationRepository) ListFailed(_ context.Context, limit int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(
		func(n *notification.Notification) bool { return n.Status == notification.StatusFailed },
		func(a, b *notification.Notification) bool { return a.UpdatedAt.After(b.UpdatedAt) },
		limit,
	), nil
}

func (r *NotificationRepository) transition(id string, apply func(n *notification.Notification)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return notification.ErrNotificationNotFound
	}
	if n.Status.IsTerminal() {
		return notification.ErrNotPending
	}
	apply(n)
	return nil
}

func (r *NotificationRepository) MarkSent(_ context.Context, id string, at time.Time) error {
	return r.transition(id, func(n *notification.Notification) {
		n.Status = notification.StatusSent
		n.SentAt = &at
		n.UpdatedAt = at
	})
}

func (r *NotificationRepository) MarkFailed(_ context.Context, id string, reason string, at time.Time) error {
	return r.transition(id, func(n *notification.Notification) {
		n.Status = notification.StatusFailed
		n.FailureReason = reason
		n.UpdatedAt = at
	})
}
