package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taharah_tracker/internal/domain/notification"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = errors.New("performing user is not authorized as an admin")
var ErrNotFailed = errors.New("only failed notifications can be rescheduled")

// AdminService exposes operator actions over dispatch results.
type AdminService struct {
	notifRepo       notification.Repository
	clock           Clock
	adminTelegramID int64
}

func NewAdminService(nr notification.Repository, clock Clock, adminID int64) *AdminService {
	return &AdminService{
		notifRepo:       nr,
		clock:           clock,
		adminTelegramID: adminID,
	}
}

func (s *AdminService) authorize(performingAdminID int64) error {
	if s.adminTelegramID == 0 || performingAdminID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

// ListFailed returns the most recently failed notifications.
func (s *AdminService) ListFailed(ctx context.Context, performingAdminID int64, limit int) ([]*notification.Notification, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	failed, err := s.notifRepo.ListFailed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed notifications: %w", err)
	}
	return failed, nil
}

// Reschedule re-triggers a failed notification. The failed record stays as it
// is; a new pending copy is scheduled at at, or immediately when at is zero.
func (s *AdminService) Reschedule(ctx context.Context, performingAdminID int64, notificationID string, at time.Time) (*notification.Notification, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}

	failed, err := s.notifRepo.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if failed.Status != notification.StatusFailed {
		return nil, ErrNotFailed
	}
	return s.retry(ctx, failed, at)
}

// RescheduleMany reschedules every failed notification among ids. Unknown or
// non-failed IDs are reported in skipped.
func (s *AdminService) RescheduleMany(ctx context.Context, performingAdminID int64, ids []string, at time.Time) (rescheduled []*notification.Notification, skipped []string, err error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, nil, err
	}

	found, err := s.notifRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	byID := make(map[string]*notification.Notification, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}

	for _, id := range ids {
		n, ok := byID[id]
		if !ok || n.Status != notification.StatusFailed {
			skipped = append(skipped, id)
			continue
		}
		stored, err := s.retry(ctx, n, at)
		if err != nil {
			return rescheduled, skipped, err
		}
		rescheduled = append(rescheduled, stored)
	}
	return rescheduled, skipped, nil
}

func (s *AdminService) retry(ctx context.Context, failed *notification.Notification, at time.Time) (*notification.Notification, error) {
	now := s.clock.Now()
	if at.IsZero() {
		at = now
	}
	retry := notification.New(failed.UserID, failed.CycleID, failed.Type, failed.Title, failed.Message, at, now)
	stored, _, err := s.notifRepo.CreatePending(ctx, retry)
	if err != nil {
		return nil, fmt.Errorf("failed to reschedule notification %s: %w", failed.ID, err)
	}
	return stored, nil
}
