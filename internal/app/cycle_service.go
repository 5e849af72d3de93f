// internal/app/cycle_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/domain/onah"
	"taharah_tracker/internal/domain/profile"
	"taharah_tracker/internal/domain/veset"
	"taharah_tracker/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// ReminderScheduler is notified after every accepted cycle change.
type ReminderScheduler interface {
	ScheduleForCycle(ctx context.Context, userID, cycleID string) (int, error)
}

// CycleService owns every mutation of cycle records. Handlers never write
// records directly.
type CycleService struct {
	cycles    cycle.Repository
	profiles  profile.Repository
	reminders ReminderScheduler
	clock     Clock
	logger    *logrus.Entry
}

func NewCycleService(cr cycle.Repository, pr profile.Repository, rs ReminderScheduler, clock Clock, logger *logrus.Entry) *CycleService {
	return &CycleService{
		cycles:    cr,
		profiles:  pr,
		reminders: rs,
		clock:     clock,
		logger:    logger.WithField("component", "cycle_service"),
	}
}

// loadPreferences falls back to defaults for users who never saved a profile.
func loadPreferences(ctx context.Context, pr profile.Repository, userID string) (*profile.Preferences, error) {
	prefs, err := pr.GetPreferences(ctx, userID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return profile.Defaults(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences for user %s: %w", userID, err)
	}
	return prefs, nil
}

func policyFor(p *profile.Preferences) cycle.Policy {
	return cycle.Policy{MinimumNiddahDays: p.MinimumNiddahDays, Location: p.Location()}
}

// StartCycle records a new period start for userID.
func (s *CycleService) StartCycle(ctx context.Context, userID string, periodStart time.Time, notes, privateNotes string) (*cycle.Record, error) {
	now := s.clock.Now()
	logCtx := s.logger.WithField("user_id", userID)

	if periodStart.After(now) {
		return nil, fmt.Errorf("%w: period start cannot be in the future", cycle.ErrInvalidSequence)
	}

	prefs, err := loadPreferences(ctx, s.profiles, userID)
	if err != nil {
		return nil, err
	}
	existing, err := s.cycles.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles for user %s: %w", userID, err)
	}
	loc := prefs.Location()
	newDate := onah.Date(periodStart, loc)
	for _, r := range existing {
		if onah.Date(r.PeriodStart, loc).Equal(newDate) {
			return nil, fmt.Errorf("%w: a cycle already starts on %s", cycle.ErrInvalidSequence, newDate.Format("2006-01-02"))
		}
	}

	rec := cycle.NewRecord(userID, periodStart, notes, privateNotes, now)
	if err := s.cycles.Create(ctx, rec); err != nil {
		logCtx.WithError(err).Error("Failed to create cycle record")
		return nil, fmt.Errorf("failed to create cycle: %w", err)
	}
	logCtx.WithField("cycle_id", rec.ID).Info("Cycle started")

	s.recordActivity(ctx, cycle.NewActivity(userID, rec.ID, cycle.ActionCreated, periodStart.Format(time.RFC3339), now))
	s.scheduleReminders(ctx, userID, rec.ID)
	return rec, nil
}

// ApplyEvent records a cycle milestone. Concurrent writers are serialized by
// the record version: a lost race is retried once against fresh state, then
// surfaced as ErrConflict.
func (s *CycleService) ApplyEvent(ctx context.Context, userID, cycleID string, ev cycle.EventType, ts time.Time) (*cycle.Record, cycle.Status, error) {
	logCtx := s.logger.WithFields(logrus.Fields{"user_id": userID, "cycle_id": cycleID, "event": ev})

	prefs, err := loadPreferences(ctx, s.profiles, userID)
	if err != nil {
		return nil, "", err
	}
	policy := policyFor(prefs)

	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.getOwned(ctx, userID, cycleID)
		if err != nil {
			return nil, "", err
		}

		now := s.clock.Now()
		next, status, err := cycle.ApplyEvent(current, ev, ts, policy, now)
		if err != nil {
			metrics.CycleEvents.WithLabelValues(string(ev), outcomeFor(err)).Inc()
			logCtx.WithError(err).Info("Cycle event rejected")
			return nil, "", err
		}

		err = s.cycles.Update(ctx, next, current.Version)
		if errors.Is(err, cycle.ErrConflict) {
			if attempt == 0 {
				logCtx.Warn("Version conflict applying cycle event, retrying once")
				continue
			}
			metrics.CycleEvents.WithLabelValues(string(ev), "conflict").Inc()
			return nil, "", err
		}
		if err != nil {
			metrics.CycleEvents.WithLabelValues(string(ev), "error").Inc()
			logCtx.WithError(err).Error("Failed to persist cycle event")
			return nil, "", fmt.Errorf("failed to update cycle %s: %w", cycleID, err)
		}

		metrics.CycleEvents.WithLabelValues(string(ev), "accepted").Inc()
		logCtx.WithField("status", status).Info("Cycle event applied")
		s.recordActivity(ctx, cycle.NewActivity(userID, cycleID, string(ev), ts.Format(time.RFC3339), now))
		s.scheduleReminders(ctx, userID, cycleID)
		return next, status, nil
	}
	// Unreachable: the second attempt always returns.
	return nil, "", cycle.ErrConflict
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, cycle.ErrInvalidSequence):
		return "invalid_sequence"
	case errors.Is(err, cycle.ErrPolicyViolation):
		return "policy_violation"
	default:
		return "error"
	}
}

// Get returns one of userID's cycles.
func (s *CycleService) Get(ctx context.Context, userID, cycleID string) (*cycle.Record, error) {
	return s.getOwned(ctx, userID, cycleID)
}

func (s *CycleService) getOwned(ctx context.Context, userID, cycleID string) (*cycle.Record, error) {
	rec, err := s.cycles.GetByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID || rec.IsDeleted {
		return nil, cycle.ErrNotFound
	}
	return rec, nil
}

// List returns the user's non-deleted cycles ordered by period start.
func (s *CycleService) List(ctx context.Context, userID string) ([]*cycle.Record, error) {
	return s.cycles.ListByUser(ctx, userID)
}

// Delete soft-deletes a cycle. Physical removal is left to the retention sweeper.
func (s *CycleService) Delete(ctx context.Context, userID, cycleID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.getOwned(ctx, userID, cycleID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		next := current.Clone()
		next.IsDeleted = true
		next.DeletedAt = &now
		next.UpdatedAt = now

		err = s.cycles.Update(ctx, next, current.Version)
		if errors.Is(err, cycle.ErrConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return err
		}
		s.logger.WithFields(logrus.Fields{"user_id": userID, "cycle_id": cycleID}).Info("Cycle soft-deleted")
		s.recordActivity(ctx, cycle.NewActivity(userID, cycleID, cycle.ActionDeleted, "", now))
		return nil
	}
	return cycle.ErrConflict
}

// Predict returns the user's predicted onsets from all non-deleted cycles.
func (s *CycleService) Predict(ctx context.Context, userID string) ([]veset.Prediction, error) {
	prefs, err := loadPreferences(ctx, s.profiles, userID)
	if err != nil {
		return nil, err
	}
	records, err := s.cycles.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles for user %s: %w", userID, err)
	}
	return predictFor(records, prefs), nil
}

// Activity returns the user's most recent audit entries.
func (s *CycleService) Activity(ctx context.Context, userID string, limit int) ([]*cycle.ActivityLog, error) {
	return s.cycles.ListActivity(ctx, userID, limit)
}

func predictFor(records []*cycle.Record, prefs *profile.Preferences) []veset.Prediction {
	starts := make([]time.Time, 0, len(records))
	for _, r := range records {
		starts = append(starts, r.PeriodStart)
	}
	return veset.PredictNextOnsets(starts, prefs.Location(), veset.Stringencies{
		OhrZaruah:     prefs.OhrZaruah,
		KreisiUpleisi: prefs.KreisiUpleisi,
		ChasamSofer:   prefs.ChasamSofer,
	})
}

// recordActivity never fails the caller; the audit trail is best effort.
func (s *CycleService) recordActivity(ctx context.Context, a *cycle.ActivityLog) {
	if err := s.cycles.AppendActivity(ctx, a); err != nil {
		s.logger.WithError(err).WithField("cycle_id", a.CycleID).Warn("Failed to append activity log")
	}
}

func (s *CycleService) scheduleReminders(ctx context.Context, userID, cycleID string) {
	if s.reminders == nil {
		return
	}
	if _, err := s.reminders.ScheduleForCycle(ctx, userID, cycleID); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"user_id": userID, "cycle_id": cycleID}).Error("Failed to schedule reminders")
	}
}
