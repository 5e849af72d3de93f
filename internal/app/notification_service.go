// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/domain/notification"
	"taharah_tracker/internal/domain/onah"
	"taharah_tracker/internal/domain/profile"
	"taharah_tracker/internal/domain/veset"
	"taharah_tracker/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

const (
	DefaultDispatchBatchSize = 100
	DefaultDeliveryTimeout   = 10 * time.Second

	recordTimeout = 10 * time.Second
)

// DispatchReport summarizes one ProcessDue tick.
type DispatchReport struct {
	Selected int
	Sent     int
	Failed   int
}

// NotificationConfig tunes the due sweep.
type NotificationConfig struct {
	BatchSize       int
	DeliveryTimeout time.Duration
}

// NotificationService schedules reminders and dispatches them when due.
type NotificationService struct {
	notifRepo notification.Repository
	cycles    cycle.Repository
	profiles  profile.Repository
	sender    notification.Sender
	clock     Clock
	logger    *logrus.Entry
	cfg       NotificationConfig

	mu         sync.Mutex
	unrecorded map[string]outcome // Delivered or failed, but not yet stored
}

func NewNotificationService(
	nr notification.Repository,
	cr cycle.Repository,
	pr profile.Repository,
	sender notification.Sender,
	clock Clock,
	logger *logrus.Entry,
	cfg NotificationConfig,
) *NotificationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultDispatchBatchSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	return &NotificationService{
		notifRepo:  nr,
		cycles:     cr,
		profiles:   pr,
		sender:     sender,
		clock:      clock,
		logger:     logger.WithField("component", "notification_service"),
		cfg:        cfg,
		unrecorded: make(map[string]outcome),
	}
}

// ScheduleForPrediction creates a pending reminder leadHours before the
// predicted onah. Re-running it for the same computed date returns the
// existing pending notification instead of creating a duplicate.
func (s *NotificationService) ScheduleForPrediction(ctx context.Context, userID, cycleID string, p veset.Prediction, leadHours int) (*notification.Notification, error) {
	t := typeForRule(p.Rule)
	title, message := predictionText(p)
	scheduledFor := p.Start.Add(-time.Duration(leadHours) * time.Hour)
	stored, _, err := s.schedule(ctx, notification.New(userID, cycleID, t, title, message, scheduledFor, s.clock.Now()))
	return stored, err
}

func (s *NotificationService) schedule(ctx context.Context, n *notification.Notification) (*notification.Notification, bool, error) {
	logCtx := s.logger.WithFields(logrus.Fields{
		"user_id":       n.UserID,
		"cycle_id":      n.CycleID,
		"type":          n.Type,
		"scheduled_for": n.ScheduledFor.Format(time.RFC3339),
	})

	stored, created, err := s.notifRepo.CreatePending(ctx, n)
	if err != nil {
		logCtx.WithError(err).Error("Failed to create pending notification")
		return nil, false, fmt.Errorf("failed to schedule %s notification: %w", n.Type, err)
	}
	if !created {
		logCtx.WithField("notification_id", stored.ID).Debug("Pending notification already exists. Skipping creation.")
		return stored, false, nil
	}
	metrics.NotificationsScheduled.WithLabelValues(string(n.Type)).Inc()
	logCtx.WithField("notification_id", stored.ID).Info("Notification scheduled")
	return stored, true, nil
}

// ScheduleForCycle materializes every future reminder the user's toggles allow
// for cycleID. It returns the number of notifications newly created.
func (s *NotificationService) ScheduleForCycle(ctx context.Context, userID, cycleID string) (int, error) {
	prefs, err := loadPreferences(ctx, s.profiles, userID)
	if err != nil {
		return 0, err
	}
	records, err := s.cycles.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list cycles for user %s: %w", userID, err)
	}

	var rec *cycle.Record
	for _, r := range records {
		if r.ID == cycleID {
			rec = r
		}
	}
	if rec == nil {
		return 0, cycle.ErrNotFound
	}

	now := s.clock.Now()
	loc := prefs.Location()
	policy := policyFor(prefs)
	var pending []*notification.Notification

	if rec.HefsekTahara == nil {
		at := s.atReminderTime(onah.Start(cycle.EarliestHefsek(rec, policy), onah.Day, loc), prefs)
		pending = append(pending, notification.New(userID, cycleID, notification.TypeHefsekReminder,
			"Hefsek tahara",
			fmt.Sprintf("A hefsek tahara may be performed from today, %s, before sunset.", at.Format("Mon 2 Jan")),
			at, now))
	}

	if mikvahDate, ok := cycle.EarliestMikvah(rec, policy); ok && rec.MikvahDate == nil {
		// The night of mikvahDate begins the evening before it.
		at := s.atReminderTime(onah.Start(mikvahDate, onah.Night, loc), prefs)
		pending = append(pending, notification.New(userID, cycleID, notification.TypeMikvahReminder,
			"Mikvah tonight",
			fmt.Sprintf("The seven clean days end today; immersion is possible tonight, %s.", at.Format("Mon 2 Jan")),
			at, now))
	}

	// Predictions are anchored on the latest onset only.
	if latest := records[len(records)-1]; latest.ID == cycleID {
		lead := time.Duration(prefs.LeadHours) * time.Hour
		for _, p := range veset.Upcoming(predictFor(records, prefs), now) {
			title, message := predictionText(p)
			pending = append(pending, notification.New(userID, cycleID, typeForRule(p.Rule), title, message, p.Start.Add(-lead), now))
		}
	}

	created := 0
	for _, n := range pending {
		if !reminderEnabled(prefs, n.Type) || !n.ScheduledFor.After(now) {
			continue
		}
		_, ok, err := s.schedule(ctx, n)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// reminderEnabled applies the user's per-kind reminder toggles.
func reminderEnabled(prefs *profile.Preferences, t notification.Type) bool {
	switch {
	case t == notification.TypeHefsekReminder:
		return prefs.HefsekReminders
	case t == notification.TypeMikvahReminder:
		return prefs.MikvahReminders
	case t.IsVeset():
		return prefs.VesetReminders
	}
	return false
}

// atReminderTime moves day's civil date to the user's reminder clock time.
func (s *NotificationService) atReminderTime(day time.Time, prefs *profile.Preferences) time.Time {
	h, m := prefs.ReminderClock()
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// ProcessDue dispatches up to one batch of pending notifications scheduled at
// or before now. Each notification is sent at most once: a delivery failure
// is recorded on that notification and never retried. A storage error ends
// the tick early; the next tick picks up whatever is still pending. When ctx
// ends mid-batch, notifications not yet attempted stay pending.
func (s *NotificationService) ProcessDue(ctx context.Context, now time.Time) (DispatchReport, error) {
	var report DispatchReport

	if err := s.flushUnrecorded(ctx); err != nil {
		return report, err
	}

	due, err := s.notifRepo.ListDuePending(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list due notifications")
		return report, fmt.Errorf("failed to list due notifications: %w", err)
	}
	report.Selected = len(due)
	if len(due) == 0 {
		s.logger.Debug("No due notifications.")
		return report, nil
	}
	s.logger.WithField("count", len(due)).Info("Dispatching due notifications")

	for _, n := range due {
		if err := ctx.Err(); err != nil {
			s.logger.WithError(err).Warn("Dispatch tick ended before the batch finished. Remaining notifications stay pending.")
			return report, fmt.Errorf("dispatch interrupted: %w", err)
		}
		if !n.IsDue(now) || s.isUnrecorded(n.ID) {
			continue
		}
		logCtx := s.logger.WithFields(logrus.Fields{"notification_id": n.ID, "user_id": n.UserID, "type": n.Type})

		sendErr := s.deliver(ctx, n)
		if sendErr != nil {
			logCtx.WithError(sendErr).Warn("Delivery failed")
		}
		o := outcome{id: n.ID, sendErr: sendErr, at: s.clock.Now()}

		markErr := s.record(ctx, o)
		if errors.Is(markErr, notification.ErrNotPending) {
			logCtx.Warn("Notification left pending state during dispatch. Skipping.")
			continue
		}
		if markErr != nil {
			// The send already happened; keep the outcome so later ticks
			// record it instead of sending again.
			s.keepUnrecorded(o)
			logCtx.WithError(markErr).Error("Failed to record dispatch outcome")
			return report, fmt.Errorf("failed to record outcome for notification %s: %w", n.ID, markErr)
		}

		if sendErr != nil {
			report.Failed++
			metrics.NotificationsDispatched.WithLabelValues("failed").Inc()
		} else {
			report.Sent++
			metrics.NotificationsDispatched.WithLabelValues("sent").Inc()
			logCtx.Info("Notification sent")
		}
	}
	return report, nil
}

// outcome is the result of one delivery attempt.
type outcome struct {
	id      string
	sendErr error
	at      time.Time
}

// record stores o. It runs detached from ctx cancellation so that an attempt
// which already reached the sender is recorded even after the tick deadline.
func (s *NotificationService) record(ctx context.Context, o outcome) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if o.sendErr != nil {
		return s.notifRepo.MarkFailed(rctx, o.id, o.sendErr.Error(), o.at)
	}
	return s.notifRepo.MarkSent(rctx, o.id, o.at)
}

func (s *NotificationService) keepUnrecorded(o outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unrecorded[o.id] = o
}

func (s *NotificationService) isUnrecorded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unrecorded[id]
	return ok
}

// flushUnrecorded retries storing outcomes a previous tick could not record.
func (s *NotificationService) flushUnrecorded(ctx context.Context) error {
	s.mu.Lock()
	pending := make([]outcome, 0, len(s.unrecorded))
	for _, o := range s.unrecorded {
		pending = append(pending, o)
	}
	s.mu.Unlock()

	for _, o := range pending {
		err := s.record(ctx, o)
		if err != nil && !errors.Is(err, notification.ErrNotPending) {
			s.logger.WithError(err).WithField("notification_id", o.id).Error("Still unable to record dispatch outcome")
			return fmt.Errorf("failed to record outcome for notification %s: %w", o.id, err)
		}
		s.mu.Lock()
		delete(s.unrecorded, o.id)
		s.mu.Unlock()
		if err == nil {
			result := "sent"
			if o.sendErr != nil {
				result = "failed"
			}
			metrics.NotificationsDispatched.WithLabelValues(result).Inc()
		}
	}
	return nil
}

// deliver bounds the sender call by the configured timeout. A sender that
// ignores cancellation is abandoned and the notification counts as failed.
// If ctx itself ends first the attempt also counts as failed, since the
// sender may already have delivered it.
func (s *NotificationService) deliver(ctx context.Context, n *notification.Notification) error {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.sender.Send(dctx, n) }()

	var sendErr error
	select {
	case sendErr = <-errCh:
	case <-dctx.Done():
		select {
		case sendErr = <-errCh:
		default:
			if ctx.Err() != nil {
				return fmt.Errorf("%w: dispatch interrupted: %v", notification.ErrDelivery, ctx.Err())
			}
			return fmt.Errorf("%w after %s", notification.ErrDeliveryTimeout, s.cfg.DeliveryTimeout)
		}
	}
	if sendErr != nil && !errors.Is(sendErr, notification.ErrDelivery) {
		return fmt.Errorf("%w: %v", notification.ErrDelivery, sendErr)
	}
	return sendErr
}

// ListForUser returns a user's notifications ordered by scheduled time.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	return s.notifRepo.ListByUser(ctx, userID, limit)
}

func typeForRule(r veset.Rule) notification.Type {
	switch r {
	case veset.RuleChodesh:
		return notification.TypeVesetChodesh
	case veset.RuleHaflagah:
		return notification.TypeVesetHaflagah
	case veset.RuleHaguf:
		return notification.TypeVesetHaguf
	case veset.RuleChasamSofer:
		return notification.TypeOnahChasamSofer
	case veset.RuleOhrZaruah:
		return notification.TypeOhrZaruah
	default:
		return notification.TypeOnahBeinonit
	}
}

var ruleTitles = map[veset.Rule]string{
	veset.RuleChodesh:     "Veset ha-chodesh",
	veset.RuleHaflagah:    "Veset ha-haflagah",
	veset.RuleHaguf:       "Veset ha-guf",
	veset.RuleBeinonit:    "Onah beinonit",
	veset.RuleChasamSofer: "Onah beinonit (day 31)",
	veset.RuleOhrZaruah:   "Ohr zaruah",
}

func predictionText(p veset.Prediction) (string, string) {
	title := ruleTitles[p.Rule]
	if p.Rule == veset.RuleOhrZaruah && p.Basis != "" {
		title = fmt.Sprintf("%s before %s", title, ruleTitles[p.Basis])
	}
	message := fmt.Sprintf("Anticipated onah: %s onah beginning %s.", p.Onah, p.Start.Format("Mon 2 Jan 15:04"))
	return title, message
}
