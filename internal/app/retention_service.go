package app

import (
	"context"
	"fmt"
	"time"

	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

const (
	DefaultRetentionPeriod = 2 * 365 * 24 * time.Hour
	DefaultSoftDeleteGrace = 30 * 24 * time.Hour
)

// PurgeReport counts rows removed by one retention run.
type PurgeReport struct {
	Cutoff            time.Time
	Cycles            int64
	SoftDeletedCycles int64
	ActivityLogs      int64
}

// RetentionService is the only component that hard-deletes cycle data.
type RetentionService struct {
	cycles          cycle.Repository
	softDeleteGrace time.Duration
	logger          *logrus.Entry
}

func NewRetentionService(cr cycle.Repository, softDeleteGrace time.Duration, logger *logrus.Entry) *RetentionService {
	if softDeleteGrace <= 0 {
		softDeleteGrace = DefaultSoftDeleteGrace
	}
	return &RetentionService{
		cycles:          cr,
		softDeleteGrace: softDeleteGrace,
		logger:          logger.WithField("component", "retention_service"),
	}
}

// PurgeExpired removes live cycles and activity logs created before
// now-retention, and cycles soft-deleted longer ago than the grace period.
// Running it again with nothing eligible is a no-op.
func (s *RetentionService) PurgeExpired(ctx context.Context, now time.Time, retention time.Duration) (PurgeReport, error) {
	if retention <= 0 {
		retention = DefaultRetentionPeriod
	}
	report := PurgeReport{Cutoff: now.Add(-retention)}

	n, err := s.cycles.DeleteExpired(ctx, report.Cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge expired cycles")
		return report, fmt.Errorf("failed to purge expired cycles: %w", err)
	}
	report.Cycles = n

	n, err = s.cycles.DeleteSoftDeleted(ctx, now.Add(-s.softDeleteGrace))
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge soft-deleted cycles")
		return report, fmt.Errorf("failed to purge soft-deleted cycles: %w", err)
	}
	report.SoftDeletedCycles = n

	n, err = s.cycles.DeleteActivityBefore(ctx, report.Cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge activity logs")
		return report, fmt.Errorf("failed to purge activity logs: %w", err)
	}
	report.ActivityLogs = n

	metrics.RetentionPurged.WithLabelValues("cycles").Add(float64(report.Cycles))
	metrics.RetentionPurged.WithLabelValues("soft_deleted_cycles").Add(float64(report.SoftDeletedCycles))
	metrics.RetentionPurged.WithLabelValues("activity_logs").Add(float64(report.ActivityLogs))

	s.logger.WithFields(logrus.Fields{
		"cutoff":              report.Cutoff.Format(time.RFC3339),
		"purged":              report.Cycles,
		"purged_soft_deleted": report.SoftDeletedCycles,
		"purged_activity":     report.ActivityLogs,
	}).Info("Retention sweep completed")
	return report, nil
}
