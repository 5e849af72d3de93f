package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taharah_tracker/internal/app"
	"taharah_tracker/internal/infra/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	JobDispatch  = "dispatch"
	JobRetention = "retention"

	defaultDispatchJobTimeout = 5 * time.Minute
	retentionJobTimeout       = 30 * time.Minute
)

// Dispatcher sends due notifications. Implemented by app.NotificationService.
type Dispatcher interface {
	ProcessDue(ctx context.Context, now time.Time) (app.DispatchReport, error)
}

// Purger removes expired cycle data. Implemented by app.RetentionService.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time, retention time.Duration) (app.PurgeReport, error)
}

// Config holds the cron specs and retention period.
type Config struct {
	DispatchSpec    string // e.g. "@every 1m"
	RetentionSpec   string // e.g. "0 3 * * *" (03:00 daily)
	RetentionPeriod time.Duration
	// DispatchTimeout bounds one dispatch tick. It should cover a full batch
	// of deliveries at their own timeout; see DispatchBudget.
	DispatchTimeout time.Duration
}

// DispatchBudget is the tick timeout that lets every delivery of a full
// batch run to its own deadline, plus a minute for storage.
func DispatchBudget(batchSize int, deliveryTimeout time.Duration) time.Duration {
	return time.Duration(batchSize)*deliveryTimeout + time.Minute
}

// guard lets at most one run of a job proceed per process.
type guard struct {
	mu sync.Mutex
}

type SweepScheduler struct {
	cronEngine *cron.Cron
	dispatcher Dispatcher
	purger     Purger
	clock      app.Clock
	logger     *logrus.Entry
	cfg        Config

	dispatchGuard  guard
	retentionGuard guard
}

func NewSweepScheduler(dispatcher Dispatcher, purger Purger, clock app.Clock, logger *logrus.Entry, cfg Config) *SweepScheduler {
	logger = logger.WithField("component", "scheduler")
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = defaultDispatchJobTimeout
	}
	return &SweepScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logger)), cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		dispatcher: dispatcher,
		purger:     purger,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start registers both jobs and starts the cron engine.
func (s *SweepScheduler) Start() error {
	s.logger.Info("Starting sweep scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cfg.DispatchSpec, func() { s.RunDispatch() }); err != nil {
		return fmt.Errorf("could not add dispatch cron job %q: %w", s.cfg.DispatchSpec, err)
	}
	if _, err := s.cronEngine.AddFunc(s.cfg.RetentionSpec, func() { s.RunRetention() }); err != nil {
		return fmt.Errorf("could not add retention cron job %q: %w", s.cfg.RetentionSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"dispatch_spec":  s.cfg.DispatchSpec,
		"retention_spec": s.cfg.RetentionSpec,
	}).Info("Sweep scheduler started with jobs.")
	return nil
}

// RunDispatch runs one due-notification sweep unless one is already running.
// It reports whether the sweep ran.
func (s *SweepScheduler) RunDispatch() bool {
	return s.run(JobDispatch, &s.dispatchGuard, s.cfg.DispatchTimeout, func(ctx context.Context) error {
		report, err := s.dispatcher.ProcessDue(ctx, s.clock.Now())
		if err == nil && report.Selected > 0 {
			s.logger.WithFields(logrus.Fields{
				"selected": report.Selected,
				"sent":     report.Sent,
				"failed":   report.Failed,
			}).Info("Dispatch sweep finished")
		}
		return err
	})
}

// RunRetention runs one retention purge unless one is already running.
func (s *SweepScheduler) RunRetention() bool {
	return s.run(JobRetention, &s.retentionGuard, retentionJobTimeout, func(ctx context.Context) error {
		_, err := s.purger.PurgeExpired(ctx, s.clock.Now(), s.cfg.RetentionPeriod)
		return err
	})
}

func (s *SweepScheduler) run(job string, g *guard, timeout time.Duration, fn func(ctx context.Context) error) bool {
	logCtx := s.logger.WithField("job", job)
	if !g.mu.TryLock() {
		metrics.SweepSkipped.WithLabelValues(job).Inc()
		logCtx.Warn("Previous run still in progress. Skipping tick.")
		return false
	}
	defer g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.SweepDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	if err != nil {
		logCtx.WithError(err).Error("Sweep failed")
	}
	return true
}

func (s *SweepScheduler) Stop() {
	s.logger.Info("Stopping sweep scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Sweep scheduler gracefully stopped.")
}
