package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"taharah_tracker/internal/app"
	"taharah_tracker/internal/infra/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type blockingDispatcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (d *blockingDispatcher) ProcessDue(ctx context.Context, now time.Time) (app.DispatchReport, error) {
	d.calls.Add(1)
	d.started <- struct{}{}
	<-d.release
	return app.DispatchReport{Selected: 1, Sent: 1}, nil
}

type recordingPurger struct {
	retention time.Duration
	now       time.Time
	err       error
}

func (p *recordingPurger) PurgeExpired(_ context.Context, now time.Time, retention time.Duration) (app.PurgeReport, error) {
	p.now, p.retention = now, retention
	return app.PurgeReport{}, p.err
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestSweepScheduler_SkipsOverlappingDispatch(t *testing.T) {
	d := &blockingDispatcher{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := NewSweepScheduler(d, &recordingPurger{}, fixedClock{time.Now()}, quietLogger(), Config{})

	skipped := metrics.SweepSkipped.WithLabelValues(JobDispatch)
	before := testutil.ToFloat64(skipped)

	done := make(chan bool)
	go func() { done <- s.RunDispatch() }()
	<-d.started

	if s.RunDispatch() {
		t.Error("second RunDispatch() ran while the first was in progress")
	}
	if delta := testutil.ToFloat64(skipped) - before; delta != 1 {
		t.Errorf("skipped counter delta = %v, want 1", delta)
	}

	close(d.release)
	if !<-done {
		t.Error("first RunDispatch() reported skipped")
	}
	if d.calls.Load() != 1 {
		t.Errorf("dispatcher called %d times, want 1", d.calls.Load())
	}

	// The guard is released once the run finishes.
	go func() { <-d.started }()
	if !s.RunDispatch() {
		t.Error("RunDispatch() after completion was skipped")
	}
}

// deadlineDispatcher records how long the tick context had left.
type deadlineDispatcher struct {
	remaining time.Duration
}

func (d *deadlineDispatcher) ProcessDue(ctx context.Context, _ time.Time) (app.DispatchReport, error) {
	if dl, ok := ctx.Deadline(); ok {
		d.remaining = time.Until(dl)
	}
	return app.DispatchReport{}, nil
}

func TestSweepScheduler_DispatchTimeout(t *testing.T) {
	budget := DispatchBudget(100, 10*time.Second)
	if budget < 100*10*time.Second {
		t.Fatalf("DispatchBudget() = %s, shorter than a full batch of delivery timeouts", budget)
	}

	tests := []struct {
		name string
		cfg  Config
		want time.Duration
	}{
		{"default", Config{}, defaultDispatchJobTimeout},
		{"full batch budget", Config{DispatchTimeout: budget}, budget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &deadlineDispatcher{}
			s := NewSweepScheduler(d, nil, fixedClock{time.Now()}, quietLogger(), tt.cfg)
			if !s.RunDispatch() {
				t.Fatal("RunDispatch() skipped")
			}
			if d.remaining <= tt.want-time.Minute || d.remaining > tt.want {
				t.Errorf("tick deadline in %s, want about %s", d.remaining, tt.want)
			}
		})
	}
}

func TestSweepScheduler_RunRetention(t *testing.T) {
	now := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	p := &recordingPurger{err: errors.New("db down")}
	s := NewSweepScheduler(nil, p, fixedClock{now}, quietLogger(), Config{RetentionPeriod: 48 * time.Hour})

	if !s.RunRetention() {
		t.Fatal("RunRetention() skipped")
	}
	if !p.now.Equal(now) || p.retention != 48*time.Hour {
		t.Errorf("purger got now=%s retention=%s", p.now, p.retention)
	}
	// A failed run does not keep the guard held.
	if !s.RunRetention() {
		t.Error("RunRetention() after a failed run was skipped")
	}
}

func TestSweepScheduler_StartRejectsBadSpec(t *testing.T) {
	s := NewSweepScheduler(nil, nil, fixedClock{}, quietLogger(), Config{DispatchSpec: "not a spec", RetentionSpec: "0 3 * * *"})
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Start() accepted an invalid cron spec")
	}
}
