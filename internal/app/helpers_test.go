package app

import (
	"context"
	"io"
	"sync"
	"time"

	"taharah_tracker/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{now: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// recordingSender fails for the notification IDs in failFor and records the rest.
type recordingSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (s *recordingSender) Send(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[n.ID] {
		return io.ErrUnexpectedEOF
	}
	s.sent = append(s.sent, n.ID)
	return nil
}

func (s *recordingSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// stuckSender never returns until release is closed, ignoring its context.
type stuckSender struct {
	release chan struct{}
}

func (s *stuckSender) Send(_ context.Context, _ *notification.Notification) error {
	<-s.release
	return nil
}
