// Package delivery wraps notification senders with failure isolation.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taharah_tracker/internal/domain/notification"
	"taharah_tracker/internal/infra/metrics"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/sirupsen/logrus"
)

// BreakerSettings tunes the circuit in front of a sender.
type BreakerSettings struct {
	Name         string
	MinRequests  uint32        // Requests in the window before the failure ratio counts
	FailureRatio float64       // Opens at or above this ratio
	Interval     time.Duration // Counts reset after this long in closed state
	Timeout      time.Duration // Open state lasts this long before probing
}

func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:         name,
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
	}
}

// GuardedSender stops calling a failing channel for a while instead of
// letting every due notification wait out its timeout. Recipient-specific
// failures do not count against the channel.
type GuardedSender struct {
	next   notification.Sender
	cb     *gobreaker.CircuitBreaker[struct{}]
	name   string
	logger *logrus.Entry
}

func NewGuardedSender(next notification.Sender, s BreakerSettings, logger *logrus.Entry) *GuardedSender {
	logger = logger.WithFields(logrus.Fields{"component": "delivery", "breaker": s.Name})
	metrics.DeliveryBreakerState.WithLabelValues(s.Name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1, // One probe in half-open state
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= s.FailureRatio {
				logger.WithFields(logrus.Fields{"failures": counts.TotalFailures, "failure_rate": ratio}).Warn("Opening delivery circuit")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, notification.ErrNoRecipient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Info("Delivery circuit state transition")
			metrics.DeliveryBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &GuardedSender{next: next, cb: cb, name: s.Name, logger: logger}
}

func (g *GuardedSender) Send(ctx context.Context, n *notification.Notification) error {
	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, g.next.Send(ctx, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s circuit %v", notification.ErrDelivery, g.name, err)
	}
	return err
}

// State exposes the breaker state for health reporting.
func (g *GuardedSender) State() gobreaker.State {
	return g.cb.State()
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
