// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CycleEvents counts applyEvent outcomes.
	// Labels: event (hefsek_tahara, shiva_nekiyim_start, mikvah), outcome (accepted, invalid_sequence, policy_violation, conflict, error)
	CycleEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cycle_events_total",
			Help: "Total number of cycle events submitted, by outcome",
		},
		[]string{"event", "outcome"},
	)

	NotificationsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_scheduled_total",
			Help: "Total number of pending notifications created",
		},
		[]string{"type"},
	)

	// NotificationsDispatched counts dispatch results. Labels: outcome (sent, failed)
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total number of notifications dispatched by the due sweep",
		},
		[]string{"outcome"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of recurring sweep ticks",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"job"},
	)

	SweepSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_skipped_total",
			Help: "Total number of sweep ticks skipped because the previous tick was still running",
		},
		[]string{"job"},
	)

	// RetentionPurged counts hard-deleted rows. Labels: kind (cycles, soft_deleted_cycles, activity_logs)
	RetentionPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_purged_total",
			Help: "Total number of rows hard-deleted by the retention sweeper",
		},
		[]string{"kind"},
	)

	// DeliveryBreakerState values: 0=closed, 1=half-open, 2=open
	DeliveryBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_circuit_breaker_state",
			Help: "Current state of the delivery circuit breaker",
		},
		[]string{"name"},
	)
)
