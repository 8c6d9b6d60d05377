// Package metrics exposes Prometheus instrumentation for the booking
// coordination layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the layer's Prometheus collectors.
type Metrics struct {
	// BookingsCreated counts successful appointment creations by store.
	BookingsCreated *prometheus.CounterVec

	// SlotConflicts counts creates rejected because the slot was taken
	// or the date blocked.
	SlotConflicts prometheus.Counter

	// Failovers counts operations rerouted to the backup store.
	Failovers prometheus.Counter

	// RecoveryAttempts counts primary recovery attempts by outcome.
	RecoveryAttempts *prometheus.CounterVec

	// RateLimited counts requests denied by the rate limiter.
	RateLimited prometheus.Counter

	// IdempotentReplays counts duplicate requests answered from cache.
	IdempotentReplays prometheus.Counter

	// CleanupDeleted counts appointments removed by retention sweeps.
	CleanupDeleted prometheus.Counter

	// PrimaryUp is 1 while the primary store is considered available.
	PrimaryUp prometheus.Gauge
}

// New creates and registers the collectors on the given registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BookingsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bookings_created_total",
				Help:      "Total number of appointments created",
			},
			[]string{"store"},
		),

		SlotConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slot_conflicts_total",
				Help:      "Total number of creates rejected for an unavailable slot",
			},
		),

		Failovers: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failovers_total",
				Help:      "Total number of operations rerouted to the backup store",
			},
		),

		RecoveryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_attempts_total",
				Help:      "Total number of primary recovery attempts",
			},
			[]string{"outcome"},
		),

		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Total number of requests denied by the rate limiter",
			},
		),

		IdempotentReplays: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotent_replays_total",
				Help:      "Total number of duplicate requests answered from cache",
			},
		),

		CleanupDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_deleted_total",
				Help:      "Total number of appointments removed by retention sweeps",
			},
		),

		PrimaryUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "primary_store_up",
				Help:      "1 while the primary store is considered available",
			},
		),
	}
}
