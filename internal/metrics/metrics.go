package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coworking"

var (
	once sync.Once

	holdsAcquired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_acquired_total",
			Help:      "Count of slot holds granted or refreshed.",
		},
	)

	holdConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_conflicts_total",
			Help:      "Count of hold attempts lost to contention, by reason.",
		},
		[]string{"reason"},
	)

	holdsReleased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_released_total",
			Help:      "Count of holds removed, by reason (released, expired, promoted).",
		},
		[]string{"reason"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Count of reservation transitions by resulting status.",
		},
		[]string{"status"},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Count of expiry sweeps by outcome.",
		},
		[]string{"outcome"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiry sweeps.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	broadcastEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_events_total",
			Help:      "Count of slot events published, by type.",
		},
		[]string{"type"},
	)

	slowSubscribers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_slow_subscribers_total",
			Help:      "Count of websocket subscribers dropped for not keeping up.",
		},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			holdsAcquired,
			holdConflicts,
			holdsReleased,
			reservations,
			sweepRuns,
			sweepDuration,
			broadcastEvents,
			slowSubscribers,
			wsConnections,
		)
	})
}

func IncHoldAcquired() {
	holdsAcquired.Inc()
}

func IncHoldConflict(reason string) {
	holdConflicts.WithLabelValues(reason).Inc()
}

func IncHoldReleased(reason string) {
	holdsReleased.WithLabelValues(reason).Inc()
}

func IncReservation(status string) {
	reservations.WithLabelValues(status).Inc()
}

func ObserveSweep(outcome string, d time.Duration) {
	sweepRuns.WithLabelValues(outcome).Inc()
	sweepDuration.Observe(d.Seconds())
}

func IncBroadcast(eventType string) {
	broadcastEvents.WithLabelValues(eventType).Inc()
}

func IncSlowSubscriber() {
	slowSubscribers.Inc()
}

func AddConnections(delta float64) {
	wsConnections.Add(delta)
}
