// Package metrics exposes Prometheus instruments for deliveries, follow-up
// actions, byte throughput, and send fallbacks. The daemon serves them from
// the default registry when metrics.listen is configured.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DeliveriesTotal counts finished deliveries by strategy and status.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedrelay",
			Subsystem: "pipeline",
			Name:      "deliveries_total",
			Help:      "Total finished deliveries",
		},
		[]string{"strategy", "status"},
	)

	// DeliveryDuration observes end-to-end delivery time.
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedrelay",
			Subsystem: "pipeline",
			Name:      "delivery_duration_seconds",
			Help:      "Delivery duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900},
		},
		[]string{"strategy"},
	)

	// BytesTotal counts media bytes moved, by direction.
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedrelay",
			Subsystem: "pipeline",
			Name:      "bytes_total",
			Help:      "Total media bytes downloaded or uploaded",
		},
		[]string{"direction"},
	)

	// FallbacksTotal counts failed send steps that fell through to the next
	// step of their chain.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedrelay",
			Subsystem: "pipeline",
			Name:      "fallbacks_total",
			Help:      "Send attempts that fell back to the next strategy",
		},
		[]string{"chain", "step"},
	)

	// TriggersTotal counts follow-up triggers by action and decision.
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedrelay",
			Subsystem: "dispatch",
			Name:      "triggers_total",
			Help:      "Follow-up action triggers by outcome",
		},
		[]string{"action", "decision"},
	)

	// ActionsTotal counts executed follow-up actions by result.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedrelay",
			Subsystem: "dispatch",
			Name:      "actions_total",
			Help:      "Executed follow-up actions by result",
		},
		[]string{"action", "status"},
	)

	// SchedulerInFlight reports admitted deliveries.
	SchedulerInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "feedrelay",
			Subsystem: "scheduler",
			Name:      "in_flight",
			Help:      "Deliveries currently admitted",
		},
	)

	// SchedulerWaiting reports deliveries blocked on admission.
	SchedulerWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "feedrelay",
			Subsystem: "scheduler",
			Name:      "waiting",
			Help:      "Deliveries waiting for a slot",
		},
	)
)

// RecordDelivery records a finished delivery.
func RecordDelivery(strategy, status string, durationSec float64) {
	DeliveriesTotal.WithLabelValues(strategy, status).Inc()
	DeliveryDuration.WithLabelValues(strategy).Observe(durationSec)
}

// AddBytes records moved bytes. direction is "download" or "upload".
func AddBytes(direction string, n int64) {
	if n > 0 {
		BytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordFallback records a failed step of a send chain.
func RecordFallback(chain, step string) {
	FallbacksTotal.WithLabelValues(chain, step).Inc()
}

// RecordTrigger records a dispatcher decision.
func RecordTrigger(action, decision string) {
	TriggersTotal.WithLabelValues(action, decision).Inc()
}

// RecordAction records the result of an executed follow-up.
func RecordAction(action, status string) {
	ActionsTotal.WithLabelValues(action, status).Inc()
}

// SetScheduler publishes scheduler occupancy.
func SetScheduler(inFlight, waiting int) {
	SchedulerInFlight.Set(float64(inFlight))
	SchedulerWaiting.Set(float64(waiting))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
