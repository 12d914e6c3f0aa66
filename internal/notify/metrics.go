package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "consultq"

var (
	outboxSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "outbox_size",
			Help:      "Number of outbox events by delivery status",
		},
		[]string{"status"},
	)

	eventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "delivered_total",
			Help:      "Total events processed by the delivery worker",
		},
		[]string{"type", "status"},
	)

	deliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "delivery_duration_seconds",
			Help:      "Time to fan one event out to all sinks",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	eventsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "outbox_fetched_total",
			Help:      "Total events fetched from the outbox (before delivery attempt)",
		},
	)
)

func recordEventDelivered(eventType, status string) {
	eventsDelivered.WithLabelValues(eventType, status).Inc()
}

func recordDeliveryDuration(duration time.Duration) {
	deliveryDuration.Observe(duration.Seconds())
}

func recordQueueProcessed(count int) {
	eventsFetched.Add(float64(count))
}

// RecordQueueStats updates outbox size metrics.
func RecordQueueStats(stats *QueueStats) {
	outboxSize.WithLabelValues("pending").Set(float64(stats.Pending))
	outboxSize.WithLabelValues("processing").Set(float64(stats.Processing))
	outboxSize.WithLabelValues("sent").Set(float64(stats.Sent))
	outboxSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
