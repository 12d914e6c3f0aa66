package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "consultq"

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "transitions_total",
			Help:      "Queue item transitions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	broadcastFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "broadcast_fanout_size",
			Help:      "Number of sibling items created per emergency broadcast",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
		},
	)

	quotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "quota_rejections_total",
			Help:      "Emergency broadcasts rejected by the quota tracker",
		},
		[]string{"window"},
	)

	itemsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_expired_total",
			Help:      "Queue items lazily marked expired at read time",
		},
	)
)

func recordTransition(action, outcome string) {
	transitionsTotal.WithLabelValues(action, outcome).Inc()
}

func recordBroadcast(size int) {
	broadcastFanout.Observe(float64(size))
}

func recordQuotaRejection(window string) {
	quotaRejections.WithLabelValues(window).Inc()
}
