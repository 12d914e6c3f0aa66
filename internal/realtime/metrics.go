package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var openConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "consultq",
	Subsystem: "realtime",
	Name:      "open_connections",
	Help:      "Number of open WebSocket connections.",
})

func recordConnections(count int) {
	openConnections.Set(float64(count))
}
