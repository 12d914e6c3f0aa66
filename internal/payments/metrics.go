package payments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var intentsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "consultq",
	Subsystem: "payments",
	Name:      "intents_confirmed_total",
	Help:      "Number of payment intents confirmed by patients.",
})

func recordConfirmed() {
	intentsConfirmed.Inc()
}
