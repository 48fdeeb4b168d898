package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var relayPublished = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "reserva",
	Subsystem: "outbox",
	Name:      "events_published_total",
	Help:      "Outbox events successfully published to the broker.",
})
