package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parley"

// Metrics holds the Prometheus collectors for the coordinator.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	EventsTotal       *prometheus.CounterVec
	DroppedMessages   prometheus.Counter
}

// New registers the collectors with reg and returns them. Tests should pass
// a fresh prometheus.NewRegistry to keep collectors isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of live signaling connections.",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound signaling events processed, by type.",
		}, []string{"type"}),
		DroppedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Outbound events dropped because a client's send buffer was full.",
		}),
	}
}
