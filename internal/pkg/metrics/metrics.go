package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every robofleet collector. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// MessagesTotal counts inbound robot messages.
	// result: handled, malformed, unmatched, panic
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robofleet_messages_total",
			Help: "Total number of robot messages received, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	// WriteThroughTotal counts durable projection writes.
	// result: success, failed, dropped
	WriteThroughTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robofleet_writethrough_total",
			Help: "Total number of write-through operations, by result.",
		},
		[]string{"result"},
	)

	// RobotsAlive is the number of robots currently considered alive.
	RobotsAlive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robofleet_robots_alive",
			Help: "Number of robots currently considered alive.",
		},
	)

	// LivenessEvictionsTotal counts robots evicted by the heartbeat sweep.
	LivenessEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "robofleet_liveness_evictions_total",
			Help: "Total number of robots marked offline for missing heartbeats.",
		},
	)

	// PickupTotal counts pickup operations by outcome status.
	PickupTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robofleet_pickup_total",
			Help: "Total number of pickup verification operations, by op and status.",
		},
		[]string{"op", "status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		MessagesTotal,
		WriteThroughTotal,
		RobotsAlive,
		LivenessEvictionsTotal,
		PickupTotal,
	)
}
