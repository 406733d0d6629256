package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easel_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Sync engine metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "easel_ws_connections_active",
			Help: "Currently open WebSocket connections",
		},
	)

	OperationsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easel_operations_routed_total",
			Help: "Batches routed, by operation kind",
		},
		[]string{"operation"},
	)

	BatchesBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "easel_batches_broadcast_total",
			Help: "Batches fanned out to room peers",
		},
	)

	ClientsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easel_clients_dropped_total",
			Help: "Connections closed by the server",
		},
		[]string{"reason"},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "easel_rooms_active",
			Help: "Rooms with at least one live connection",
		},
	)
)
