package realtime

import "github.com/prometheus/client_golang/prometheus"

const (
	deliveryOK      = "delivered"
	deliveryDropped = "dropped"
)

var (
	// connections gauges sessions attached to any hub in this process.
	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Current number of connected real-time sessions.",
		},
	)

	// onlineUsers gauges users with a registered presence entry.
	onlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_online_users",
			Help: "Current number of users registered as online.",
		},
	)

	// events counts inbound frames by event name and outcome
	// (ok, dropped, rejected, error).
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Inbound real-time events by name and outcome.",
		},
		[]string{"event", "outcome"},
	)

	// deliveries counts per-peer sends performed by broadcasts.
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Outbound per-connection deliveries by result.",
		},
		[]string{"result"},
	)

	// persistLatency observes how long send_message and message_read wait
	// on storage before broadcasting.
	persistLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_persist_duration_seconds",
			Help:    "Storage latency of real-time write events.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(connections, onlineUsers, events, deliveries, persistLatency)
}
