// Package metrics provides Prometheus instrumentation for the Converza
// messaging server. It exposes gauges for connection and room counts,
// counters for frame and persistence throughput, and a histogram for
// store write latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks the current number of live WebSocket
	// connections.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "converza_connections_active",
		Help: "Current number of active WebSocket connections",
	})

	// RoomsActive tracks the current number of rooms holding at least one
	// connection.
	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "converza_rooms_active",
		Help: "Current number of rooms with live connections",
	})

	// FramesTotal counts inbound frames by kind: "chat", "signaling",
	// "unknown", or "malformed".
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "converza_frames_total",
		Help: "Total number of inbound frames processed",
	}, []string{"kind"})

	// MessagesPersisted counts chat messages durably written to the store.
	MessagesPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "converza_messages_persisted_total",
		Help: "Total number of chat messages persisted",
	})

	// PersistFailures counts store write errors. Each failure drops a
	// single frame; the connection stays up.
	PersistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "converza_persist_failures_total",
		Help: "Total number of failed message store writes",
	})

	// SendErrors counts failed frame writes to individual connections
	// during broadcast.
	SendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "converza_send_errors_total",
		Help: "Total number of failed broadcast sends",
	})

	// PersistLatency records message store write latency in seconds.
	PersistLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "converza_persist_latency_seconds",
		Help:    "Message store write latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		RoomsActive,
		FramesTotal,
		MessagesPersisted,
		PersistFailures,
		SendErrors,
		PersistLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
