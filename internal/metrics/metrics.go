// Package metrics provides Prometheus metrics for the network transport.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the transport. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Connection lifecycle
	ConnectionsAccepted prometheus.Counter
	ActivationFailures  prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	ConnectionsBroken   *prometheus.CounterVec

	// Traffic
	BytesReceived prometheus.Counter
	BytesSent     prometheus.Counter
	PendingBytes  prometheus.Gauge
}

// New creates the metrics under namespace and registers them with reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of connections handed to the protocol layer",
		}),
		ActivationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activation_failures_total",
			Help:      "Total number of accepted connections dropped because processing could not start",
		}),
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of connections currently processing",
		}),
		ConnectionsBroken: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_broken_total",
			Help:      "Total number of ended connections by kind",
		}, []string{"kind"}),

		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total bytes received from peers",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total bytes accepted onto open connections' send queues",
		}),
		PendingBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_bytes",
			Help:      "Bytes held by connections whose data delegate is not installed yet",
		}),
	}
}

// RecordAccept records a connection that was activated and handed over.
func (m *Metrics) RecordAccept() {
	if m == nil {
		return
	}
	m.ConnectionsAccepted.Inc()
	m.ConnectionsActive.Inc()
}

// RecordActivationFailure records a connection dropped before hand-over.
func (m *Metrics) RecordActivationFailure() {
	if m == nil {
		return
	}
	m.ActivationFailures.Inc()
}

// RecordBroken records the end of an accepted connection.
func (m *Metrics) RecordBroken(graceful bool) {
	if m == nil {
		return
	}
	kind := "abrupt"
	if graceful {
		kind = "graceful"
	}
	m.ConnectionsBroken.WithLabelValues(kind).Inc()
	m.ConnectionsActive.Dec()
}

// RecordReceived adds n inbound bytes.
func (m *Metrics) RecordReceived(n int) {
	if m == nil {
		return
	}
	m.BytesReceived.Add(float64(n))
}

// RecordSent adds n bytes queued on an open connection.
func (m *Metrics) RecordSent(n int) {
	if m == nil {
		return
	}
	m.BytesSent.Add(float64(n))
}

// AddPending moves the pending gauge by delta bytes.
func (m *Metrics) AddPending(delta int) {
	if m == nil {
		return
	}
	m.PendingBytes.Add(float64(delta))
}

// Handler exposes the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
