// Package metrics provides optional Prometheus instrumentation for the
// client and server cores. A nil *Metrics acts as a no-op, so callers that
// do not want metrics never pay for them (the same "nil receiver is a
// no-op" discipline as the teacher pack's own metrics helpers).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks call volume, in-flight calls and call latency for either a
// Client or a Server.
type Metrics struct {
	CallsTotal    *prometheus.CounterVec
	CallsInFlight prometheus.Gauge
	CallDuration  *prometheus.HistogramVec
	Connections   prometheus.Gauge
}

var (
	registerOnce sync.Once
	instance     *Metrics
)

// New creates and registers the msgpack-rpc Prometheus metrics. If
// registerer is nil, prometheus.DefaultRegisterer is used. It is idempotent:
// repeated calls return the same registered instance.
func New(registerer prometheus.Registerer) *Metrics {
	registerOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &Metrics{
			CallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "msgpackrpc_calls_total",
					Help: "Total RPC calls by method and outcome",
				},
				[]string{"method", "outcome"},
			),
			CallsInFlight: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "msgpackrpc_calls_in_flight",
					Help: "Number of RPC calls currently awaiting a response",
				},
			),
			CallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "msgpackrpc_call_duration_seconds",
					Help:    "RPC call duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method"},
			),
			Connections: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "msgpackrpc_connections",
					Help: "Number of currently open connections",
				},
			),
		}

		registerer.MustRegister(m.CallsTotal, m.CallsInFlight, m.CallDuration, m.Connections)
		instance = m
	})

	return instance
}

// CallStarted records that a call began and returns a func to call when it
// finishes with the final outcome label ("ok", "err", "closed" or
// "canceled").
func (m *Metrics) CallStarted(method string) func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	m.CallsInFlight.Inc()
	start := time.Now()
	return func(outcome string) {
		m.CallsInFlight.Dec()
		m.CallsTotal.WithLabelValues(method, outcome).Inc()
		m.CallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

// ConnectionOpened increments the open-connections gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

// ConnectionClosed decrements the open-connections gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}
