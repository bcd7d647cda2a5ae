// Package metrics provides Prometheus metrics collection for the HTTP and
// RPC surfaces and the embedding worker. Unlike the teacher's
// infrastructure/metrics package, there is no global singleton here: a
// Metrics value is constructed once in the process root and passed as an
// explicit parameter to every component that records against it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector exposed by the process.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	RPCCallsTotal    *prometheus.CounterVec
	RPCCallDuration  *prometheus.HistogramVec
	RPCConnsOpen     prometheus.Gauge
	RPCStreamsActive *prometheus.GaugeVec

	ErrorsTotal *prometheus.CounterVec

	EmbeddingQueueDepth  *prometheus.GaugeVec
	EmbeddingBatchesTotal *prometheus.CounterVec
	EmbeddingBatchSize    prometheus.Histogram
}

// New creates a Metrics instance registered against the default
// Prometheus registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// following the teacher's New/NewWithRegistry split so tests can use a
// fresh prometheus.NewRegistry() instead of colliding on the default one.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blite_http_requests_total",
				Help: "Total number of HTTP requests handled by the document surface.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blite_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blite_http_requests_in_flight",
				Help: "HTTP requests currently being handled.",
			},
		),

		RPCCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blite_rpc_calls_total",
				Help: "Total number of RPC calls handled by the connection surface.",
			},
			[]string{"service", "method", "status"},
		),
		RPCCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blite_rpc_call_duration_seconds",
				Help:    "RPC call duration in seconds, from dispatch to final frame.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method"},
		),
		RPCConnsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blite_rpc_connections_open",
				Help: "Currently open RPC websocket connections.",
			},
		),
		RPCStreamsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blite_rpc_streams_active",
				Help: "Currently active streaming RPC calls by method.",
			},
			[]string{"service", "method"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blite_errors_total",
				Help: "Total number of svcerr failures by kind and surface.",
			},
			[]string{"surface", "kind"},
		),

		EmbeddingQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blite_embedding_queue_depth",
				Help: "Embedding queue task count by state.",
			},
			[]string{"state"},
		),
		EmbeddingBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blite_embedding_batches_total",
				Help: "Total embedding worker batches processed, by outcome.",
			},
			[]string{"status"},
		),
		EmbeddingBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blite_embedding_batch_size",
				Help:    "Number of tasks taken per embedding worker batch.",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.HTTPRequestsInFlight,
			m.RPCCallsTotal,
			m.RPCCallDuration,
			m.RPCConnsOpen,
			m.RPCStreamsActive,
			m.ErrorsTotal,
			m.EmbeddingQueueDepth,
			m.EmbeddingBatchesTotal,
			m.EmbeddingBatchSize,
		)
	}

	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRPCCall records one completed RPC call (unary, or the final frame
// of a stream).
func (m *Metrics) RecordRPCCall(service, method, status string, duration time.Duration) {
	m.RPCCallsTotal.WithLabelValues(service, method, status).Inc()
	m.RPCCallDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordError records a svcerr failure surfaced by either transport.
func (m *Metrics) RecordError(surface, kind string) {
	m.ErrorsTotal.WithLabelValues(surface, kind).Inc()
}

// StreamStarted/StreamEnded bracket a streaming RPC call's lifetime.
func (m *Metrics) StreamStarted(service, method string) {
	m.RPCStreamsActive.WithLabelValues(service, method).Inc()
}

func (m *Metrics) StreamEnded(service, method string) {
	m.RPCStreamsActive.WithLabelValues(service, method).Dec()
}

// ConnectionOpened/ConnectionClosed bracket an RPC websocket connection's
// lifetime.
func (m *Metrics) ConnectionOpened() { m.RPCConnsOpen.Inc() }
func (m *Metrics) ConnectionClosed() { m.RPCConnsOpen.Dec() }

// SetEmbeddingQueueDepth reports the embedding queue's per-state task
// counts, as returned by embedding.Queue.Stats.
func (m *Metrics) SetEmbeddingQueueDepth(counts map[string]int) {
	for state, n := range counts {
		m.EmbeddingQueueDepth.WithLabelValues(state).Set(float64(n))
	}
}

// RecordEmbeddingBatch records the outcome and size of one worker tick.
func (m *Metrics) RecordEmbeddingBatch(status string, size int) {
	m.EmbeddingBatchesTotal.WithLabelValues(status).Inc()
	m.EmbeddingBatchSize.Observe(float64(size))
}
