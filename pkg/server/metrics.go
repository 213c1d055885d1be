package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the trialstream server.
type Metrics struct {
	framesReceived   *prometheus.CounterVec
	repliesSent      *prometheus.CounterVec
	malformedFrames  prometheus.Counter
	protocolErrors   *prometheus.CounterVec
	headersDisplaced prometheus.Counter
	eventsRecorded   prometheus.Counter
	arraysStored     prometheus.Counter
	arrayBytes       prometheus.Counter
	persistDuration  *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	unexpectedCloses prometheus.Counter
}

// NewMetrics registers the server collectors with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	const ns = "trialstream"

	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "frames_received_total",
			Help:      "WebSocket frames received, by frame type",
		}, []string{"type"}),

		repliesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "replies_sent_total",
			Help:      "Replies sent to clients, by event and ack_of or reason",
		}, []string{"event", "detail"}),

		malformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "malformed_frames_total",
			Help:      "Text frames discarded because they were not JSON objects",
		}),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "protocol_errors_total",
			Help:      "Protocol violations answered with an error reply",
		}, []string{"reason"}),

		headersDisplaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "headers_displaced_total",
			Help:      "Pending array headers replaced by a newer header before their payload arrived",
		}),

		eventsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_recorded_total",
			Help:      "Control events persisted",
		}),

		arraysStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "arrays_stored_total",
			Help:      "Arrays reconstructed and stored",
		}),

		arrayBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "array_bytes_total",
			Help:      "Payload bytes of stored arrays",
		}),

		persistDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "persist_duration_seconds",
			Help:      "Time spent persisting records, by kind",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_sessions",
			Help:      "Currently connected sessions",
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sessions_total",
			Help:      "Sessions accepted since start",
		}),

		unexpectedCloses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "unexpected_closes_total",
			Help:      "Sessions closed with code 1011 after an unexpected failure",
		}),
	}
}

// newRegistry returns a registry with the standard Go and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
