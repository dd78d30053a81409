// Package metrics exposes Prometheus collectors for the interview backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interview_ai"

type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	InboundFrames  *prometheus.CounterVec
	OutboundFrames *prometheus.CounterVec
	AudioBytes     prometheus.Counter

	TranscriptEvents *prometheus.CounterVec
	BackendErrors    *prometheus.CounterVec

	GeneratorLatency *prometheus.HistogramVec
	GeneratorResults *prometheus.CounterVec

	Broadcasts *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. A nil reg uses a fresh private
// registry so repeated construction in tests never collides.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open interview connections",
		}),
		ConnectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total interview connections accepted",
		}),
		InboundFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_frames_total",
			Help:      "Client frames received by message type",
		}, []string{"type"}),
		OutboundFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_frames_total",
			Help:      "Server frames sent by message type",
		}, []string{"type"}),
		AudioBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Decoded audio bytes received from clients",
		}),
		TranscriptEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_events_total",
			Help:      "Transcript events from the recognizer by kind",
		}, []string{"kind"}),
		BackendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Failures reported by external backends",
		}, []string{"backend"}),
		GeneratorLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generator_latency_seconds",
			Help:      "Latency of generative model calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"kind"}),
		GeneratorResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_results_total",
			Help:      "Generator outcomes by kind and result (ok, fallback)",
		}, []string{"kind", "result"}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Registry broadcasts by result (delivered, missing, failed)",
		}, []string{"result"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) Inbound(msgType string) {
	if m == nil {
		return
	}
	m.InboundFrames.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Outbound(msgType string) {
	if m == nil {
		return
	}
	m.OutboundFrames.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Audio(n int) {
	if m == nil {
		return
	}
	m.AudioBytes.Add(float64(n))
}

func (m *Metrics) Transcript(final bool) {
	if m == nil {
		return
	}
	kind := "interim"
	if final {
		kind = "final"
	}
	m.TranscriptEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) BackendError(backend string) {
	if m == nil {
		return
	}
	m.BackendErrors.WithLabelValues(backend).Inc()
}

// Generation records one generator call.
func (m *Metrics) Generation(kind string, fallback bool, seconds float64) {
	if m == nil {
		return
	}
	m.GeneratorLatency.WithLabelValues(kind).Observe(seconds)
	result := "ok"
	if fallback {
		result = "fallback"
	}
	m.GeneratorResults.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Broadcast(result string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(result).Inc()
}
