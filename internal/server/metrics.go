package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the core's operational counters as Prometheus series
// and exposes them over HTTP via promhttp.Handler. It satisfies
// core.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	framesRouted     prometheus.Counter
	dispatchDropped  *prometheus.CounterVec
	framePoolExhaust prometheus.Counter
	transportSendErr prometheus.Counter
}

// NewMetrics creates a Metrics collector registered against its own
// Registry (not the global default, so tests can construct more than
// one without a "duplicate metrics collector registration" panic).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		framesRouted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "edgerpc",
			Name:      "frames_routed_total",
			Help:      "Total number of inbound frames successfully dispatched.",
		}),
		dispatchDropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgerpc",
			Name:      "dispatch_dropped_total",
			Help:      "Total number of inbound frames silently dropped, by reason.",
		}, []string{"reason"}),
		framePoolExhaust: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "edgerpc",
			Name:      "frame_pool_exhausted_total",
			Help:      "Total number of FramePool Acquire calls that failed.",
		}),
		transportSendErr: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "edgerpc",
			Name:      "transport_send_errors_total",
			Help:      "Total number of transport Send/Broadcast calls that returned an error.",
		}),
	}
	return m
}

// FrameRouted implements core.Metrics.
func (m *Metrics) FrameRouted() {
	m.framesRouted.Inc()
}

// DispatchDropped implements core.Metrics.
func (m *Metrics) DispatchDropped(reason string) {
	m.dispatchDropped.WithLabelValues(reason).Inc()
}

// FramePoolExhausted implements core.Metrics.
func (m *Metrics) FramePoolExhausted() {
	m.framePoolExhaust.Inc()
}

// TransportSendError implements core.Metrics.
func (m *Metrics) TransportSendError() {
	m.transportSendErr.Inc()
}

// Handler returns the HTTP handler that serves this collector's series
// in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
