package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	RequestTotal           *prometheus.CounterVec
	RequestDurationMs      *prometheus.HistogramVec
	BackendErrorTotal      *prometheus.CounterVec
	StreamTerminationTotal *prometheus.CounterVec
	StreamBytesTotal       prometheus.Counter
	TransformTotal         *prometheus.CounterVec
	RateLimitHitTotal      *prometheus.CounterVec
	BackendUp              prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_request_total",
			Help: "Total number of requests handled by the bridge.",
		}, []string{"route", "status"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_request_duration_ms",
			Help:    "Request duration in milliseconds, including backend latency and streaming.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		}, []string{"route", "stream"}),

		BackendErrorTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_backend_error_total",
			Help: "Non-2xx backend responses by backend status and status returned to the client.",
		}, []string{"backend_status", "client_status"}),

		StreamTerminationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_stream_termination_total",
			Help: "Streamed responses by how the relay ended.",
		}, []string{"reason"}),

		StreamBytesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bridge_stream_bytes_total",
			Help: "Bytes relayed to clients on streaming responses.",
		}),

		TransformTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_transform_total",
			Help: "Request rewrites applied before forwarding.",
		}, []string{"step", "detail"}),

		RateLimitHitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_rate_limit_hit_total",
			Help: "Requests rejected by the bridge's own rate limiter.",
		}, []string{"dimension"}),

		BackendUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_backend_up",
			Help: "1 while the backend gateway answers, 0 after repeated connection failures.",
		}),
	}
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(labels.Route, strconv.Itoa(labels.Status)).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Route, strconv.FormatBool(labels.Stream)).Observe(labels.DurationMs)
}

// RecordBackendError records a non-2xx backend response and its translation.
func (m *Metrics) RecordBackendError(backendStatus, clientStatus int) {
	m.BackendErrorTotal.WithLabelValues(strconv.Itoa(backendStatus), strconv.Itoa(clientStatus)).Inc()
}

// RecordStream records how a streamed response ended and how many bytes it carried.
func (m *Metrics) RecordStream(reason string, bytes int64) {
	m.StreamTerminationTotal.WithLabelValues(reason).Inc()
	if bytes > 0 {
		m.StreamBytesTotal.Add(float64(bytes))
	}
}

// RecordTransform records an applied request rewrite.
func (m *Metrics) RecordTransform(step, detail string) {
	m.TransformTotal.WithLabelValues(step, detail).Inc()
}

// RecordRateLimitHit records a request rejected by the limiter.
func (m *Metrics) RecordRateLimitHit(dimension string) {
	m.RateLimitHitTotal.WithLabelValues(dimension).Inc()
}

// SetBackendUp records backend reachability.
func (m *Metrics) SetBackendUp(up bool) {
	if up {
		m.BackendUp.Set(1)
	} else {
		m.BackendUp.Set(0)
	}
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Route      string
	Status     int
	Stream     bool
	DurationMs float64
}
