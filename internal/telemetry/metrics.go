package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the OKRForge gateway.
type Metrics struct {
	RequestTotal         *prometheus.CounterVec
	RequestDurationMs    *prometheus.HistogramVec
	GateRejectionTotal   *prometheus.CounterVec
	RateLimitHitTotal    *prometheus.CounterVec
	UpstreamDurationMs   *prometheus.HistogramVec
	UpstreamFailureTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "okrforge_request_total",
			Help: "Total number of generation requests processed by the gateway.",
		}, []string{"type", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "okrforge_request_duration_ms",
			Help:    "Total request duration in milliseconds (including upstream latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"type"}),

		GateRejectionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "okrforge_gate_rejection_total",
			Help: "Total requests rejected by the gate, by category.",
		}, []string{"category"}),

		RateLimitHitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "okrforge_rate_limit_hit_total",
			Help: "Total rate limit rejections, by reason.",
		}, []string{"reason"}),

		UpstreamDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "okrforge_upstream_duration_ms",
			Help:    "Completion endpoint call duration in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"type"}),

		UpstreamFailureTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "okrforge_upstream_failure_total",
			Help: "Total completion endpoint failures, by kind.",
		}, []string{"kind"}),
	}
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(genType, status string, durationMs float64) {
	m.RequestTotal.WithLabelValues(genType, status).Inc()
	m.RequestDurationMs.WithLabelValues(genType).Observe(durationMs)
}

// RecordGateRejection records a request rejected before dispatch.
func (m *Metrics) RecordGateRejection(category string) {
	m.GateRejectionTotal.WithLabelValues(category).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(reason string) {
	m.RateLimitHitTotal.WithLabelValues(reason).Inc()
}

// RecordUpstream records a completion endpoint call.
func (m *Metrics) RecordUpstream(genType string, durationMs float64) {
	m.UpstreamDurationMs.WithLabelValues(genType).Observe(durationMs)
}

// RecordUpstreamFailure records a failed completion endpoint call.
func (m *Metrics) RecordUpstreamFailure(kind string) {
	m.UpstreamFailureTotal.WithLabelValues(kind).Inc()
}
