package orchestrator

import (
	"sync"
	"time"

	"comms-orchestrator/internal/comms"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors for delivery processing.
type Metrics struct {
	AttemptsTotal      *prometheus.CounterVec
	ResultsTotal       *prometheus.CounterVec
	FallbacksTotal     prometheus.Counter
	RetryDelay         prometheus.Histogram
	ProcessingDuration prometheus.Histogram
}

// NewMetrics registers the collectors on the default registry once per
// process and returns the shared instance.
//
// Metrics:
//   - comms_delivery_attempts_total{channel,outcome}
//   - comms_results_total{status,channel}
//   - comms_fallbacks_total
//   - comms_retry_delay_seconds
//   - comms_processing_duration_seconds
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AttemptsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "comms_delivery_attempts_total",
					Help: "Total number of channel send attempts",
				},
				[]string{"channel", "outcome"}, // outcome: success or an error category
			),
			ResultsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "comms_results_total",
					Help: "Total number of terminal communication results",
				},
				[]string{"status", "channel"},
			),
			FallbacksTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "comms_fallbacks_total",
					Help: "Total number of deliveries that succeeded on a fallback channel",
				},
			),
			RetryDelay: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "comms_retry_delay_seconds",
					Help:    "Backoff delay before a retry in seconds",
					Buckets: []float64{1, 10, 30, 60, 120, 300, 600, 900, 1200},
				},
			),
			ProcessingDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "comms_processing_duration_seconds",
					Help:    "End-to-end processing time of one request in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
				},
			),
		}
	})
	return globalMetrics
}

// A nil *Metrics records nothing.

func (m *Metrics) RecordAttempt(ch comms.Channel, res comms.Result) {
	if m == nil {
		return
	}
	outcome := "success"
	if !res.Success() {
		outcome = string(res.ErrorCategory)
		if outcome == "" {
			outcome = "unknown"
		}
	}
	m.AttemptsTotal.WithLabelValues(string(ch), outcome).Inc()
}

func (m *Metrics) RecordResult(res comms.Result, took time.Duration) {
	if m == nil {
		return
	}
	m.ResultsTotal.WithLabelValues(string(res.Status), string(res.Channel)).Inc()
	m.ProcessingDuration.Observe(took.Seconds())
}

func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.FallbacksTotal.Inc()
}

func (m *Metrics) RecordRetryDelay(d time.Duration) {
	if m == nil {
		return
	}
	m.RetryDelay.Observe(d.Seconds())
}
