// Package metrics provides Prometheus metrics for the verification pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	VerificationsTotal  *prometheus.CounterVec   // outcomes by format and status
	DispatchFailures    prometheus.Counter       // presentations no handler accepted
	HandlerDuration     *prometheus.HistogramVec // handler Verify latency by format
	PolicyEvaluations   *prometheus.CounterVec   // policy outcomes by name
	PolicyDuration      *prometheus.HistogramVec // policy latency by name
	BatchSize           prometheus.Histogram
	VerificationLatency prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vpgate_verifications_total",
			Help: "Verification outcomes by handler format and status",
		}, []string{"format", "status"}),

		DispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "vpgate_dispatch_failures_total",
			Help: "Presentations for which no format handler was found",
		}),

		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vpgate_handler_duration_seconds",
			Help:    "Duration of format handler verification",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"format"}),

		PolicyEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vpgate_policy_evaluations_total",
			Help: "Policy evaluations by policy name and compliance",
		}, []string{"policy", "compliant"}),

		PolicyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vpgate_policy_duration_seconds",
			Help:    "Duration of policy evaluation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"policy"}),

		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vpgate_batch_size",
			Help:    "Number of presentations per batch request",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),

		VerificationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vpgate_verification_duration_seconds",
			Help:    "End to end verification latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementOutcome records a resolved verification.
func (m *Metrics) IncrementOutcome(format, status string) {
	m.VerificationsTotal.WithLabelValues(format, status).Inc()
}

func (m *Metrics) IncrementDispatchFailure() {
	m.DispatchFailures.Inc()
}

func (m *Metrics) ObserveHandler(format string, d time.Duration) {
	m.HandlerDuration.WithLabelValues(format).Observe(d.Seconds())
}

// ObservePolicy implements policy.Observer.
func (m *Metrics) ObservePolicy(name string, compliant bool, d time.Duration) {
	label := "false"
	if compliant {
		label = "true"
	}
	m.PolicyEvaluations.WithLabelValues(name, label).Inc()
	m.PolicyDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) ObserveBatch(size int) {
	m.BatchSize.Observe(float64(size))
}

func (m *Metrics) ObserveLatency(d time.Duration) {
	m.VerificationLatency.Observe(d.Seconds())
}
