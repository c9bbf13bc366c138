// Package metrics records per-invocation execution metrics and exposes them
// in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the fanout metric collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// New creates a Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fanout",
			Name:      "execution_duration_seconds",
			Help:      "Duration of instrumented executions, by stats key.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"key"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fanout",
			Name:      "executions_total",
			Help:      "Count of instrumented executions, by stats key and outcome.",
		}, []string{"key", "outcome"}),
	}

	m.registry.MustRegister(m.duration, m.outcomes)
	return m
}

// Observe records one execution under the given stats key.
func (m *Metrics) Observe(key string, elapsed time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.duration.WithLabelValues(key).Observe(elapsed.Seconds())
	m.outcomes.WithLabelValues(key, outcome).Inc()
}

// Outcomes returns the counter for a key and outcome, for tests and health
// reporting.
func (m *Metrics) Outcomes(key, outcome string) prometheus.Counter {
	return m.outcomes.WithLabelValues(key, outcome)
}

// Handler returns an HTTP handler serving the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument runs fn under the given stats key, recording its duration and
// outcome, and propagates fn's result and error unchanged. A nil Metrics
// makes it a plain passthrough.
func Instrument[T any](ctx context.Context, m *Metrics, key string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	result, err := fn(ctx)
	if m != nil {
		m.Observe(key, time.Since(start), err)
	}
	return result, err
}
