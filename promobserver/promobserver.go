// Package promobserver exports invocation outcomes as Prometheus metrics.
package promobserver

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spachava753/invoke"
)

// Result label values.
const (
	ResultSuccess        = "success"
	ResultCancelled      = "cancelled"
	ResultTransportError = "transport_error"
	ResultDecodeError    = "decode_error"
	ResultInvalidRequest = "invalid_request"
	ResultError          = "error"
)

// Observer implements invoke.Observer.
type Observer struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
	chunks   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
}

// New registers the invocation metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Observer{
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "invoke_outcomes_total",
			Help: "Resolved invocations grouped by model and result",
		}, []string{"model", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invoke_duration_seconds",
			Help:    "Time from submission to resolution",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"model", "result"}),
		chunks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "invoke_chunks_total",
			Help: "Chunk events appended to session output",
		}, []string{"model"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "invoke_output_bytes_total",
			Help: "Bytes of assembled output",
		}, []string{"model"}),
	}
}

// ObserveOutcome implements invoke.Observer.
func (o *Observer) ObserveOutcome(model string, outcome invoke.Outcome) {
	if model == "" {
		model = "unknown"
	}
	result := Result(outcome.Err)
	o.outcomes.WithLabelValues(model, result).Inc()
	if d, ok := invoke.Elapsed(outcome.Metrics); ok {
		o.duration.WithLabelValues(model, result).Observe(d.Seconds())
	}
	if n, ok := invoke.Chunks(outcome.Metrics); ok {
		o.chunks.WithLabelValues(model).Add(float64(n))
	}
	if n, ok := invoke.GetMetric[int](outcome.Metrics, invoke.MetricOutputBytes); ok {
		o.bytes.WithLabelValues(model).Add(float64(n))
	}
}

// Result maps an Outcome error to its result label.
func Result(err error) string {
	var (
		te  *invoke.TransportErr
		de  *invoke.DecodeErr
		ire *invoke.InvalidRequestErr
	)
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, invoke.ErrCancelled):
		return ResultCancelled
	case errors.As(err, &ire):
		return ResultInvalidRequest
	case errors.As(err, &de):
		return ResultDecodeError
	case errors.As(err, &te):
		return ResultTransportError
	default:
		return ResultError
	}
}

var _ invoke.Observer = (*Observer)(nil)
