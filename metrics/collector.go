// Package metrics exposes Prometheus collectors for compilation and
// prediction, and the numeric comparisons used to check compiled kernels
// against the interpreter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Compile outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector groups the forestjit metrics. A nil *Collector is valid and
// records nothing, so callers never need to check for one.
type Collector struct {
	compileDuration *prometheus.HistogramVec
	compileOps      *prometheus.CounterVec
	predictedRows   *prometheus.CounterVec
	predictDuration *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is useful in tests.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "forestjit",
				Subsystem: "compiler",
				Name:      "compile_duration_seconds",
				Help:      "Time taken to lower and compile a model.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"backend", "opt_level"},
		),
		compileOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forestjit",
				Subsystem: "compiler",
				Name:      "compile_ops_total",
				Help:      "The total number of compilations by outcome.",
			},
			[]string{"backend", "outcome"},
		),
		predictedRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forestjit",
				Subsystem: "runtime",
				Name:      "predicted_rows_total",
				Help:      "The total number of rows predicted.",
			},
			[]string{"path"}, // compiled, interpreted
		),
		predictDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "forestjit",
				Subsystem: "runtime",
				Name:      "predict_duration_seconds",
				Help:      "Time taken by a batch prediction.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"path"},
		),
	}
	if reg != nil {
		for _, col := range []prometheus.Collector{c.compileDuration, c.compileOps, c.predictedRows, c.predictDuration} {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// ObserveCompile records one compile attempt.
func (c *Collector) ObserveCompile(backend, optLevel string, d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	} else {
		c.compileDuration.WithLabelValues(backend, optLevel).Observe(d.Seconds())
	}
	c.compileOps.WithLabelValues(backend, outcome).Inc()
}

// ObservePredict records one batch prediction of rows rows.
func (c *Collector) ObservePredict(path string, rows int, d time.Duration) {
	if c == nil {
		return
	}
	c.predictedRows.WithLabelValues(path).Add(float64(rows))
	c.predictDuration.WithLabelValues(path).Observe(d.Seconds())
}
