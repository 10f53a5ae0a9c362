// Package metrics records Prometheus counters for solana-tss commands.
// A command-line tool has no scrape endpoint, so the registry is written to a
// node-exporter textfile when the run ends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all solana-tss metrics
	Namespace = "solana_tss"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelErrorType = "error_type"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder owns a private registry and the collectors registered on it
type Recorder struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewRecorder creates a Recorder on a fresh registry
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "operations_total",
				Help:      "Total number of solana-tss operations by type and status",
			},
			[]string{LabelOperation, LabelStatus},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of solana-tss operations in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{LabelOperation},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by operation and error type",
			},
			[]string{LabelOperation, LabelErrorType},
		),
	}
}

// Registry returns the registry backing the recorder
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// RecordOperation records the outcome and latency of one operation
func (r *Recorder) RecordOperation(operation, status string, duration time.Duration) {
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError counts a failure of operation classified by errorType
func (r *Recorder) RecordError(operation, errorType string) {
	r.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// Track runs fn and records its outcome. classify maps a non-nil error to an
// error type label; it may be nil.
func (r *Recorder) Track(operation string, classify func(error) string, fn func() error) error {
	start := time.Now()
	err := fn()
	if err != nil {
		r.RecordOperation(operation, StatusError, time.Since(start))
		errorType := "unknown"
		if classify != nil {
			errorType = classify(err)
		}
		r.RecordError(operation, errorType)
		return err
	}
	r.RecordOperation(operation, StatusSuccess, time.Since(start))
	return nil
}

// WriteTextfile writes the registry in the text exposition format. The file
// is written atomically so the textfile collector never sees a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
