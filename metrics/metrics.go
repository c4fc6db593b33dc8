// Package metrics keeps the Prometheus counters of one run and writes them
// for the node exporter textfile collector.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry

	apiResponses   *prometheus.CounterVec
	backoffSeconds *prometheus.CounterVec
	rowsExported   *prometheus.CounterVec
	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	lastSuccess    prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		apiResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sirene_api_responses_total",
				Help: "Sirene API responses by endpoint and HTTP status",
			},
			[]string{"endpoint", "status"},
		),
		backoffSeconds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sirene_backoff_seconds_total",
				Help: "Seconds spent waiting before retrying a Sirene request",
			},
			[]string{"reason"}, // rate_limited, server_error
		),
		rowsExported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sirene_rows_exported_total",
				Help: "Rows appended to export files",
			},
			[]string{"schema"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sirene_runs_total",
				Help: "Extraction runs by mode and outcome",
			},
			[]string{"mode", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sirene_run_duration_seconds",
				Help:    "Duration of extraction runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
			},
			[]string{"mode"},
		),
		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sirene_run_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
	}
}

// ObserveResponse counts one API answer.
func (r *Recorder) ObserveResponse(endpoint string, status int) {
	r.apiResponses.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ObserveBackoff adds a retry wait.
func (r *Recorder) ObserveBackoff(reason string, wait time.Duration) {
	r.backoffSeconds.WithLabelValues(reason).Add(wait.Seconds())
}

func (r *Recorder) RowExported(schema string) {
	r.rowsExported.WithLabelValues(schema).Inc()
}

// RunFinished records the outcome of a run that started at started.
func (r *Recorder) RunFinished(mode string, started, finished time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	r.runsTotal.WithLabelValues(mode, status).Inc()
	r.runDuration.WithLabelValues(mode).Observe(finished.Sub(started).Seconds())

	if err == nil {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
