// Package metrics exposes Prometheus metrics for analysis runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yycnik/json-log-parser/internal/model"
	"github.com/yycnik/json-log-parser/internal/parser"
)

const namespace = "jlp"

// Metrics holds the run metrics on a private registry so tests and
// repeated runs never collide with the default one.
type Metrics struct {
	registry *prometheus.Registry

	// Line metrics
	Lines      *prometheus.CounterVec
	Rejections *prometheus.CounterVec

	// Report metrics
	UniqueFiles prometheus.Gauge
	Extensions  *prometheus.GaugeVec

	// Run metrics
	Runs        prometheus.Counter
	RunDuration prometheus.Histogram
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Lines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Log lines processed, by result",
		}, []string{"result"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected log lines, by error kind",
		}, []string{"kind"}),

		UniqueFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unique_files",
			Help:      "Unique filenames in the latest report",
		}),
		Extensions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extension_files",
			Help:      "Unique files per extension in the latest report",
		}, []string{"extension"}),

		Runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed analysis runs",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of analysis runs in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}
}

// Accepted counts a valid line.
func (m *Metrics) Accepted(int, model.Document) {
	m.Lines.WithLabelValues("valid").Inc()
}

// Rejected counts an invalid line under its error kind.
func (m *Metrics) Rejected(_ int, err *parser.Error) {
	m.Lines.WithLabelValues("invalid").Inc()
	m.Rejections.WithLabelValues(err.Kind.String()).Inc()
}

// ObserveReport publishes the gauges for a finished run.
func (m *Metrics) ObserveReport(r model.Report, took time.Duration) {
	m.Runs.Inc()
	m.RunDuration.Observe(took.Seconds())
	m.UniqueFiles.Set(float64(r.UniqueFiles))

	// Extensions from an earlier run may be gone.
	m.Extensions.Reset()
	for ext, n := range r.Extensions {
		m.Extensions.WithLabelValues(ext).Set(float64(n))
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics to path for the node exporter textfile
// collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
