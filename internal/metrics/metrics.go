// Package metrics exposes prometheus instruments for harvest runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wbharvest"

// Metrics holds every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Runs           *prometheus.CounterVec
	Pages          prometheus.Counter
	Rows           prometheus.Counter
	RunDuration    prometheus.Histogram
	CatalogFetches *prometheus.CounterVec
	BatchRuns      *prometheus.CounterVec
	ActiveRuns     prometheus.Gauge
}

// New registers all instruments on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished category runs by termination reason.",
		}, []string{"reason"}),
		Pages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Listing pages fetched.",
		}),
		Rows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Enriched rows accumulated.",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of category runs.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),
		CatalogFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_fetches_total",
			Help:      "Catalog downloads by status.",
		}, []string{"status"}),
		BatchRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Full-catalog batch runs by status.",
		}, []string{"status"}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Category runs in progress.",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

func (m *Metrics) RunFinished(reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.Runs.WithLabelValues(reason).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) PageFetched() {
	if m == nil {
		return
	}
	m.Pages.Inc()
}

func (m *Metrics) RowsAdded(n int) {
	if m == nil {
		return
	}
	m.Rows.Add(float64(n))
}

// CatalogFetched implements catalog.FetchObserver.
func (m *Metrics) CatalogFetched(err error) {
	if m == nil {
		return
	}
	m.CatalogFetches.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) BatchFinished(err error) {
	if m == nil {
		return
	}
	m.BatchRuns.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
