// Package metrics exposes ingestion counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects per-file outcomes. It implements pipeline.Observer.
type Metrics struct {
	reg *prometheus.Registry

	Files            *prometheus.CounterVec
	Rows             *prometheus.CounterVec
	Skipped          *prometheus.CounterVec
	Products         *prometheus.CounterVec
	CoercionFailures *prometheus.CounterVec
	Uncategorized    *prometheus.CounterVec
	DuplicatePairs   *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	byProvider := []string{"provider"}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_files_total",
			Help: "Files processed, by provider and status (ok, failed).",
		}, []string{"provider", "status"}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Data rows read below the header.",
		}, byProvider),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_rows_skipped_total",
			Help: "Rows that produced no product.",
		}, byProvider),
		Products: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_products_total",
			Help: "Canonical products emitted.",
		}, byProvider),
		CoercionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_coercion_failures_total",
			Help: "Price cells that could not be coerced to a decimal.",
		}, byProvider),
		Uncategorized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_uncategorized_total",
			Help: "Products left without a category.",
		}, byProvider),
		DuplicatePairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_duplicate_pairs_total",
			Help: "Near-duplicate product pairs found.",
		}, byProvider),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_file_duration_seconds",
			Help:    "Time spent on one file.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, byProvider),
	}
	m.reg.MustRegister(m.Files, m.Rows, m.Skipped, m.Products,
		m.CoercionFailures, m.Uncategorized, m.DuplicatePairs, m.Duration)
	return m
}

// FileProcessed records one file result.
func (m *Metrics) FileProcessed(res *pipeline.FileResult) {
	provider := res.Provider
	if provider == "" {
		provider = "unknown"
	}
	if res.Err != nil {
		m.Files.WithLabelValues(provider, "failed").Inc()
		return
	}
	m.Files.WithLabelValues(provider, "ok").Inc()

	s := res.Summary
	m.Rows.WithLabelValues(provider).Add(float64(s.TotalRows))
	m.Skipped.WithLabelValues(provider).Add(float64(s.SkippedRows))
	m.Products.WithLabelValues(provider).Add(float64(len(res.Products)))
	m.CoercionFailures.WithLabelValues(provider).Add(float64(s.CoercionFailures))
	m.Uncategorized.WithLabelValues(provider).Add(float64(s.UncategorizedCount))
	m.DuplicatePairs.WithLabelValues(provider).Add(float64(s.DuplicatePairsFound))
	m.Duration.WithLabelValues(provider).Observe(res.Duration.Seconds())
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
