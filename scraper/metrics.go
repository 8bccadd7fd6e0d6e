package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for one ETL run.
type Metrics struct {
	Registry              *prometheus.Registry
	RequestsTotal         *prometheus.CounterVec
	RequestDuration       prometheus.Histogram
	PagesTotal            prometheus.Counter
	RecordsExtractedTotal prometheus.Counter
	RetriesTotal          prometheus.Counter
	ErrorsTotal           *prometheus.CounterVec
	RecordsDroppedTotal   *prometheus.CounterVec
	TableRows             *prometheus.GaugeVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booksetl_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booksetl_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booksetl_pages_total",
			Help: "Catalog index pages fetched successfully.",
		},
	)
	extracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booksetl_records_extracted_total",
			Help: "Product records extracted from detail pages.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booksetl_retries_total",
			Help: "Total number of index page retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booksetl_errors_total",
			Help: "Total number of crawl errors by type.",
		},
		[]string{"error_type"},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booksetl_records_dropped_total",
			Help: "Records removed by the cleaner, by reason.",
		},
		[]string{"reason"},
	)
	tableRows := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "booksetl_table_rows",
			Help: "Rows in each normalized table of the last run.",
		},
		[]string{"table"},
	)

	registry.MustRegister(requests, requestDuration, pages, extracted, retries, errorsTotal, dropped, tableRows)

	return &Metrics{
		Registry:              registry,
		RequestsTotal:         requests,
		RequestDuration:       requestDuration,
		PagesTotal:            pages,
		RecordsExtractedTotal: extracted,
		RetriesTotal:          retries,
		ErrorsTotal:           errorsTotal,
		RecordsDroppedTotal:   dropped,
		TableRows:             tableRows,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the index pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncRecords increments the extracted records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsExtractedTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddDropped adds n dropped records for reason.
func (m *Metrics) AddDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsDroppedTotal.WithLabelValues(reason).Add(float64(n))
}

// SetTableRows records the row count of a normalized table.
func (m *Metrics) SetTableRows(table string, n int) {
	if m == nil {
		return
	}
	m.TableRows.WithLabelValues(table).Set(float64(n))
}
