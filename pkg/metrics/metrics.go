// Package metrics provides Prometheus metrics for the HTTP surface and for portal collection runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	subsystem = "librus"
)

// Run outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Metrics provides Prometheus metrics collection. Collector groups that were
// not enabled are nil and their recording methods are no-ops.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPResponsesCounter     *prometheus.CounterVec
	HTTPDurationHistogram    prometheus.Histogram

	RunsCounter             *prometheus.CounterVec
	RecordsCounter          *prometheus.CounterVec
	CategoryFailuresCounter *prometheus.CounterVec
	UnparsedDatesCounter    *prometheus.CounterVec
	RunDurationHistogram    *prometheus.HistogramVec

	server *http.Server
	log    logger.Logger
}

// NewMetrics creates a new Metrics instance with the specified collectors enabled.
func NewMetrics(httpCounters, scrapeMetrics bool, l logger.Logger) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}
	if httpCounters {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "total_http_requests",
			Help:      "Total HTTP requests",
		})
		m.HTTPResponsesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "http_responses_total",
			Help:      "HTTP responses returned by status code",
		}, []string{"code"})
		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 1.0, 3.0, 5.0, 7.0, 10.0},
		})
		m.reg.MustRegister(m.TotalHTTPRequestsCounter, m.HTTPResponsesCounter, m.HTTPDurationHistogram)
	}
	if scrapeMetrics {
		m.RunsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "collection_runs_total",
			Help:      "Collection runs by child, mode and outcome",
		}, []string{"child", "mode", "outcome"})
		m.RecordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "records_collected_total",
			Help:      "Records kept after delta filtering, by child and category",
		}, []string{"child", "category"})
		m.CategoryFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "category_failures_total",
			Help:      "Per-category extraction failures",
		}, []string{"child", "category"})
		m.UnparsedDatesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "unparsed_dates_total",
			Help:      "Records kept by the delta filter because their date could not be parsed",
		}, []string{"child", "category"})
		m.RunDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "collection_run_duration_seconds",
			Help:      "Collection run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"})
		m.reg.MustRegister(m.RunsCounter, m.RecordsCounter, m.CategoryFailuresCounter,
			m.UnparsedDatesCounter, m.RunDurationHistogram)
	}
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Listen starts the metrics HTTP server on the specified port in the background.
func (m *Metrics) Listen(port int) {
	m.log.Info("Starting metrics listener", logger.IntField("port", port))
	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := m.server
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("Metrics listener failed", logger.ErrorField(err))
		}
	}()
}

// Shutdown stops the listener started by Listen.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	m.log.Info("Stopping metrics listener")
	return m.server.Shutdown(ctx)
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.reg.MustRegister(c)
}

// ObserveRun records one finished collection run.
func (m *Metrics) ObserveRun(child, mode string, duration time.Duration, err error) {
	if m == nil || m.RunsCounter == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	m.RunsCounter.WithLabelValues(child, mode, outcome).Inc()
	m.RunDurationHistogram.WithLabelValues(mode).Observe(duration.Seconds())
}

// AddRecords adds n kept records for a category.
func (m *Metrics) AddRecords(child, category string, n int) {
	if m == nil || m.RecordsCounter == nil || n <= 0 {
		return
	}
	m.RecordsCounter.WithLabelValues(child, category).Add(float64(n))
}

// IncCategoryFailure counts a category whose extraction failed.
func (m *Metrics) IncCategoryFailure(child, category string) {
	if m == nil || m.CategoryFailuresCounter == nil {
		return
	}
	m.CategoryFailuresCounter.WithLabelValues(child, category).Inc()
}

// AddUnparsedDates adds n fail-open records for a category.
func (m *Metrics) AddUnparsedDates(child, category string, n int) {
	if m == nil || m.UnparsedDatesCounter == nil || n <= 0 {
		return
	}
	m.UnparsedDatesCounter.WithLabelValues(child, category).Add(float64(n))
}

// IncrementHTTPResponseCounter increments the counter for the given HTTP status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	if m.HTTPResponsesCounter == nil {
		return
	}
	m.HTTPResponsesCounter.WithLabelValues(strconv.Itoa(code)).Inc()
}

// HTTPMiddleware returns a Chi-compatible middleware that tracks HTTP metrics
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m.TotalHTTPRequestsCounter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(rw.statusCode)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
