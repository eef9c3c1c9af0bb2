package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for pagemend
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Repair job metrics
	jobsTotal   *prometheus.CounterVec
	jobsActive  prometheus.Gauge
	jobDuration prometheus.Histogram
	uploadBytes prometheus.Histogram
	pagesTotal  *prometheus.CounterVec

	// Realtime metrics
	realtimeConnections prometheus.Gauge

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemend_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagemend_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagemend_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		jobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemend_jobs_total",
				Help: "Total number of repair jobs by terminal status",
			},
			[]string{"status"},
		),
		jobsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagemend_jobs_active",
				Help: "Number of repair jobs currently running",
			},
		),
		jobDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagemend_job_duration_seconds",
				Help:    "End-to-end repair job duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		uploadBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagemend_upload_bytes",
				Help:    "Uploaded PDF size in bytes",
				Buckets: prometheus.ExponentialBuckets(10*1024, 4, 8),
			},
		),
		pagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemend_pages_total",
				Help: "Total number of pages processed by outcome",
			},
			[]string{"outcome"},
		),
		realtimeConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagemend_realtime_connections",
				Help: "Current number of websocket event subscribers",
			},
		),

		systemUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagemend_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Route().Path)
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

		return err
	}
}

// RecordJobFinished records a repair job reaching a terminal status
func (m *Metrics) RecordJobFinished(status string, duration time.Duration) {
	m.jobsTotal.WithLabelValues(status).Inc()
	m.jobDuration.Observe(duration.Seconds())
}

// JobStarted increments the active job gauge
func (m *Metrics) JobStarted() {
	m.jobsActive.Inc()
}

// JobDone decrements the active job gauge
func (m *Metrics) JobDone() {
	m.jobsActive.Dec()
}

// RecordUpload records the size of an accepted PDF upload
func (m *Metrics) RecordUpload(bytes int64) {
	m.uploadBytes.Observe(float64(bytes))
}

// RecordPage records the outcome of a processed page
// (corrected, degraded, failed)
func (m *Metrics) RecordPage(outcome string) {
	m.pagesTotal.WithLabelValues(outcome).Inc()
}

// UpdateRealtimeConnections sets the websocket subscriber gauge
func (m *Metrics) UpdateRealtimeConnections(connections int) {
	m.realtimeConnections.Set(float64(connections))
}

// UpdateUptime updates the process uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// normalizePath keeps metric label cardinality bounded. Fiber route
// templates already use :id placeholders; anything unexpectedly long is
// collapsed.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
