package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qontrol/qontrol/internal/dashboard"
)

const metricsNamespace = "qontrol"

// Metrics holds the service's Prometheus collectors, registered on a private registry
// so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	QueueJobs      *prometheus.GaugeVec
	QueuePaused    *prometheus.GaugeVec
	JobMutations   *prometheus.CounterVec
	BulkJobs       *prometheus.CounterVec
	WSConnections  prometheus.Gauge
	WSMessagesSent *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		QueueJobs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "queue_jobs",
				Help:      "Jobs per queue and state at the last queue listing",
			},
			[]string{"queue", "state"},
		),
		QueuePaused: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "queue_paused",
				Help:      "1 when the queue was paused at the last queue listing",
			},
			[]string{"queue"},
		),
		JobMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "job_mutations_total",
				Help:      "Single-job mutations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		BulkJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "bulk_jobs_total",
				Help:      "Jobs processed by bulk operations by result",
			},
			[]string{"op", "result"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "websocket_connections_active",
				Help:      "Active WebSocket connections",
			},
		),
		WSMessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "websocket_messages_total",
				Help:      "WebSocket messages sent by type",
			},
			[]string{"type"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveQueues updates the per-queue gauges.
func (m *Metrics) ObserveQueues(queues []dashboard.QueueInfo) {
	for _, q := range queues {
		for state, count := range q.Counts {
			m.QueueJobs.WithLabelValues(q.Name, string(state)).Set(float64(count))
		}
		paused := 0.0
		if q.IsPaused {
			paused = 1
		}
		m.QueuePaused.WithLabelValues(q.Name).Set(paused)
	}
}

// ForgetQueue drops the gauges of an obliterated queue.
func (m *Metrics) ForgetQueue(name string) {
	m.QueueJobs.DeletePartialMatch(prometheus.Labels{"queue": name})
	m.QueuePaused.DeleteLabelValues(name)
}

// RecordMutation counts one single-job mutation.
func (m *Metrics) RecordMutation(op string, outcome dashboard.Outcome, err error) {
	label := outcome.String()
	if err != nil {
		label = "error"
	}
	m.JobMutations.WithLabelValues(op, label).Inc()
}

// RecordBulk counts the per-job results of a bulk operation.
func (m *Metrics) RecordBulk(op string, result dashboard.BulkResult) {
	m.BulkJobs.WithLabelValues(op, "success").Add(float64(result.Success))
	m.BulkJobs.WithLabelValues(op, "failed").Add(float64(result.Failed))
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func wrapWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach Flush on the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
