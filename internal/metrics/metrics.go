// Package metrics exposes Prometheus metrics for jobs, outbound Apify API
// calls and inbound HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and the collectors registered on it. It implements
// job.Observer and apify.RequestObserver.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal   *prometheus.CounterVec
	jobsSuccess *prometheus.CounterVec
	jobsFailed  *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	queueDepth prometheus.Gauge
}

// New creates a Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		jobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "apify_jobs_total",
			Help: "Total number of Apify jobs processed",
		}, []string{"actor_type"}),
		jobsSuccess: f.NewCounterVec(prometheus.CounterOpts{
			Name: "apify_jobs_success_total",
			Help: "Total number of successful Apify jobs",
		}, []string{"actor_type"}),
		jobsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "apify_jobs_failed_total",
			Help: "Total number of failed Apify jobs",
		}, []string{"actor_type"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apify_job_duration_seconds",
			Help:    "Duration of Apify job execution in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
		}, []string{"actor_type"}),

		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "apify_api_requests_total",
			Help: "Total number of API requests to Apify",
		}, []string{"endpoint"}),
		apiDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apify_api_request_duration_seconds",
			Help:    "Duration of Apify API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests received",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP request handling in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
		}, []string{"method", "path"}),

		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "jobrelay_queue_pending",
			Help: "Number of async jobs waiting to be claimed",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the registry in text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobStarted(target string) {
	m.jobsTotal.WithLabelValues(target).Inc()
}

func (m *Metrics) JobSucceeded(target string, seconds float64) {
	m.jobDuration.WithLabelValues(target).Observe(seconds)
	m.jobsSuccess.WithLabelValues(target).Inc()
}

func (m *Metrics) JobFailed(target string, seconds float64) {
	m.jobDuration.WithLabelValues(target).Observe(seconds)
	m.jobsFailed.WithLabelValues(target).Inc()
}

// APIRequest records one outbound Apify call.
func (m *Metrics) APIRequest(endpoint string, seconds float64) {
	m.apiRequests.WithLabelValues(endpoint).Inc()
	m.apiDuration.WithLabelValues(endpoint).Observe(seconds)
}

// SetQueuePending sets the async queue depth gauge.
func (m *Metrics) SetQueuePending(n int) {
	m.queueDepth.Set(float64(n))
}

// Middleware records method, route pattern, status and latency of every
// request. The chi route pattern is used as the path label so parameterized
// routes do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
