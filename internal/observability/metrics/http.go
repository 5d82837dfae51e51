package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryRequestsTotal *prometheus.CounterVec
	queryHitTotal      *prometheus.CounterVec
	queryNoContext     *prometheus.CounterVec
	queryChunks        *prometheus.HistogramVec
	queryDuration      *prometheus.HistogramVec

	uploadsTotal *prometheus.CounterVec
	uploadBytes  *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "distiller",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "distiller",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "distiller",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "distiller",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total successful query requests.",
		},
		[]string{"service"},
	)
	queryHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "distiller",
			Subsystem: "query",
			Name:      "retrieval_hit_total",
			Help:      "Total query requests with at least one retrieved source.",
		},
		[]string{"service"},
	)
	queryNoContext := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "distiller",
			Subsystem: "query",
			Name:      "no_context_total",
			Help:      "Total query requests without retrieved sources.",
		},
		[]string{"service"},
	)
	queryChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "distiller",
			Subsystem: "query",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per successful query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "distiller",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "distiller",
			Subsystem: "ingress",
			Name:      "uploads_total",
			Help:      "Total accepted document uploads.",
		},
		[]string{"service", "content_type"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "distiller",
			Subsystem: "ingress",
			Name:      "upload_bytes",
			Help:      "Distribution of uploaded document sizes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryRequestsTotal,
		queryHitTotal,
		queryNoContext,
		queryChunks,
		queryDuration,
		uploadsTotal,
		uploadBytes,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		queryRequestsTotal: queryRequestsTotal,
		queryHitTotal:      queryHitTotal,
		queryNoContext:     queryNoContext,
		queryChunks:        queryChunks,
		queryDuration:      queryDuration,
		uploadsTotal:       uploadsTotal,
		uploadBytes:        uploadBytes,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{job_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordQuery(service string, sourceCount int, duration time.Duration) {
	m.queryRequestsTotal.WithLabelValues(service).Inc()
	m.queryChunks.WithLabelValues(service).Observe(float64(sourceCount))
	m.queryDuration.WithLabelValues(service).Observe(duration.Seconds())

	if sourceCount > 0 {
		m.queryHitTotal.WithLabelValues(service).Inc()
		return
	}
	m.queryNoContext.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordUpload(service, contentType string, size int64) {
	if contentType == "" {
		contentType = "unknown"
	}
	m.uploadsTotal.WithLabelValues(service, contentType).Inc()
	if size > 0 {
		m.uploadBytes.WithLabelValues(service).Observe(float64(size))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
