package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers both consumer binaries: the coordinator observes job
// fan-out, the embedding worker observes per-chunk processing.
type WorkerMetrics struct {
	registry *prometheus.Registry

	chunkTotal    *prometheus.CounterVec
	chunkDuration *prometheus.HistogramVec
	chunkInFlight prometheus.Gauge
	jobsTotal     *prometheus.CounterVec
	fanOutSize    *prometheus.HistogramVec
	queueLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	chunkTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "distiller",
			Subsystem: "worker",
			Name:      "chunk_process_total",
			Help:      "Total processed chunks by status.",
		},
		[]string{"service", "status"},
	)
	chunkDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "distiller",
			Subsystem: "worker",
			Name:      "chunk_process_duration_seconds",
			Help:      "Chunk processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	chunkInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "distiller",
			Subsystem: "worker",
			Name:      "chunk_process_in_flight",
			Help:      "Number of in-flight chunk processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "distiller",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total coordinated jobs by status.",
		},
		[]string{"service", "status"},
	)
	fanOutSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "distiller",
			Subsystem: "worker",
			Name:      "fan_out_chunks",
			Help:      "Distribution of chunk fan-out size per coordinated job.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
		[]string{"service"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "distiller",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between event publish and consumption.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(chunkTotal, chunkDuration, chunkInFlight, jobsTotal, fanOutSize, queueLag)

	return &WorkerMetrics{
		registry:      registry,
		chunkTotal:    chunkTotal,
		chunkDuration: chunkDuration,
		chunkInFlight: chunkInFlight,
		jobsTotal:     jobsTotal,
		fanOutSize:    fanOutSize,
		queueLag:      queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartChunk() {
	m.chunkInFlight.Inc()
}

func (m *WorkerMetrics) FinishChunk(service string, duration time.Duration, err error) {
	m.chunkInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.chunkTotal.WithLabelValues(service, status).Inc()
	m.chunkDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) FinishJob(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobsTotal.WithLabelValues(service, status).Inc()
}

func (m *WorkerMetrics) ObserveFanOut(service string, chunks int) {
	if chunks <= 0 {
		return
	}
	m.fanOutSize.WithLabelValues(service).Observe(float64(chunks))
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
