package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// registration API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	photosWritten   prometheus.Counter
	sweepRemoved    prometheus.Counter
	sweepRuns       prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	photosWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photos_written_total",
		Help: "Total photo files written to the folder store",
	})

	sweepRemoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_visits_removed_total",
		Help: "Total expired visits removed by cleanup sweeps",
	})

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_runs_total",
		Help: "Total cleanup sweep executions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, photosWritten, sweepRemoved, sweepRuns, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		photosWritten:   photosWritten,
		sweepRemoved:    sweepRemoved,
		sweepRuns:       sweepRuns,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records per-request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// AddPhotosWritten counts photo files persisted by registrations and retakes.
func (m *MetricsService) AddPhotosWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.photosWritten.Add(float64(n))
}

// ObserveSweep records one cleanup sweep and the rows it removed.
func (m *MetricsService) ObserveSweep(removed int64) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	if removed > 0 {
		m.sweepRemoved.Add(float64(removed))
	}
}
