package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Average computation outcomes.
const (
	outcomeComputed      = "computed"
	outcomeNotComputable = "not_computable"
	outcomeError         = "error"
)

// MetricsService encapsulates Prometheus instrumentation. All methods are nil-safe.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	averages        *prometheus.CounterVec
	tasks           *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	deadlineLocks   prometheus.Counter
	notifications   prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	requestCount  uint64
	tasksDone     uint64
	tasksFailed   uint64
	averagesCount uint64
}

// MetricsSnapshot is a lightweight view of the counters for the API.
type MetricsSnapshot struct {
	RequestsTotal    uint64    `json:"requests_total"`
	AveragesComputed uint64    `json:"averages_computed"`
	TasksSucceeded   uint64    `json:"tasks_succeeded"`
	TasksFailed      uint64    `json:"tasks_failed"`
	Goroutines       int       `json:"goroutines"`
	GeneratedAt      time.Time `json:"generated_at"`
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

	averages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_averages_computed_total",
		Help: "Average computations by level and outcome",
	}, []string{"level", "outcome"})

	tasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduled_tasks_total",
		Help: "Scheduled task executions by kind and terminal status",
	}, []string{"kind", "status"})

	taskDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduled_task_duration_seconds",
		Help:    "Duration of scheduled task executions",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"kind"})

	deadlineLocks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deadline_locks_total",
		Help: "Assessments locked by the deadline sweep",
	})

	notifications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deadline_notifications_total",
		Help: "Deadline warning events published",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, averages, tasks, taskDuration, deadlineLocks, notifications, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		averages:        averages,
		tasks:           tasks,
		taskDuration:    taskDuration,
		deadlineLocks:   deadlineLocks,
		notifications:   notifications,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordAverage counts one average computation at a level (component, unit, term).
func (m *MetricsService) RecordAverage(level, outcome string) {
	if m == nil {
		return
	}
	m.averages.WithLabelValues(level, outcome).Inc()
	if outcome == outcomeComputed {
		atomic.AddUint64(&m.averagesCount, 1)
	}
}

// RecordTask counts a finished task run.
func (m *MetricsService) RecordTask(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(kind, status).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if status == "done" {
		atomic.AddUint64(&m.tasksDone, 1)
	} else {
		atomic.AddUint64(&m.tasksFailed, 1)
	}
}

// RecordDeadlineLocks adds n sweep locks.
func (m *MetricsService) RecordDeadlineLocks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deadlineLocks.Add(float64(n))
}

// RecordNotifications adds n published deadline events.
func (m *MetricsService) RecordNotifications(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notifications.Add(float64(n))
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		RequestsTotal:    atomic.LoadUint64(&m.requestCount),
		AveragesComputed: atomic.LoadUint64(&m.averagesCount),
		TasksSucceeded:   atomic.LoadUint64(&m.tasksDone),
		TasksFailed:      atomic.LoadUint64(&m.tasksFailed),
		Goroutines:       runtime.NumGoroutine(),
		GeneratedAt:      time.Now().UTC(),
	}
}
