package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/timetable-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
	cascadeTotal    *prometheus.CounterVec
	cascadeSessions *prometheus.HistogramVec
	undoTotal       *prometheus.CounterVec
	widgetMigration *prometheus.CounterVec
	widgetRefresh   *prometheus.CounterVec
	streamDuration  *prometheus.HistogramVec

	cascadeCount         uint64
	undoCount            uint64
	migrationCount       uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	cascadeTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_cascade_deletes_total",
		Help: "Cascading deletes committed, by entity",
	}, []string{"kind"})

	cascadeSessions := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_cascade_sessions",
		Help:    "Cells touched by a cascading delete",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	}, []string{"kind"})

	undoTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_undo_total",
		Help: "Undo attempts, by packet kind and outcome",
	}, []string{"kind", "outcome"})

	widgetMigration := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "widget_legacy_migrations_total",
		Help: "Legacy widget slot migrations, by outcome",
	}, []string{"outcome"})

	widgetRefresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "widget_snapshot_refresh_total",
		Help: "Widget snapshot regenerations, by outcome",
	}, []string{"outcome"})

	streamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_stream_duration_seconds",
		Help:    "Lifetime of server-sent event streams",
		Buckets: []float64{1, 10, 60, 300, 900, 3600},
	}, []string{"path"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration,
		cascadeTotal, cascadeSessions, undoTotal, widgetMigration, widgetRefresh, streamDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
		cascadeTotal:    cascadeTotal,
		cascadeSessions: cascadeSessions,
		undoTotal:       undoTotal,
		widgetMigration: widgetMigration,
		widgetRefresh:   widgetRefresh,
		streamDuration:  streamDuration,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveStream records how long a server-sent event stream stayed open.
// Streams are kept out of the request latency histogram.
func (m *MetricsService) ObserveStream(path string, duration time.Duration) {
	if m == nil {
		return
	}
	m.streamDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCascade counts a committed cascading delete and the cells it emptied.
func (m *MetricsService) RecordCascade(kind string, sessions int) {
	if m == nil {
		return
	}
	m.cascadeTotal.WithLabelValues(kind).Inc()
	m.cascadeSessions.WithLabelValues(kind).Observe(float64(sessions))
	atomic.AddUint64(&m.cascadeCount, 1)
}

// RecordUndo counts an undo attempt.
func (m *MetricsService) RecordUndo(kind, outcome string) {
	if m == nil {
		return
	}
	m.undoTotal.WithLabelValues(kind, outcome).Inc()
	atomic.AddUint64(&m.undoCount, 1)
}

// RecordWidgetMigration counts a legacy widget slot migration.
func (m *MetricsService) RecordWidgetMigration(outcome string) {
	if m == nil {
		return
	}
	m.widgetMigration.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.migrationCount, 1)
}

// RecordWidgetRefresh counts a widget snapshot regeneration.
func (m *MetricsService) RecordWidgetRefresh(outcome string) {
	if m == nil {
		return
	}
	m.widgetRefresh.WithLabelValues(outcome).Inc()
}

// Snapshot returns aggregated metrics for the metrics summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		CascadesTotal:            atomic.LoadUint64(&m.cascadeCount),
		UndosTotal:               atomic.LoadUint64(&m.undoCount),
		WidgetMigrations:         atomic.LoadUint64(&m.migrationCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
