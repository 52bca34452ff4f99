// metrics.go — Prometheus HTTP метрики для Clip Store.
// Регистрирует метрики: cs_http_requests_total, cs_http_request_duration_seconds.
// Бизнес-метрики (cs_uploads_total, cs_reaper_* и др.) регистрируются
// в соответствующих пакетах и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cs_http_requests_total",
			Help: "Общее количество HTTP-запросов к Clip Store",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cs_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Clip Store в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// RecordsTotal — текущее количество записей по видам (gauge).
	RecordsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cs_records_total",
			Help: "Текущее количество записей в хранилище",
		},
		[]string{"kind"},
	)

	// StorageBytes — объём занятого дискового пространства (gauge).
	StorageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cs_storage_bytes",
			Help: "Объём занятого дискового пространства в байтах",
		},
	)

	// ActiveSessions — текущее количество активных сессий загрузки (gauge).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cs_active_upload_sessions",
			Help: "Текущее количество активных сессий загрузки",
		},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет UUID-сегменты пути на {id} для предотвращения
// взрывного роста кардинальности метрик.
// /api/upload/a1b2c3d4-e5f6-7890-abcd-ef1234567890 → /api/upload/{id}
func normalizePath(path string) string {
	switch {
	case path == "/health/live":
		return "/health/live"
	case path == "/health/ready":
		return "/health/ready"
	case path == "/metrics":
		return "/metrics"
	case path == "/api/info":
		return "/api/info"
	case path == "/api/upload/request":
		return "/api/upload/request"
	case path == "/api/clips/register":
		return "/api/clips/register"
	case path == "/api/maintenance/sweep":
		return "/api/maintenance/sweep"
	case path == "/f":
		return "/f"
	case strings.HasPrefix(path, "/api/upload_status/") && isUUIDSegment(path, "/api/upload_status/"):
		return "/api/upload_status/{id}"
	case strings.HasPrefix(path, "/api/upload/") && isUUIDSegment(path, "/api/upload/"):
		return "/api/upload/{id}"
	}
	return path
}

// isUUIDSegment проверяет, является ли сегмент пути после prefix UUID-ом.
func isUUIDSegment(path, prefix string) bool {
	if len(path) != len(prefix)+36 {
		return false
	}
	segment := path[len(prefix):]
	// Формат UUID: 8-4-4-4-12
	for i, c := range segment {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
		} else {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
				return false
			}
		}
	}
	return true
}
