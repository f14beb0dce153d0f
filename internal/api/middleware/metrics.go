// metrics.go — Prometheus HTTP метрики сервиса fingerprint-поиска.
// Регистрирует метрики: fps_http_requests_total, fps_http_request_duration_seconds.
// Бизнес-метрики (fps_searches_created_total, fps_publish_failures_total и др.)
// регистрируются в соответствующих пакетах и обновляются из сервисного слоя.
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
			Name: "fps_http_requests_total",
			Help: "Общее количество HTTP-запросов к сервису fingerprint-поиска",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fps_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к сервису fingerprint-поиска в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// SearchesCreatedTotal — количество созданных записей поиска.
	SearchesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fps_searches_created_total",
			Help: "Общее количество созданных записей fingerprint-поиска",
		},
		[]string{"result"},
	)

	// PublishFailuresTotal — количество неудачных публикаций в Message Bus.
	PublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fps_publish_failures_total",
			Help: "Общее количество неудачных публикаций сообщений поиска",
		},
	)

	// CompensationsTotal — количество компенсирующих удалений объектов.
	CompensationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fps_compensations_total",
			Help: "Общее количество компенсирующих удалений объектов File Store",
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

// normalizePath ограничивает множество значений лейбла path известными
// маршрутами: UUID-сегмент заменяется на {id}, любой незнакомый путь
// (включая 404-сканы ботов) сворачивается в "other". Иначе лейбл растёт
// неограниченно.
func normalizePath(path string) string {
	const prefix = "/api/v1/fp-searches/"
	switch {
	case path == "/health/live", path == "/health/ready", path == "/metrics",
		path == "/api/v1/fp-searches":
		return path
	case strings.HasPrefix(path, prefix) && isUUID(path[len(prefix):]):
		return "/api/v1/fp-searches/{id}"
	}
	return "other"
}

// isUUID проверяет, является ли строка UUID в каноническом формате 8-4-4-4-12.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
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
