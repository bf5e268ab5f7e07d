// metrics.go — Prometheus HTTP метрики modvault.
// Регистрирует метрики: mv_http_requests_total, mv_http_request_duration_seconds.
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
			Name: "mv_http_requests_total",
			Help: "Общее количество HTTP-запросов к modvault",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mv_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к modvault в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем идентификаторы на {id} для предотвращения кардинальности)
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

// normalizePath заменяет переменные сегменты пути на плейсхолдеры
// для предотвращения взрывного роста кардинальности метрик.
// /api/v1/service-accounts/a1b2c3d4-... → /api/v1/service-accounts/{id}
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/experimental/current-user/",
		"/api/cyberstorm/community/",
		"/api/v1/service-accounts",
		"/api/v1/uploader-identities":
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/cyberstorm/community/"); ok && rest != "" {
		return "/api/cyberstorm/community/{community_id}/"
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/service-accounts/"); ok && rest != "" {
		if strings.HasSuffix(rest, "/token") {
			return "/api/v1/service-accounts/{id}/token"
		}
		return "/api/v1/service-accounts/{id}"
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/uploader-identities/"); ok && rest != "" {
		if strings.HasSuffix(rest, "/members") {
			return "/api/v1/uploader-identities/{name}/members"
		}
		if strings.HasSuffix(rest, "/service-accounts") {
			return "/api/v1/uploader-identities/{name}/service-accounts"
		}
		return "/api/v1/uploader-identities/{name}"
	}

	return path
}
