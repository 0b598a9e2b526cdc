package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation. It is an injected
// sink with an explicit lifecycle; nothing in the auth core keeps counters
// in package-level globals.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	loginTotal      *prometheus.CounterVec
	rotationsTotal  prometheus.Counter
	revoked         prometheus.Counter
	authDeniedTotal *prometheus.CounterVec
	purgedTotal     prometheus.Counter
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

	loginTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})

	rotationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Successful refresh token rotations",
	})

	revokedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_revoked_total",
		Help: "Refresh tokens explicitly revoked",
	})

	authDeniedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_denied_total",
		Help: "Authorization denials by reason",
	}, []string{"reason"})

	purgedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_purged_total",
		Help: "Expired refresh tokens removed by the purge sweep",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, loginTotal, rotationsTotal, revokedTotal, authDeniedTotal, purgedTotal, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		loginTotal:      loginTotal,
		rotationsTotal:  rotationsTotal,
		revoked:         revokedTotal,
		authDeniedTotal: authDeniedTotal,
		purgedTotal:     purgedTotal,
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
}

// RecordLogin counts a login attempt by outcome.
func (m *MetricsService) RecordLogin(success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.loginTotal.WithLabelValues(outcome).Inc()
}

// RecordRotation counts a successful refresh rotation.
func (m *MetricsService) RecordRotation() {
	if m == nil {
		return
	}
	m.rotationsTotal.Inc()
}

// RecordRevocation counts explicitly revoked tokens.
func (m *MetricsService) RecordRevocation(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.Add(float64(n))
}

// RecordAuthDenied counts an authorization denial by reason.
func (m *MetricsService) RecordAuthDenied(reason string) {
	if m == nil {
		return
	}
	m.authDeniedTotal.WithLabelValues(reason).Inc()
}

// RecordPurgedTokens counts tokens removed by the purge sweep.
func (m *MetricsService) RecordPurgedTokens(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purgedTotal.Add(float64(n))
}
