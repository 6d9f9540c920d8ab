// Package metrics expone los contadores Prometheus del servicio de login.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dazlng"

var (
	// Registry contiene solo los collectors de la aplicacion.
	Registry = prometheus.NewRegistry()

	otpIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "issued_total",
			Help:      "Login code issuance attempts by result.",
		},
		[]string{"result"},
	)

	otpVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "verifications_total",
			Help:      "Login code verifications by result.",
		},
		[]string{"result"},
	)

	bestEffortFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "best_effort_failures_total",
			Help:      "Secondary writes that failed without blocking authentication.",
		},
		[]string{"operation"},
	)

	conversionPrompts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "prompts_total",
			Help:      "Successful logins whose analysis recommended an account proposal.",
		},
	)

	cleanupRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "cleanup_removed_total",
			Help:      "Expired login codes hard-deleted by cleanup passes.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		otpIssued,
		otpVerifications,
		bestEffortFailures,
		conversionPrompts,
		cleanupRemoved,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler devuelve el endpoint de scrape.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordIssuance(result string) {
	otpIssued.WithLabelValues(result).Inc()
}

func RecordVerification(result string) {
	otpVerifications.WithLabelValues(result).Inc()
}

func RecordBestEffortFailure(operation string) {
	bestEffortFailures.WithLabelValues(operation).Inc()
}

func RecordConversionPrompt() {
	conversionPrompts.Inc()
}

func RecordCleanup(removed int) {
	if removed > 0 {
		cleanupRemoved.Add(float64(removed))
	}
}

// ObserveHTTP registra una request ya respondida.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
