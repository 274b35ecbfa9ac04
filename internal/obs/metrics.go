package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// Onboarding and role-engine metrics.
var (
	verificationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_verification_attempts_total",
			Help: "Identity verification attempts by result.",
		},
		[]string{"result"},
	)

	lockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "identity_lockouts_total",
		Help: "Verification requests denied by the lockout tracker.",
	})

	activationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accounts_activated_total",
		Help: "Accounts created through onboarding activation.",
	})

	grantOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_grant_operations_total",
			Help: "Role grant mutations by operation.",
		},
		[]string{"op"},
	)

	sweepExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "role_grants_expired_total",
		Help: "Role grants deactivated by the expiry sweep.",
	})

	sweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "role_grant_sweep_errors_total",
		Help: "Grants the expiry sweep failed to process.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		verificationAttempts, lockoutsTotal, activationsTotal,
		grantOps, sweepExpired, sweepErrors,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the readiness probe state.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// RecordVerification counts one identity verification attempt.
// result is one of "success", "mismatch", "not_found", "locked".
func RecordVerification(result string) {
	verificationAttempts.WithLabelValues(result).Inc()
	if result == "locked" {
		lockoutsTotal.Inc()
	}
}

// RecordActivation counts one completed account activation.
func RecordActivation() {
	activationsTotal.Inc()
}

// RecordGrantOp counts a role grant mutation ("grant", "revoke", "expire").
func RecordGrantOp(op string) {
	grantOps.WithLabelValues(op).Inc()
}

// RecordSweep accumulates one sweep run result.
func RecordSweep(expired, errs int) {
	sweepExpired.Add(float64(expired))
	sweepErrors.Add(float64(errs))
}

// Instrument wraps an HTTP handler with request metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
