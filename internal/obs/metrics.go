package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts grouped by outcome.",
		},
		[]string{"outcome"},
	)

	mirrorFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rbac_mirror_failures_total",
		Help: "Role mirroring operations that left the identity and entity stores inconsistent.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, loginAttempts, mirrorFailures)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountLogin records a login attempt outcome (success, pending, invalid).
func CountLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// CountMirrorFailure records a cross-store mirroring failure. There is no
// compensating transaction; the counter is the alert surface.
func CountMirrorFailure() {
	mirrorFailures.Inc()
}

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded. Only the /api tree carries ids.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	// /api/<resource>/<id>[/<action>]
	if len(parts) >= 4 && parts[1] == "api" {
		switch parts[2] {
		case "users", "roles", "permissions":
			switch parts[3] {
			case "assign-role", "remove-role", "cleanup-identity", "assign-permission":
				return path
			}
			parts[3] = ":id"
			if len(parts) > 5 {
				return path
			}
			return strings.Join(parts, "/")
		}
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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
