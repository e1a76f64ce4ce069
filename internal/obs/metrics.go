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
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	authValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_validations_total",
			Help: "Edge token validation attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Validation outcomes recorded by the edge gate.
const (
	ValidationOK       = "ok"
	ValidationRejected = "rejected"
	ValidationUpstream = "upstream_error"
)

// Init registers the shared metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, authValidations)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountValidation records one edge validation attempt.
func CountValidation(outcome string) {
	authValidations.WithLabelValues(outcome).Inc()
}

// Instrument wraps a service handler with request count, latency and
// in-flight gauges. Paths are canonicalized so tokens and record IDs
// never become label values.
func Instrument(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(service, method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses per-request path segments (tokens, usernames,
// item IDs) into placeholders to cap label cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	switch {
	case strings.HasPrefix(path, "/validate/"):
		return "/validate/:token"
	case strings.HasPrefix(path, "/refresh/"):
		return "/refresh/:token"
	case strings.HasPrefix(path, "/v1/identities/"):
		return "/v1/identities/:username"
	case strings.HasPrefix(path, "/v1/items/"):
		return "/v1/items/:id"
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
