// Package metrics exposes the process-level and HTTP-server Prometheus
// collectors; per-document business metrics live in progress/sinks
// instead, fed from the same event stream every other sink consumes.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	backoffDelaySeconds        prometheus.Histogram
	tlsHandshakeTimeoutsTotal  prometheus.Counter

	once sync.Once
)

// Init registers every collector exactly once; safe to call repeatedly
// from independently-constructed components during startup.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "efgrabber_http_requests_total",
				Help: "Total number of requests served by the status/debug API, labeled by method and status code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "efgrabber_http_request_duration_seconds",
				Help:    "Latency of requests served by the status/debug API, labeled by method and route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "efgrabber_active_workers",
			Help: "Number of scheduler worker goroutines currently downloading a document.",
		})

		backoffDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "efgrabber_backoff_delay_seconds",
			Help:    "Distribution of retry backoff delays computed for FAILED documents.",
			Buckets: []float64{5, 10, 30, 60, 150, 300, 600},
		})

		tlsHandshakeTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "efgrabber_tls_handshake_timeouts_total",
			Help: "Total number of TLS handshake timeouts encountered while fetching documents.",
		})
	})
}

// Handler returns an http.Handler exposing the process registry for
// Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware wraps a chi route chain with request-count and latency
// instrumentation, labeling by the matched route pattern rather than the
// raw path so per-document routes don't create unbounded label
// cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rw.status)).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// SetActiveWorkers reports the scheduler's current in-flight worker count.
func SetActiveWorkers(n int) { activeWorkers.Set(float64(n)) }

// ObserveBackoffDelay records a computed retry backoff delay.
func ObserveBackoffDelay(d time.Duration) { backoffDelaySeconds.Observe(d.Seconds()) }

// ObserveTLSHandshakeTimeout increments the TLS handshake timeout counter.
func ObserveTLSHandshakeTimeout() { tlsHandshakeTimeoutsTotal.Inc() }
