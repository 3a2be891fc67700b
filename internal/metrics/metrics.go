package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewd_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renewd_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	remindersDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewd_reminders_dispatched_total",
			Help: "Reminder dispatch results by milestone and result",
		},
		[]string{"milestone", "result"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renewd_run_duration_seconds",
			Help:    "Duration of a full daily reminder run",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewd_runs_total",
			Help: "Daily reminder runs by trigger source",
		},
		[]string{"trigger"},
	)

	milestoneQueryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewd_milestone_query_failures_total",
			Help: "Policy query failures that abandoned a milestone",
		},
		[]string{"milestone"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDispatchOutcome records one milestone batch's tallies
func RecordDispatchOutcome(milestone string, sent, skipped, failed int) {
	remindersDispatched.WithLabelValues(milestone, "sent").Add(float64(sent))
	remindersDispatched.WithLabelValues(milestone, "skipped").Add(float64(skipped))
	remindersDispatched.WithLabelValues(milestone, "failed").Add(float64(failed))
}

// RecordRun records a completed daily run and its duration
func RecordRun(trigger string, duration time.Duration) {
	runsTotal.WithLabelValues(trigger).Inc()
	runDuration.Observe(duration.Seconds())
}

// RecordMilestoneQueryFailure records a policy query failure for a milestone
func RecordMilestoneQueryFailure(milestone string) {
	milestoneQueryFailures.WithLabelValues(milestone).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
