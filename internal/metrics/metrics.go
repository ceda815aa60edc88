package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_http_requests_total",
			Help: "Total HTTP requests processed, by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_intake_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LeadsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_leads_created_total",
			Help: "Leads created, by origin (api or import)",
		},
		[]string{"origin"},
	)

	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_mutations_total",
			Help: "Lead mutation attempts, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	RateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lead_intake_rate_limit_rejections_total",
			Help: "Mutations rejected by the per-user rate limiter",
		},
	)

	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_import_rows_total",
			Help: "CSV import rows seen, by result (accepted or rejected)",
		},
		[]string{"result"},
	)
)

// Middleware records request counts and latency per route. It uses the
// registered route pattern, not the raw path, to keep cardinality down.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordMutation tags one mutation attempt with its outcome
// (ok, validation_error, conflict, forbidden, not_found, error).
func RecordMutation(operation, outcome string) {
	MutationsTotal.WithLabelValues(operation, outcome).Inc()
}
