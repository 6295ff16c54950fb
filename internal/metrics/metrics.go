// Package metrics provides Prometheus metrics for the fxv server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxv_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxv_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Directory fetch metrics
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxv_directory_fetches_total",
			Help: "Total directory fetches by result",
		},
		[]string{"workspace", "result"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxv_directory_fetch_duration_seconds",
			Help:    "Directory fetch duration in seconds, simulated latency included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"workspace"},
	)

	// Tree metrics
	treeEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fxv_tree_entries",
			Help: "Number of files and directories in the published tree",
		},
		[]string{"workspace"},
	)

	ingestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxv_ingest_duration_seconds",
			Help:    "Time to walk a workspace and rebuild its tree",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"workspace"},
	)

	ingestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxv_ingests_total",
			Help: "Total workspace ingests by result",
		},
		[]string{"workspace", "result"},
	)
)

// Fetch results.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordFetch records a directory fetch.
func RecordFetch(workspace, result string, duration time.Duration) {
	fetchesTotal.WithLabelValues(workspace, result).Inc()
	fetchDuration.WithLabelValues(workspace).Observe(duration.Seconds())
}

// RecordIngest records a workspace ingest.
func RecordIngest(workspace string, duration time.Duration, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	ingestsTotal.WithLabelValues(workspace, result).Inc()
	ingestDuration.WithLabelValues(workspace).Observe(duration.Seconds())
}

// SetTreeEntries sets the entry count of a workspace's published tree.
func SetTreeEntries(workspace string, count int) {
	treeEntries.WithLabelValues(workspace).Set(float64(count))
}

// ForgetWorkspace drops the per-workspace series of a removed workspace.
func ForgetWorkspace(workspace string) {
	labels := prometheus.Labels{"workspace": workspace}
	fetchesTotal.DeletePartialMatch(labels)
	fetchDuration.DeletePartialMatch(labels)
	ingestsTotal.DeletePartialMatch(labels)
	ingestDuration.DeletePartialMatch(labels)
	treeEntries.DeletePartialMatch(labels)
}

// Middleware returns gin middleware that records request metrics by matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
