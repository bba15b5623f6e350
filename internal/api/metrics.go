package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	hdbRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdb_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	hdbRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hyperdb_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	hdbRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hyperdb_records_created_total",
		Help: "Total records created.",
	})

	hdbBlocksMinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hyperdb_blocks_mined_total",
		Help: "Total blocks mined.",
	})

	hdbPendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyperdb_pending_transactions",
		Help: "Transactions staged but not yet sealed into a block.",
	})
)

// PrometheusMiddleware records a counter and a latency observation per
// request. Unmatched routes share one label value so probes and typo paths
// cannot blow up label cardinality.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		timer := prometheus.NewTimer(hdbRequestDuration.WithLabelValues(c.Request.Method, path))
		c.Next()
		timer.ObserveDuration()

		hdbRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func recordCreated()        { hdbRecordsTotal.Inc() }
func blockMined()           { hdbBlocksMinedTotal.Inc() }
func setPendingGauge(n int) { hdbPendingTransactions.Set(float64(n)) }
