package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	httpErrorsTotal        *prometheus.CounterVec
	activityRecordsTotal   *prometheus.CounterVec
	activityLogSeconds     prometheus.Histogram
	recentlyViewedRequests *prometheus.CounterVec
	streamConnections      prometheus.Gauge
	streamDropped          prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		activityRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_activity_records_total",
			Help: "Audit trail writes partitioned by action and outcome.",
		}, []string{"action", "outcome"})

		activityLogSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_activity_log_seconds",
			Help:    "Time spent logging one lifecycle event.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		})

		recentlyViewedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_recently_viewed_requests_total",
			Help: "Recently viewed lookups partitioned by cache result.",
		}, []string{"result"})

		streamConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crm_activity_stream_connections",
			Help: "Open websocket connections on the live activity stream.",
		})

		streamDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crm_activity_stream_dropped_total",
			Help: "Activities dropped for slow stream consumers.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			activityRecordsTotal,
			activityLogSeconds,
			recentlyViewedRequests,
			streamConnections,
			streamDropped,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ActivityRecords exposes the audit write counter.
func ActivityRecords() *prometheus.CounterVec {
	RegisterMetrics()
	return activityRecordsTotal
}

// ActivityLogLatency exposes the lifecycle logging histogram.
func ActivityLogLatency() prometheus.Histogram {
	RegisterMetrics()
	return activityLogSeconds
}

// RecentlyViewedRequests exposes the recency lookup counter.
func RecentlyViewedRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return recentlyViewedRequests
}

// StreamConnections exposes the live stream connection gauge.
func StreamConnections() prometheus.Gauge {
	RegisterMetrics()
	return streamConnections
}

// StreamDropped exposes the counter of activities dropped for slow consumers.
func StreamDropped() prometheus.Counter {
	RegisterMetrics()
	return streamDropped
}
