package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream API metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_upstream_requests_total",
			Help: "Total number of explorer API requests",
		},
		[]string{"endpoint", "status"}, // /token/erc20/transfers, success/error
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whaletracker_upstream_request_duration_seconds",
			Help:    "Duration of explorer API requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whaletracker_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the upstream rate limiter",
			Buckets: []float64{.001, .01, .1, .5, 1, 2, 5, 15, 30, 60},
		},
	)

	// Cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_cache_lookups_total",
			Help: "Total number of response cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	CacheClears = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whaletracker_cache_clears_total",
			Help: "Total number of cache invalidations",
		},
	)

	// Data mode: 0 live, 1 degraded, 2 forced mock
	DataMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whaletracker_data_mode",
			Help: "Current data source mode (0=live, 1=degraded, 2=forced_mock)",
		},
	)

	ModeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_mode_transitions_total",
			Help: "Total number of data mode transitions",
		},
		[]string{"to"},
	)

	// Classification metrics
	TransactionsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_transactions_classified_total",
			Help: "Total number of transactions classified",
		},
		[]string{"tier"}, // mega, large, medium, small, none
	)

	InsightsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_insights_generated_total",
			Help: "Total number of insights generated",
		},
		[]string{"type", "severity"},
	)

	// Alert dispatch metrics
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_alerts_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"status", "kind"}, // success/error, transfer/risk
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whaletracker_alerts_suppressed_total",
			Help: "Total number of alerts suppressed due to cooldown or dedup",
		},
	)

	// Database metrics
	DatabaseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordUpstreamRequest records explorer request metrics
func RecordUpstreamRequest(endpoint string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	UpstreamRequests.WithLabelValues(endpoint, status).Inc()
	UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRateLimitWait records time blocked on the limiter
func RecordRateLimitWait(d time.Duration) {
	RateLimitWait.Observe(d.Seconds())
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordModeTransition updates the mode gauge
func RecordModeTransition(mode string, value float64) {
	DataMode.Set(value)
	ModeTransitions.WithLabelValues(mode).Inc()
}

// RecordClassification counts a classified transaction by tier
func RecordClassification(tier string) {
	TransactionsClassified.WithLabelValues(tier).Inc()
}

// RecordInsight counts a generated insight
func RecordInsight(insightType, severity string) {
	InsightsGenerated.WithLabelValues(insightType, severity).Inc()
}

// RecordAlert records alert dispatch metrics
func RecordAlert(kind string, err error, suppressed bool) {
	if suppressed {
		AlertsSuppressed.Inc()
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	AlertsSent.WithLabelValues(status, kind).Inc()
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueries.WithLabelValues(operation, status).Inc()
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
