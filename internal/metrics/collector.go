package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaimer_runs_total",
			Help: "Total number of cleanup runs",
		},
		[]string{"mode", "result"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reclaimer_run_duration_seconds",
			Help:    "Cleanup run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"mode"},
	)

	artifactsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reclaimer_artifacts_analyzed_total",
			Help: "Total number of artifacts analyzed",
		},
	)

	recommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaimer_recommendations_total",
			Help: "Recommendations produced by action",
		},
		[]string{"action"},
	)

	executedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaimer_actions_executed_total",
			Help: "Actions executed against the object store",
		},
		[]string{"action"},
	)

	bytesSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reclaimer_bytes_saved_total",
			Help: "Bytes freed by executed actions",
		},
	)

	warningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaimer_warnings_total",
			Help: "Non-fatal failures by kind",
		},
		[]string{"kind"},
	)

	// Advisory oracle metrics
	oracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaimer_oracle_requests_total",
			Help: "Advisory oracle requests by call and result",
		},
		[]string{"call", "result"},
	)

	oracleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reclaimer_oracle_request_duration_seconds",
			Help:    "Advisory oracle request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call"},
	)
)

// Collector records engine metrics. The zero value is ready to use.
type Collector struct{}

// NewCollector creates a metrics collector
func NewCollector() *Collector {
	return &Collector{}
}

// RecordRun records one finished run
func (c *Collector) RecordRun(dryRun, failed bool, duration time.Duration) {
	mode := "execute"
	if dryRun {
		mode = "dry_run"
	}
	result := "completed"
	if failed {
		result = "failed"
	}
	runsTotal.WithLabelValues(mode, result).Inc()
	runDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordRecommendation records one analyzed artifact and its action
func (c *Collector) RecordRecommendation(action string) {
	artifactsAnalyzed.Inc()
	recommendationsTotal.WithLabelValues(action).Inc()
}

// RecordExecuted records one executed action and the bytes it freed
func (c *Collector) RecordExecuted(action string, saved int64) {
	executedTotal.WithLabelValues(action).Inc()
	if saved > 0 {
		bytesSaved.Add(float64(saved))
	}
}

// RecordWarning records one non-fatal failure
func (c *Collector) RecordWarning(kind string) {
	warningsTotal.WithLabelValues(kind).Inc()
}

// RecordOracleCall records one advisory oracle request
func (c *Collector) RecordOracleCall(call string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	oracleRequests.WithLabelValues(call, result).Inc()
	oracleLatency.WithLabelValues(call).Observe(duration.Seconds())
}
