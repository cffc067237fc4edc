// Package metrics provides Prometheus metrics for the oracle system.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpdatesTotal is a counter of update cycles by outcome.
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_updates_total",
			Help: "Total number of price update cycles by outcome",
		},
		[]string{"outcome"},
	)

	// UpdateDuration is a histogram of update cycle duration.
	UpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_update_duration_seconds",
			Help:    "Duration of price update cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LatestAnswer is a gauge of the published answer (8 decimals, as float).
	LatestAnswer = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_latest_answer",
			Help: "Latest published answer in USD",
		},
	)

	// LatestEMA is a gauge of the current EMA.
	LatestEMA = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_latest_ema",
			Help: "Latest exponential moving average in USD",
		},
	)

	// EMABounds is a gauge of the EMA acceptance band.
	EMABounds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_ema_bound",
			Help: "Upper and lower EMA bounds in USD",
		},
		[]string{"side"},
	)

	// AnswerAgeSeconds is a gauge of the age of the published answer.
	AnswerAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_answer_age_seconds",
			Help: "Seconds since the timestamp of the published answer",
		},
	)

	// SourceReadFailuresTotal is a counter of failed source reads.
	SourceReadFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_source_read_failures_total",
			Help: "Total number of failed upstream reads",
		},
		[]string{"source", "reason"},
	)

	// SourceHealth is a gauge of the health status of price sources.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_source_health",
			Help: "Health status of price sources (1=healthy, 0=unhealthy)",
		},
		[]string{"source", "role"},
	)

	// SourceLastUpdate is a gauge of the last reading timestamp per source.
	SourceLastUpdate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_source_last_update_timestamp",
			Help: "Unix timestamp of the last reading from a source",
		},
		[]string{"source"},
	)

	// AdminOperationsTotal is a counter of admin operations.
	AdminOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_admin_operations_total",
			Help: "Total number of admin operations",
		},
		[]string{"operation", "status"},
	)

	// KeeperRunsTotal is a counter of keeper runs.
	KeeperRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_keeper_runs_total",
			Help: "Total number of keeper update runs",
		},
		[]string{"status"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

var registerOnce sync.Once

// Init initializes Prometheus metrics registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			UpdatesTotal,
			UpdateDuration,
			LatestAnswer,
			LatestEMA,
			EMABounds,
			AnswerAgeSeconds,
			SourceReadFailuresTotal,
			SourceHealth,
			SourceLastUpdate,
			AdminOperationsTotal,
			KeeperRunsTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ServeHTTP serves Prometheus metrics on addr at path.
func ServeHTTP(addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordUpdate records a finished update cycle.
func RecordUpdate(outcome string, duration time.Duration) {
	UpdatesTotal.WithLabelValues(outcome).Inc()
	UpdateDuration.Observe(duration.Seconds())
}

// RecordState records the published answer, EMA and bounds.
func RecordState(answer, ema, upper, lower float64, answerTimestamp uint64) {
	LatestAnswer.Set(answer)
	LatestEMA.Set(ema)
	EMABounds.WithLabelValues("upper").Set(upper)
	EMABounds.WithLabelValues("lower").Set(lower)
	if answerTimestamp > 0 {
		AnswerAgeSeconds.Set(time.Since(time.Unix(int64(answerTimestamp), 0)).Seconds())
	}
}

// RecordSourceReading records a successful reading from a source.
func RecordSourceReading(source string, timestamp uint64) {
	SourceLastUpdate.WithLabelValues(source).Set(float64(timestamp))
}

// RecordSourceReadFailure records a failed upstream read.
func RecordSourceReadFailure(source, reason string) {
	SourceReadFailuresTotal.WithLabelValues(source, reason).Inc()
}

// RecordSourceHealth records the health status of a source.
func RecordSourceHealth(source, role string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	SourceHealth.WithLabelValues(source, role).Set(val)
}

// RecordAdminOperation records an admin operation.
func RecordAdminOperation(operation, status string) {
	AdminOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordKeeperRun records a keeper run.
func RecordKeeperRun(status string) {
	KeeperRunsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
