package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lms_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Registration counters
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lms_register_total",
			Help: "Total number of student registrations",
		},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "invalid_credentials", "inactive_account", "invalid_token", ...
	)

	EnrollmentEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_enrollment_events_total",
			Help: "Total number of enrollment lifecycle transitions",
		},
		[]string{"event"}, // "enrolled", "completed", "cancelled", "suspended", "expired"
	)

	QuotaRejectionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_quota_rejections_total",
			Help: "Total number of actions refused by a subscription quota",
		},
		[]string{"quota"},
	)

	CacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_cms_cache_lookups_total",
			Help: "CMS content cache lookups by result",
		},
		[]string{"result"}, // "hit" or "miss"
	)

	WorkerRunCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_worker_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)
)

// Histogram metrics
var (
	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lms_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Gauge metrics
var (
	// Tokens issued minus tokens revoked since start
	ActiveTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lms_active_tokens",
			Help: "Number of access tokens issued and not logged out",
		},
	)

	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lms_info",
			Help: "Information about the LMS service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(EnrollmentEventCounter)
	prometheus.MustRegister(QuotaRejectionCounter)
	prometheus.MustRegister(CacheCounter)
	prometheus.MustRegister(WorkerRunCounter)

	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveTokensGauge)
	prometheus.MustRegister(InfoGauge)

	registerHTTPMetrics()

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(endTime.Sub(startTime).Seconds())
	}
}

// IncreaseActiveTokens increments the active tokens gauge
func IncreaseActiveTokens() {
	ActiveTokensGauge.Inc()
}

// DecreaseActiveTokens decrements the active tokens gauge
func DecreaseActiveTokens() {
	ActiveTokensGauge.Dec()
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordEnrollmentEvent records a lifecycle transition
func RecordEnrollmentEvent(event string) {
	EnrollmentEventCounter.With(prometheus.Labels{"event": event}).Inc()
}

// RecordEnrollmentEvents records n transitions at once, used by bulk expiry
func RecordEnrollmentEvents(event string, n int64) {
	if n > 0 {
		EnrollmentEventCounter.With(prometheus.Labels{"event": event}).Add(float64(n))
	}
}

// RecordQuotaRejection records an action refused by quota
func RecordQuotaRejection(quota string) {
	QuotaRejectionCounter.With(prometheus.Labels{"quota": quota}).Inc()
}

// RecordCacheLookup records a CMS cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordWorkerRun records the outcome of a scheduled job
func RecordWorkerRun(job string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	WorkerRunCounter.With(prometheus.Labels{"job": job, "outcome": outcome}).Inc()
}
