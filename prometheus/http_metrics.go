package prometheus

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
)

var (
	// RequestCounter counts all HTTP requests with labels
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	// RequestDurationHistogram records request duration in seconds
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	// StatusCodeCategoryCounter counts responses by 2xx/4xx/5xx
	StatusCodeCategoryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_status_category_total",
			Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
		},
		[]string{"service", "category", "method", "path"},
	)
)

func registerHTTPMetrics() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDurationHistogram)
	prometheus.MustRegister(StatusCodeCategoryCounter)
}

// HTTPMetrics records request metrics for one service name
type HTTPMetrics struct {
	ServiceName string
}

// NewHTTPMetrics creates a new HTTP metrics collector for a specific service
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	return &HTTPMetrics{ServiceName: serviceName}
}

func statusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	}
	return ""
}

// Middleware creates an Echo middleware function that records HTTP request metrics.
// It sits inside the logger middleware, so a returned error has not been
// written yet and its status is taken from the error itself.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusFromError(err)
			}
			method := c.Request().Method
			path := c.Path()
			statusStr := strconv.Itoa(status)

			RequestCounter.WithLabelValues(m.ServiceName, method, path, statusStr).Inc()
			if category := statusCategory(status); category != "" {
				StatusCodeCategoryCounter.WithLabelValues(m.ServiceName, category, method, path).Inc()
			}
			RequestDurationHistogram.WithLabelValues(m.ServiceName, method, path, statusStr).
				Observe(time.Since(start).Seconds())

			return err
		}
	}
}

func statusFromError(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.KindOf(err).Status()
}
