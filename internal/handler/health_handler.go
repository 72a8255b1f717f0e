package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/pkg/database"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthHandler reports liveness and exposes metrics
type HealthHandler struct {
	db      *gorm.DB
	service string
}

// NewHealthHandler creates the handler
func NewHealthHandler(db *gorm.DB, service string) *HealthHandler {
	return &HealthHandler{db: db, service: service}
}

// HealthCheck handles the health check endpoint
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	if err := database.Ping(h.db); err != nil {
		logger.FromEcho(c).Error("Health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":   "unhealthy",
			"service":  h.service,
			"database": "down",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":   "healthy",
		"service":  h.service,
		"database": "up",
	})
}

// Metrics serves the Prometheus registry
func (h *HealthHandler) Metrics(c echo.Context) error {
	prometheus.GetPrometheusHandler().ServeHTTP(c.Response(), c.Request())
	return nil
}
