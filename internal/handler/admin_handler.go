package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/report"
	"github.com/sanukhandev/lms-be-core/internal/service"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminHandler serves the tenant administration endpoints
type AdminHandler struct {
	enrollments *service.EnrollmentService
	quotas      *service.QuotaService
	tenants     *service.TenantService
	now         func() time.Time
}

// NewAdminHandler creates the handler
func NewAdminHandler(enrollments *service.EnrollmentService, quotas *service.QuotaService, tenants *service.TenantService) *AdminHandler {
	return &AdminHandler{enrollments: enrollments, quotas: quotas, tenants: tenants, now: time.Now}
}

// SuspendEnrollment handles PUT /api/admin/enrollments/:id/suspend
func (h *AdminHandler) SuspendEnrollment(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	enrollment, err := h.enrollments.Suspend(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Enrollment suspended successfully", enrollment)
}

// ExportEnrollments handles GET /api/admin/enrollments/export?status=
func (h *AdminHandler) ExportEnrollments(c echo.Context) error {
	status, err := parseStatus(c.QueryParam("status"))
	if err != nil {
		return err
	}
	enrollments, err := h.enrollments.ForExport(c.Request().Context(), status)
	if err != nil {
		return err
	}
	data, err := report.Enrollments(enrollments)
	if err != nil {
		return err
	}

	logger.FromEcho(c).Info("Enrollment export generated",
		zap.Int("rows", len(enrollments)),
		zap.String("status", string(status)))
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%s", report.Filename(h.now())))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}

// Quotas handles GET /api/admin/quotas
func (h *AdminHandler) Quotas(c echo.Context) error {
	ctx := c.Request().Context()
	quotas, err := h.quotas.Report(ctx, tenancy.IDFromContext(ctx))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Quota usage retrieved successfully", quotas)
}

// Settings handles GET /api/admin/settings
func (h *AdminHandler) Settings(c echo.Context) error {
	tenant, err := h.tenants.Settings(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Settings retrieved successfully", tenant.Settings)
}

// UpdateSettings handles PUT /api/admin/settings. The body replaces the
// stored settings.
func (h *AdminHandler) UpdateSettings(c echo.Context) error {
	var req model.TenantSettings
	if err := bind(c, &req); err != nil {
		return err
	}
	tenant, err := h.tenants.UpdateSettings(c.Request().Context(), req)
	if err != nil {
		return err
	}
	logger.FromEcho(c).Info("Tenant settings updated", zap.Uint("tenant_id", tenant.ID))
	return ok(c, http.StatusOK, "Settings updated successfully", tenant.Settings)
}

// Integrations handles GET /api/admin/integrations
func (h *AdminHandler) Integrations(c echo.Context) error {
	integrations, err := h.tenants.Integrations(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Integrations retrieved successfully", integrations)
}
