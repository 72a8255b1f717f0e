package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/service"
)

// EnrollmentHandler serves the learner's own enrollments
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler creates the handler
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// progress_percentage is clamped by the service, not rejected
type progressRequest struct {
	ProgressPercentage *float64 `json:"progress_percentage"`
	ChapterID          *uint    `json:"chapter_id"`
	TimeSpentMinutes   int      `json:"time_spent_minutes" validate:"gte=0,lte=1440"`
}

func parseStatus(raw string) (model.EnrollmentStatus, error) {
	status := model.EnrollmentStatus(raw)
	switch status {
	case "", model.EnrollmentActive, model.EnrollmentCompleted, model.EnrollmentCancelled,
		model.EnrollmentSuspended, model.EnrollmentExpired, model.EnrollmentDropped:
		return status, nil
	}
	return "", apperr.FieldError("status", "The selected status is invalid.")
}

// List handles GET /api/enrollments
func (h *EnrollmentHandler) List(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	status, err := parseStatus(c.QueryParam("status"))
	if err != nil {
		return err
	}
	page, err := pageOf(c)
	if err != nil {
		return err
	}
	enrollments, err := h.enrollments.List(c.Request().Context(), claims.UserID, service.EnrollmentFilter{Status: status, PageRequest: page})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Enrollments retrieved successfully", enrollments)
}

// Show handles GET /api/enrollments/:id
func (h *EnrollmentHandler) Show(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	enrollment, err := h.enrollments.Get(c.Request().Context(), id, claims.UserID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Enrollment retrieved successfully", enrollment)
}

// UpdateProgress handles PUT /api/enrollments/:id/progress
func (h *EnrollmentHandler) UpdateProgress(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req progressRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.ProgressPercentage == nil && req.ChapterID == nil && req.TimeSpentMinutes == 0 {
		return apperr.FieldError("progress_percentage", "Provide progress_percentage, chapter_id or time_spent_minutes.")
	}

	enrollment, err := h.enrollments.UpdateProgress(c.Request().Context(), claims.UserID, id, service.ProgressInput{
		Percentage:       req.ProgressPercentage,
		ChapterID:        req.ChapterID,
		TimeSpentMinutes: req.TimeSpentMinutes,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Progress updated successfully", enrollment)
}

// Cancel handles DELETE /api/enrollments/:id
func (h *EnrollmentHandler) Cancel(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	enrollment, err := h.enrollments.Cancel(c.Request().Context(), claims.UserID, id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Enrollment cancelled successfully", enrollment)
}
