package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/service"
)

// ProfileHandler serves the authenticated user's profile, dashboard and activity
type ProfileHandler struct {
	profiles *service.ProfileService
}

// NewProfileHandler creates the handler
func NewProfileHandler(profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type updateProfileRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Phone       *string `json:"phone" validate:"omitempty,max=20"`
	Bio         *string `json:"bio" validate:"omitempty,max=1000"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,url,max=500"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender      *string `json:"gender" validate:"omitempty,oneof=male female other"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	Timezone    *string `json:"timezone" validate:"omitempty,timezone"`
	Language    *string `json:"language" validate:"omitempty,max=5"`
}

type changePasswordRequest struct {
	CurrentPassword      string `json:"current_password" validate:"required"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

// Show handles GET /api/profile
func (h *ProfileHandler) Show(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	profile, err := h.profiles.Profile(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Profile retrieved successfully", profile)
}

// Update handles PUT /api/profile
func (h *ProfileHandler) Update(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	var req updateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.profiles.Update(c.Request().Context(), claims.UserID, service.UpdateProfileInput{
		Name:        req.Name,
		Phone:       req.Phone,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
		Country:     req.Country,
		Timezone:    req.Timezone,
		Language:    req.Language,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Profile updated successfully", user)
}

// ChangePassword handles PUT /api/profile/password
func (h *ProfileHandler) ChangePassword(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.profiles.ChangePassword(c.Request().Context(), claims.UserID, req.CurrentPassword, req.Password); err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Password changed successfully", nil)
}

// Dashboard handles GET /api/profile/dashboard
func (h *ProfileHandler) Dashboard(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	dashboard, err := h.profiles.Dashboard(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Dashboard retrieved successfully", dashboard)
}

// Activity handles GET /api/profile/activity?days=N
func (h *ProfileHandler) Activity(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	days := 30
	if err := echo.QueryParamsBinder(c).Int("days", &days).BindError(); err != nil {
		return apperr.FieldError("days", "The days must be an integer.")
	}
	if days < 1 || days > 365 {
		return apperr.FieldError("days", "The days must be between 1 and 365.")
	}
	activity, err := h.profiles.Activity(c.Request().Context(), claims.UserID, days)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Activity retrieved successfully", activity)
}
