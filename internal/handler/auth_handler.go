package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/service"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"go.uber.org/zap"
)

// AuthHandler serves login, registration and session endpoints
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates the handler
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Name                 string  `json:"name" validate:"required,max=255"`
	Email                string  `json:"email" validate:"required,email,max=255"`
	Password             string  `json:"password" validate:"required,min=8"`
	PasswordConfirmation string  `json:"password_confirmation" validate:"required,eqfield=Password"`
	Phone                *string `json:"phone" validate:"omitempty,max=20"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type impersonateRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return err
	}
	pair, err := h.auth.Authenticate(c.Request().Context(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Login successful", pair)
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return err
	}
	pair, err := h.auth.Register(c.Request().Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, "Registration successful", pair)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pair, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Token refreshed", pair)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	me, err := h.auth.Me(c.Request().Context(), claims)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "User retrieved successfully", me)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.Request().Context(), claims); err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Logged out successfully", nil)
}

// Impersonate handles POST /api/auth/impersonate
func (h *AuthHandler) Impersonate(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	var req impersonateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pair, err := h.auth.Impersonate(c.Request().Context(), claims, req.UserID)
	if err != nil {
		return err
	}
	logger.FromEcho(c).Info("Impersonation token issued",
		zap.Uint("impersonator_id", claims.UserID),
		zap.Uint("user_id", req.UserID))
	return ok(c, http.StatusOK, "Impersonation started", pair)
}
