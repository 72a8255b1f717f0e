package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/middleware"
	"github.com/sanukhandev/lms-be-core/pkg/jwtutil"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"go.uber.org/zap"
)

// Response is the envelope of every JSON response
type Response struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    interface{}         `json:"data"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func ok(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Response{Success: true, Message: message, Data: data})
}

// ErrorHandler is installed as echo's HTTPErrorHandler. It is the only place
// where errors become responses.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	log := logger.FromEcho(c)

	status, body := translate(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		log.Error("Failed to write error response", zap.Error(writeErr))
	}
}

func translate(err error) (int, Response) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Kind.Status(), Response{Message: appErr.Message, Errors: appErr.Fields}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Code {
		case http.StatusNotFound:
			return httpErr.Code, Response{Message: "Route not found"}
		case http.StatusMethodNotAllowed:
			return httpErr.Code, Response{Message: "Method not allowed"}
		case http.StatusBadRequest:
			return httpErr.Code, Response{Message: "Malformed request body."}
		case http.StatusRequestEntityTooLarge:
			return httpErr.Code, Response{Message: "Request body too large."}
		case http.StatusUnsupportedMediaType:
			return httpErr.Code, Response{Message: "Unsupported media type."}
		case http.StatusUnauthorized:
			return httpErr.Code, Response{Message: "Unauthenticated."}
		case http.StatusForbidden:
			return httpErr.Code, Response{Message: "Forbidden."}
		}
		if httpErr.Code < http.StatusInternalServerError {
			return httpErr.Code, Response{Message: http.StatusText(httpErr.Code)}
		}
	}

	return http.StatusInternalServerError, Response{Message: "Internal server error"}
}

// bind decodes the request into req and validates it
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperr.BadRequest("Malformed request body.")
	}
	return c.Validate(req)
}

func idParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.NotFound("Resource not found")
	}
	return uint(id), nil
}

func claimsOf(c echo.Context) (*jwtutil.UserClaims, error) {
	claims, found := middleware.Claims(c)
	if !found {
		return nil, apperr.Authentication("Unauthenticated.")
	}
	return claims, nil
}
