package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/rbac"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/sanukhandev/lms-be-core/pkg/jwtutil"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"go.uber.org/zap"
)

const claimsKey = "user"

var errUnauthenticated = apperr.Authentication("Unauthenticated.")

// Revocations reports whether an access token id was logged out
type Revocations interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTAuth validates the bearer token, rejects revoked tokens and tokens issued
// for another tenant than the resolved one. Super admins may act in any
// tenant. The claims are stored under "user".
func JWTAuth(jwt *jwtutil.JWTUtil, revocations Revocations) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)
			ctx := c.Request().Context()

			token := tenancy.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				prometheus.RecordAuthError("missing_token")
				return errUnauthenticated
			}

			claims, err := jwt.ValidateToken(token)
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return errUnauthenticated
			}

			if revocations != nil {
				revoked, err := revocations.IsRevoked(ctx, claims.ID)
				if err != nil {
					log.Error("Token revocation lookup failed", zap.Error(err))
					return apperr.Internal(err)
				}
				if revoked {
					prometheus.RecordAuthError("revoked_token")
					return errUnauthenticated
				}
			}

			if t, ok := tenancy.FromContext(ctx); ok && !claims.HasRole(string(rbac.RoleSuperAdmin)) {
				if claims.TenantID == nil || *claims.TenantID != t.ID {
					log.Warn("Token tenant mismatch",
						zap.Uint("user_id", claims.UserID),
						zap.Uint("tenant_id", t.ID))
					prometheus.RecordAuthError("tenant_mismatch")
					return apperr.Authorization("This token does not belong to the current tenant.")
				}
			}

			c.Set(claimsKey, claims)
			ctxLogger := log.With(zap.Uint("user_id", claims.UserID))
			if claims.ImpersonatorID != nil {
				ctxLogger = ctxLogger.With(zap.Uint("impersonator_id", *claims.ImpersonatorID))
			}
			c.Set("logger", ctxLogger)
			c.SetRequest(c.Request().WithContext(logger.WithContext(ctx, ctxLogger)))

			log.Debug("JWT token validated successfully",
				zap.Uint("user_id", claims.UserID),
				zap.String("email", claims.Email))
			return next(c)
		}
	}
}

// Claims returns the claims stored by JWTAuth
func Claims(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwtutil.UserClaims)
	return claims, ok && claims != nil
}

// RequirePermission lets the request through only when one of the token's
// roles grants perm
func RequirePermission(perm rbac.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := Claims(c)
			if !ok {
				return errUnauthenticated
			}
			roles := rbac.Parse(append([]string{claims.Role}, claims.Roles...))
			if !rbac.Allowed(roles, perm) {
				logger.FromEcho(c).Warn("Permission denied",
					zap.Uint("user_id", claims.UserID),
					zap.String("permission", string(perm)))
				return apperr.Authorization("You do not have permission to perform this action.")
			}
			return next(c)
		}
	}
}
