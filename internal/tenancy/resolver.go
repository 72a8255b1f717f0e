package tenancy

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/pkg/jwtutil"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"go.uber.org/zap"
)

// HeaderTenantID carries an explicit tenant id or slug
const HeaderTenantID = "X-Tenant-ID"

// ErrNotIdentified is the terminal failure when no source names a tenant
var ErrNotIdentified = apperr.BadRequest("Tenant could not be identified. Provide a valid domain, X-Tenant-ID header, or token with tenant information.")

// Source tells how a tenant was resolved
type Source string

const (
	SourceDomain Source = "domain"
	SourceHeader Source = "header"
	SourceToken  Source = "token"
)

// Resolver finds the acting tenant for a request
type Resolver struct {
	directory  Directory
	jwt        *jwtutil.JWTUtil
	baseDomain string
}

// NewResolver creates a resolver. baseDomain enables <slug>.<baseDomain> lookups.
func NewResolver(directory Directory, jwt *jwtutil.JWTUtil, baseDomain string) *Resolver {
	return &Resolver{
		directory:  directory,
		jwt:        jwt,
		baseDomain: strings.ToLower(strings.TrimPrefix(baseDomain, ".")),
	}
}

// Resolve tries the domain, then the X-Tenant-ID header, then the token claim.
// It returns ErrNotIdentified when none of them names an existing tenant.
func (r *Resolver) Resolve(ctx context.Context, host, header, bearer string) (*model.Tenant, Source, error) {
	if t, err := r.fromHost(ctx, host); err != nil {
		return nil, "", err
	} else if t != nil {
		return t, SourceDomain, nil
	}

	if header = strings.TrimSpace(header); header != "" {
		t, err := r.directory.ByIdentifier(ctx, header)
		if err == nil {
			return t, SourceHeader, nil
		}
		if !errors.Is(err, ErrUnknownTenant) {
			return nil, "", err
		}
	}

	if bearer != "" && r.jwt != nil {
		if claims, err := r.jwt.ValidateToken(bearer); err == nil && claims.TenantID != nil {
			t, err := r.directory.ByID(ctx, *claims.TenantID)
			if err == nil {
				return t, SourceToken, nil
			}
			if !errors.Is(err, ErrUnknownTenant) {
				return nil, "", err
			}
		}
	}

	return nil, "", ErrNotIdentified
}

func (r *Resolver) fromHost(ctx context.Context, host string) (*model.Tenant, error) {
	host = strings.ToLower(stripPort(host))
	if host == "" || net.ParseIP(host) != nil || host == "localhost" {
		return nil, nil
	}

	t, err := r.directory.ByDomain(ctx, host)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrUnknownTenant) {
		return nil, err
	}

	if r.baseDomain != "" && strings.HasSuffix(host, "."+r.baseDomain) {
		sub := strings.TrimSuffix(host, "."+r.baseDomain)
		if sub != "" && !strings.Contains(sub, ".") {
			t, err := r.directory.ByIdentifier(ctx, sub)
			if err == nil {
				return t, nil
			}
			if !errors.Is(err, ErrUnknownTenant) {
				return nil, err
			}
		}
	}
	return nil, nil
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// Middleware resolves the tenant and stores it in the request context. With
// required=false an unresolved tenant is tolerated and the request continues
// unscoped.
func (r *Resolver) Middleware(required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			log := logger.FromEcho(c)

			t, source, err := r.Resolve(req.Context(), req.Host, req.Header.Get(HeaderTenantID), BearerToken(req.Header.Get(echo.HeaderAuthorization)))
			if err != nil {
				if errors.Is(err, ErrNotIdentified) && !required {
					return next(c)
				}
				if !errors.Is(err, ErrNotIdentified) {
					log.Error("Tenant lookup failed", zap.Error(err))
					return apperr.Internal(err)
				}
				log.Warn("Tenant not identified", zap.String("host", req.Host))
				return err
			}

			if !t.IsActive() {
				log.Warn("Request for suspended tenant", zap.Uint("tenant_id", t.ID))
				return apperr.Authorization("This tenant is currently suspended.")
			}

			c.Set("tenant_id", t.ID)
			c.Set("tenant_slug", t.Slug)
			ctx := WithTenant(req.Context(), t)

			ctxLogger := log.With(zap.Uint("tenant_id", t.ID), zap.String("tenant_source", string(source)))
			c.Set("logger", ctxLogger)
			ctx = logger.WithContext(ctx, ctxLogger)
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
