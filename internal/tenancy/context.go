// Package tenancy carries the acting tenant through a request and keeps every
// tenant-scoped query inside it.
package tenancy

import (
	"context"

	"github.com/sanukhandev/lms-be-core/internal/model"
)

type contextKey int

const (
	tenantKey contextKey = iota
	unscopedKey
)

// WithTenant returns a context whose queries are scoped to t
func WithTenant(ctx context.Context, t *model.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// FromContext returns the acting tenant, if one was resolved
func FromContext(ctx context.Context) (*model.Tenant, bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok := ctx.Value(tenantKey).(*model.Tenant)
	return t, ok && t != nil
}

// IDFromContext returns the acting tenant id or 0
func IDFromContext(ctx context.Context) uint {
	if t, ok := FromContext(ctx); ok {
		return t.ID
	}
	return 0
}

// WithoutScope marks ctx so the gorm plugin skips tenant filtering even when a
// tenant is present. Used for cross-tenant lookups by super admins.
func WithoutScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, unscopedKey, true)
}

func isUnscoped(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(unscopedKey).(bool)
	return v
}
