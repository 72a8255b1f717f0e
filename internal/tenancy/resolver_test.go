package tenancy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/sanukhandev/lms-be-core/internal/testsupport"
	"github.com/sanukhandev/lms-be-core/pkg/jwtutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolverFixture struct {
	resolver *tenancy.Resolver
	jwt      *jwtutil.JWTUtil
	demo     *model.Tenant
	acme     *model.Tenant
	closed   *model.Tenant
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	db := testsupport.NewDB(t)
	demo := testsupport.Tenant(t, db, "demo")
	acme := testsupport.Tenant(t, db, "acme")
	closed := testsupport.Tenant(t, db, "closed")

	domain := "learn.acme.com"
	require.NoError(t, db.Model(&model.Tenant{}).Where("id = ?", acme.ID).Update("domain", domain).Error)
	require.NoError(t, db.Model(&model.Tenant{}).Where("id = ?", closed.ID).Update("status", model.TenantSuspended).Error)

	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test-secret", TTL: time.Hour})
	return &resolverFixture{
		resolver: tenancy.NewResolver(tenancy.NewGormDirectory(db), jwt, "lms.local"),
		jwt:      jwt,
		demo:     demo,
		acme:     acme,
		closed:   closed,
	}
}

func (f *resolverFixture) tokenFor(t *testing.T, tenant *model.Tenant) string {
	t.Helper()
	id := tenant.ID
	token, _, err := f.jwt.GenerateToken(jwtutil.Subject{Email: "u@lms.test", UserID: 1, TenantID: &id, TenantSlug: tenant.Slug, Roles: []string{"student"}})
	require.NoError(t, err)
	return token
}

func TestResolveOrder(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		host       string
		header     string
		bearer     string
		wantTenant uint
		wantSource tenancy.Source
	}{
		{"custom domain", "learn.acme.com", "", "", f.acme.ID, tenancy.SourceDomain},
		{"custom domain with port", "learn.acme.com:8443", "", "", f.acme.ID, tenancy.SourceDomain},
		{"subdomain", "demo.lms.local", "", "", f.demo.ID, tenancy.SourceDomain},
		{"domain beats header", "learn.acme.com", "demo", "", f.acme.ID, tenancy.SourceDomain},
		{"header slug", "localhost:8080", "demo", "", f.demo.ID, tenancy.SourceHeader},
		{"header id", "127.0.0.1", strconv.Itoa(int(f.acme.ID)), "", f.acme.ID, tenancy.SourceHeader},
		{"header beats token", "api.example.com", "demo", f.tokenFor(t, f.acme), f.demo.ID, tenancy.SourceHeader},
		{"token claim", "api.example.com", "", f.tokenFor(t, f.acme), f.acme.ID, tenancy.SourceToken},
		{"unknown header falls through to token", "", "nope", f.tokenFor(t, f.demo), f.demo.ID, tenancy.SourceToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source, err := f.resolver.Resolve(ctx, tt.host, tt.header, tt.bearer)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTenant, got.ID)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestResolveNotIdentified(t *testing.T) {
	f := newResolverFixture(t)
	cases := map[string][3]string{
		"nothing":           {"", "", ""},
		"unknown subdomain": {"ghost.lms.local", "", ""},
		"nested subdomain":  {"a.demo.lms.local", "", ""},
		"unknown header":    {"localhost", "ghost", ""},
		"garbage token":     {"localhost", "", "not-a-jwt"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.resolver.Resolve(context.Background(), c[0], c[1], c[2])
			assert.ErrorIs(t, err, tenancy.ErrNotIdentified)
			assert.Equal(t, http.StatusBadRequest, apperr.KindOf(err).Status())
		})
	}
}

func serve(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, *model.Tenant, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *model.Tenant
	err := mw(func(c echo.Context) error {
		seen, _ = tenancy.FromContext(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})(c)
	return rec, seen, err
}

func TestMiddleware(t *testing.T) {
	f := newResolverFixture(t)

	t.Run("stores tenant in request context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(tenancy.HeaderTenantID, "demo")
		rec, seen, err := serve(t, f.resolver.Middleware(true), req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, f.demo.ID, seen.ID)
	})

	t.Run("required and unidentified", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, seen, err := serve(t, f.resolver.Middleware(true), req)
		assert.ErrorIs(t, err, tenancy.ErrNotIdentified)
		assert.Nil(t, seen)
	})

	t.Run("optional and unidentified", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec, seen, err := serve(t, f.resolver.Middleware(false), req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("suspended tenant", func(t *testing.T) {
		for _, required := range []bool{true, false} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(tenancy.HeaderTenantID, "closed")
			_, seen, err := serve(t, f.resolver.Middleware(required), req)
			assert.True(t, apperr.Is(err, apperr.KindAuthorization))
			assert.Nil(t, seen)
		}
	})

	t.Run("bearer claim", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.tokenFor(t, f.acme))
		_, seen, err := serve(t, f.resolver.Middleware(true), req)
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.Equal(t, f.acme.ID, seen.ID)
	})
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", tenancy.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", tenancy.BearerToken("bearer  abc "))
	assert.Empty(t, tenancy.BearerToken("Basic abc"))
	assert.Empty(t, tenancy.BearerToken("abc"))
	assert.Empty(t, tenancy.BearerToken(""))
}
