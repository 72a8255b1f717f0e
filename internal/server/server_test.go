package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/rbac"
	"github.com/sanukhandev/lms-be-core/internal/testsupport"
	"github.com/sanukhandev/lms-be-core/pkg/cache"
	"github.com/sanukhandev/lms-be-core/pkg/config"
	"github.com/sanukhandev/lms-be-core/pkg/jwtutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

type apiFixture struct {
	e    *echo.Echo
	db   *gorm.DB
	svc  *Services
	demo *model.Tenant
	acme *model.Tenant
}

func newAPIFixture(t *testing.T) *apiFixture {
	cfg := &config.Config{
		ServiceName: "lms-test",
		Server:      config.ServerConfig{BaseDomain: "lms.local", BodyLimit: "1M"},
		JWT:         config.JWTConfig{SigningKey: "test-signing-key", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		Enrollment:  config.EnrollmentConfig{AccessPeriod: 24 * time.Hour},
	}
	db := testsupport.NewDB(t)
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: cfg.JWT.SigningKey, TTL: cfg.JWT.AccessTTL})
	svc := NewServices(cfg, db, jwt, cache.NewMemoryStore(), nil, nil)

	f := &apiFixture{
		e:    New(cfg, db, jwt, svc),
		db:   db,
		svc:  svc,
		demo: testsupport.Tenant(t, db, "demo"),
		acme: testsupport.Tenant(t, db, "acme"),
	}
	testsupport.Subscribe(t, db, f.demo, map[string]int64{
		model.QuotaMaxCourses:  10,
		model.QuotaMaxStudents: model.Unlimited,
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, tenant, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (f *apiFixture) login(t *testing.T, tenant *model.Tenant, email string) string {
	t.Helper()
	rec, env := f.do(t, http.MethodPost, "/auth/login", tenant.Slug, "", map[string]string{
		"email":    email,
		"password": testsupport.Password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	require.NotEmpty(t, pair.AccessToken)
	return pair.AccessToken
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"up"`)

	rec, _ = f.do(t, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lms_login_total")
}

func TestErrorEnvelope(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("unknown route", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/nope", "", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.False(t, env.Success)
		assert.Equal(t, "Route not found", env.Message)
		// the envelope keeps its shape on failures
		assert.Contains(t, rec.Body.String(), `"data":null`)
		assert.NotContains(t, rec.Body.String(), `"errors"`)
	})

	t.Run("validation", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, "/auth/login", "demo", "", map[string]string{"email": "not-an-email"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.False(t, env.Success)
		assert.Contains(t, env.Errors, "email")
		assert.Contains(t, env.Errors, "password")
	})

	t.Run("malformed json", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, "/auth/login", "demo", "", `{"email":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Malformed request body.", env.Message)
	})

	t.Run("tenant required", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/categories", "", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, env.Message, "Tenant could not be identified")
	})

	t.Run("credentials", func(t *testing.T) {
		testsupport.User(t, f.db, f.demo, "student@demo.lms")
		rec, env := f.do(t, http.MethodPost, "/auth/login", "demo", "", map[string]string{
			"email": "student@demo.lms", "password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, env.Success)
		assert.Contains(t, rec.Body.String(), `"data":null`)
	})
}

func TestAPIAuthentication(t *testing.T) {
	f := newAPIFixture(t)
	testsupport.User(t, f.db, f.demo, "student@demo.lms")
	testsupport.User(t, f.db, f.acme, "student@acme.lms")

	t.Run("missing token", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/api/courses", "demo", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthenticated.", env.Message)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodGet, "/api/courses", "demo", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token of another tenant", func(t *testing.T) {
		token := f.login(t, f.acme, "student@acme.lms")
		rec, env := f.do(t, http.MethodGet, "/api/auth/me", "demo", token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "This token does not belong to the current tenant.", env.Message)
	})

	t.Run("super admin cannot enroll across tenants", func(t *testing.T) {
		testsupport.User(t, f.db, f.acme, "owner@acme.lms", rbac.RoleSuperAdmin)
		course := testsupport.Course(t, f.db, f.demo, "Demo only", 1, model.CoursePublished)
		token := f.login(t, f.acme, "owner@acme.lms")

		// the catalog is open to them
		rec, _ := f.do(t, http.MethodGet, "/api/courses", "demo", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec, _ = f.do(t, http.MethodPost, fmt.Sprintf("/api/courses/%d/enroll", course.ID), "demo", token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

		var n int64
		require.NoError(t, f.db.Model(&model.Enrollment{}).Where("course_id = ?", course.ID).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("tenant from token claim", func(t *testing.T) {
		token := f.login(t, f.demo, "student@demo.lms")
		rec, env := f.do(t, http.MethodGet, "/api/auth/me", "", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, env.Success)
		assert.Contains(t, string(env.Data), "student@demo.lms")
	})

	t.Run("logout revokes access token", func(t *testing.T) {
		token := f.login(t, f.demo, "student@demo.lms")
		rec, _ := f.do(t, http.MethodPost, "/api/auth/logout", "demo", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec, _ = f.do(t, http.MethodGet, "/api/auth/me", "demo", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPermissionGate(t *testing.T) {
	f := newAPIFixture(t)
	testsupport.User(t, f.db, f.demo, "student@demo.lms")
	testsupport.User(t, f.db, f.demo, "tutor@demo.lms", rbac.RoleInstructor)
	body := map[string]interface{}{"title": "Go Basics", "level": "beginner", "publish": true}

	student := f.login(t, f.demo, "student@demo.lms")
	rec, env := f.do(t, http.MethodPost, "/api/courses", "demo", student, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You do not have permission to perform this action.", env.Message)

	rec, _ = f.do(t, http.MethodGet, "/api/admin/quotas", "demo", student, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	instructor := f.login(t, f.demo, "tutor@demo.lms")
	rec, env = f.do(t, http.MethodPost, "/api/courses", "demo", instructor, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"slug":"go-basics"`)

	rec, env = f.do(t, http.MethodPost, "/api/courses", "demo", instructor, map[string]interface{}{"level": "expert"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, env.Errors, "title")
	assert.Contains(t, env.Errors, "level")
}

func TestCatalogIsTenantScoped(t *testing.T) {
	f := newAPIFixture(t)
	testsupport.User(t, f.db, f.demo, "student@demo.lms")
	own := testsupport.Course(t, f.db, f.demo, "Demo course", 2, model.CoursePublished)
	foreign := testsupport.Course(t, f.db, f.acme, "Acme course", 2, model.CoursePublished)
	token := f.login(t, f.demo, "student@demo.lms")

	rec, env := f.do(t, http.MethodGet, "/api/courses", "demo", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "Demo course")
	assert.NotContains(t, string(env.Data), "Acme course")

	rec, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/courses/%d", own.ID), "demo", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/courses/%d", foreign.ID), "demo", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, fmt.Sprintf("/api/courses/%d/enroll", foreign.ID), "demo", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/api/courses?level=expert", "demo", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, env.Errors, "level")
}

func TestEnrollmentFlow(t *testing.T) {
	f := newAPIFixture(t)
	testsupport.User(t, f.db, f.demo, "student@demo.lms")
	testsupport.User(t, f.db, f.demo, "other@demo.lms")
	course := testsupport.Course(t, f.db, f.demo, "Demo course", 2, model.CoursePublished)
	token := f.login(t, f.demo, "student@demo.lms")

	rec, env := f.do(t, http.MethodPost, fmt.Sprintf("/api/courses/%d/enroll", course.ID), "demo", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Successfully enrolled in course", env.Message)

	var enrollment model.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &enrollment))

	rec, _ = f.do(t, http.MethodPost, fmt.Sprintf("/api/courses/%d/enroll", course.ID), "demo", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	other := f.login(t, f.demo, "other@demo.lms")
	rec, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/enrollments/%d", enrollment.ID), "demo", other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	path := fmt.Sprintf("/api/enrollments/%d/progress", enrollment.ID)
	rec, env = f.do(t, http.MethodPut, path, "demo", token, map[string]interface{}{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, env.Errors, "progress_percentage")

	rec, env = f.do(t, http.MethodPut, path, "demo", token, map[string]interface{}{"progress_percentage": 150})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &enrollment))
	assert.Equal(t, model.EnrollmentCompleted, enrollment.Status)
	assert.Equal(t, 100.0, enrollment.ProgressPercentage)

	rec, env = f.do(t, http.MethodDelete, fmt.Sprintf("/api/enrollments/%d", enrollment.ID), "demo", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Cannot cancel a completed enrollment.", env.Message)

	rec, env = f.do(t, http.MethodGet, "/api/enrollments?status=completed", "demo", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":1`)

	rec, _ = f.do(t, http.MethodGet, "/api/enrollments?status=bogus", "demo", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	testsupport.User(t, f.db, f.demo, "admin@demo.lms", rbac.RoleTenantAdmin)
	student := testsupport.User(t, f.db, f.demo, "student@demo.lms")
	course := testsupport.Course(t, f.db, f.demo, "Demo course", 2, model.CoursePublished)
	enrollment, err := f.svc.Enrollments.Enroll(testsupport.Ctx(f.demo), student.ID, course.ID)
	require.NoError(t, err)
	token := f.login(t, f.demo, "admin@demo.lms")

	t.Run("export", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodGet, "/api/admin/enrollments/export", "demo", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "enrollments-")

		book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer book.Close()
		rows, err := book.GetRows("Enrollments")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "student@demo.lms", rows[1][2])
	})

	t.Run("suspend", func(t *testing.T) {
		path := fmt.Sprintf("/api/admin/enrollments/%d/suspend", enrollment.ID)
		rec, env := f.do(t, http.MethodPut, path, "demo", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, string(env.Data), `"status":"suspended"`)

		rec, _ = f.do(t, http.MethodPut, path, "demo", token, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("quotas", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/api/admin/quotas", "demo", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, string(env.Data), `"name":"max_courses"`)
	})

	t.Run("settings", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPut, "/api/admin/settings", "demo", token, map[string]interface{}{
			"branding": map[string]string{"primary_color": "red"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, env.Errors, "branding.primary_color")

		rec, _ = f.do(t, http.MethodPut, "/api/admin/settings", "demo", token, map[string]interface{}{
			"branding": map[string]string{"primary_color": "#112233"},
			"locale":   map[string]string{"timezone": "Europe/Berlin", "language": "de", "currency": "EUR"},
			"features": map[string]bool{"self_registration": false},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec, env = f.do(t, http.MethodGet, "/api/admin/settings", "demo", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, string(env.Data), `"primary_color":"#112233"`)
		assert.Contains(t, string(env.Data), `"self_registration":false`)
	})

	t.Run("integrations", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/api/admin/integrations", "demo", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, string(env.Data), `"provider":"strapi"`)
	})
}

func TestProfileEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	testsupport.User(t, f.db, f.demo, "student@demo.lms")
	token := f.login(t, f.demo, "student@demo.lms")

	rec, env := f.do(t, http.MethodPut, "/api/profile", "demo", token, map[string]string{
		"name": "Ada", "timezone": "Mars/Olympus", "date_of_birth": "yesterday",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, env.Errors, "timezone")
	assert.Contains(t, env.Errors, "date_of_birth")

	rec, env = f.do(t, http.MethodPut, "/api/profile", "demo", token, map[string]string{"name": "Ada"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"name":"Ada"`)

	rec, env = f.do(t, http.MethodPut, "/api/profile/password", "demo", token, map[string]string{
		"current_password": testsupport.Password, "password": "new-password-1", "password_confirmation": "mismatch",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, env.Errors, "password_confirmation")

	for _, path := range []string{"/api/profile", "/api/profile/dashboard", "/api/profile/activity?days=7"} {
		rec, _ = f.do(t, http.MethodGet, path, "demo", token, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/profile/activity?days=0", "demo", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
