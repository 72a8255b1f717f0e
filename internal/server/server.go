// Package server assembles the echo application: services, middleware and
// the route table.
package server

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sanukhandev/lms-be-core/internal/handler"
	"github.com/sanukhandev/lms-be-core/internal/middleware"
	"github.com/sanukhandev/lms-be-core/internal/rbac"
	"github.com/sanukhandev/lms-be-core/internal/service"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/sanukhandev/lms-be-core/pkg/cache"
	"github.com/sanukhandev/lms-be-core/pkg/config"
	"github.com/sanukhandev/lms-be-core/pkg/jwtutil"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"github.com/sanukhandev/lms-be-core/pkg/notify"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"gorm.io/gorm"
)

// Services bundles the domain services behind the API
type Services struct {
	Auth        *service.AuthService
	Courses     *service.CourseService
	Categories  *service.CategoryService
	Enrollments *service.EnrollmentService
	Profiles    *service.ProfileService
	Quotas      *service.QuotaService
	Tenants     *service.TenantService
}

// NewServices wires the services over db. content and notifier may be nil.
func NewServices(cfg *config.Config, db *gorm.DB, jwt *jwtutil.JWTUtil, store cache.Store, content service.ContentSource, notifier notify.Notifier) *Services {
	quotas := service.NewQuotaService(db)
	tenants := service.NewTenantService(db)
	courses := service.NewCourseService(db, quotas, tenants, content)
	return &Services{
		Auth:        service.NewAuthService(db, jwt, cfg.JWT.RefreshTTL, quotas, cache.NewTokenDenylist(store)),
		Courses:     courses,
		Categories:  service.NewCategoryService(db, courses),
		Enrollments: service.NewEnrollmentService(db, notifier, cfg.Enrollment.AccessPeriod),
		Profiles:    service.NewProfileService(db, courses),
		Quotas:      quotas,
		Tenants:     tenants,
	}
}

// New builds the echo instance with every route registered
func New(cfg *config.Config, db *gorm.DB, jwt *jwtutil.JWTUtil, svc *Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Validator = handler.NewValidator()

	// order matters: the logger must see the request id
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderXRequestID, tenancy.HeaderTenantID,
		},
	}))
	e.Use(echomiddleware.BodyLimit(cfg.Server.BodyLimit))
	e.Use(middleware.RequestID())
	e.Use(logger.Middleware())
	e.Use(prometheus.NewHTTPMetrics(cfg.ServiceName).Middleware())

	resolver := tenancy.NewResolver(tenancy.NewGormDirectory(db), jwt, cfg.Server.BaseDomain)
	tenantOptional := resolver.Middleware(false)
	tenantRequired := resolver.Middleware(true)

	health := handler.NewHealthHandler(db, cfg.ServiceName)
	auth := handler.NewAuthHandler(svc.Auth)
	courses := handler.NewCourseHandler(svc.Courses, svc.Enrollments)
	categories := handler.NewCategoryHandler(svc.Categories)
	enrollments := handler.NewEnrollmentHandler(svc.Enrollments)
	profiles := handler.NewProfileHandler(svc.Profiles)
	admin := handler.NewAdminHandler(svc.Enrollments, svc.Quotas, svc.Tenants)

	// Public routes
	e.GET("/health", health.HealthCheck)
	e.GET("/metrics", health.Metrics)

	authGroup := e.Group("/auth")
	authGroup.POST("/login", auth.Login, tenantOptional)
	authGroup.POST("/register", auth.Register, tenantRequired)
	authGroup.POST("/refresh", auth.Refresh, tenantOptional)

	// per route, a group without prefix would also catch unknown paths
	e.GET("/courses/featured", courses.Featured, tenantRequired)
	e.GET("/categories", categories.List, tenantRequired)
	e.GET("/categories/tree", categories.Tree, tenantRequired)
	e.GET("/categories/:id", categories.Show, tenantRequired)
	e.GET("/categories/:id/courses", categories.Courses, tenantRequired)

	// API routes: tenant first so the token can be checked against it
	api := e.Group("/api", tenantRequired, middleware.JWTAuth(jwt, svc.Auth))
	can := middleware.RequirePermission

	api.GET("/auth/me", auth.Me)
	api.POST("/auth/logout", auth.Logout)
	api.POST("/auth/impersonate", auth.Impersonate, can(rbac.PermUserImpersonate))

	api.GET("/courses", courses.List, can(rbac.PermCourseView))
	api.POST("/courses", courses.Create, can(rbac.PermCourseCreate))
	api.GET("/courses/my-courses", courses.MyCourses, can(rbac.PermEnrollmentOwn))
	api.GET("/courses/:id", courses.Show, can(rbac.PermCourseView))
	api.POST("/courses/:id/enroll", courses.Enroll, can(rbac.PermCourseEnroll))

	api.GET("/enrollments", enrollments.List, can(rbac.PermEnrollmentOwn))
	api.GET("/enrollments/:id", enrollments.Show, can(rbac.PermEnrollmentOwn))
	api.PUT("/enrollments/:id/progress", enrollments.UpdateProgress, can(rbac.PermEnrollmentOwn))
	api.DELETE("/enrollments/:id", enrollments.Cancel, can(rbac.PermEnrollmentOwn))

	profile := api.Group("/profile", can(rbac.PermProfileManage))
	profile.GET("", profiles.Show)
	profile.PUT("", profiles.Update)
	profile.PUT("/password", profiles.ChangePassword)
	profile.GET("/dashboard", profiles.Dashboard)
	profile.GET("/activity", profiles.Activity)

	adminGroup := api.Group("/admin")
	adminGroup.PUT("/enrollments/:id/suspend", admin.SuspendEnrollment, can(rbac.PermEnrollmentManage))
	adminGroup.GET("/enrollments/export", admin.ExportEnrollments, can(rbac.PermReportExport))
	adminGroup.GET("/quotas", admin.Quotas, can(rbac.PermQuotaView))
	adminGroup.GET("/settings", admin.Settings, can(rbac.PermTenantSettings))
	adminGroup.PUT("/settings", admin.UpdateSettings, can(rbac.PermTenantSettings))
	adminGroup.GET("/integrations", admin.Integrations, can(rbac.PermTenantSettings))

	return e
}
