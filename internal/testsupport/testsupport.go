// Package testsupport builds in-memory databases and fixtures for package tests.
package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/rbac"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Password is the plain password of every fixture user
const Password = "password123"

// NewDB opens a private in-memory sqlite database with the tenancy plugin
// installed and every model migrated.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Use(tenancy.Plugin{}))
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// Tenant creates an active tenant with default settings
func Tenant(t testing.TB, db *gorm.DB, slug string) *model.Tenant {
	t.Helper()
	tenant := &model.Tenant{
		Slug:     slug,
		Name:     slug + " academy",
		Status:   model.TenantActive,
		Settings: datatypes.NewJSONType(model.DefaultTenantSettings()),
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

// Ctx returns a background context acting as tenant
func Ctx(tenant *model.Tenant) context.Context {
	return tenancy.WithTenant(context.Background(), tenant)
}

// User creates an active user holding roles (student when none are given)
func User(t testing.TB, db *gorm.DB, tenant *model.Tenant, email string, roles ...rbac.Role) *model.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []rbac.Role{rbac.RoleStudent}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &model.User{
		Name:     email,
		Email:    email,
		Password: string(hash),
		IsActive: true,
		Timezone: "UTC",
		Language: "en",
	}
	for _, r := range roles {
		user.Roles = append(user.Roles, model.UserRole{Role: r})
	}
	require.NoError(t, db.WithContext(Ctx(tenant)).Create(user).Error)
	return user
}

// Course creates a course with one module holding chapters published chapters
func Course(t testing.TB, db *gorm.DB, tenant *model.Tenant, title string, chapters int, status model.CourseStatus) *model.Course {
	t.Helper()
	course := &model.Course{
		Title:  title,
		Slug:   uuid.NewString()[:8] + "-course",
		Level:  model.LevelBeginner,
		Status: status,
	}
	if status == model.CoursePublished {
		published := time.Now().Add(-time.Hour)
		course.PublishedAt = &published
	}
	module := model.Module{Title: "Module 1", SortOrder: 1}
	for i := 0; i < chapters; i++ {
		module.Chapters = append(module.Chapters, model.Chapter{
			Title:           fmt.Sprintf("Chapter %d", i+1),
			ContentType:     model.ContentText,
			IsPublished:     true,
			SortOrder:       i + 1,
			DurationMinutes: 10,
		})
	}
	course.Modules = []model.Module{module}
	require.NoError(t, db.WithContext(Ctx(tenant)).Create(course).Error)
	return course
}

// Subscribe puts tenant on a fresh active package with the given ceilings
func Subscribe(t testing.TB, db *gorm.DB, tenant *model.Tenant, quotas map[string]int64) *model.Subscription {
	t.Helper()
	pkg := &model.Package{
		Name:     "Plan " + tenant.Slug,
		Slug:     "plan-" + uuid.NewString()[:8],
		IsActive: true,
	}
	for name, limit := range quotas {
		pkg.Quotas = append(pkg.Quotas, model.PackageQuota{QuotaName: name, QuotaLimit: limit})
	}
	require.NoError(t, db.Create(pkg).Error)

	sub := &model.Subscription{
		PackageID: pkg.ID,
		Status:    model.SubscriptionActive,
		Currency:  "USD",
	}
	require.NoError(t, db.WithContext(Ctx(tenant)).Create(sub).Error)
	sub.Package = pkg
	return sub
}
