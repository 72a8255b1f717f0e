package service

import (
	"testing"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestExceeded(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		defined bool
		usage   int64
		want    bool
	}{
		{"undefined", 0, false, 100, false},
		{"unlimited", model.Unlimited, true, 1_000_000_000, false},
		{"under", 50, true, 49, false},
		{"at ceiling", 50, true, 50, true},
		{"zero ceiling", 0, true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Exceeded(tt.limit, tt.defined, tt.usage))
		})
	}
}

func TestUnlimitedQuotaIsNeverExceeded(t *testing.T) {
	db := testsupport.NewDB(t)
	tenant := testsupport.Tenant(t, db, "demo")
	sub := testsupport.Subscribe(t, db, tenant, map[string]int64{model.QuotaMaxCourses: model.Unlimited})
	require.NoError(t, db.Create(&model.SubscriptionUsage{
		TenantID:       tenant.ID,
		SubscriptionID: sub.ID,
		QuotaName:      model.QuotaMaxCourses,
		CurrentUsage:   1_000_000_000,
		LastUpdatedAt:  time.Now(),
	}).Error)

	quotas := NewQuotaService(db)
	ctx := testsupport.Ctx(tenant)

	exceeded, err := quotas.IsQuotaExceeded(ctx, tenant.ID, model.QuotaMaxCourses)
	require.NoError(t, err)
	assert.False(t, exceeded)

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return quotas.Consume(ctx, tx, tenant.ID, model.QuotaMaxCourses)
	})
	require.NoError(t, err)

	var usage model.SubscriptionUsage
	require.NoError(t, db.Where("subscription_id = ?", sub.ID).First(&usage).Error)
	assert.Equal(t, int64(1_000_000_001), usage.CurrentUsage)
}

func TestFiftyFirstCourseIsRejectedWithoutSideEffects(t *testing.T) {
	db := testsupport.NewDB(t)
	tenant := testsupport.Tenant(t, db, "demo")
	instructor := testsupport.User(t, db, tenant, "tutor@demo.lms")
	sub := testsupport.Subscribe(t, db, tenant, map[string]int64{model.QuotaMaxCourses: 50})
	ctx := testsupport.Ctx(tenant)

	quotas := NewQuotaService(db)
	tenants := NewTenantService(db)
	courses := NewCourseService(db, quotas, tenants, nil)

	for i := 0; i < 50; i++ {
		_, err := courses.Create(ctx, instructor.ID, CreateCourseInput{Title: "Course " + string(rune('A'+i%26)) + string(rune('a'+i/26))})
		require.NoError(t, err, "course %d", i+1)
	}

	_, err := courses.Create(ctx, instructor.ID, CreateCourseInput{
		Title:   "One Too Many",
		Modules: []ModuleInput{{Title: "M", Chapters: []ChapterInput{{Title: "C"}}}},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	var count int64
	require.NoError(t, db.WithContext(ctx).Model(&model.Course{}).Count(&count).Error)
	assert.Equal(t, int64(50), count)

	var modules int64
	require.NoError(t, db.WithContext(ctx).Model(&model.Module{}).Count(&modules).Error)
	assert.Zero(t, modules)

	var usage model.SubscriptionUsage
	require.NoError(t, db.Where("subscription_id = ? AND quota_name = ?", sub.ID, model.QuotaMaxCourses).First(&usage).Error)
	assert.Equal(t, int64(50), usage.CurrentUsage)

	exceeded, err := quotas.IsQuotaExceeded(ctx, tenant.ID, model.QuotaMaxCourses)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestConsumeWithoutSubscriptionConflicts(t *testing.T) {
	db := testsupport.NewDB(t)
	tenant := testsupport.Tenant(t, db, "demo")
	ctx := testsupport.Ctx(tenant)
	quotas := NewQuotaService(db)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return quotas.Consume(ctx, tx, tenant.ID, model.QuotaMaxStudents)
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	exceeded, err := quotas.IsQuotaExceeded(ctx, tenant.ID, model.QuotaMaxStudents)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestExpiredSubscriptionIsIgnored(t *testing.T) {
	db := testsupport.NewDB(t)
	tenant := testsupport.Tenant(t, db, "demo")
	sub := testsupport.Subscribe(t, db, tenant, map[string]int64{model.QuotaMaxCourses: 5})
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.Subscription{}).Where("id = ?", sub.ID).Update("expires_at", past).Error)

	got, err := NewQuotaService(db).ActiveSubscription(testsupport.Ctx(tenant), nil, tenant.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQuotaReport(t *testing.T) {
	db := testsupport.NewDB(t)
	tenant := testsupport.Tenant(t, db, "demo")
	sub := testsupport.Subscribe(t, db, tenant, map[string]int64{
		model.QuotaMaxCourses:  10,
		model.QuotaMaxStudents: model.Unlimited,
	})
	require.NoError(t, db.Create(&model.PackageFeature{PackageID: sub.PackageID, FeatureName: "certificates", Enabled: true}).Error)
	require.NoError(t, db.Create(&model.SubscriptionUsage{TenantID: tenant.ID, SubscriptionID: sub.ID, QuotaName: model.QuotaMaxCourses, CurrentUsage: 8}).Error)

	quotas := NewQuotaService(db)
	report, err := quotas.Report(testsupport.Ctx(tenant), tenant.ID)
	require.NoError(t, err)
	require.Len(t, report.Quotas, 2)

	byName := map[string]QuotaStatus{}
	for _, q := range report.Quotas {
		byName[q.Name] = q
	}
	courses := byName[model.QuotaMaxCourses]
	assert.Equal(t, int64(2), courses.Remaining)
	assert.Equal(t, 80.0, courses.Percentage)
	assert.True(t, courses.NearLimit)

	students := byName[model.QuotaMaxStudents]
	assert.True(t, students.Unlimited)
	assert.Equal(t, int64(model.Unlimited), students.Remaining)
	assert.False(t, students.NearLimit)

	assert.Equal(t, []string{"certificates"}, report.Features)
	has, err := quotas.HasFeature(testsupport.Ctx(tenant), tenant.ID, "certificates")
	require.NoError(t, err)
	assert.True(t, has)
}
