package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/service"
	"github.com/sanukhandev/lms-be-core/internal/testsupport"
	"github.com/sanukhandev/lms-be-core/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type failingExpirer struct{}

func (failingExpirer) ExpireDue(context.Context) (int64, error) {
	return 0, errors.New("database gone")
}

func overdueEnrollment(t *testing.T, db *gorm.DB, svc *service.EnrollmentService, tenant *model.Tenant, email string) *model.Enrollment {
	t.Helper()
	ctx := testsupport.Ctx(tenant)
	user := testsupport.User(t, db, tenant, email)
	course := testsupport.Course(t, db, tenant, "Course of "+email, 2, model.CoursePublished)
	e, err := svc.Enroll(ctx, user.ID, course.ID)
	require.NoError(t, err)
	require.NoError(t, db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ?", e.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)
	return e
}

func TestExpireEnrollmentsSweepsEveryTenant(t *testing.T) {
	db := testsupport.NewDB(t)
	svc := service.NewEnrollmentService(db, nil, 24*time.Hour)
	demo := testsupport.Tenant(t, db, "demo")
	acme := testsupport.Tenant(t, db, "acme")

	first := overdueEnrollment(t, db, svc, demo, "a@demo.lms")
	second := overdueEnrollment(t, db, svc, acme, "b@acme.lms")

	// still within its window
	user := testsupport.User(t, db, demo, "c@demo.lms")
	course := testsupport.Course(t, db, demo, "Fresh", 1, model.CoursePublished)
	fresh, err := svc.Enroll(testsupport.Ctx(demo), user.ID, course.ID)
	require.NoError(t, err)

	s := New(db, svc, zap.NewNop())
	n, err := s.ExpireEnrollments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for id, want := range map[uint]model.EnrollmentStatus{
		first.ID:  model.EnrollmentExpired,
		second.ID: model.EnrollmentExpired,
		fresh.ID:  model.EnrollmentActive,
	} {
		var e model.Enrollment
		require.NoError(t, db.First(&e, id).Error)
		assert.Equal(t, want, e.Status, "enrollment %d", id)
	}

	n, err = s.ExpireEnrollments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanupRefreshTokens(t *testing.T) {
	db := testsupport.NewDB(t)
	demo := testsupport.Tenant(t, db, "demo")
	acme := testsupport.Tenant(t, db, "acme")
	now := time.Now()

	tokens := []struct {
		tenant  *model.Tenant
		token   model.RefreshToken
		deleted bool
	}{
		{demo, model.RefreshToken{TokenHash: "expired", UserID: 1, ExpiresAt: now.Add(-time.Minute)}, true},
		{acme, model.RefreshToken{TokenHash: "expired-acme", UserID: 2, ExpiresAt: now.Add(-time.Hour)}, true},
		{demo, model.RefreshToken{TokenHash: "live", UserID: 1, ExpiresAt: now.Add(time.Hour)}, false},
		{demo, model.RefreshToken{TokenHash: "revoked-recently", UserID: 1, ExpiresAt: now.Add(time.Hour), Revoked: true}, false},
		{acme, model.RefreshToken{TokenHash: "revoked-long-ago", UserID: 2, ExpiresAt: now.Add(time.Hour), Revoked: true,
			UpdatedAt: now.Add(-8 * 24 * time.Hour)}, true},
	}
	for i := range tokens {
		require.NoError(t, db.WithContext(testsupport.Ctx(tokens[i].tenant)).Create(&tokens[i].token).Error)
	}

	s := New(db, nil, zap.NewNop())
	n, err := s.CleanupRefreshTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var left []string
	require.NoError(t, db.Model(&model.RefreshToken{}).Order("token_hash").Pluck("token_hash", &left).Error)
	assert.Equal(t, []string{"live", "revoked-recently"}, left)
}

func TestRegister(t *testing.T) {
	db := testsupport.NewDB(t)

	s := New(db, failingExpirer{}, zap.NewNop())
	require.NoError(t, s.Register(config.WorkerConfig{ExpirySchedule: "*/15 * * * *", CleanupSchedule: "0 3 * * *"}))
	assert.Len(t, s.cron.Entries(), 2)

	err := New(db, failingExpirer{}, zap.NewNop()).Register(config.WorkerConfig{ExpirySchedule: "every minute", CleanupSchedule: "0 3 * * *"})
	assert.ErrorContains(t, err, "expire_enrollments")
}

func TestRunSurvivesJobFailure(t *testing.T) {
	s := New(testsupport.NewDB(t), failingExpirer{}, zap.NewNop())
	assert.NotPanics(t, func() { s.run(JobExpireEnrollments, s.ExpireEnrollments) })
}

func TestStartStop(t *testing.T) {
	s := New(testsupport.NewDB(t), failingExpirer{}, zap.NewNop())
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
