package service

import (
	"context"
	"testing"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/rbac"
	"github.com/sanukhandev/lms-be-core/internal/testsupport"
	"github.com/sanukhandev/lms-be-core/pkg/cache"
	"github.com/sanukhandev/lms-be-core/pkg/jwtutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type authFixture struct {
	db     *gorm.DB
	tenant *model.Tenant
	jwt    *jwtutil.JWTUtil
	auth   *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := testsupport.NewDB(t)
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test-secret", TTL: time.Hour})
	return &authFixture{
		db:     db,
		tenant: testsupport.Tenant(t, db, "demo"),
		jwt:    jwt,
		auth:   NewAuthService(db, jwt, 24*time.Hour, NewQuotaService(db), cache.NewTokenDenylist(cache.NewMemoryStore())),
	}
}

func (f *authFixture) login(t *testing.T, ctx context.Context, email string) *TokenPair {
	t.Helper()
	pair, err := f.auth.Authenticate(ctx, LoginInput{Email: email, Password: testsupport.Password})
	require.NoError(t, err)
	return pair
}

func (f *authFixture) claims(t *testing.T, pair *TokenPair) *jwtutil.UserClaims {
	t.Helper()
	claims, err := f.jwt.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	return claims
}

func TestAuthenticateIssuesTenantToken(t *testing.T) {
	f := newAuthFixture(t)
	user := testsupport.User(t, f.db, f.tenant, "student@demo.lms")

	pair := f.login(t, testsupport.Ctx(f.tenant), "  Student@Demo.LMS ")
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, 3600, pair.ExpiresIn)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, user.ID, pair.User.ID)
	assert.NotNil(t, pair.User.LastLoginAt)

	claims := f.claims(t, pair)
	require.NotNil(t, claims.TenantID)
	assert.Equal(t, f.tenant.ID, *claims.TenantID)
	assert.Equal(t, "demo", claims.TenantSlug)
	assert.Equal(t, []string{"student"}, claims.Roles)
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	testsupport.User(t, f.db, f.tenant, "student@demo.lms")
	ctx := testsupport.Ctx(f.tenant)

	_, unknown := f.auth.Authenticate(ctx, LoginInput{Email: "nobody@demo.lms", Password: testsupport.Password})
	_, wrong := f.auth.Authenticate(ctx, LoginInput{Email: "student@demo.lms", Password: "wrong-password"})

	require.Error(t, unknown)
	require.Error(t, wrong)
	assert.Equal(t, unknown.Error(), wrong.Error())
	assert.True(t, apperr.Is(unknown, apperr.KindAuthentication))
	assert.True(t, apperr.Is(wrong, apperr.KindAuthentication))
}

func TestAuthenticateRejectsInactiveAccount(t *testing.T) {
	f := newAuthFixture(t)
	user := testsupport.User(t, f.db, f.tenant, "student@demo.lms")
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)

	_, err := f.auth.Authenticate(testsupport.Ctx(f.tenant), LoginInput{Email: "student@demo.lms", Password: testsupport.Password})
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))
	assert.Contains(t, err.Error(), "inactive")
}

func TestAuthenticateScopesEmailToTenant(t *testing.T) {
	f := newAuthFixture(t)
	other := testsupport.Tenant(t, f.db, "other")
	mine := testsupport.User(t, f.db, f.tenant, "shared@lms.test")
	theirs := testsupport.User(t, f.db, other, "shared@lms.test", rbac.RoleInstructor)

	pair := f.login(t, testsupport.Ctx(other), "shared@lms.test")
	assert.Equal(t, theirs.ID, pair.User.ID)
	assert.Equal(t, other.ID, pair.Tenant.ID)

	pair = f.login(t, testsupport.Ctx(f.tenant), "shared@lms.test")
	assert.Equal(t, mine.ID, pair.User.ID)

	// no tenant: lowest id wins
	pair = f.login(t, context.Background(), "shared@lms.test")
	assert.Equal(t, mine.ID, pair.User.ID)
}

func TestAuthenticateRejectsSuspendedTenant(t *testing.T) {
	f := newAuthFixture(t)
	testsupport.User(t, f.db, f.tenant, "student@demo.lms")
	require.NoError(t, f.db.Model(&model.Tenant{}).Where("id = ?", f.tenant.ID).Update("status", model.TenantSuspended).Error)

	_, err := f.auth.Authenticate(context.Background(), LoginInput{Email: "student@demo.lms", Password: testsupport.Password})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestRefreshRotates(t *testing.T) {
	f := newAuthFixture(t)
	testsupport.User(t, f.db, f.tenant, "student@demo.lms")
	first := f.login(t, testsupport.Ctx(f.tenant), "student@demo.lms")

	second, err := f.auth.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, f.tenant.ID, second.Tenant.ID)

	_, err = f.auth.Refresh(context.Background(), "not-a-token")
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))

	third, err := f.auth.Refresh(context.Background(), second.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, third.RefreshToken)
}

func TestRefreshReuseRevokesEverySession(t *testing.T) {
	f := newAuthFixture(t)
	user := testsupport.User(t, f.db, f.tenant, "student@demo.lms")
	testsupport.User(t, f.db, f.tenant, "jane@demo.lms")
	ctx := testsupport.Ctx(f.tenant)

	first := f.login(t, ctx, "student@demo.lms")
	laptop := f.login(t, ctx, "student@demo.lms")
	bystander := f.login(t, ctx, "jane@demo.lms")

	rotated, err := f.auth.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)

	// replaying the rotated token ends the whole family
	_, err = f.auth.Refresh(context.Background(), first.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))

	for _, raw := range []string{rotated.RefreshToken, laptop.RefreshToken} {
		_, err := f.auth.Refresh(context.Background(), raw)
		assert.True(t, apperr.Is(err, apperr.KindAuthentication))
	}

	var live int64
	require.NoError(t, f.db.Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", user.ID, false).Count(&live).Error)
	assert.Zero(t, live)

	// other users keep their sessions
	_, err = f.auth.Refresh(context.Background(), bystander.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	testsupport.User(t, f.db, f.tenant, "student@demo.lms")
	pair := f.login(t, testsupport.Ctx(f.tenant), "student@demo.lms")

	f.auth.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, err := f.auth.Refresh(context.Background(), pair.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))
}

func TestLogoutRevokesAccessAndRefreshTokens(t *testing.T) {
	f := newAuthFixture(t)
	testsupport.User(t, f.db, f.tenant, "student@demo.lms")
	ctx := testsupport.Ctx(f.tenant)
	pair := f.login(t, ctx, "student@demo.lms")
	claims := f.claims(t, pair)

	revoked, err := f.auth.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, f.auth.Logout(ctx, claims))

	revoked, err = f.auth.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = f.auth.Refresh(context.Background(), pair.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))
}

func TestRegisterConsumesStudentQuota(t *testing.T) {
	f := newAuthFixture(t)
	sub := testsupport.Subscribe(t, f.db, f.tenant, map[string]int64{model.QuotaMaxStudents: 1})
	ctx := testsupport.Ctx(f.tenant)

	pair, err := f.auth.Register(ctx, RegisterInput{Name: " New Student ", Email: "New@Demo.lms", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "new@demo.lms", pair.User.Email)
	assert.Equal(t, "New Student", pair.User.Name)
	assert.Equal(t, []string{"student"}, f.claims(t, pair).Roles)

	var usage model.SubscriptionUsage
	require.NoError(t, f.db.Where("subscription_id = ? AND quota_name = ?", sub.ID, model.QuotaMaxStudents).First(&usage).Error)
	assert.Equal(t, int64(1), usage.CurrentUsage)

	_, err = f.auth.Register(ctx, RegisterInput{Name: "Dup", Email: "new@demo.lms", Password: "secret123"})
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Contains(t, appErr.Fields, "email")

	_, err = f.auth.Register(ctx, RegisterInput{Name: "Late", Email: "late@demo.lms", Password: "secret123"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	var users int64
	require.NoError(t, f.db.WithContext(ctx).Model(&model.User{}).Count(&users).Error)
	assert.Equal(t, int64(1), users)
}

func TestRegisterRequiresSubscription(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.auth.Register(testsupport.Ctx(f.tenant), RegisterInput{Name: "A", Email: "a@demo.lms", Password: "secret123"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestRegisterHonoursSelfRegistrationSwitch(t *testing.T) {
	f := newAuthFixture(t)
	testsupport.Subscribe(t, f.db, f.tenant, map[string]int64{model.QuotaMaxStudents: 10})
	settings := model.DefaultTenantSettings()
	settings.Features.SelfRegistration = false
	f.tenant.Settings = datatypes.NewJSONType(settings)

	_, err := f.auth.Register(testsupport.Ctx(f.tenant), RegisterInput{Name: "A", Email: "a@demo.lms", Password: "secret123"})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestMeListsPermissions(t *testing.T) {
	f := newAuthFixture(t)
	testsupport.User(t, f.db, f.tenant, "tutor@demo.lms", rbac.RoleInstructor)
	ctx := testsupport.Ctx(f.tenant)
	pair := f.login(t, ctx, "tutor@demo.lms")

	me, err := f.auth.Me(ctx, f.claims(t, pair))
	require.NoError(t, err)
	assert.Equal(t, []string{"instructor"}, me.Roles)
	assert.Contains(t, me.Permissions, string(rbac.PermCourseCreate))
	assert.NotContains(t, me.Permissions, string(rbac.PermUserImpersonate))
	assert.Equal(t, f.tenant.ID, me.Tenant.ID)
}

func TestImpersonation(t *testing.T) {
	f := newAuthFixture(t)
	platform := testsupport.Tenant(t, f.db, "platform")
	admin := testsupport.User(t, f.db, platform, "root@lms.test", rbac.RoleSuperAdmin)
	otherAdmin := testsupport.User(t, f.db, platform, "root2@lms.test", rbac.RoleSuperAdmin)
	tenantAdmin := testsupport.User(t, f.db, f.tenant, "admin@demo.lms", rbac.RoleTenantAdmin)
	student := testsupport.User(t, f.db, f.tenant, "student@demo.lms")

	adminClaims := f.claims(t, f.login(t, testsupport.Ctx(platform), "root@lms.test"))
	ctx := context.Background()

	t.Run("requires super admin", func(t *testing.T) {
		actor := f.claims(t, f.login(t, testsupport.Ctx(f.tenant), "admin@demo.lms"))
		_, err := f.auth.Impersonate(ctx, actor, student.ID)
		assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	})

	t.Run("refuses self and other super admins", func(t *testing.T) {
		_, err := f.auth.Impersonate(ctx, adminClaims, admin.ID)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		_, err = f.auth.Impersonate(ctx, adminClaims, otherAdmin.ID)
		assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	})

	t.Run("issues a marked session in the target tenant", func(t *testing.T) {
		pair, err := f.auth.Impersonate(ctx, adminClaims, student.ID)
		require.NoError(t, err)
		require.NotNil(t, pair.ImpersonatorID)
		assert.Equal(t, admin.ID, *pair.ImpersonatorID)

		claims := f.claims(t, pair)
		assert.Equal(t, student.ID, claims.UserID)
		require.NotNil(t, claims.TenantID)
		assert.Equal(t, f.tenant.ID, *claims.TenantID)
		require.NotNil(t, claims.ImpersonatorID)

		var stored model.RefreshToken
		require.NoError(t, f.db.Where("token_hash = ?", model.HashToken(pair.RefreshToken)).First(&stored).Error)
		assert.Equal(t, f.tenant.ID, stored.TenantID)

		refreshed, err := f.auth.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.NotNil(t, refreshed.ImpersonatorID)
		assert.Equal(t, admin.ID, *refreshed.ImpersonatorID)

		_, err = f.auth.Impersonate(ctx, claims, tenantAdmin.ID)
		assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.auth.Impersonate(ctx, adminClaims, 9999)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}
