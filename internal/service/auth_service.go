package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/rbac"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/sanukhandev/lms-be-core/pkg/jwtutil"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"github.com/sanukhandev/lms-be-core/pkg/tracing"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	errInvalidCredentials = apperr.Authentication("The provided credentials are incorrect.")
	errInactiveAccount    = apperr.Authentication("Your account is inactive. Please contact support.")
	errTenantSuspended    = apperr.Authorization("This tenant is currently suspended.")
	errInvalidRefresh     = apperr.Authentication("The refresh token is invalid or has expired.")
)

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// burnPasswordCheck spends the same bcrypt work as a real check so unknown
// emails cannot be told apart by response time
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// RevocationStore remembers revoked access token ids
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenPair is the session handed to a client after login
type TokenPair struct {
	AccessToken    string        `json:"access_token"`
	TokenType      string        `json:"token_type"`
	ExpiresIn      int           `json:"expires_in"`
	RefreshToken   string        `json:"refresh_token"`
	User           *model.User   `json:"user"`
	Tenant         *model.Tenant `json:"tenant"`
	ImpersonatorID *uint         `json:"impersonator_id,omitempty"`
}

// LoginInput are the credentials of a login attempt
type LoginInput struct {
	Email    string
	Password string
}

// RegisterInput is a self-registration request
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    *string
}

// Me describes the authenticated principal
type Me struct {
	User           *model.User   `json:"user"`
	Tenant         *model.Tenant `json:"tenant"`
	Roles          []string      `json:"roles"`
	Permissions    []string      `json:"permissions"`
	ImpersonatorID *uint         `json:"impersonator_id,omitempty"`
}

// AuthService issues and revokes sessions
type AuthService struct {
	db          *gorm.DB
	jwt         *jwtutil.JWTUtil
	refreshTTL  time.Duration
	quotas      *QuotaService
	revocations RevocationStore
	now         func() time.Time
}

// NewAuthService creates the auth service
func NewAuthService(db *gorm.DB, jwt *jwtutil.JWTUtil, refreshTTL time.Duration, quotas *QuotaService, revocations RevocationStore) *AuthService {
	return &AuthService{
		db:          db,
		jwt:         jwt,
		refreshTTL:  refreshTTL,
		quotas:      quotas,
		revocations: revocations,
		now:         time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) loadTenant(ctx context.Context, id uint) (*model.Tenant, error) {
	var t model.Tenant
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	return &t, nil
}

// Authenticate checks credentials. With a tenant in ctx the lookup is scoped
// to it; without one the email alone decides.
func (s *AuthService) Authenticate(ctx context.Context, in LoginInput) (*TokenPair, error) {
	ctx, span := tracing.Tracer().Start(ctx, "auth.authenticate")
	defer span.End()

	log := logger.FromContext(ctx)
	prometheus.LoginCounter.Inc()
	email := normalizeEmail(in.Email)

	var user model.User
	err := func() error {
		defer prometheus.TrackDBOperation("query")(time.Now())
		return s.db.WithContext(ctx).Preload("Roles").Where("email = ?", email).Order("id ASC").First(&user).Error
	}()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		burnPasswordCheck(in.Password)
		prometheus.RecordAuthError("invalid_credentials")
		log.Info("Login failed", zap.String("reason", "unknown_email"))
		return nil, errInvalidCredentials
	}
	if err != nil {
		log.Error("Failed to load user", zap.Error(err))
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)) != nil {
		prometheus.RecordAuthError("invalid_credentials")
		log.Info("Login failed", zap.String("reason", "wrong_password"), zap.Uint("user_id", user.ID))
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		prometheus.RecordAuthError("inactive_account")
		return nil, errInactiveAccount
	}

	tenant, err := s.loadTenant(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive() {
		prometheus.RecordAuthError("tenant_suspended")
		return nil, errTenantSuspended
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Update("last_login_at", now).Error; err != nil {
		log.Warn("Failed to stamp last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now

	pair, err := s.issue(ctx, &user, tenant, nil)
	if err != nil {
		return nil, err
	}
	log.Info("User logged in", zap.Uint("user_id", user.ID), zap.Uint("tenant_id", tenant.ID))
	return pair, nil
}

// Register creates a student in the acting tenant and logs them in
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*TokenPair, error) {
	log := logger.FromContext(ctx)
	tenant, err := currentTenant(ctx)
	if err != nil {
		return nil, err
	}
	if !tenant.Settings.Data().Features.SelfRegistration {
		return nil, apperr.Authorization("Self registration is disabled for this tenant.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		prometheus.RecordAuthError("password_hash_failed")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	emailTaken := apperr.FieldError("email", "The email has already been taken.")
	user := &model.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    normalizeEmail(in.Email),
		Password: string(hash),
		Phone:    in.Phone,
		IsActive: true,
		Timezone: tenant.Settings.Data().Locale.Timezone,
		Language: tenant.Settings.Data().Locale.Language,
		Roles:    []model.UserRole{{Role: rbac.RoleStudent}},
	}
	if user.Timezone == "" {
		user.Timezone = "UTC"
	}
	if user.Language == "" {
		user.Language = "en"
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&model.User{}).Where("email = ?", user.Email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return emailTaken
		}
		if err := s.quotas.Consume(ctx, tx, tenant.ID, model.QuotaMaxStudents); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return emailTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			prometheus.RecordAuthError("user_creation_failed")
			log.Error("Failed to register user", zap.Error(err))
		}
		return nil, err
	}

	prometheus.RegisterCounter.Inc()
	log.Info("User registered", zap.Uint("user_id", user.ID), zap.Uint("tenant_id", tenant.ID))
	return s.issue(ctx, user, tenant, nil)
}

// issue mints an access token and a refresh token for user
func (s *AuthService) issue(ctx context.Context, user *model.User, tenant *model.Tenant, impersonatorID *uint) (*TokenPair, error) {
	tenantID := tenant.ID
	access, _, err := s.jwt.GenerateToken(jwtutil.Subject{
		Email:          user.Email,
		UserID:         user.ID,
		TenantID:       &tenantID,
		TenantSlug:     tenant.Slug,
		Roles:          rbac.Names(user.RoleList()),
		ImpersonatorID: impersonatorID,
	})
	if err != nil {
		prometheus.RecordAuthError("token_generation_failed")
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	raw := model.GenerateSecureToken()
	refresh := &model.RefreshToken{
		TokenHash:      model.HashToken(raw),
		UserID:         user.ID,
		ExpiresAt:      s.now().Add(s.refreshTTL),
		ImpersonatorID: impersonatorID,
	}
	if err := s.db.WithContext(tenancy.WithTenant(ctx, tenant)).Create(refresh).Error; err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	prometheus.IncreaseActiveTokens()
	return &TokenPair{
		AccessToken:    access,
		TokenType:      "bearer",
		ExpiresIn:      int(s.jwt.TTL().Seconds()),
		RefreshToken:   raw,
		User:           user,
		Tenant:         tenant,
		ImpersonatorID: impersonatorID,
	}, nil
}

// Refresh exchanges a refresh token for a new pair; the presented token is
// revoked so each one works once
func (s *AuthService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	if raw == "" {
		return nil, errInvalidRefresh
	}
	now := s.now()

	var token model.RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", model.HashToken(raw)).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prometheus.RecordAuthError("invalid_refresh_token")
		return nil, errInvalidRefresh
	}
	if err != nil {
		return nil, err
	}
	if token.IsExpired(now) {
		prometheus.RecordAuthError("invalid_refresh_token")
		return nil, errInvalidRefresh
	}
	if token.Revoked {
		return nil, s.refreshReused(ctx, &token)
	}

	res := s.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("id = ? AND revoked = ?", token.ID, false).
		Update("revoked", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// a concurrent refresh rotated it first
		return nil, s.refreshReused(ctx, &token)
	}
	prometheus.DecreaseActiveTokens()

	tenant, err := s.loadTenant(ctx, token.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive() {
		return nil, errTenantSuspended
	}

	var user model.User
	err = s.db.WithContext(tenancy.WithTenant(ctx, tenant)).Preload("Roles").First(&user, token.UserID).Error
	if err != nil {
		return nil, notFoundOr(err, errInvalidRefresh.Message)
	}
	if !user.IsActive {
		return nil, errInactiveAccount
	}

	return s.issue(ctx, &user, tenant, token.ImpersonatorID)
}

// refreshReused handles a rotated refresh token being presented again. The
// token may have leaked, so every session of the user is ended.
func (s *AuthService) refreshReused(ctx context.Context, token *model.RefreshToken) error {
	log := logger.FromContext(ctx)
	prometheus.RecordAuthError("refresh_token_reuse")

	res := s.db.WithContext(tenancy.WithoutScope(ctx)).Model(&model.RefreshToken{}).
		Where("tenant_id = ? AND user_id = ? AND revoked = ?", token.TenantID, token.UserID, false).
		Update("revoked", true)
	if res.Error != nil {
		log.Error("Failed to revoke sessions after refresh token reuse", zap.String("token_id", token.ID), zap.Error(res.Error))
		return res.Error
	}
	log.Warn("Refresh token reused, sessions revoked",
		zap.String("token_id", token.ID),
		zap.Uint("user_id", token.UserID),
		zap.Uint("tenant_id", token.TenantID),
		zap.Int64("revoked", res.RowsAffected))
	return errInvalidRefresh
}

// Logout revokes the presented access token until it would expire and every
// refresh token of the user
func (s *AuthService) Logout(ctx context.Context, claims *jwtutil.UserClaims) error {
	log := logger.FromContext(ctx)

	if claims.ExpiresAt != nil {
		ttl := claims.ExpiresAt.Time.Sub(s.now())
		if err := s.revocations.Revoke(ctx, claims.ID, ttl); err != nil {
			log.Error("Failed to revoke access token", zap.Error(err))
			return err
		}
	}

	err := s.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", claims.UserID, false).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	prometheus.DecreaseActiveTokens()
	log.Info("User logged out", zap.Uint("user_id", claims.UserID))
	return nil
}

// IsRevoked reports whether the access token id was logged out
func (s *AuthService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.revocations.IsRevoked(ctx, jti)
}

// Me loads the principal described by claims
func (s *AuthService) Me(ctx context.Context, claims *jwtutil.UserClaims) (*Me, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Preload("Roles").First(&user, claims.UserID).Error; err != nil {
		return nil, notFoundOr(err, "User not found")
	}
	tenant, err := s.loadTenant(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}

	roles := user.RoleList()
	perms := map[rbac.Permission]bool{}
	for _, r := range roles {
		if r == rbac.RoleSuperAdmin {
			for _, ps := range rbac.RolePermissions {
				for _, p := range ps {
					perms[p] = true
				}
			}
			perms[rbac.PermUserImpersonate] = true
		}
		for _, p := range rbac.RolePermissions[r] {
			perms[p] = true
		}
	}
	names := make([]string, 0, len(perms))
	for p := range perms {
		names = append(names, string(p))
	}
	sort.Strings(names)

	return &Me{
		User:           &user,
		Tenant:         tenant,
		Roles:          rbac.Names(roles),
		Permissions:    names,
		ImpersonatorID: claims.ImpersonatorID,
	}, nil
}

// Impersonate lets a super admin act as another user. The issued token and
// refresh token carry the admin's id.
func (s *AuthService) Impersonate(ctx context.Context, actor *jwtutil.UserClaims, targetUserID uint) (*TokenPair, error) {
	log := logger.FromContext(ctx)
	if actor == nil || !actor.HasRole(string(rbac.RoleSuperAdmin)) {
		prometheus.RecordAuthError("impersonation_denied")
		return nil, apperr.Authorization("Only super admins can impersonate users.")
	}
	if actor.ImpersonatorID != nil {
		return nil, apperr.Authorization("Nested impersonation is not allowed.")
	}
	if targetUserID == actor.UserID {
		return nil, apperr.FieldError("user_id", "You cannot impersonate yourself.")
	}

	var target model.User
	err := s.db.WithContext(tenancy.WithoutScope(ctx)).Preload("Roles").First(&target, targetUserID).Error
	if err != nil {
		return nil, notFoundOr(err, "User not found")
	}
	if target.HasRole(rbac.RoleSuperAdmin) {
		return nil, apperr.Authorization("Cannot impersonate another super admin.")
	}
	if !target.IsActive {
		return nil, errInactiveAccount
	}
	tenant, err := s.loadTenant(ctx, target.TenantID)
	if err != nil {
		return nil, err
	}

	actorID := actor.UserID
	pair, err := s.issue(ctx, &target, tenant, &actorID)
	if err != nil {
		return nil, err
	}
	log.Info("Impersonation started",
		zap.Uint("impersonator_id", actorID),
		zap.Uint("user_id", target.ID),
		zap.Uint("tenant_id", tenant.ID))
	return pair, nil
}
