package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey string
	TTL        time.Duration
}

// UserClaims represents the JWT claims for user authentication
type UserClaims struct {
	Email          string   `json:"email"`
	UserID         uint     `json:"user_id"`
	TenantID       *uint    `json:"tenant_id,omitempty"`
	TenantSlug     string   `json:"tenant_slug,omitempty"`
	Role           string   `json:"role,omitempty"`  // primary role name
	Roles          []string `json:"roles,omitempty"` // every role held in the tenant
	ImpersonatorID *uint    `json:"impersonator_id,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry the given role name
func (c *UserClaims) HasRole(role string) bool {
	if c.Role == role {
		return true
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Subject describes who a token is issued for
type Subject struct {
	Email          string
	UserID         uint
	TenantID       *uint
	TenantSlug     string
	Roles          []string
	ImpersonatorID *uint
}

// JWTUtil is a utility for JWT token operations
type JWTUtil struct {
	config *JWTConfig
	now    func() time.Time
}

// NewJWTUtil creates a new JWT utility with the given configuration
func NewJWTUtil(config *JWTConfig) *JWTUtil {
	return &JWTUtil{
		config: config,
		now:    time.Now,
	}
}

// TTL returns the configured access token lifetime
func (j *JWTUtil) TTL() time.Duration {
	return j.config.TTL
}

// GenerateToken creates a signed token for the subject and returns it with its claims
func (j *JWTUtil) GenerateToken(sub Subject) (string, *UserClaims, error) {
	if j.config == nil {
		return "", nil, errors.New("JWT configuration not provided")
	}

	now := j.now()
	claims := &UserClaims{
		Email:          sub.Email,
		UserID:         sub.UserID,
		TenantID:       sub.TenantID,
		TenantSlug:     sub.TenantSlug,
		Roles:          sub.Roles,
		ImpersonatorID: sub.ImpersonatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprintf("%d", sub.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if len(sub.Roles) > 0 {
		claims.Role = sub.Roles[0]
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.config.SigningKey))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ValidateToken validates and parses the JWT token
func (j *JWTUtil) ValidateToken(tokenString string) (*UserClaims, error) {
	if j.config == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(j.config.SigningKey), nil
		},
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
