package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	util := NewJWTUtil(&JWTConfig{SigningKey: "secret", TTL: time.Hour})
	tenantID := uint(7)

	token, issued, err := util.GenerateToken(Subject{
		Email:      "student@demo.lms",
		UserID:     42,
		TenantID:   &tenantID,
		TenantSlug: "demo",
		Roles:      []string{"student", "instructor"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)

	claims, err := util.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	require.NotNil(t, claims.TenantID)
	assert.Equal(t, tenantID, *claims.TenantID)
	assert.Equal(t, "student", claims.Role)
	assert.True(t, claims.HasRole("instructor"))
	assert.False(t, claims.HasRole("super_admin"))
	assert.Nil(t, claims.ImpersonatorID)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	issuer := NewJWTUtil(&JWTConfig{SigningKey: "one", TTL: time.Hour})
	verifier := NewJWTUtil(&JWTConfig{SigningKey: "two", TTL: time.Hour})

	token, _, err := issuer.GenerateToken(Subject{UserID: 1})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	util := NewJWTUtil(&JWTConfig{SigningKey: "secret", TTL: time.Minute})
	util.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := util.GenerateToken(Subject{UserID: 1})
	require.NoError(t, err)

	_, err = util.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	util := NewJWTUtil(&JWTConfig{SigningKey: "secret", TTL: time.Hour})

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &UserClaims{UserID: 1})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = util.ValidateToken(token)
	assert.Error(t, err)
}
