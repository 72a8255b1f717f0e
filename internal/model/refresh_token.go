package model

import (
	"time"

	"gorm.io/gorm"
)

// RefreshToken is an opaque, rotating credential used to mint new access tokens
type RefreshToken struct {
	ID        string    `gorm:"primaryKey;type:varchar(40)" json:"id"`
	TokenHash string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	TenantID  uint      `gorm:"index;not null" json:"tenant_id"`
	Tenant    *Tenant   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	Revoked   bool      `gorm:"default:false" json:"revoked"`
	// set when the session was started by a super admin acting as the user
	ImpersonatorID *uint     `gorm:"index" json:"impersonator_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BeforeCreate assigns the public id
func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = generateSecureID("ref_")
	}
	return nil
}

// IsExpired checks if the token is expired
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
