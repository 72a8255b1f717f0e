package model

import (
	"time"

	"github.com/sanukhandev/lms-be-core/internal/rbac"
	"gorm.io/gorm"
)

// User belongs to exactly one tenant; email is unique within that tenant only
type User struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    uint           `json:"tenant_id" gorm:"uniqueIndex:idx_users_tenant_email;not null"`
	Tenant      *Tenant        `json:"tenant,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Name        string         `json:"name" gorm:"type:varchar(255);not null"`
	Email       string         `json:"email" gorm:"type:varchar(255);uniqueIndex:idx_users_tenant_email;not null"`
	Password    string         `json:"-" gorm:"type:varchar(255);not null"`
	Phone       *string        `json:"phone" gorm:"type:varchar(20)"`
	Bio         *string        `json:"bio" gorm:"type:text"`
	AvatarURL   *string        `json:"avatar_url" gorm:"type:varchar(500)"`
	DateOfBirth *time.Time     `json:"date_of_birth" gorm:"type:date"`
	Gender      *string        `json:"gender" gorm:"type:varchar(20)"`
	Country     *string        `json:"country" gorm:"type:varchar(100)"`
	Timezone    string         `json:"timezone" gorm:"type:varchar(50);default:'UTC'"`
	Language    string         `json:"language" gorm:"type:varchar(5);default:'en'"`
	IsActive    bool           `json:"is_active" gorm:"not null;default:true"`
	LastLoginAt *time.Time     `json:"last_login_at"`
	Roles       []UserRole     `json:"roles,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// UserRole grants one role to a user inside the user's tenant
type UserRole struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	TenantID  uint      `json:"-" gorm:"index;not null"`
	Tenant    *Tenant   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	UserID    uint      `json:"-" gorm:"uniqueIndex:idx_user_role;not null"`
	Role      rbac.Role `json:"role" gorm:"type:varchar(30);uniqueIndex:idx_user_role;not null"`
	CreatedAt time.Time `json:"-"`
}

// RoleList returns the roles loaded on the user
func (u *User) RoleList() []rbac.Role {
	roles := make([]rbac.Role, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.Role)
	}
	return roles
}

// HasRole reports whether the loaded roles include role
func (u *User) HasRole(role rbac.Role) bool {
	for _, r := range u.Roles {
		if r.Role == role {
			return true
		}
	}
	return false
}
