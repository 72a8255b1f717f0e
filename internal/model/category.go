package model

import (
	"time"

	"gorm.io/gorm"
)

// Category groups courses; categories nest through ParentID
type Category struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	TenantID     uint           `json:"tenant_id" gorm:"uniqueIndex:idx_categories_tenant_slug;not null"`
	Tenant       *Tenant        `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	ParentID     *uint          `json:"parent_id" gorm:"index"`
	Parent       *Category      `json:"parent,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	Name         string         `json:"name" gorm:"type:varchar(255);not null"`
	Slug         string         `json:"slug" gorm:"type:varchar(255);uniqueIndex:idx_categories_tenant_slug;not null"`
	Description  string         `json:"description" gorm:"type:text"`
	Icon         string         `json:"icon" gorm:"type:varchar(100)"`
	Level        int            `json:"level" gorm:"not null;default:1"`
	SortOrder    int            `json:"sort_order" gorm:"not null;default:0"`
	IsActive     bool           `json:"is_active" gorm:"not null;default:true"`
	Children     []Category     `json:"children,omitempty" gorm:"foreignKey:ParentID"`
	CoursesCount int64          `json:"courses_count" gorm:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}
