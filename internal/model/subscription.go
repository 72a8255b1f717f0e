package model

import (
	"time"

	"gorm.io/gorm"
)

// Quota names understood by the quota service
const (
	QuotaMaxCourses  = "max_courses"
	QuotaMaxStudents = "max_students"
	QuotaStorageGB   = "storage_gb"
	QuotaBandwidthGB = "bandwidth_gb"
)

// Unlimited is the quota ceiling that never trips
const Unlimited = -1

// Package is a priced tier shared by every tenant
type Package struct {
	ID           uint             `json:"id" gorm:"primaryKey"`
	Name         string           `json:"name" gorm:"type:varchar(100);not null"`
	Slug         string           `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description  string           `json:"description" gorm:"type:text"`
	Price        float64          `json:"price" gorm:"type:decimal(10,2);default:0"`
	Currency     string           `json:"currency" gorm:"type:varchar(3);default:'USD'"`
	BillingCycle string           `json:"billing_cycle" gorm:"type:varchar(20);default:'monthly'"`
	IsActive     bool             `json:"is_active" gorm:"default:true"`
	Features     []PackageFeature `json:"features,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Quotas       []PackageQuota   `json:"quotas,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	DeletedAt    gorm.DeletedAt   `json:"-" gorm:"index"`
}

// QuotaLimit returns the ceiling for name and whether the package defines one
func (p *Package) QuotaLimit(name string) (int64, bool) {
	for _, q := range p.Quotas {
		if q.QuotaName == name {
			return q.QuotaLimit, true
		}
	}
	return 0, false
}

// HasFeature reports whether the package enables a named feature
func (p *Package) HasFeature(name string) bool {
	for _, f := range p.Features {
		if f.FeatureName == name {
			return f.Enabled
		}
	}
	return false
}

// PackageFeature is a named boolean or valued capability of a package
type PackageFeature struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	PackageID   uint   `json:"package_id" gorm:"uniqueIndex:idx_package_feature;not null"`
	FeatureName string `json:"feature_name" gorm:"type:varchar(100);uniqueIndex:idx_package_feature;not null"`
	Enabled     bool   `json:"enabled" gorm:"default:true"`
	Value       string `json:"value,omitempty" gorm:"type:varchar(255)"`
}

// PackageQuota is a named numeric ceiling; -1 means unlimited
type PackageQuota struct {
	ID               uint   `json:"id" gorm:"primaryKey"`
	PackageID        uint   `json:"package_id" gorm:"uniqueIndex:idx_package_quota;not null"`
	QuotaName        string `json:"quota_name" gorm:"type:varchar(100);uniqueIndex:idx_package_quota;not null"`
	QuotaDescription string `json:"quota_description" gorm:"type:varchar(255)"`
	QuotaLimit       int64  `json:"quota_limit" gorm:"not null"`
	QuotaUnit        string `json:"quota_unit" gorm:"type:varchar(20)"`
}

// IsUnlimited reports whether the ceiling never trips
func (q *PackageQuota) IsUnlimited() bool {
	return q.QuotaLimit == Unlimited
}

// SubscriptionStatus is the billing state of a subscription
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Subscription ties a tenant to a package and carries usage counters
type Subscription struct {
	ID                 uint                `json:"id" gorm:"primaryKey"`
	TenantID           uint                `json:"tenant_id" gorm:"index;not null"`
	Tenant             *Tenant             `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	PackageID          uint                `json:"package_id" gorm:"index;not null"`
	Package            *Package            `json:"package,omitempty"`
	Status             SubscriptionStatus  `json:"status" gorm:"type:varchar(20);index;not null"`
	Amount             float64             `json:"amount" gorm:"type:decimal(10,2);default:0"`
	Currency           string              `json:"currency" gorm:"type:varchar(3);default:'USD'"`
	TrialEndsAt        *time.Time          `json:"trial_ends_at"`
	CurrentPeriodStart *time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time          `json:"current_period_end"`
	CancelledAt        *time.Time          `json:"cancelled_at"`
	ExpiresAt          *time.Time          `json:"expires_at"`
	Usage              []SubscriptionUsage `json:"usage,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	DeletedAt          gorm.DeletedAt      `json:"-" gorm:"index"`
}

// IsCurrent reports whether the subscription grants access at now
func (s *Subscription) IsCurrent(now time.Time) bool {
	switch s.Status {
	case SubscriptionActive:
		return s.ExpiresAt == nil || s.ExpiresAt.After(now)
	case SubscriptionTrialing:
		return s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
	}
	return false
}

// SubscriptionUsage is the monotonic usage counter for one quota
type SubscriptionUsage struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	TenantID       uint      `json:"tenant_id" gorm:"index;not null"`
	Tenant         *Tenant   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	SubscriptionID uint      `json:"subscription_id" gorm:"uniqueIndex:idx_subscription_quota;not null"`
	QuotaName      string    `json:"quota_name" gorm:"type:varchar(100);uniqueIndex:idx_subscription_quota;not null"`
	CurrentUsage   int64     `json:"current_usage" gorm:"not null;default:0"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
}
