package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TenantStatus is the lifecycle state of a tenant
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// Tenant is an isolated customer organisation and the root of every other
// aggregate except the package catalog.
type Tenant struct {
	ID        uint                               `json:"id" gorm:"primaryKey"`
	Slug      string                             `json:"slug" gorm:"type:varchar(63);uniqueIndex;not null"`
	Name      string                             `json:"name" gorm:"type:varchar(255);not null"`
	Domain    *string                            `json:"domain,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	Status    TenantStatus                       `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	Settings  datatypes.JSONType[TenantSettings] `json:"settings"`
	CreatedAt time.Time                          `json:"created_at"`
	UpdatedAt time.Time                          `json:"updated_at"`
	DeletedAt gorm.DeletedAt                     `json:"-" gorm:"index"`
}

// IsActive reports whether the tenant may serve requests
func (t *Tenant) IsActive() bool {
	return t.Status == TenantActive
}

// TenantSettings is the typed per-tenant configuration surface
type TenantSettings struct {
	Branding TenantBranding `json:"branding"`
	Locale   TenantLocale   `json:"locale"`
	Features TenantFeatures `json:"features"`
}

// TenantBranding controls the look of tenant-facing pages and mails
type TenantBranding struct {
	DisplayName    string `json:"display_name,omitempty" validate:"omitempty,max=255"`
	LogoURL        string `json:"logo_url,omitempty" validate:"omitempty,url"`
	PrimaryColor   string `json:"primary_color,omitempty" validate:"omitempty,hexcolor"`
	SecondaryColor string `json:"secondary_color,omitempty" validate:"omitempty,hexcolor"`
	SupportEmail   string `json:"support_email,omitempty" validate:"omitempty,email"`
}

// TenantLocale holds defaults applied to new users
type TenantLocale struct {
	Timezone string `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Language string `json:"language,omitempty" validate:"omitempty,max=5"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// TenantFeatures are tenant-level switches layered on top of package features
type TenantFeatures struct {
	SelfRegistration bool `json:"self_registration"`
	Certificates     bool `json:"certificates"`
	CompletionEmails bool `json:"completion_emails"`
}

// DefaultTenantSettings is applied to tenants created without settings
func DefaultTenantSettings() TenantSettings {
	return TenantSettings{
		Locale: TenantLocale{Timezone: "UTC", Language: "en", Currency: "USD"},
		Features: TenantFeatures{
			SelfRegistration: true,
			Certificates:     true,
			CompletionEmails: true,
		},
	}
}

// IntegrationProvider names an external collaborator a tenant can configure
type IntegrationProvider string

const (
	ProviderStrapi IntegrationProvider = "strapi"
	ProviderVimeo  IntegrationProvider = "vimeo"
	ProviderS3     IntegrationProvider = "s3"
	ProviderOpenAI IntegrationProvider = "openai"
	ProviderStripe IntegrationProvider = "stripe"
)

// TenantIntegration records that a tenant configured an external service.
// Config is provider specific and deliberately untyped.
type TenantIntegration struct {
	ID        uint                `json:"id" gorm:"primaryKey"`
	TenantID  uint                `json:"tenant_id" gorm:"uniqueIndex:idx_tenant_provider;not null"`
	Tenant    *Tenant             `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Provider  IntegrationProvider `json:"provider" gorm:"type:varchar(30);uniqueIndex:idx_tenant_provider;not null"`
	Enabled   bool                `json:"enabled" gorm:"default:true"`
	Config    datatypes.JSONMap   `json:"-"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}
