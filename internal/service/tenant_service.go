package service

import (
	"context"
	"fmt"

	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Providers lists every integration a tenant can configure
var Providers = []model.IntegrationProvider{
	model.ProviderStrapi,
	model.ProviderVimeo,
	model.ProviderS3,
	model.ProviderOpenAI,
	model.ProviderStripe,
}

// TenantService reads and updates the acting tenant's configuration
type TenantService struct {
	db *gorm.DB
}

// NewTenantService creates a tenant service
func NewTenantService(db *gorm.DB) *TenantService {
	return &TenantService{db: db}
}

func currentTenant(ctx context.Context) (*model.Tenant, error) {
	t, ok := tenancy.FromContext(ctx)
	if !ok {
		return nil, tenancy.ErrNotIdentified
	}
	return t, nil
}

// Settings returns the acting tenant as stored
func (s *TenantService) Settings(ctx context.Context) (*model.Tenant, error) {
	t, err := currentTenant(ctx)
	if err != nil {
		return nil, err
	}
	var fresh model.Tenant
	if err := s.db.WithContext(ctx).First(&fresh, t.ID).Error; err != nil {
		return nil, notFoundOr(err, "Tenant not found")
	}
	return &fresh, nil
}

// UpdateSettings replaces the acting tenant's settings
func (s *TenantService) UpdateSettings(ctx context.Context, settings model.TenantSettings) (*model.Tenant, error) {
	t, err := currentTenant(ctx)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(&model.Tenant{}).
		Where("id = ?", t.ID).
		Update("settings", datatypes.NewJSONType(settings)).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return s.Settings(ctx)
}

// IntegrationStatus tells whether a provider is configured
type IntegrationStatus struct {
	Provider   model.IntegrationProvider `json:"provider"`
	Configured bool                      `json:"configured"`
}

// Integrations reports every known provider for the acting tenant
func (s *TenantService) Integrations(ctx context.Context) ([]IntegrationStatus, error) {
	if _, err := currentTenant(ctx); err != nil {
		return nil, err
	}
	var rows []model.TenantIntegration
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load integrations: %w", err)
	}
	enabled := make(map[model.IntegrationProvider]bool, len(rows))
	for _, r := range rows {
		enabled[r.Provider] = len(r.Config) > 0
	}

	out := make([]IntegrationStatus, 0, len(Providers))
	for _, p := range Providers {
		out = append(out, IntegrationStatus{Provider: p, Configured: enabled[p]})
	}
	return out, nil
}

// IsConfigured reports whether the acting tenant enabled provider with a
// non-empty configuration
func (s *TenantService) IsConfigured(ctx context.Context, provider model.IntegrationProvider) (bool, error) {
	if _, ok := tenancy.FromContext(ctx); !ok {
		return false, nil
	}
	var row model.TenantIntegration
	err := s.db.WithContext(ctx).
		Where("provider = ? AND enabled = ?", provider, true).
		Limit(1).Find(&row).Error
	if err != nil {
		return false, fmt.Errorf("failed to load integration: %w", err)
	}
	return row.ID != 0 && len(row.Config) > 0, nil
}
