package tenancy

import (
	"context"
	"errors"
	"strconv"

	"github.com/sanukhandev/lms-be-core/internal/model"
	"gorm.io/gorm"
)

// Directory looks tenants up by their public identifiers
type Directory interface {
	ByDomain(ctx context.Context, host string) (*model.Tenant, error)
	ByIdentifier(ctx context.Context, ident string) (*model.Tenant, error)
	ByID(ctx context.Context, id uint) (*model.Tenant, error)
}

// GormDirectory reads tenants from the relational store
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates a Directory backed by db
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// ByDomain matches a custom domain exactly
func (d *GormDirectory) ByDomain(ctx context.Context, host string) (*model.Tenant, error) {
	var t model.Tenant
	if err := d.db.WithContext(ctx).Where("domain = ?", host).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ByIdentifier accepts a numeric id or a slug
func (d *GormDirectory) ByIdentifier(ctx context.Context, ident string) (*model.Tenant, error) {
	if id, err := strconv.ParseUint(ident, 10, 64); err == nil {
		return d.ByID(ctx, uint(id))
	}
	var t model.Tenant
	if err := d.db.WithContext(ctx).Where("slug = ?", ident).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ByID loads a tenant by primary key
func (d *GormDirectory) ByID(ctx context.Context, id uint) (*model.Tenant, error) {
	var t model.Tenant
	if err := d.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ErrUnknownTenant is returned when no tenant matches
var ErrUnknownTenant = errors.New("tenant not found")

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUnknownTenant
	}
	return err
}
