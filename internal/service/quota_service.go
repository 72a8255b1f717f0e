package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// nearLimitPercent marks a quota as close to its ceiling
const nearLimitPercent = 80

// ErrNoSubscription is returned for quota-gated actions of tenants without a
// current subscription
var ErrNoSubscription = apperr.Conflict("No active subscription. Please subscribe to a package to continue.")

// QuotaService checks and consumes package quotas
type QuotaService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewQuotaService creates a quota service
func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{db: db, now: time.Now}
}

// Exceeded reports whether usage has reached a defined, finite ceiling
func Exceeded(limit int64, defined bool, usage int64) bool {
	if !defined || limit == model.Unlimited {
		return false
	}
	return usage >= limit
}

// ActiveSubscription returns the tenant's current subscription with its
// package quotas and features, or nil when there is none. db may be a
// transaction.
func (s *QuotaService) ActiveSubscription(ctx context.Context, db *gorm.DB, tenantID uint) (*model.Subscription, error) {
	if db == nil {
		db = s.db
	}
	var subs []model.Subscription
	err := db.WithContext(ctx).
		Preload("Package.Quotas").
		Preload("Package.Features").
		Where("tenant_id = ? AND status IN ?", tenantID, []model.SubscriptionStatus{model.SubscriptionActive, model.SubscriptionTrialing}).
		Order("created_at DESC, id DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	now := s.now()
	for i := range subs {
		if subs[i].IsCurrent(now) && subs[i].Package != nil {
			return &subs[i], nil
		}
	}
	return nil, nil
}

func (s *QuotaService) usage(ctx context.Context, db *gorm.DB, subscriptionID uint, quotaName string) (int64, error) {
	var row model.SubscriptionUsage
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND quota_name = ?", subscriptionID, quotaName).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.CurrentUsage, nil
}

// IsQuotaExceeded reports whether the tenant may not perform another action
// counted against quotaName. Tenants without a subscription are always over.
func (s *QuotaService) IsQuotaExceeded(ctx context.Context, tenantID uint, quotaName string) (bool, error) {
	sub, err := s.ActiveSubscription(ctx, s.db, tenantID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return true, nil
	}

	limit, defined := sub.Package.QuotaLimit(quotaName)
	if !defined || limit == model.Unlimited {
		return false, nil
	}
	usage, err := s.usage(ctx, s.db, sub.ID, quotaName)
	if err != nil {
		return false, err
	}
	return Exceeded(limit, defined, usage), nil
}

// Consume checks quotaName and increments its usage counter inside tx. The
// usage row is locked for the rest of the transaction so concurrent consumers
// serialise on it. A refused consume returns a Conflict; the caller's
// transaction must then roll back.
func (s *QuotaService) Consume(ctx context.Context, tx *gorm.DB, tenantID uint, quotaName string) error {
	sub, err := s.ActiveSubscription(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	if sub == nil {
		prometheus.RecordQuotaRejection(quotaName)
		return ErrNoSubscription
	}

	now := s.now()
	seed := model.SubscriptionUsage{TenantID: tenantID, SubscriptionID: sub.ID, QuotaName: quotaName, LastUpdatedAt: now}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("failed to initialise usage: %w", err)
	}

	var row model.SubscriptionUsage
	err = tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("subscription_id = ? AND quota_name = ?", sub.ID, quotaName).
		First(&row).Error
	if err != nil {
		return fmt.Errorf("failed to lock usage: %w", err)
	}

	limit, defined := sub.Package.QuotaLimit(quotaName)
	if Exceeded(limit, defined, row.CurrentUsage) {
		prometheus.RecordQuotaRejection(quotaName)
		return apperr.Conflict(fmt.Sprintf("Quota exceeded for %s. Please upgrade your package.", quotaName))
	}

	err = tx.WithContext(ctx).Model(&model.SubscriptionUsage{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"current_usage":   gorm.Expr("current_usage + 1"),
			"last_updated_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// QuotaStatus is one line of the usage report. Remaining is -1 for unlimited
// quotas.
type QuotaStatus struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	Limit       int64   `json:"limit"`
	Usage       int64   `json:"usage"`
	Remaining   int64   `json:"remaining"`
	Percentage  float64 `json:"percentage"`
	NearLimit   bool    `json:"near_limit"`
	Unlimited   bool    `json:"unlimited"`
}

// QuotaReport summarises the tenant's subscription
type QuotaReport struct {
	Package      string                   `json:"package"`
	Status       model.SubscriptionStatus `json:"status"`
	ExpiresAt    *time.Time               `json:"expires_at"`
	Quotas       []QuotaStatus            `json:"quotas"`
	Features     []string                 `json:"features"`
	Subscription *model.Subscription      `json:"-"`
}

// Report lists limit, usage and headroom for each quota of the package
func (s *QuotaService) Report(ctx context.Context, tenantID uint) (*QuotaReport, error) {
	sub, err := s.ActiveSubscription(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperr.NotFound("No active subscription found.")
	}

	var rows []model.SubscriptionUsage
	if err := s.db.WithContext(ctx).Where("subscription_id = ?", sub.ID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	usage := make(map[string]int64, len(rows))
	for _, r := range rows {
		usage[r.QuotaName] = r.CurrentUsage
	}

	report := &QuotaReport{
		Package:      sub.Package.Name,
		Status:       sub.Status,
		ExpiresAt:    sub.ExpiresAt,
		Quotas:       make([]QuotaStatus, 0, len(sub.Package.Quotas)),
		Features:     []string{},
		Subscription: sub,
	}
	for _, q := range sub.Package.Quotas {
		st := QuotaStatus{
			Name:        q.QuotaName,
			Description: q.QuotaDescription,
			Unit:        q.QuotaUnit,
			Limit:       q.QuotaLimit,
			Usage:       usage[q.QuotaName],
			Unlimited:   q.IsUnlimited(),
		}
		if st.Unlimited {
			st.Remaining = model.Unlimited
		} else {
			st.Remaining = st.Limit - st.Usage
			if st.Remaining < 0 {
				st.Remaining = 0
			}
			if st.Limit > 0 {
				st.Percentage = math.Round(float64(st.Usage)*10000/float64(st.Limit)) / 100
			} else {
				st.Percentage = 100
			}
			st.NearLimit = st.Percentage >= nearLimitPercent
		}
		report.Quotas = append(report.Quotas, st)
	}
	for _, f := range sub.Package.Features {
		if f.Enabled {
			report.Features = append(report.Features, f.FeatureName)
		}
	}
	return report, nil
}

// HasFeature reports whether the tenant's package enables feature
func (s *QuotaService) HasFeature(ctx context.Context, tenantID uint, feature string) (bool, error) {
	sub, err := s.ActiveSubscription(ctx, s.db, tenantID)
	if err != nil || sub == nil {
		return false, err
	}
	return sub.Package.HasFeature(feature), nil
}
