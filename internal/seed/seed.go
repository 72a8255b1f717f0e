// Package seed loads the demo catalog: packages, the demo tenant with one
// user per role, categories and published courses.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/rbac"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DemoPassword is the password of every seeded user
const DemoPassword = "password123"

const (
	DemoTenantSlug = "demo"
	DemoDomain     = "demo.lms.local"
)

type packageSpec struct {
	name, slug, description string
	price                   float64
	quotas                  map[string]int64
	features                []string
}

var packages = []packageSpec{
	{
		name: "Starter", slug: "starter", price: 29.99,
		description: "For small organizations getting started with online learning",
		quotas: map[string]int64{
			model.QuotaMaxCourses: 10, model.QuotaMaxStudents: 100,
			model.QuotaStorageGB: 5, model.QuotaBandwidthGB: 50,
		},
		features: []string{"certificates"},
	},
	{
		name: "Professional", slug: "professional", price: 79.99,
		description: "Advanced features for growing educational institutions",
		quotas: map[string]int64{
			model.QuotaMaxCourses: 50, model.QuotaMaxStudents: 1000,
			model.QuotaStorageGB: 25, model.QuotaBandwidthGB: 250,
		},
		features: []string{"certificates", "custom_branding", "advanced_analytics", "api_access"},
	},
	{
		name: "Enterprise", slug: "enterprise", price: 199.99,
		description: "Complete solution for large organizations",
		quotas: map[string]int64{
			model.QuotaMaxCourses: model.Unlimited, model.QuotaMaxStudents: model.Unlimited,
			model.QuotaStorageGB: model.Unlimited, model.QuotaBandwidthGB: model.Unlimited,
		},
		features: []string{"certificates", "custom_branding", "advanced_analytics", "api_access", "white_label"},
	},
}

var quotaUnits = map[string]string{
	model.QuotaMaxCourses:  "count",
	model.QuotaMaxStudents: "count",
	model.QuotaStorageGB:   "gb",
	model.QuotaBandwidthGB: "gb",
}

type userSpec struct {
	name, email string
	role        rbac.Role
}

var users = []userSpec{
	{"Platform Owner", "super@demo.lms", rbac.RoleSuperAdmin},
	{"Admin User", "admin@demo.lms", rbac.RoleTenantAdmin},
	{"Dr. Sarah Johnson", "instructor@demo.lms", rbac.RoleInstructor},
	{"Prof. Michael Chen", "michael.chen@demo.lms", rbac.RoleInstructor},
	{"John Doe", "student@demo.lms", rbac.RoleStudent},
	{"Jane Smith", "jane.smith@demo.lms", rbac.RoleStudent},
	{"Alex Thompson", "alex.thompson@demo.lms", rbac.RoleStudent},
}

var categories = map[string][]string{
	"Programming":  {"Web Development", "Mobile Development"},
	"Data Science": {"Machine Learning", "Data Visualization"},
	"Design":       {"UI/UX Design"},
	"Business":     {"Project Management"},
}

type courseSpec struct {
	title, slug, category string
	level                 model.CourseLevel
	price                 float64
	featured              bool
	modules               int
}

var courses = []courseSpec{
	{"Complete Web Development Bootcamp", "complete-web-development-bootcamp", "Web Development", model.LevelBeginner, 89.99, true, 3},
	{"Machine Learning with Python", "machine-learning-with-python", "Machine Learning", model.LevelIntermediate, 129.99, true, 3},
	{"UI/UX Design Fundamentals", "ui-ux-design-fundamentals", "UI/UX Design", model.LevelBeginner, 0, false, 2},
	{"React Native Mobile App Development", "react-native-mobile-app-development", "Mobile Development", model.LevelIntermediate, 99.99, false, 2},
	{"Agile Project Management with Scrum", "agile-project-management-with-scrum", "Project Management", model.LevelBeginner, 0, true, 2},
	{"Introduction to Programming", "introduction-to-programming", "Programming", model.LevelBeginner, 0, false, 2},
}

// Demo loads the demo data. It is safe to run repeatedly: packages are
// matched by slug and a demo tenant that already has users is left alone.
func Demo(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	db = db.WithContext(tenancy.WithoutScope(ctx))

	pkgs, err := seedPackages(db)
	if err != nil {
		return err
	}

	tenant := model.Tenant{}
	domain := DemoDomain
	err = db.Where(model.Tenant{Slug: DemoTenantSlug}).
		Attrs(model.Tenant{
			Name:     "Demo University",
			Domain:   &domain,
			Status:   model.TenantActive,
			Settings: datatypes.NewJSONType(model.DefaultTenantSettings()),
		}).
		FirstOrCreate(&tenant).Error
	if err != nil {
		return fmt.Errorf("failed to seed tenant: %w", err)
	}

	var existing int64
	if err := db.Model(&model.User{}).Where("tenant_id = ?", tenant.ID).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		log.Info("Demo tenant already seeded", zap.Uint("tenant_id", tenant.ID))
		return nil
	}

	tctx := tenancy.WithTenant(ctx, &tenant)
	err = db.WithContext(tctx).Transaction(func(tx *gorm.DB) error {
		sub, err := seedSubscription(tx, pkgs["professional"])
		if err != nil {
			return err
		}
		people, err := seedUsers(tx)
		if err != nil {
			return err
		}
		cats, err := seedCategories(tx)
		if err != nil {
			return err
		}
		n, err := seedCourses(tx, cats, people["instructor@demo.lms"])
		if err != nil {
			return err
		}

		students := 0
		for _, u := range users {
			if u.role == rbac.RoleStudent {
				students++
			}
		}
		now := time.Now()
		usage := []model.SubscriptionUsage{
			{TenantID: tenant.ID, SubscriptionID: sub.ID, QuotaName: model.QuotaMaxCourses, CurrentUsage: int64(n), LastUpdatedAt: now},
			{TenantID: tenant.ID, SubscriptionID: sub.ID, QuotaName: model.QuotaMaxStudents, CurrentUsage: int64(students), LastUpdatedAt: now},
		}
		return tx.Create(&usage).Error
	})
	if err != nil {
		return fmt.Errorf("failed to seed demo tenant: %w", err)
	}

	log.Info("Demo data seeded",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("domain", DemoDomain),
		zap.Int("users", len(users)),
		zap.Int("courses", len(courses)))
	return nil
}

func seedPackages(db *gorm.DB) (map[string]*model.Package, error) {
	out := make(map[string]*model.Package, len(packages))
	for _, spec := range packages {
		pkg := &model.Package{}
		err := db.Where(model.Package{Slug: spec.slug}).
			Attrs(model.Package{
				Name:         spec.name,
				Description:  spec.description,
				Price:        spec.price,
				Currency:     "USD",
				BillingCycle: "monthly",
				IsActive:     true,
			}).
			FirstOrCreate(pkg).Error
		if err != nil {
			return nil, fmt.Errorf("failed to seed package %s: %w", spec.slug, err)
		}

		for name, limit := range spec.quotas {
			q := model.PackageQuota{}
			err := db.Where(model.PackageQuota{PackageID: pkg.ID, QuotaName: name}).
				Attrs(model.PackageQuota{QuotaLimit: limit, QuotaUnit: quotaUnits[name]}).
				FirstOrCreate(&q).Error
			if err != nil {
				return nil, fmt.Errorf("failed to seed quota %s: %w", name, err)
			}
		}
		for _, name := range spec.features {
			f := model.PackageFeature{}
			err := db.Where(model.PackageFeature{PackageID: pkg.ID, FeatureName: name}).
				Attrs(model.PackageFeature{Enabled: true}).
				FirstOrCreate(&f).Error
			if err != nil {
				return nil, fmt.Errorf("failed to seed feature %s: %w", name, err)
			}
		}
		out[spec.slug] = pkg
	}
	return out, nil
}

func seedSubscription(tx *gorm.DB, pkg *model.Package) (*model.Subscription, error) {
	now := time.Now()
	end := now.AddDate(0, 1, 0)
	sub := &model.Subscription{
		PackageID:          pkg.ID,
		Status:             model.SubscriptionActive,
		Amount:             pkg.Price,
		Currency:           pkg.Currency,
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &end,
	}
	if err := tx.Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to seed subscription: %w", err)
	}
	return sub, nil
}

func seedUsers(tx *gorm.DB) (map[string]*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.User, len(users))
	for _, spec := range users {
		u := &model.User{
			Name:     spec.name,
			Email:    spec.email,
			Password: string(hash),
			IsActive: true,
			Timezone: "UTC",
			Language: "en",
			Roles:    []model.UserRole{{Role: spec.role}},
		}
		if err := tx.Create(u).Error; err != nil {
			return nil, fmt.Errorf("failed to seed user %s: %w", spec.email, err)
		}
		out[spec.email] = u
	}
	return out, nil
}

func seedCategories(tx *gorm.DB) (map[string]uint, error) {
	out := make(map[string]uint)
	order := 0
	for _, parentName := range []string{"Programming", "Data Science", "Design", "Business"} {
		order++
		parent := &model.Category{Name: parentName, Slug: slug(parentName), Level: 1, SortOrder: order, IsActive: true}
		if err := tx.Create(parent).Error; err != nil {
			return nil, fmt.Errorf("failed to seed category %s: %w", parentName, err)
		}
		out[parentName] = parent.ID

		for i, childName := range categories[parentName] {
			child := &model.Category{
				ParentID:  &parent.ID,
				Name:      childName,
				Slug:      slug(childName),
				Level:     2,
				SortOrder: i + 1,
				IsActive:  true,
			}
			if err := tx.Create(child).Error; err != nil {
				return nil, fmt.Errorf("failed to seed category %s: %w", childName, err)
			}
			out[childName] = child.ID
		}
	}
	return out, nil
}

func seedCourses(tx *gorm.DB, cats map[string]uint, instructor *model.User) (int, error) {
	published := time.Now().Add(-24 * time.Hour)
	for i, spec := range courses {
		categoryID := cats[spec.category]
		course := &model.Course{
			CategoryID:       &categoryID,
			InstructorID:     &instructor.ID,
			Title:            spec.title,
			Slug:             spec.slug,
			ShortDescription: "Learn " + spec.title,
			Level:            spec.level,
			Language:         "en",
			Price:            spec.price,
			IsFree:           spec.price == 0,
			IsFeatured:       spec.featured,
			Status:           model.CoursePublished,
			PublishedAt:      &published,
			SortOrder:        i + 1,
			Metadata: datatypes.NewJSONType(model.CourseMetadata{
				Tags: []string{spec.category},
			}),
		}
		for m := 1; m <= spec.modules; m++ {
			module := model.Module{Title: fmt.Sprintf("Module %d", m), SortOrder: m}
			for c := 1; c <= 3; c++ {
				module.Chapters = append(module.Chapters, model.Chapter{
					Title:           fmt.Sprintf("Lesson %d.%d", m, c),
					ContentType:     model.ContentVideo,
					IsPublished:     true,
					SortOrder:       c,
					DurationMinutes: 15,
				})
			}
			course.Modules = append(course.Modules, module)
			course.DurationHours += 0.75
		}
		if err := tx.Create(course).Error; err != nil {
			return 0, fmt.Errorf("failed to seed course %s: %w", spec.slug, err)
		}
	}
	return len(courses), nil
}

var slugReplacer = strings.NewReplacer(" ", "-", "/", "-", "&", "and")

func slug(name string) string {
	return strings.ToLower(slugReplacer.Replace(name))
}
