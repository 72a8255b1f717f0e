package model

// All lists every persisted model in migration order
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&TenantIntegration{},
		&Package{},
		&PackageFeature{},
		&PackageQuota{},
		&Subscription{},
		&SubscriptionUsage{},
		&User{},
		&UserRole{},
		&RefreshToken{},
		&Category{},
		&Course{},
		&Module{},
		&Chapter{},
		&Enrollment{},
		&ChapterProgress{},
		&Certificate{},
	}
}
