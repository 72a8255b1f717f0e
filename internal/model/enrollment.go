package model

import (
	"math"
	"time"
)

// EnrollmentStatus is a state of the enrollment lifecycle
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentExpired   EnrollmentStatus = "expired"
	EnrollmentSuspended EnrollmentStatus = "suspended"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentActive, EnrollmentCompleted, EnrollmentDropped,
		EnrollmentExpired, EnrollmentSuspended, EnrollmentCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentCancelled || s == EnrollmentExpired
}

// Enrollment is a user's registration in a course. At most one active row
// exists per (tenant, user, course); the partial unique index enforces it.
type Enrollment struct {
	ID                 uint             `json:"id" gorm:"primaryKey"`
	TenantID           uint             `json:"tenant_id" gorm:"uniqueIndex:idx_enrollments_active,where:status = 'active';not null"`
	Tenant             *Tenant          `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	UserID             uint             `json:"user_id" gorm:"uniqueIndex:idx_enrollments_active,where:status = 'active';index;not null"`
	User               *User            `json:"user,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CourseID           uint             `json:"course_id" gorm:"uniqueIndex:idx_enrollments_active,where:status = 'active';index;not null"`
	Course             *Course          `json:"course,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Status             EnrollmentStatus `json:"status" gorm:"type:varchar(20);index;not null;default:'active'"`
	EnrolledAt         time.Time        `json:"enrolled_at"`
	StartedAt          *time.Time       `json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at"`
	ExpiresAt          *time.Time       `json:"expires_at" gorm:"index"`
	ExpiredAt          *time.Time       `json:"expired_at"`
	CancelledAt        *time.Time       `json:"cancelled_at"`
	SuspendedAt        *time.Time       `json:"suspended_at"`
	LastAccessedAt     *time.Time       `json:"last_accessed_at"`
	ProgressPercentage float64          `json:"progress_percentage" gorm:"type:decimal(5,2);not null;default:0"`
	CompletedChapters  int              `json:"completed_chapters" gorm:"not null;default:0"`
	TotalChapters      int              `json:"total_chapters" gorm:"not null;default:0"`
	TimeSpentMinutes   int              `json:"time_spent_minutes" gorm:"not null;default:0"`
	CertificateIssued  bool             `json:"certificate_issued" gorm:"not null;default:false"`
	Certificate        *Certificate     `json:"certificate,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsExpiredAt reports whether an active enrollment's access window has closed
func (e *Enrollment) IsExpiredAt(now time.Time) bool {
	return e.Status == EnrollmentActive && e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// ClampProgress bounds p to [0,100] and rounds to two decimals
func ClampProgress(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return math.Round(p*100) / 100
}

// ChapterProgress records that the enrolled user finished a chapter
type ChapterProgress struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	TenantID     uint      `json:"-" gorm:"index;not null"`
	Tenant       *Tenant   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	EnrollmentID uint      `json:"enrollment_id" gorm:"uniqueIndex:idx_chapter_progress;not null"`
	ChapterID    uint      `json:"chapter_id" gorm:"uniqueIndex:idx_chapter_progress;not null"`
	UserID       uint      `json:"user_id" gorm:"index;not null"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Certificate is issued once per completed enrollment
type Certificate struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	TenantID          uint      `json:"tenant_id" gorm:"index;not null"`
	Tenant            *Tenant   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	EnrollmentID      uint      `json:"enrollment_id" gorm:"uniqueIndex;not null"`
	UserID            uint      `json:"user_id" gorm:"index;not null"`
	CourseID          uint      `json:"course_id" gorm:"index;not null"`
	CertificateNumber string    `json:"certificate_number" gorm:"type:varchar(40);uniqueIndex;not null"`
	IssuedAt          time.Time `json:"issued_at"`
	CreatedAt         time.Time `json:"created_at"`
}
