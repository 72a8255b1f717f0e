package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"github.com/sanukhandev/lms-be-core/pkg/notify"
	"github.com/sanukhandev/lms-be-core/pkg/tracing"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errAlreadyEnrolled   = apperr.Conflict("You are already enrolled in this course.")
	errCourseNotFound    = apperr.NotFound("Course not found")
	errForeignLearner    = apperr.Authorization("Only members of this tenant can enroll in its courses.")
	errEnrollmentMissing = apperr.NotFound("Enrollment not found")
)

// EnrollmentService drives the enrollment lifecycle
type EnrollmentService struct {
	db           *gorm.DB
	notifier     notify.Notifier
	accessPeriod time.Duration
	now          func() time.Time
}

// NewEnrollmentService creates the service. accessPeriod is how long a new
// enrollment stays open; zero disables expiry.
func NewEnrollmentService(db *gorm.DB, notifier notify.Notifier, accessPeriod time.Duration) *EnrollmentService {
	return &EnrollmentService{
		db:           db,
		notifier:     notifier,
		accessPeriod: accessPeriod,
		now:          time.Now,
	}
}

// ProgressInput is a progress report from the learner. A nil Percentage means
// the percentage is derived from the chapter counters.
type ProgressInput struct {
	Percentage       *float64
	ChapterID        *uint
	TimeSpentMinutes int
}

// EnrollmentFilter narrows enrollment listings
type EnrollmentFilter struct {
	Status model.EnrollmentStatus
	PageRequest
}

func tenantFeatures(ctx context.Context) model.TenantFeatures {
	if t, ok := tenancy.FromContext(ctx); ok {
		return t.Settings.Data().Features
	}
	return model.DefaultTenantSettings().Features
}

// publishedChapters counts the published chapters of a course
func publishedChapters(tx *gorm.DB, courseID uint) (int64, error) {
	var n int64
	err := tx.Model(&model.Chapter{}).
		Joins("JOIN modules ON modules.id = chapters.module_id").
		Where("modules.course_id = ? AND chapters.is_published = ?", courseID, true).
		Count(&n).Error
	return n, err
}

// expire moves active enrollments whose access window has closed to expired.
// Extra conditions narrow the set.
func (s *EnrollmentService) expire(db *gorm.DB, now time.Time, conds ...interface{}) (int64, error) {
	q := db.Model(&model.Enrollment{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.EnrollmentActive, now)
	if len(conds) > 0 {
		q = q.Where(conds[0], conds[1:]...)
	}
	res := q.Updates(map[string]interface{}{
		"status":     model.EnrollmentExpired,
		"expired_at": now,
	})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire enrollments: %w", res.Error)
	}
	prometheus.RecordEnrollmentEvents("expired", res.RowsAffected)
	return res.RowsAffected, nil
}

// Enroll registers userID in a published course of the acting tenant
func (s *EnrollmentService) Enroll(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	ctx, span := tracing.Tracer().Start(ctx, "enrollment.enroll")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", int64(userID)), attribute.Int64("course_id", int64(courseID)))

	log := logger.FromContext(ctx)
	now := s.now()
	var enrollment *model.Enrollment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := memberOfTenant(tx, userID); err != nil {
			return notFoundAs(err, errForeignLearner)
		}

		var course model.Course
		if err := tx.First(&course, courseID).Error; err != nil {
			return notFoundOr(err, errCourseNotFound.Message)
		}
		if !course.IsPublished(now) {
			return errCourseNotFound
		}

		if _, err := s.expire(tx, now, "user_id = ? AND course_id = ?", userID, courseID); err != nil {
			return err
		}

		var active int64
		err := tx.Model(&model.Enrollment{}).
			Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, model.EnrollmentActive).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return errAlreadyEnrolled
		}

		if course.MaxStudents != nil {
			var seats int64
			err := tx.Model(&model.Enrollment{}).
				Where("course_id = ? AND status IN ?", courseID, []model.EnrollmentStatus{model.EnrollmentActive, model.EnrollmentCompleted}).
				Count(&seats).Error
			if err != nil {
				return err
			}
			if seats >= int64(*course.MaxStudents) {
				return apperr.Conflict("This course has reached its maximum number of students.")
			}
		}

		total, err := publishedChapters(tx, courseID)
		if err != nil {
			return err
		}

		e := &model.Enrollment{
			UserID:        userID,
			CourseID:      courseID,
			Status:        model.EnrollmentActive,
			EnrolledAt:    now,
			TotalChapters: int(total),
		}
		if s.accessPeriod > 0 {
			expires := now.Add(s.accessPeriod)
			e.ExpiresAt = &expires
		}
		if err := tx.Create(e).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyEnrolled
			}
			return err
		}
		e.Course = &course
		enrollment = e
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			log.Error("Failed to enroll", zap.Uint("user_id", userID), zap.Uint("course_id", courseID), zap.Error(err))
			span.RecordError(err)
		}
		return nil, err
	}

	prometheus.RecordEnrollmentEvent("enrolled")
	log.Info("User enrolled",
		zap.Uint("user_id", userID),
		zap.Uint("course_id", courseID),
		zap.Uint("enrollment_id", enrollment.ID))
	return enrollment, nil
}

// Get loads an enrollment of the acting tenant. A non-zero ownerID restricts
// the lookup to that user's enrollments.
func (s *EnrollmentService) Get(ctx context.Context, id, ownerID uint) (*model.Enrollment, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	owned := func(q *gorm.DB) *gorm.DB {
		q = q.Where("id = ?", id)
		if ownerID != 0 {
			q = q.Where("user_id = ?", ownerID)
		}
		return q
	}

	if _, err := s.expire(owned(db), now); err != nil {
		return nil, err
	}

	var e model.Enrollment
	err := owned(db.Preload("Course").Preload("Certificate")).First(&e).Error
	if err != nil {
		return nil, notFoundOr(err, errEnrollmentMissing.Message)
	}
	return &e, nil
}

// List pages through enrollments. A non-zero userID lists only that user's.
func (s *EnrollmentService) List(ctx context.Context, userID uint, filter EnrollmentFilter) (*Page[model.Enrollment], error) {
	db := s.db.WithContext(ctx)
	if _, err := s.expire(db, s.now()); err != nil {
		return nil, err
	}

	q := db.Model(&model.Enrollment{})
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	return paginate[model.Enrollment](q, filter.PageRequest, "enrolled_at DESC, id DESC", "Course", "Certificate")
}

// MyCourses lists the courses the user is taking or has finished
func (s *EnrollmentService) MyCourses(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.expire(db, s.now(), "user_id = ?", userID); err != nil {
		return nil, err
	}

	var enrollments []model.Enrollment
	err := db.Preload("Course.Category").Preload("Certificate").
		Where("user_id = ? AND status IN ?", userID, []model.EnrollmentStatus{model.EnrollmentActive, model.EnrollmentCompleted}).
		Order("last_accessed_at DESC, enrolled_at DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return enrollments, nil
}

// UpdateProgress records learner progress on the user's own enrollment.
// Reaching 100 completes the enrollment exactly once.
func (s *EnrollmentService) UpdateProgress(ctx context.Context, userID, id uint, in ProgressInput) (*model.Enrollment, error) {
	ctx, span := tracing.Tracer().Start(ctx, "enrollment.progress")
	defer span.End()
	span.SetAttributes(attribute.Int64("enrollment_id", int64(id)))

	log := logger.FromContext(ctx)
	now := s.now()
	db := s.db.WithContext(ctx)

	if _, err := s.expire(db, now, "id = ? AND user_id = ?", id, userID); err != nil {
		return nil, err
	}

	var completedNow bool
	var certificate *model.Certificate

	err := db.Transaction(func(tx *gorm.DB) error {
		var e model.Enrollment
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&e).Error; err != nil {
			return notFoundOr(err, errEnrollmentMissing.Message)
		}

		switch e.Status {
		case model.EnrollmentActive:
		case model.EnrollmentCompleted:
			if in.Percentage != nil && model.ClampProgress(*in.Percentage) < 100 {
				return apperr.Conflict("This enrollment is already completed.")
			}
			return nil
		default:
			return apperr.Conflict(fmt.Sprintf("Progress cannot be updated on a %s enrollment.", e.Status))
		}

		updates := map[string]interface{}{"last_accessed_at": now}
		if e.StartedAt == nil {
			updates["started_at"] = now
		}
		if in.TimeSpentMinutes > 0 {
			updates["time_spent_minutes"] = gorm.Expr("time_spent_minutes + ?", in.TimeSpentMinutes)
		}

		completedChapters := e.CompletedChapters
		if in.ChapterID != nil {
			var found int64
			err := tx.Model(&model.Chapter{}).
				Joins("JOIN modules ON modules.id = chapters.module_id").
				Where("chapters.id = ? AND modules.course_id = ?", *in.ChapterID, e.CourseID).
				Count(&found).Error
			if err != nil {
				return err
			}
			if found == 0 {
				return apperr.FieldError("chapter_id", "The selected chapter is invalid.")
			}

			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.ChapterProgress{
				EnrollmentID: e.ID,
				ChapterID:    *in.ChapterID,
				UserID:       userID,
				CompletedAt:  now,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				completedChapters++
				updates["completed_chapters"] = gorm.Expr("completed_chapters + 1")
			}
		}

		var progress float64
		switch {
		case in.Percentage != nil:
			progress = model.ClampProgress(*in.Percentage)
		case e.TotalChapters > 0:
			progress = model.ClampProgress(float64(completedChapters) * 100 / float64(e.TotalChapters))
		default:
			progress = e.ProgressPercentage
		}

		if progress >= 100 {
			updates["status"] = model.EnrollmentCompleted
			updates["completed_at"] = now
			updates["progress_percentage"] = 100
		} else {
			updates["progress_percentage"] = progress
		}

		res := tx.Model(&model.Enrollment{}).
			Where("id = ? AND status = ?", e.ID, model.EnrollmentActive).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// completed concurrently: 100 is a no-op, anything else is stale
			if progress >= 100 {
				return nil
			}
			return apperr.Conflict("This enrollment is already completed.")
		}

		if progress < 100 {
			return nil
		}
		completedNow = true

		if !tenantFeatures(ctx).Certificates {
			return nil
		}
		certificate = &model.Certificate{
			EnrollmentID:      e.ID,
			UserID:            e.UserID,
			CourseID:          e.CourseID,
			CertificateNumber: certificateNumber(now),
			IssuedAt:          now,
		}
		if err := tx.Create(certificate).Error; err != nil {
			return fmt.Errorf("failed to issue certificate: %w", err)
		}
		return tx.Model(&model.Enrollment{}).Where("id = ?", e.ID).Update("certificate_issued", true).Error
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			log.Error("Failed to update progress", zap.Uint("enrollment_id", id), zap.Error(err))
			span.RecordError(err)
		}
		return nil, err
	}

	enrollment, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if completedNow {
		prometheus.RecordEnrollmentEvent("completed")
		log.Info("Enrollment completed", zap.Uint("enrollment_id", id), zap.Bool("certificate", certificate != nil))
		s.notifyCompletion(ctx, enrollment, certificate)
	}
	return enrollment, nil
}

func (s *EnrollmentService) notifyCompletion(ctx context.Context, e *model.Enrollment, cert *model.Certificate) {
	if s.notifier == nil || !tenantFeatures(ctx).CompletionEmails {
		return
	}
	log := logger.FromContext(ctx)

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, e.UserID).Error; err != nil {
		log.Warn("Completion mail skipped: user lookup failed", zap.Uint("user_id", e.UserID), zap.Error(err))
		return
	}

	n := notify.CourseCompletion{
		ToEmail:     user.Email,
		ToName:      user.Name,
		CompletedAt: s.now(),
	}
	if e.Course != nil {
		n.CourseTitle = e.Course.Title
	}
	if cert != nil {
		n.CertificateNumber = cert.CertificateNumber
	}
	if t, ok := tenancy.FromContext(ctx); ok {
		n.TenantName = t.Name
	}
	if err := s.notifier.CourseCompleted(ctx, n); err != nil {
		log.Warn("Completion mail failed", zap.Uint("enrollment_id", e.ID), zap.Error(err))
	}
}

func certificateNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("CERT-%s-%s", now.Format("2006"), id[:12])
}

// transition moves an active enrollment to status, stamping column
func (s *EnrollmentService) transition(ctx context.Context, e *model.Enrollment, status model.EnrollmentStatus, column string) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ? AND status = ?", e.ID, model.EnrollmentActive).
		Updates(map[string]interface{}{"status": status, column: now})
	if res.Error != nil {
		return fmt.Errorf("failed to update enrollment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("Only active enrollments can be changed.")
	}
	e.Status = status
	return nil
}

// Cancel cancels the user's own active enrollment
func (s *EnrollmentService) Cancel(ctx context.Context, userID, id uint) (*model.Enrollment, error) {
	e, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	switch e.Status {
	case model.EnrollmentActive:
	case model.EnrollmentCompleted:
		return nil, apperr.Conflict("Cannot cancel a completed enrollment.")
	default:
		return nil, apperr.Conflict("Only active enrollments can be cancelled.")
	}

	if err := s.transition(ctx, e, model.EnrollmentCancelled, "cancelled_at"); err != nil {
		return nil, err
	}
	prometheus.RecordEnrollmentEvent("cancelled")
	logger.FromContext(ctx).Info("Enrollment cancelled", zap.Uint("enrollment_id", id))
	return s.Get(ctx, id, userID)
}

// Suspend suspends any active enrollment of the acting tenant
func (s *EnrollmentService) Suspend(ctx context.Context, id uint) (*model.Enrollment, error) {
	e, err := s.Get(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	if e.Status != model.EnrollmentActive {
		return nil, apperr.Conflict("Only active enrollments can be suspended.")
	}

	if err := s.transition(ctx, e, model.EnrollmentSuspended, "suspended_at"); err != nil {
		return nil, err
	}
	prometheus.RecordEnrollmentEvent("suspended")
	logger.FromContext(ctx).Info("Enrollment suspended", zap.Uint("enrollment_id", id))
	return s.Get(ctx, id, 0)
}

// ExpireDue expires every overdue active enrollment. Without a tenant in ctx
// it sweeps all tenants.
func (s *EnrollmentService) ExpireDue(ctx context.Context) (int64, error) {
	return s.expire(s.db.WithContext(ctx), s.now())
}

// ForExport loads the tenant's enrollments with user and course for reports
func (s *EnrollmentService) ForExport(ctx context.Context, status model.EnrollmentStatus) ([]model.Enrollment, error) {
	q := s.db.WithContext(ctx).Preload("User").Preload("Course").Preload("Certificate")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var enrollments []model.Enrollment
	if err := q.Order("enrolled_at ASC, id ASC").Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to load enrollments: %w", err)
	}
	return enrollments, nil
}
