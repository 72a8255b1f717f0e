package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/pkg/cms"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContentSource supplies CMS-managed course content
type ContentSource interface {
	CourseContent(ctx context.Context, tenant, courseID string) (*cms.CourseContent, error)
}

// CourseService serves the course catalog of the acting tenant
type CourseService struct {
	db      *gorm.DB
	quotas  *QuotaService
	tenants *TenantService
	content ContentSource
	now     func() time.Time
}

// NewCourseService creates a course service. content may be nil when no CMS
// is configured.
func NewCourseService(db *gorm.DB, quotas *QuotaService, tenants *TenantService, content ContentSource) *CourseService {
	return &CourseService{
		db:      db,
		quotas:  quotas,
		tenants: tenants,
		content: content,
		now:     time.Now,
	}
}

// CourseFilter narrows the catalog listing
type CourseFilter struct {
	Level      model.CourseLevel
	CategoryID *uint
	IsFree     *bool
	Search     string
	PageRequest
}

// CourseDetail is a course page with the viewer's enrollment state
type CourseDetail struct {
	model.Course
	IsEnrolled bool               `json:"is_enrolled"`
	Enrollment *model.Enrollment  `json:"enrollment"`
	Content    *cms.CourseContent `json:"content,omitempty"`
}

// CreateCourseInput describes a new course with its outline
type CreateCourseInput struct {
	Title            string
	Slug             string
	Description      string
	ShortDescription string
	CategoryID       *uint
	Level            model.CourseLevel
	Language         string
	Price            float64
	IsFree           bool
	IsFeatured       bool
	Publish          bool
	MaxStudents      *int
	DurationHours    float64
	StrapiCourseID   *string
	Metadata         model.CourseMetadata
	Modules          []ModuleInput
}

// ModuleInput is one module of a new course
type ModuleInput struct {
	Title    string
	Chapters []ChapterInput
}

// ChapterInput is one chapter of a new module
type ChapterInput struct {
	Title           string
	ContentType     model.ContentType
	DurationMinutes int
}

// published restricts q to courses visible to learners
func (s *CourseService) published(q *gorm.DB) *gorm.DB {
	return q.Where("courses.status = ? AND (courses.published_at IS NULL OR courses.published_at <= ?)", model.CoursePublished, s.now())
}

// List pages through published courses
func (s *CourseService) List(ctx context.Context, f CourseFilter) (*Page[model.Course], error) {
	q := s.published(s.db.WithContext(ctx).Model(&model.Course{}))
	if f.Level != "" {
		q = q.Where("courses.level = ?", f.Level)
	}
	if f.CategoryID != nil {
		q = q.Where("courses.category_id = ?", *f.CategoryID)
	}
	if f.IsFree != nil {
		q = q.Where("courses.is_free = ?", *f.IsFree)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("(courses.title LIKE ? OR courses.short_description LIKE ?)", like, like)
	}
	return paginate[model.Course](q, f.PageRequest, "courses.is_featured DESC, courses.sort_order ASC, courses.id DESC", "Category", "Instructor")
}

// Featured returns up to limit featured courses
func (s *CourseService) Featured(ctx context.Context, limit int) ([]model.Course, error) {
	if limit <= 0 || limit > maxPerPage {
		limit = 6
	}
	var courses []model.Course
	err := s.published(s.db.WithContext(ctx)).
		Preload("Category").
		Preload("Instructor").
		Where("courses.is_featured = ?", true).
		Order("courses.sort_order ASC, courses.id DESC").
		Limit(limit).
		Find(&courses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load featured courses: %w", err)
	}
	return courses, nil
}

// Detail loads a published course with its outline and the viewer's
// enrollment. userID 0 means an anonymous viewer.
func (s *CourseService) Detail(ctx context.Context, id, userID uint) (*CourseDetail, error) {
	var course model.Course
	err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("Instructor").
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("modules.sort_order ASC, modules.id ASC")
		}).
		Preload("Modules.Chapters", func(db *gorm.DB) *gorm.DB {
			return db.Where("chapters.is_published = ?", true).Order("chapters.sort_order ASC, chapters.id ASC")
		}).
		First(&course, id).Error
	if err != nil {
		return nil, notFoundOr(err, errCourseNotFound.Message)
	}
	if !course.IsPublished(s.now()) {
		return nil, errCourseNotFound
	}

	detail := &CourseDetail{Course: course}
	if userID != 0 {
		var enrollments []model.Enrollment
		err := s.db.WithContext(ctx).
			Preload("Certificate").
			Where("user_id = ? AND course_id = ?", userID, id).
			Order("enrolled_at DESC, id DESC").
			Limit(1).
			Find(&enrollments).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load enrollment: %w", err)
		}
		if len(enrollments) > 0 {
			detail.Enrollment = &enrollments[0]
			detail.IsEnrolled = enrollments[0].Status == model.EnrollmentActive
		}
	}

	detail.Content = s.cmsContent(ctx, &course)
	return detail, nil
}

// cmsContent fetches CMS content for linked courses of tenants that configured
// the CMS. Failures only log; the course page renders without it.
func (s *CourseService) cmsContent(ctx context.Context, course *model.Course) *cms.CourseContent {
	if s.content == nil || course.StrapiCourseID == nil || *course.StrapiCourseID == "" {
		return nil
	}
	log := logger.FromContext(ctx)

	configured, err := s.tenants.IsConfigured(ctx, model.ProviderStrapi)
	if err != nil {
		log.Warn("Integration lookup failed", zap.Error(err))
		return nil
	}
	if !configured {
		return nil
	}

	content, err := s.content.CourseContent(ctx, strconv.FormatUint(uint64(course.TenantID), 10), *course.StrapiCourseID)
	if err != nil {
		log.Warn("CMS content unavailable", zap.Uint("course_id", course.ID), zap.Error(err))
		return nil
	}
	return content
}

var errForeignInstructor = apperr.Authorization("Only members of this tenant can author its courses.")

// Create adds a course to the acting tenant, consuming the max_courses quota.
// The instructor must be a user of that tenant.
func (s *CourseService) Create(ctx context.Context, instructorID uint, in CreateCourseInput) (*model.Course, error) {
	t, err := currentTenant(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	now := s.now()

	slug := in.Slug
	if slug == "" {
		slug = slugify(in.Title)
	}
	if slug == "" {
		return nil, apperr.FieldError("slug", "The slug field is required.")
	}

	course := &model.Course{
		CategoryID:       in.CategoryID,
		InstructorID:     &instructorID,
		StrapiCourseID:   in.StrapiCourseID,
		Title:            in.Title,
		Slug:             slug,
		Description:      in.Description,
		ShortDescription: in.ShortDescription,
		Level:            in.Level,
		Language:         in.Language,
		Price:            in.Price,
		IsFree:           in.IsFree || in.Price == 0,
		IsFeatured:       in.IsFeatured,
		Status:           model.CourseDraft,
		MaxStudents:      in.MaxStudents,
		DurationHours:    in.DurationHours,
		Metadata:         datatypes.NewJSONType(in.Metadata),
	}
	if course.Level == "" {
		course.Level = model.LevelBeginner
	}
	if course.Language == "" {
		course.Language = "en"
	}
	if in.Publish {
		course.Status = model.CoursePublished
		course.PublishedAt = &now
	}
	for i, m := range in.Modules {
		module := model.Module{Title: m.Title, SortOrder: i + 1}
		for j, ch := range m.Chapters {
			ct := ch.ContentType
			if ct == "" {
				ct = model.ContentText
			}
			module.Chapters = append(module.Chapters, model.Chapter{
				Title:           ch.Title,
				ContentType:     ct,
				IsPublished:     true,
				SortOrder:       j + 1,
				DurationMinutes: ch.DurationMinutes,
			})
		}
		course.Modules = append(course.Modules, module)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := memberOfTenant(tx, instructorID); err != nil {
			return notFoundAs(err, errForeignInstructor)
		}
		if in.CategoryID != nil {
			var category model.Category
			if err := tx.First(&category, *in.CategoryID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.FieldError("category_id", "The selected category is invalid.")
				}
				return err
			}
		}
		if err := s.quotas.Consume(ctx, tx, t.ID, model.QuotaMaxCourses); err != nil {
			return err
		}
		if err := tx.Create(course).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.FieldError("slug", "The slug has already been taken.")
			}
			return err
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			log.Error("Failed to create course", zap.String("title", in.Title), zap.Error(err))
		}
		return nil, err
	}

	log.Info("Course created",
		zap.Uint("course_id", course.ID),
		zap.String("slug", course.Slug),
		zap.String("status", string(course.Status)))
	return course, nil
}
