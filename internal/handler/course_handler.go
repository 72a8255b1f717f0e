package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/service"
)

// CourseHandler serves the catalog and enrollment entry points
type CourseHandler struct {
	courses     *service.CourseService
	enrollments *service.EnrollmentService
}

// NewCourseHandler creates the handler
func NewCourseHandler(courses *service.CourseService, enrollments *service.EnrollmentService) *CourseHandler {
	return &CourseHandler{courses: courses, enrollments: enrollments}
}

type chapterRequest struct {
	Title           string `json:"title" validate:"required,max=255"`
	ContentType     string `json:"content_type" validate:"omitempty,oneof=video text quiz resource"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}

type moduleRequest struct {
	Title    string           `json:"title" validate:"required,max=255"`
	Chapters []chapterRequest `json:"chapters" validate:"dive"`
}

type createCourseRequest struct {
	Title              string          `json:"title" validate:"required,max=255"`
	Slug               string          `json:"slug" validate:"omitempty,max=255"`
	Description        string          `json:"description"`
	ShortDescription   string          `json:"short_description" validate:"max=500"`
	CategoryID         *uint           `json:"category_id"`
	Level              string          `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Language           string          `json:"language" validate:"omitempty,max=5"`
	Price              float64         `json:"price" validate:"gte=0"`
	IsFree             bool            `json:"is_free"`
	IsFeatured         bool            `json:"is_featured"`
	Publish            bool            `json:"publish"`
	MaxStudents        *int            `json:"max_students" validate:"omitempty,gte=1"`
	DurationHours      float64         `json:"duration_hours" validate:"gte=0"`
	StrapiCourseID     *string         `json:"strapi_course_id" validate:"omitempty,max=100"`
	Tags               []string        `json:"tags"`
	LearningObjectives []string        `json:"learning_objectives"`
	Prerequisites      []string        `json:"prerequisites"`
	Modules            []moduleRequest `json:"modules" validate:"dive"`
}

func pageOf(c echo.Context) (service.PageRequest, error) {
	var page service.PageRequest
	err := echo.QueryParamsBinder(c).
		Int("page", &page.Page).
		Int("per_page", &page.PerPage).
		BindError()
	if err != nil {
		return page, apperr.BadRequest("Invalid pagination parameters.")
	}
	return page, nil
}

// List handles GET /api/courses
func (h *CourseHandler) List(c echo.Context) error {
	var (
		level      string
		categoryID uint
		isFree     bool
		filter     service.CourseFilter
	)
	err := echo.QueryParamsBinder(c).
		String("level", &level).
		String("search", &filter.Search).
		Uint("category_id", &categoryID).
		Bool("is_free", &isFree).
		Int("page", &filter.Page).
		Int("per_page", &filter.PerPage).
		BindError()
	if err != nil {
		return apperr.BadRequest("Invalid query parameters.")
	}

	filter.Level = model.CourseLevel(level)
	switch filter.Level {
	case "", model.LevelBeginner, model.LevelIntermediate, model.LevelAdvanced:
	default:
		return apperr.FieldError("level", "The selected level is invalid.")
	}
	if c.QueryParam("category_id") != "" {
		filter.CategoryID = &categoryID
	}
	if c.QueryParam("is_free") != "" {
		filter.IsFree = &isFree
	}

	page, err := h.courses.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Courses retrieved successfully", page)
}

// Featured handles GET /courses/featured
func (h *CourseHandler) Featured(c echo.Context) error {
	limit := 6
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return apperr.BadRequest("Invalid limit.")
	}
	courses, err := h.courses.Featured(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Featured courses retrieved successfully", courses)
}

// Show handles GET /api/courses/:id
func (h *CourseHandler) Show(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.courses.Detail(c.Request().Context(), id, claims.UserID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Course retrieved successfully", detail)
}

// Create handles POST /api/courses
func (h *CourseHandler) Create(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	var req createCourseRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	in := service.CreateCourseInput{
		Title:            req.Title,
		Slug:             req.Slug,
		Description:      req.Description,
		ShortDescription: req.ShortDescription,
		CategoryID:       req.CategoryID,
		Level:            model.CourseLevel(req.Level),
		Language:         req.Language,
		Price:            req.Price,
		IsFree:           req.IsFree,
		IsFeatured:       req.IsFeatured,
		Publish:          req.Publish,
		MaxStudents:      req.MaxStudents,
		DurationHours:    req.DurationHours,
		StrapiCourseID:   req.StrapiCourseID,
		Metadata: model.CourseMetadata{
			Tags:               req.Tags,
			LearningObjectives: req.LearningObjectives,
			Prerequisites:      req.Prerequisites,
		},
	}
	for _, m := range req.Modules {
		module := service.ModuleInput{Title: m.Title}
		for _, ch := range m.Chapters {
			module.Chapters = append(module.Chapters, service.ChapterInput{
				Title:           ch.Title,
				ContentType:     model.ContentType(ch.ContentType),
				DurationMinutes: ch.DurationMinutes,
			})
		}
		in.Modules = append(in.Modules, module)
	}

	course, err := h.courses.Create(c.Request().Context(), claims.UserID, in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, "Course created successfully", course)
}

// Enroll handles POST /api/courses/:id/enroll
func (h *CourseHandler) Enroll(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	enrollment, err := h.enrollments.Enroll(c.Request().Context(), claims.UserID, id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, "Successfully enrolled in course", enrollment)
}

// MyCourses handles GET /api/courses/my-courses
func (h *CourseHandler) MyCourses(c echo.Context) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	enrollments, err := h.enrollments.MyCourses(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Enrolled courses retrieved successfully", enrollments)
}
