package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CourseStatus is the publication state of a course
type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

// CourseLevel is the advertised difficulty
type CourseLevel string

const (
	LevelBeginner     CourseLevel = "beginner"
	LevelIntermediate CourseLevel = "intermediate"
	LevelAdvanced     CourseLevel = "advanced"
)

// ContentType tags what a chapter delivers
type ContentType string

const (
	ContentVideo    ContentType = "video"
	ContentText     ContentType = "text"
	ContentQuiz     ContentType = "quiz"
	ContentResource ContentType = "resource"
)

// CourseMetadata is the typed replacement for the free-form metadata column
type CourseMetadata struct {
	Tags               []string `json:"tags,omitempty"`
	LearningObjectives []string `json:"learning_objectives,omitempty"`
	Prerequisites      []string `json:"prerequisites,omitempty"`
}

// Course belongs to one tenant and, optionally, one category and instructor
type Course struct {
	ID               uint                               `json:"id" gorm:"primaryKey"`
	TenantID         uint                               `json:"tenant_id" gorm:"uniqueIndex:idx_courses_tenant_slug;not null"`
	Tenant           *Tenant                            `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	CategoryID       *uint                              `json:"category_id" gorm:"index"`
	Category         *Category                          `json:"category,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	InstructorID     *uint                              `json:"instructor_id" gorm:"index"`
	Instructor       *User                              `json:"instructor,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	StrapiCourseID   *string                            `json:"strapi_course_id,omitempty" gorm:"type:varchar(100)"`
	Title            string                             `json:"title" gorm:"type:varchar(255);not null"`
	Slug             string                             `json:"slug" gorm:"type:varchar(255);uniqueIndex:idx_courses_tenant_slug;not null"`
	Description      string                             `json:"description" gorm:"type:text"`
	ShortDescription string                             `json:"short_description" gorm:"type:varchar(500)"`
	Level            CourseLevel                        `json:"level" gorm:"type:varchar(20);not null;default:'beginner'"`
	Language         string                             `json:"language" gorm:"type:varchar(5);default:'en'"`
	Price            float64                            `json:"price" gorm:"type:decimal(10,2);default:0"`
	IsFree           bool                               `json:"is_free" gorm:"default:false"`
	IsFeatured       bool                               `json:"is_featured" gorm:"default:false"`
	Status           CourseStatus                       `json:"status" gorm:"type:varchar(20);index;not null;default:'draft'"`
	PublishedAt      *time.Time                         `json:"published_at"`
	SortOrder        int                                `json:"sort_order" gorm:"default:0"`
	MaxStudents      *int                               `json:"max_students"`
	DurationHours    float64                            `json:"duration_hours" gorm:"type:decimal(6,2);default:0"`
	Metadata         datatypes.JSONType[CourseMetadata] `json:"metadata"`
	Modules          []Module                           `json:"modules,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time                          `json:"created_at"`
	UpdatedAt        time.Time                          `json:"updated_at"`
	DeletedAt        gorm.DeletedAt                     `json:"-" gorm:"index"`
}

// IsPublished reports whether students can see and enroll in the course
func (c *Course) IsPublished(now time.Time) bool {
	return c.Status == CoursePublished && (c.PublishedAt == nil || !c.PublishedAt.After(now))
}

// Module is an ordered section of a course
type Module struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"-" gorm:"index;not null"`
	Tenant    *Tenant   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	CourseID  uint      `json:"course_id" gorm:"index;not null"`
	Title     string    `json:"title" gorm:"type:varchar(255);not null"`
	SortOrder int       `json:"sort_order" gorm:"default:0"`
	Chapters  []Chapter `json:"chapters,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chapter is the unit of progress inside a module
type Chapter struct {
	ID              uint        `json:"id" gorm:"primaryKey"`
	TenantID        uint        `json:"-" gorm:"index;not null"`
	Tenant          *Tenant     `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	ModuleID        uint        `json:"module_id" gorm:"index;not null"`
	Title           string      `json:"title" gorm:"type:varchar(255);not null"`
	ContentType     ContentType `json:"content_type" gorm:"type:varchar(20);not null;default:'text'"`
	IsPublished     bool        `json:"is_published" gorm:"default:true"`
	SortOrder       int         `json:"sort_order" gorm:"default:0"`
	DurationMinutes int         `json:"duration_minutes" gorm:"default:0"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
