package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/model"
	"gorm.io/gorm"
)

// CategoryService serves the category tree of the acting tenant
type CategoryService struct {
	db      *gorm.DB
	courses *CourseService
	now     func() time.Time
}

// NewCategoryService creates a category service
func NewCategoryService(db *gorm.DB, courses *CourseService) *CategoryService {
	return &CategoryService{db: db, courses: courses, now: time.Now}
}

func activeOrdered(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true).Order("sort_order ASC, name ASC")
}

// courseCounts returns the number of published courses per category id
func (s *CategoryService) courseCounts(ctx context.Context) (map[uint]int64, error) {
	var rows []struct {
		CategoryID uint
		Total      int64
	}
	err := s.courses.published(s.db.WithContext(ctx).Model(&model.Course{})).
		Select("courses.category_id AS category_id, COUNT(*) AS total").
		Where("courses.category_id IS NOT NULL").
		Group("courses.category_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count courses: %w", err)
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.CategoryID] = r.Total
	}
	return counts, nil
}

func applyCounts(categories []model.Category, counts map[uint]int64) {
	for i := range categories {
		categories[i].CoursesCount = counts[categories[i].ID]
		applyCounts(categories[i].Children, counts)
	}
}

// List returns every active category with its course count
func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := activeOrdered(s.db.WithContext(ctx)).Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	counts, err := s.courseCounts(ctx)
	if err != nil {
		return nil, err
	}
	applyCounts(categories, counts)
	return categories, nil
}

// Tree returns root categories with two levels of children
func (s *CategoryService) Tree(ctx context.Context) ([]model.Category, error) {
	var roots []model.Category
	err := activeOrdered(s.db.WithContext(ctx)).
		Preload("Children", activeOrdered).
		Preload("Children.Children", activeOrdered).
		Where("parent_id IS NULL").
		Find(&roots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load category tree: %w", err)
	}
	counts, err := s.courseCounts(ctx)
	if err != nil {
		return nil, err
	}
	applyCounts(roots, counts)
	return roots, nil
}

// Get returns one category with its parent and children
func (s *CategoryService) Get(ctx context.Context, id uint) (*model.Category, error) {
	var category model.Category
	err := s.db.WithContext(ctx).
		Preload("Parent").
		Preload("Children", activeOrdered).
		Where("is_active = ?", true).
		First(&category, id).Error
	if err != nil {
		return nil, notFoundOr(err, "Category not found")
	}
	counts, err := s.courseCounts(ctx)
	if err != nil {
		return nil, err
	}
	category.CoursesCount = counts[category.ID]
	applyCounts(category.Children, counts)
	return &category, nil
}

// Courses pages through the published courses of a category
func (s *CategoryService) Courses(ctx context.Context, id uint, page PageRequest) (*Page[model.Course], error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.courses.List(ctx, CourseFilter{CategoryID: &id, PageRequest: page})
}
