package service

import (
	"errors"
	"fmt"

	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"gorm.io/gorm"
)

const (
	defaultPerPage = 15
	maxPerPage     = 100
)

// PageRequest asks for one page of a listing; zero values pick defaults
type PageRequest struct {
	Page    int
	PerPage int
}

func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Page is a paginated listing
type Page[T any] struct {
	Data        []T   `json:"data"`
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
}

// paginate counts base, then loads the requested page ordered by order with
// the given associations preloaded
func paginate[T any](base *gorm.DB, req PageRequest, order string, preloads ...string) (*Page[T], error) {
	req = req.normalize()

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count: %w", err)
	}

	items := make([]T, 0, req.PerPage)
	q := base.Session(&gorm.Session{})
	for _, p := range preloads {
		q = q.Preload(p)
	}
	if order != "" {
		q = q.Order(order)
	}
	if err := q.Offset((req.Page - 1) * req.PerPage).Limit(req.PerPage).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}

	last := int((total + int64(req.PerPage) - 1) / int64(req.PerPage))
	if last < 1 {
		last = 1
	}
	return &Page[T]{
		Data:        items,
		CurrentPage: req.Page,
		LastPage:    last,
		PerPage:     req.PerPage,
		Total:       total,
	}, nil
}

// notFoundOr maps a missing row to a NotFound with message and passes other
// errors through
func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(message)
	}
	return err
}

// notFoundAs replaces a missing-row error with typed
func notFoundAs(err error, typed *apperr.Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return typed
	}
	return err
}

// memberOfTenant fails with gorm.ErrRecordNotFound when userID is not a user
// of the tenant tx is scoped to
func memberOfTenant(tx *gorm.DB, userID uint) error {
	var user model.User
	return tx.Select("id").First(&user, userID).Error
}
