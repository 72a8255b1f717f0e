package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sanukhandev/lms-be-core/internal/service"
)

// CategoryHandler serves the public category endpoints
type CategoryHandler struct {
	categories *service.CategoryService
}

// NewCategoryHandler creates the handler
func NewCategoryHandler(categories *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// List handles GET /categories
func (h *CategoryHandler) List(c echo.Context) error {
	categories, err := h.categories.List(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Categories retrieved successfully", categories)
}

// Tree handles GET /categories/tree
func (h *CategoryHandler) Tree(c echo.Context) error {
	tree, err := h.categories.Tree(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Category tree retrieved successfully", tree)
}

// Show handles GET /categories/:id
func (h *CategoryHandler) Show(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	category, err := h.categories.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Category retrieved successfully", category)
}

// Courses handles GET /categories/:id/courses
func (h *CategoryHandler) Courses(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	page, err := pageOf(c)
	if err != nil {
		return err
	}
	courses, err := h.categories.Courses(c.Request().Context(), id, page)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "Category courses retrieved successfully", courses)
}
