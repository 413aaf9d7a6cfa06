package server

import (
	"classifieds/internal/models"

	"github.com/gofiber/fiber/v2"
)

type categoryRequest struct {
	Name string `json:"name" form:"name"`
	Slug string `json:"slug" form:"slug"`
}

// ListCategories handles GET /api/categories
func (s *Server) ListCategories(c *fiber.Ctx) error {
	categories, err := s.categoryService.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if categories == nil {
		categories = []models.Category{}
	}
	return c.JSON(categories)
}

// GetCategory handles GET /api/categories/:id
func (s *Server) GetCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	category, err := s.categoryService.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(category)
}

// AdminCreateCategory handles POST /api/admin/categories
func (s *Server) AdminCreateCategory(c *fiber.Ctx) error {
	var req categoryRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	category, err := s.categoryService.Create(c.UserContext(), req.Name, req.Slug)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

// AdminUpdateCategory handles PUT and PATCH /api/admin/categories/:id
func (s *Server) AdminUpdateCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req categoryRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	category, err := s.categoryService.Update(c.UserContext(), id, req.Name, req.Slug)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(category)
}

// AdminDeleteCategory handles DELETE /api/admin/categories/:id
func (s *Server) AdminDeleteCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.categoryService.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
