package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/validation"
)

const maxCategoryNameLength = 100

type CategoryService struct {
	repo repository.CategoryRepository
}

func NewCategoryService(repo repository.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	return s.repo.List(ctx)
}

func (s *CategoryService) Get(ctx context.Context, id uint) (*models.Category, error) {
	return s.repo.GetByID(ctx, id)
}

func categoryFields(name, slug string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", models.NewValidationError("Category name is required")
	}
	if utf8.RuneCountInString(name) > maxCategoryNameLength {
		return "", "", models.NewValidationError("Category name must not exceed 100 characters")
	}
	slug = validation.Slugify(slug)
	if slug == "" {
		slug = validation.Slugify(name)
	}
	if slug == "" {
		return "", "", models.NewValidationError("Category name must contain letters or digits")
	}
	return name, slug, nil
}

// Create adds a category. A blank slug is derived from the name.
func (s *CategoryService) Create(ctx context.Context, name, slug string) (*models.Category, error) {
	name, slug, err := categoryFields(name, slug)
	if err != nil {
		return nil, err
	}
	category := &models.Category{Name: name, Slug: slug}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CategoryService) Update(ctx context.Context, id uint, name, slug string) (*models.Category, error) {
	name, slug, err := categoryFields(name, slug)
	if err != nil {
		return nil, err
	}
	category := &models.Category{ID: id, Name: name, Slug: slug}
	if err := s.repo.Update(ctx, category); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Delete removes a category; its listings become uncategorized.
func (s *CategoryService) Delete(ctx context.Context, id uint) error {
	return s.repo.Delete(ctx, id)
}
