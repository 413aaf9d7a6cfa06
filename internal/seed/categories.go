package seed

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/validation"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var categoriesYAML []byte

type categoryFile struct {
	Categories []struct {
		Name string `yaml:"name"`
		Slug string `yaml:"slug"`
	} `yaml:"categories"`
}

// BuiltInCategories parses the embedded category list.
func BuiltInCategories() ([]models.Category, error) {
	return parseCategories(categoriesYAML)
}

func parseCategories(raw []byte) ([]models.Category, error) {
	var file categoryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}

	seen := make(map[string]bool, len(file.Categories))
	out := make([]models.Category, 0, len(file.Categories))
	for _, c := range file.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("parse categories: entry without a name")
		}
		slug := strings.TrimSpace(c.Slug)
		if slug == "" {
			slug = validation.Slugify(name)
		}
		if seen[slug] {
			return nil, fmt.Errorf("parse categories: duplicate slug %q", slug)
		}
		seen[slug] = true
		out = append(out, models.Category{Name: name, Slug: slug})
	}
	return out, nil
}

// Categories inserts the built-in categories that are not present yet.
func Categories(ctx context.Context, repo repository.CategoryRepository) (int, error) {
	categories, err := BuiltInCategories()
	if err != nil {
		return 0, err
	}
	if err := repo.Upsert(ctx, categories); err != nil {
		return 0, fmt.Errorf("seed categories: %w", err)
	}
	return len(categories), nil
}
