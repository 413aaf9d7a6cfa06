// Package seed fills a database with built-in categories and demo data for
// development and testing.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"classifieds/internal/middleware"
	"classifieds/internal/models"
	"classifieds/internal/repository"

	"gorm.io/gorm"
)

// Options configure a seeding run.
type Options struct {
	NumUsers    int
	NumListings int
	// MaxDays bounds how far back listing timestamps are spread.
	MaxDays int
	Clean   bool
	DryRun  bool
	// FastHash hashes the shared password at bcrypt.MinCost.
	FastHash bool
	RandSeed int64
}

// Summary reports what a run created.
type Summary struct {
	Categories int
	Users      int
	Listings   int
}

// Seed inserts the built-in categories, then opts.NumUsers users owning
// opts.NumListings listings between them.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	log := middleware.Logger.With(slog.Bool("dry_run", opts.DryRun))
	log.Info("seeding database", slog.Int("users", opts.NumUsers), slog.Int("listings", opts.NumListings))

	if opts.Clean && !opts.DryRun {
		if err := clearData(ctx, db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
		log.Info("existing demo data removed")
	}

	summary := &Summary{}
	categoryRepo := repository.NewCategoryRepository(db)
	if !opts.DryRun {
		n, err := Categories(ctx, categoryRepo)
		if err != nil {
			return nil, err
		}
		summary.Categories = n
	}

	var categories []models.Category
	if !opts.DryRun {
		var err error
		if categories, err = categoryRepo.List(ctx); err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
	}

	factory, err := NewFactory(db.WithContext(ctx), opts)
	if err != nil {
		return nil, err
	}

	users, err := factory.CreateUsers(opts.NumUsers)
	if err != nil {
		return nil, fmt.Errorf("create users: %w", err)
	}
	summary.Users = len(users)

	listings, err := factory.CreateListings(users, categories, opts.NumListings)
	if err != nil {
		return nil, fmt.Errorf("create listings: %w", err)
	}
	summary.Listings = len(listings)

	log.Info("seeding complete",
		slog.Int("categories", summary.Categories),
		slog.Int("users", summary.Users),
		slog.Int("listings", summary.Listings),
	)
	return summary, nil
}

// clearData removes listings and non-staff users. Staff accounts and categories survive.
func clearData(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ListingImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.Listing{}).Error; err != nil {
			return err
		}
		return tx.Where("is_staff = ?", false).Delete(&models.User{}).Error
	})
}
