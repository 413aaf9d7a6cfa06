package repository

import (
	"context"
	"time"

	"classifieds/internal/models"

	"gorm.io/gorm"
)

// UserActivity is one row of the top-authors table.
type UserActivity struct {
	ID            uint   `json:"id"`
	Username      string `json:"username"`
	ListingsCount int64  `json:"listings_count"`
}

// StatsRepository runs the read-only aggregates behind the admin dashboard.
type StatsRepository interface {
	CountUsers(ctx context.Context) (int64, error)
	CountListings(ctx context.Context, status models.ListingStatus) (int64, error)
	CountListingsSince(ctx context.Context, since time.Time) (int64, error)
	CountAuthors(ctx context.Context) (int64, error)
	TopAuthors(ctx context.Context, limit int) ([]UserActivity, error)
}

type statsRepository struct {
	db *gorm.DB
}

// NewStatsRepository returns a new StatsRepository implementation.
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

// CountListings counts listings with status, or all listings when status is empty.
func (r *statsRepository) CountListings(ctx context.Context, status models.ListingStatus) (int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Listing{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

// CountListingsSince counts listings created at or after since, whatever its location.
func (r *statsRepository) CountListingsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Listing{}).
		Where("created_at >= ?", since.UTC()).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

// CountAuthors counts users with at least one listing.
func (r *statsRepository) CountAuthors(ctx context.Context) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Listing{}).
		Distinct("author_id").Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

// TopAuthors returns the users with the most listings, ties broken by lowest id.
func (r *statsRepository) TopAuthors(ctx context.Context, limit int) ([]UserActivity, error) {
	var rows []UserActivity
	if err := readDB(r.db).WithContext(ctx).
		Table("users").
		Select("users.id AS id, users.username AS username, COUNT(listings.id) AS listings_count").
		Joins("JOIN listings ON listings.author_id = users.id").
		Group("users.id, users.username").
		Order("listings_count DESC, users.id ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return rows, nil
}
