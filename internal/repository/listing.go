package repository

import (
	"context"
	"errors"

	"classifieds/internal/models"
	"classifieds/internal/observability"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListingFilter narrows listing reads. Zero values mean "no constraint".
type ListingFilter struct {
	// PublicOnly restricts results to active, moderated listings.
	PublicOnly bool
	AuthorID   *uint
	CategoryID *uint
	PriceMin   *decimal.Decimal
	PriceMax   *decimal.Decimal
	Status     models.ListingStatus
	Search     string
	// SearchAuthor extends Search to the author's username.
	SearchAuthor bool
	Ordering     string
	Page         Page
}

// DefaultListingOrdering is newest first.
const DefaultListingOrdering = "-created_at"

var listingOrderings = map[string]string{
	"created_at":  "listings.created_at ASC",
	"-created_at": "listings.created_at DESC",
	"price":       "listings.price ASC",
	"-price":      "listings.price DESC",
	"status":      "listings.status ASC",
	"-status":     "listings.status DESC",
}

// ValidListingOrdering reports whether ordering is understood by List.
func ValidListingOrdering(ordering string) bool {
	_, ok := listingOrderings[ordering]
	return ok
}

// ListingRepository defines persistence operations for listings and their images.
type ListingRepository interface {
	List(ctx context.Context, filter ListingFilter) ([]models.Listing, int64, error)
	GetByID(ctx context.Context, id uint) (*models.Listing, error)
	Create(ctx context.Context, listing *models.Listing) error
	Update(ctx context.Context, id uint, fields map[string]any, images []models.ListingImage) ([]models.ListingImage, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	BulkUpdate(ctx context.Context, ids []uint, fields map[string]any) ([]uint, error)
	Delete(ctx context.Context, id uint) ([]models.ListingImage, error)
}

type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository returns a new ListingRepository implementation.
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func orderedImages(db *gorm.DB) *gorm.DB {
	return db.Order("listing_images.sort_order ASC, listing_images.created_at ASC, listing_images.id ASC")
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Author").Preload("Category").Preload("Images", orderedImages)
}

func (r *listingRepository) applyFilter(q *gorm.DB, f ListingFilter) *gorm.DB {
	if f.PublicOnly {
		q = q.Where("listings.status = ? AND listings.is_moderated = ?", models.ListingStatusActive, true)
	}
	if f.AuthorID != nil {
		q = q.Where("listings.author_id = ?", *f.AuthorID)
	}
	if f.CategoryID != nil {
		q = q.Where("listings.category_id = ?", *f.CategoryID)
	}
	if f.PriceMin != nil {
		q = q.Where("listings.price >= ?", *f.PriceMin)
	}
	if f.PriceMax != nil {
		q = q.Where("listings.price <= ?", *f.PriceMax)
	}
	if f.Status != "" {
		q = q.Where("listings.status = ?", f.Status)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		if f.SearchAuthor {
			q = q.Where(`(LOWER(listings.title) LIKE ? ESCAPE '\' OR LOWER(listings.description) LIKE ? ESCAPE '\' OR listings.author_id IN (SELECT id FROM users WHERE LOWER(username) LIKE ? ESCAPE '\'))`, p, p, p)
		} else {
			q = q.Where(`(LOWER(listings.title) LIKE ? ESCAPE '\' OR LOWER(listings.description) LIKE ? ESCAPE '\')`, p, p)
		}
	}
	return q
}

func (r *listingRepository) List(ctx context.Context, filter ListingFilter) ([]models.Listing, int64, error) {
	defer observability.TrackQuery("list", "listings")()

	db := readDB(r.db).WithContext(ctx)
	page := filter.Page.Normalize()

	var total int64
	if err := r.applyFilter(db.Model(&models.Listing{}), filter).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	order, ok := listingOrderings[filter.Ordering]
	if !ok {
		order = listingOrderings[DefaultListingOrdering]
	}

	var listings []models.Listing
	if err := withRelations(r.applyFilter(db.Model(&models.Listing{}), filter)).
		Order(order).Order("listings.id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&listings).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return listings, total, nil
}

func (r *listingRepository) GetByID(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := withRelations(readDB(r.db).WithContext(ctx)).First(&listing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Listing", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &listing, nil
}

// Create writes the listing and its images in one transaction.
func (r *listingRepository) Create(ctx context.Context, listing *models.Listing) error {
	defer observability.TrackQuery("create", "listings")()

	images := listing.Images
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(listing).Error; err != nil {
			return err
		}
		if len(images) == 0 {
			return nil
		}
		for i := range images {
			images[i].ListingID = listing.ID
		}
		return tx.Create(&images).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	listing.Images = images
	return nil
}

// Update applies fields and, when images is non-nil, replaces the image set.
// It returns the image rows that were removed so their blobs can be deleted.
func (r *listingRepository) Update(ctx context.Context, id uint, fields map[string]any, images []models.ListingImage) ([]models.ListingImage, error) {
	defer observability.TrackQuery("update", "listings")()

	var removed []models.ListingImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Listing{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return models.NewNotFoundError("Listing", id)
		}

		if images != nil {
			// Touch updated_at even when only the images change.
			if len(fields) == 0 {
				fields = map[string]any{"updated_at": tx.NowFunc()}
			}
			if err := tx.Where("listing_id = ?", id).Find(&removed).Error; err != nil {
				return err
			}
			if err := tx.Where("listing_id = ?", id).Delete(&models.ListingImage{}).Error; err != nil {
				return err
			}
			for i := range images {
				images[i].ID = 0
				images[i].ListingID = id
			}
			if len(images) > 0 {
				if err := tx.Create(&images).Error; err != nil {
					return err
				}
			}
		}

		if len(fields) > 0 {
			if err := tx.Model(&models.Listing{}).Where("id = ?", id).Updates(fields).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, models.NewInternalError(err)
	}
	return removed, nil
}

// UpdateFields sets columns on one listing.
func (r *listingRepository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Listing{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Listing", id)
	}
	return nil
}

// BulkUpdate sets columns on every existing listing in ids and returns the
// ids it changed.
func (r *listingRepository) BulkUpdate(ctx context.Context, ids []uint, fields map[string]any) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	defer observability.TrackQuery("bulk_update", "listings")()

	var updated []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Listing{}).Where("id IN ?", ids).Order("id").Pluck("id", &updated).Error; err != nil {
			return err
		}
		if len(updated) == 0 {
			return nil
		}
		return tx.Model(&models.Listing{}).Where("id IN ?", updated).Updates(fields).Error
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return updated, nil
}

// Delete removes the images and then the listing, returning the removed images.
func (r *listingRepository) Delete(ctx context.Context, id uint) ([]models.ListingImage, error) {
	defer observability.TrackQuery("delete", "listings")()

	var removed []models.ListingImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", id).Find(&removed).Error; err != nil {
			return err
		}
		if err := tx.Where("listing_id = ?", id).Delete(&models.ListingImage{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Listing{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Listing", id)
		}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, models.NewInternalError(err)
	}
	return removed, nil
}
