package server

import (
	"time"

	"classifieds/internal/auth"
	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/service"
)

// Page is the paginated list envelope.
type Page[T any] struct {
	Count   int64 `json:"count"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Results []T   `json:"results"`
}

func newPage[T any](results []T, total int64, page repository.Page) Page[T] {
	if results == nil {
		results = []T{}
	}
	return Page[T]{Count: total, Limit: page.Limit, Offset: page.Offset, Results: results}
}

type CategoryRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func categoryRef(c *models.Category) *CategoryRef {
	if c == nil {
		return nil
	}
	return &CategoryRef{ID: c.ID, Name: c.Name}
}

// ListingSummary is one entry of a listing page.
type ListingSummary struct {
	ID          uint                 `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Price       string               `json:"price"`
	Author      models.PublicUser    `json:"author"`
	Category    *CategoryRef         `json:"category"`
	Status      models.ListingStatus `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	Image       *string              `json:"image"`
}

type ListingImageResponse struct {
	ID        uint   `json:"id"`
	Image     string `json:"image"`
	ImageWebP string `json:"image_webp,omitempty"`
	Order     int    `json:"order"`
}

// ListingDetail is the full representation of one listing.
type ListingDetail struct {
	ListingSummary
	CategoryID  *uint                  `json:"category_id"`
	Phone       string                 `json:"phone"`
	IsModerated bool                   `json:"is_moderated"`
	Images      []ListingImageResponse `json:"images"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func toListingSummary(l *models.Listing) ListingSummary {
	return ListingSummary{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		Price:       l.Price.StringFixed(2),
		Author:      l.Author.Public(),
		Category:    categoryRef(l.Category),
		Status:      l.Status,
		CreatedAt:   l.CreatedAt,
		Image:       l.PrimaryImage(),
	}
}

func toListingSummaries(listings []models.Listing) []ListingSummary {
	out := make([]ListingSummary, len(listings))
	for i := range listings {
		out[i] = toListingSummary(&listings[i])
	}
	return out
}

func toListingDetail(l *models.Listing) ListingDetail {
	images := make([]ListingImageResponse, len(l.Images))
	for i, img := range l.Images {
		images[i] = ListingImageResponse{ID: img.ID, Image: img.Image, ImageWebP: img.ImageWebP, Order: img.Order}
	}
	return ListingDetail{
		ListingSummary: toListingSummary(l),
		CategoryID:     l.CategoryID,
		Phone:          l.Phone,
		IsModerated:    l.IsModerated,
		Images:         images,
		UpdatedAt:      l.UpdatedAt,
	}
}

func toListingDetails(listings []models.Listing) []ListingDetail {
	out := make([]ListingDetail, len(listings))
	for i := range listings {
		out[i] = toListingDetail(&listings[i])
	}
	return out
}

// ProfileResponse is the caller's own account.
type ProfileResponse struct {
	*models.User
	ActiveListingsCount int64 `json:"active_listings_count"`
}

func toProfileResponse(p *service.Profile) ProfileResponse {
	return ProfileResponse{User: p.User, ActiveListingsCount: p.ActiveListingsCount}
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User   ProfileResponse `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

// BulkResponse reports how many rows a bulk action changed.
type BulkResponse struct {
	Action  string `json:"action"`
	Updated int64  `json:"updated"`
}
