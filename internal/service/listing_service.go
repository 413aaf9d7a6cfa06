package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"classifieds/internal/access"
	"classifieds/internal/events"
	"classifieds/internal/media"
	"classifieds/internal/models"
	"classifieds/internal/observability"
	"classifieds/internal/repository"
	"classifieds/internal/storage"
	"classifieds/internal/validation"

	"github.com/shopspring/decimal"
)

// ListingImagePrefix is the object-key prefix for listing photos.
const ListingImagePrefix = "listing_images"

const (
	maxTitleLength    = 200
	maxPriceDigits    = 10
	maxPriceDecimals  = 2
	requiredFieldText = "This field is required."
)

var publicOrderings = map[string]bool{
	"created_at":  true,
	"-created_at": true,
	"price":       true,
	"-price":      true,
}

// ListingPolicy holds the configurable listing rules.
type ListingPolicy struct {
	// AutoApprove decides whether new listings start moderated.
	AutoApprove bool
	MaxImages   int
}

// CategoryRef sets or clears a listing's category. A nil ID clears it.
type CategoryRef struct {
	ID *uint
}

// ListingInput carries the writable listing fields. Nil fields are left unchanged.
type ListingInput struct {
	Title       *string
	Description *string
	Price       *string
	Phone       *string
	Status      *string
	Category    *CategoryRef
	Images      []media.Upload
	// ReplaceImages is set when the request carried an image set, even an empty one.
	ReplaceImages bool
}

type ListingService struct {
	listings   repository.ListingRepository
	categories repository.CategoryRepository
	images     *media.Processor
	publisher  events.Publisher
	policy     ListingPolicy
}

func NewListingService(
	listings repository.ListingRepository,
	categories repository.CategoryRepository,
	images *media.Processor,
	publisher events.Publisher,
	policy ListingPolicy,
) *ListingService {
	if policy.MaxImages <= 0 || policy.MaxImages > models.MaxListingImages {
		policy.MaxImages = models.MaxListingImages
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ListingService{
		listings:   listings,
		categories: categories,
		images:     images,
		publisher:  publisher,
		policy:     policy,
	}
}

// ListPublic returns active, moderated listings only, whatever the filter asks for.
func (s *ListingService) ListPublic(ctx context.Context, filter repository.ListingFilter) ([]models.Listing, int64, error) {
	filter.PublicOnly = true
	filter.SearchAuthor = false
	filter.AuthorID = nil
	if !publicOrderings[filter.Ordering] {
		filter.Ordering = repository.DefaultListingOrdering
	}
	return s.listings.List(ctx, filter)
}

// Search matches q against public listings' titles and descriptions.
func (s *ListingService) Search(ctx context.Context, q string, page repository.Page) ([]models.Listing, int64, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, 0, models.NewValidationError("Search query parameter 'q' is required")
	}
	return s.ListPublic(ctx, repository.ListingFilter{Search: q, Page: page})
}

// Get returns a listing. Listings that are not public are only visible to
// their author and staff; everyone else gets NotFound.
func (s *ListingService) Get(ctx context.Context, actor *access.Actor, id uint) (*models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanView(actor, listing) {
		return nil, models.NewNotFoundError("Listing", id)
	}
	return listing, nil
}

// Mine returns every listing authored by actor, newest first.
func (s *ListingService) Mine(ctx context.Context, actor *access.Actor, page repository.Page) ([]models.Listing, int64, error) {
	if actor == nil {
		return nil, 0, models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	return s.listings.List(ctx, repository.ListingFilter{
		AuthorID: &actor.ID,
		Ordering: repository.DefaultListingOrdering,
		Page:     page,
	})
}

func (s *ListingService) checkImageCount(n int) error {
	if n > s.policy.MaxImages {
		return models.NewValidationError(fmt.Sprintf("Maximum %d images allowed per listing.", s.policy.MaxImages))
	}
	return nil
}

// Create stores a new listing authored by actor together with its images.
func (s *ListingService) Create(ctx context.Context, actor *access.Actor, in ListingInput) (*models.Listing, error) {
	if err := s.checkImageCount(len(in.Images)); err != nil {
		return nil, err
	}
	if err := access.NotBlocked(actor); err != nil {
		return nil, err
	}
	required := []struct {
		name  string
		value *string
	}{
		{"title", in.Title},
		{"description", in.Description},
		{"price", in.Price},
		{"phone", in.Phone},
	}
	for _, f := range required {
		if f.value == nil {
			return nil, models.NewValidationError(f.name + ": " + requiredFieldText)
		}
	}

	listing := &models.Listing{
		AuthorID:    actor.ID,
		Status:      models.ListingStatusActive,
		IsModerated: s.policy.AutoApprove,
	}
	if _, err := s.applyListingFields(ctx, listing, in); err != nil {
		return nil, err
	}

	stored, err := s.saveImages(ctx, in.Images)
	if err != nil {
		return nil, err
	}
	listing.Images = imageRows(stored)

	if err := s.listings.Create(ctx, listing); err != nil {
		s.deleteBlobs(context.WithoutCancel(ctx), media.URLs(stored))
		return nil, err
	}

	observability.ListingsCreated.WithLabelValues(strconv.FormatBool(listing.IsModerated)).Inc()
	events.Emit(ctx, s.publisher, events.SubjectListingCreated, listing.ID, actor.ID, "")

	return s.listings.GetByID(ctx, listing.ID)
}

// Update applies a partial update. When the input carries images, the stored
// set is replaced wholesale and the old blobs are removed afterwards.
func (s *ListingService) Update(ctx context.Context, actor *access.Actor, id uint, in ListingInput) (*models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.OwnerOrAdmin(actor, listing.AuthorID, true); err != nil {
		return nil, err
	}
	if !actor.IsStaffMember() {
		if err := access.NotBlocked(actor); err != nil {
			return nil, err
		}
	}
	if in.ReplaceImages {
		if err := s.checkImageCount(len(in.Images)); err != nil {
			return nil, err
		}
	}

	fields, err := s.applyListingFields(ctx, listing, in)
	if err != nil {
		return nil, err
	}

	var (
		stored    []media.Stored
		newImages []models.ListingImage
	)
	if in.ReplaceImages {
		stored, err = s.saveImages(ctx, in.Images)
		if err != nil {
			return nil, err
		}
		newImages = imageRows(stored)
		if newImages == nil {
			newImages = []models.ListingImage{}
		}
	}

	removed, err := s.listings.Update(ctx, id, fields, newImages)
	if err != nil {
		s.deleteBlobs(context.WithoutCancel(ctx), media.URLs(stored))
		return nil, err
	}
	s.deleteBlobs(ctx, imageURLs(removed))

	events.Emit(ctx, s.publisher, events.SubjectListingUpdated, id, actor.ID, "")
	return s.listings.GetByID(ctx, id)
}

// Delete removes a listing and its images.
func (s *ListingService) Delete(ctx context.Context, actor *access.Actor, id uint) error {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := access.OwnerOrAdmin(actor, listing.AuthorID, true); err != nil {
		return err
	}
	if !actor.IsStaffMember() {
		if err := access.NotBlocked(actor); err != nil {
			return err
		}
	}

	removed, err := s.listings.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.deleteBlobs(ctx, imageURLs(removed))
	events.Emit(ctx, s.publisher, events.SubjectListingDeleted, id, actor.ID, "")
	return nil
}

// deleteBlobs removes stored assets best-effort.
func (s *ListingService) deleteBlobs(ctx context.Context, urls []string) {
	if len(urls) == 0 || s.images == nil {
		return
	}
	storage.DeleteAll(ctx, s.images.Store(), urls)
}

func (s *ListingService) saveImages(ctx context.Context, uploads []media.Upload) ([]media.Stored, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if s.images == nil {
		return nil, models.NewValidationError("Image uploads are not accepted")
	}
	return s.images.SaveAll(ctx, ListingImagePrefix, uploads)
}

// applyListingFields validates the whitelisted fields present in in, copies
// them onto listing and returns the matching column set.
func (s *ListingService) applyListingFields(ctx context.Context, listing *models.Listing, in ListingInput) (map[string]any, error) {
	fields := map[string]any{}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, models.NewValidationError("title: This field may not be blank.")
		}
		if utf8.RuneCountInString(title) > maxTitleLength {
			return nil, models.NewValidationError("title: Ensure this field has no more than 200 characters.")
		}
		listing.Title = title
		fields["title"] = title
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		if description == "" {
			return nil, models.NewValidationError("description: This field may not be blank.")
		}
		listing.Description = description
		fields["description"] = description
	}
	if in.Price != nil {
		price, err := parsePrice(*in.Price)
		if err != nil {
			return nil, err
		}
		listing.Price = price
		fields["price"] = price
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if err := validation.ValidatePhone(phone); err != nil {
			return nil, models.NewValidationError("phone: " + err.Error())
		}
		listing.Phone = phone
		fields["phone"] = phone
	}
	if in.Status != nil {
		status := models.ListingStatus(strings.TrimSpace(*in.Status))
		if !status.Valid() {
			return nil, models.NewValidationError(fmt.Sprintf("status: %q is not a valid choice.", status))
		}
		listing.Status = status
		fields["status"] = status
	}
	if in.Category != nil {
		if in.Category.ID != nil {
			ok, err := s.categories.Exists(ctx, *in.Category.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, models.NewValidationError(fmt.Sprintf("category: Invalid pk \"%d\" - object does not exist.", *in.Category.ID))
			}
		}
		listing.CategoryID = in.Category.ID
		fields["category_id"] = in.Category.ID
	}
	return fields, nil
}

// parsePrice accepts a non-negative decimal with at most 10 digits, 2 of them after the point.
func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, models.NewValidationError("price: A valid number is required.")
	}
	if price.IsNegative() {
		return decimal.Decimal{}, models.NewValidationError("price: Ensure this value is greater than or equal to 0.")
	}

	places := 0
	if exp := price.Exponent(); exp < 0 {
		places = int(-exp)
	}
	digits := len(price.Coefficient().String())
	if exp := price.Exponent(); exp > 0 {
		digits += int(exp)
	}
	whole := digits - places
	if whole < 0 {
		whole = 0
	}

	if places > maxPriceDecimals {
		return decimal.Decimal{}, models.NewValidationError("price: Ensure that there are no more than 2 decimal places.")
	}
	if whole+places > maxPriceDigits || whole > maxPriceDigits-maxPriceDecimals {
		return decimal.Decimal{}, models.NewValidationError("price: Ensure that there are no more than 8 digits before the decimal point.")
	}
	return price, nil
}

func imageRows(stored []media.Stored) []models.ListingImage {
	if len(stored) == 0 {
		return nil
	}
	rows := make([]models.ListingImage, len(stored))
	for i, st := range stored {
		rows[i] = models.ListingImage{Image: st.URL, ImageWebP: st.WebPURL, Order: i}
	}
	return rows
}

func imageURLs(images []models.ListingImage) []string {
	urls := make([]string, 0, len(images)*2)
	for _, img := range images {
		urls = append(urls, img.Image)
		if img.ImageWebP != "" {
			urls = append(urls, img.ImageWebP)
		}
	}
	return urls
}
