package server

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/service"

	"github.com/gofiber/fiber/v2"
)

// imagesField is the multipart field carrying listing photos.
const imagesField = "images_data"

// ListListings handles GET /api/listings
func (s *Server) ListListings(c *fiber.Ctx) error {
	filter, err := parseListingFilter(c)
	if err != nil {
		return respondError(c, err)
	}

	listings, total, err := s.listingService.ListPublic(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newPage(toListingSummaries(listings), total, filter.Page))
}

// SearchListings handles GET /api/listings/search?q=
func (s *Server) SearchListings(c *fiber.Ctx) error {
	page := parsePagination(c, repository.DefaultPageSize)
	listings, total, err := s.listingService.Search(c.UserContext(), c.Query("q"), page)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newPage(toListingSummaries(listings), total, page))
}

// MyListings handles GET /api/listings/my
func (s *Server) MyListings(c *fiber.Ctx) error {
	page := parsePagination(c, repository.DefaultPageSize)
	listings, total, err := s.listingService.Mine(c.UserContext(), actorFrom(c), page)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newPage(toListingDetails(listings), total, page))
}

// GetListing handles GET /api/listings/:id
func (s *Server) GetListing(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}

	listing, err := s.listingService.Get(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toListingDetail(listing))
}

// CreateListing handles POST /api/listings
func (s *Server) CreateListing(c *fiber.Ctx) error {
	in, err := parseListingInput(c)
	if err != nil {
		return respondError(c, err)
	}

	listing, err := s.listingService.Create(c.UserContext(), actorFrom(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toListingDetail(listing))
}

// UpdateListing handles PUT and PATCH /api/listings/:id. Both are partial:
// absent fields keep their value, and a present images_data replaces every image.
func (s *Server) UpdateListing(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	in, err := parseListingInput(c)
	if err != nil {
		return respondError(c, err)
	}

	listing, err := s.listingService.Update(c.UserContext(), actorFrom(c), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toListingDetail(listing))
}

// DeleteListing handles DELETE /api/listings/:id
func (s *Server) DeleteListing(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := s.listingService.Delete(c.UserContext(), actorFrom(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// parseListingInput reads listing fields from multipart form data (the only
// way to send images) or from a JSON body.
func parseListingInput(c *fiber.Ctx) (service.ListingInput, error) {
	if isMultipart(c) {
		return parseListingForm(c)
	}
	return parseListingJSON(c)
}

func parseListingForm(c *fiber.Ctx) (service.ListingInput, error) {
	var in service.ListingInput
	form, err := c.MultipartForm()
	if err != nil {
		return in, models.NewValidationError("Invalid request body")
	}

	in.Title = formValue(form, "title")
	in.Description = formValue(form, "description")
	in.Price = formValue(form, "price")
	in.Phone = formValue(form, "phone")
	in.Status = formValue(form, "status")

	if raw := formValue(form, "category"); raw != nil {
		ref, err := parseCategoryRef(*raw)
		if err != nil {
			return in, err
		}
		in.Category = ref
	}

	files := form.File[imagesField]
	// An empty images_data value clears every image.
	_, cleared := form.Value[imagesField]
	in.ReplaceImages = len(files) > 0 || cleared
	if len(files) > 0 {
		uploads, err := readUploads(files)
		if err != nil {
			return in, err
		}
		in.Images = uploads
	}
	return in, nil
}

type listingJSON struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Price       json.RawMessage `json:"price"`
	Phone       *string         `json:"phone"`
	Status      *string         `json:"status"`
	Category    json.RawMessage `json:"category"`
}

func parseListingJSON(c *fiber.Ctx) (service.ListingInput, error) {
	var in service.ListingInput
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return in, nil
	}

	var req listingJSON
	if err := json.Unmarshal(body, &req); err != nil {
		return in, models.NewValidationError("Invalid request body")
	}

	in.Title, in.Description, in.Phone, in.Status = req.Title, req.Description, req.Phone, req.Status

	if len(req.Price) > 0 && string(req.Price) != "null" {
		// Prices may arrive as JSON numbers or strings.
		price := strings.Trim(string(req.Price), `"`)
		in.Price = &price
	}

	if len(req.Category) > 0 {
		ref, err := parseCategoryRef(strings.Trim(string(req.Category), `"`))
		if err != nil {
			return in, err
		}
		in.Category = ref
	}
	return in, nil
}

// parseCategoryRef turns "", "null" or an id into a category reference.
func parseCategoryRef(raw string) (*service.CategoryRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return &service.CategoryRef{}, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, models.NewValidationError("category: Incorrect type. Expected pk value.")
	}
	categoryID := uint(id)
	return &service.CategoryRef{ID: &categoryID}, nil
}
