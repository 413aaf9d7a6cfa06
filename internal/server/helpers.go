package server

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"classifieds/internal/media"
	"classifieds/internal/models"
	"classifieds/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// respondError writes err with the status its code maps to.
func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusFor(err), err)
}

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) repository.Page {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	return repository.Page{Limit: limit, Offset: c.QueryInt("offset", 0)}.Normalize()
}

// parseID reads the :id route parameter as a positive uint.
func parseID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("Invalid ID")
	}
	return uint(id), nil
}

// parseListingFilter reads the listing query parameters shared by the public
// and admin listing views.
func parseListingFilter(c *fiber.Ctx) (repository.ListingFilter, error) {
	filter := repository.ListingFilter{
		Search:   strings.TrimSpace(c.Query("q", c.Query("search"))),
		Ordering: strings.TrimSpace(c.Query("ordering")),
		Page:     parsePagination(c, repository.DefaultPageSize),
		Status:   models.ListingStatus(strings.TrimSpace(c.Query("status"))),
	}

	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return filter, models.NewValidationError("category: Select a valid choice.")
		}
		categoryID := uint(id)
		filter.CategoryID = &categoryID
	}

	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"price_min", &filter.PriceMin},
		{"price_max", &filter.PriceMax},
	} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, models.NewValidationError(p.name + ": Enter a number.")
		}
		*p.dst = &v
	}

	if filter.Status != "" && !filter.Status.Valid() {
		return filter, models.NewValidationError("status: Select a valid choice.")
	}
	return filter, nil
}

// readUploads loads the uploaded files into memory.
func readUploads(files []*multipart.FileHeader) ([]media.Upload, error) {
	uploads := make([]media.Upload, 0, len(files))
	for _, fh := range files {
		upload, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func readUpload(fh *multipart.FileHeader) (media.Upload, error) {
	src, err := fh.Open()
	if err != nil {
		return media.Upload{}, models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return media.Upload{}, models.NewValidationError("Unable to read uploaded file")
	}
	return media.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}, nil
}

// isMultipart reports whether the request body is multipart/form-data.
func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}

// formValue returns a pointer to the named multipart value, or nil when absent.
func formValue(form *multipart.Form, name string) *string {
	values, ok := form.Value[name]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}
