package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"classifieds/internal/models"
	"classifieds/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- parsePagination ---

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		limit  float64
		offset float64
	}{
		{"defaults", "", 25, 0},
		{"custom", "?limit=10&offset=30", 10, 30},
		{"clamped", "?limit=1000&offset=-5", float64(repository.MaxPageSize), 0},
		{"zero limit falls back", "?limit=0", 25, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/items", func(c *fiber.Ctx) error {
				p := parsePagination(c, 25)
				return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			var body map[string]float64
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.limit, body["limit"])
			assert.Equal(t, tt.offset, body["offset"])
		})
	}
}

// --- parseID ---

func TestParseID(t *testing.T) {
	tests := []struct {
		path        string
		status      int
		expectedMsg string
	}{
		{"/items/42", http.StatusOK, ""},
		{"/items/abc", http.StatusBadRequest, "Invalid ID"},
		{"/items/0", http.StatusBadRequest, "Invalid ID"},
		{"/items/-3", http.StatusBadRequest, "Invalid ID"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			app := fiber.New()
			app.Get("/items/:id", func(c *fiber.Ctx) error {
				id, err := parseID(c)
				if err != nil {
					return respondError(c, err)
				}
				return c.JSON(fiber.Map{"id": id})
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.expectedMsg != "" {
				var body models.ErrorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.expectedMsg, body.Error)
				assert.Equal(t, models.CodeValidation, body.Code)
			}
		})
	}
}

// --- parseListingFilter ---

func TestParseListingFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
		check   func(t *testing.T, f repository.ListingFilter)
	}{
		{
			name:  "all filters",
			query: "?category=3&price_min=10&price_max=99.50&status=inactive&q=bike&ordering=-price&limit=5&offset=10",
			check: func(t *testing.T, f repository.ListingFilter) {
				require.NotNil(t, f.CategoryID)
				assert.EqualValues(t, 3, *f.CategoryID)
				assert.Equal(t, "10", f.PriceMin.String())
				assert.Equal(t, "99.5", f.PriceMax.String())
				assert.EqualValues(t, "inactive", f.Status)
				assert.Equal(t, "bike", f.Search)
				assert.Equal(t, "-price", f.Ordering)
				assert.Equal(t, repository.Page{Limit: 5, Offset: 10}, f.Page)
			},
		},
		{
			name:  "search alias",
			query: "?search=lamp",
			check: func(t *testing.T, f repository.ListingFilter) {
				assert.Equal(t, "lamp", f.Search)
				assert.Nil(t, f.CategoryID)
				assert.Nil(t, f.PriceMin)
			},
		},
		{name: "bad category", query: "?category=abc", wantErr: true},
		{name: "bad price", query: "?price_min=cheap", wantErr: true},
		{name: "bad status", query: "?status=sold", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			var (
				got    repository.ListingFilter
				gotErr error
			)
			app.Get("/listings", func(c *fiber.Ctx) error {
				got, gotErr = parseListingFilter(c)
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/listings"+tt.query, nil))
			require.NoError(t, err)
			_ = resp.Body.Close()

			if tt.wantErr {
				assert.Error(t, gotErr)
				return
			}
			require.NoError(t, gotErr)
			tt.check(t, got)
		})
	}
}

func TestParseCategoryRef(t *testing.T) {
	ref, err := parseCategoryRef("")
	require.NoError(t, err)
	assert.Nil(t, ref.ID)

	ref, err = parseCategoryRef("null")
	require.NoError(t, err)
	assert.Nil(t, ref.ID)

	ref, err = parseCategoryRef(" 7 ")
	require.NoError(t, err)
	require.NotNil(t, ref.ID)
	assert.EqualValues(t, 7, *ref.ID)

	_, err = parseCategoryRef("seven")
	assert.Error(t, err)
}
