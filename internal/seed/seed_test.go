package seed

import (
	"context"
	"testing"
	"time"

	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltInCategories(t *testing.T) {
	categories, err := BuiltInCategories()
	require.NoError(t, err)
	require.NotEmpty(t, categories)

	slugs := make(map[string]bool)
	for _, c := range categories {
		assert.NotEmpty(t, c.Name)
		assert.False(t, slugs[c.Slug], "duplicate slug %s", c.Slug)
		slugs[c.Slug] = true
	}
	assert.True(t, slugs["home-garden"])
}

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{name: "slug derived from name", raw: "categories:\n  - name: Garden Tools\n", want: []string{"garden-tools"}},
		{name: "explicit slug kept", raw: "categories:\n  - name: Cars\n    slug: autos\n", want: []string{"autos"}},
		{name: "missing name", raw: "categories:\n  - slug: x\n", wantErr: true},
		{name: "duplicate slug", raw: "categories:\n  - name: A\n    slug: a\n  - name: B\n    slug: a\n", wantErr: true},
		{name: "not yaml", raw: "categories: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCategories([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			slugs := make([]string, len(got))
			for i, c := range got {
				slugs[i] = c.Slug
			}
			assert.Equal(t, tt.want, slugs)
		})
	}
}

func TestCategories_Idempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewCategoryRepository(db)
	ctx := context.Background()

	n, err := Categories(ctx, repo)
	require.NoError(t, err)
	_, err = Categories(ctx, repo)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Category{}).Count(&count).Error)
	assert.EqualValues(t, n, count)
}

func TestBuildListing(t *testing.T) {
	f, err := NewFactory(nil, Options{DryRun: true, MaxDays: 30, FastHash: true, RandSeed: 42})
	require.NoError(t, err)
	author := f.BuildUser(1)
	author.ID = 7
	categories := []models.Category{{ID: 3, Name: "Pets", Slug: "pets"}}

	for i := 0; i < 50; i++ {
		l := f.BuildListing(author, categories)
		assert.Equal(t, author.ID, l.AuthorID)
		assert.NotEmpty(t, l.Title)
		assert.LessOrEqual(t, len(l.Title), 200)
		assert.True(t, l.Price.IsPositive())
		assert.LessOrEqual(t, l.Price.Exponent()*-1, int32(2))
		assert.True(t, l.Status.Valid())
		assert.WithinDuration(t, time.Now(), l.CreatedAt, 31*24*time.Hour)
		if l.CategoryID != nil {
			assert.Equal(t, uint(3), *l.CategoryID)
		}
	}
}

func TestSeed(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	summary, err := Seed(ctx, db, Options{NumUsers: 4, NumListings: 12, FastHash: true, RandSeed: 7})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Users)
	assert.Equal(t, 12, summary.Listings)

	var users, listings int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Listing{}).Count(&listings).Error)
	assert.EqualValues(t, 4, users)
	assert.EqualValues(t, 12, listings)

	admin := testutil.CreateUser(t, db, "admin", true)
	summary, err = Seed(ctx, db, Options{NumUsers: 1, NumListings: 1, Clean: true, FastHash: true, RandSeed: 8})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Users)

	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.EqualValues(t, 2, users)
	var kept models.User
	require.NoError(t, db.First(&kept, admin.ID).Error)
	assert.True(t, kept.IsStaff)
}

func TestSeed_DryRunWritesNothing(t *testing.T) {
	db := testutil.NewTestDB(t)

	summary, err := Seed(context.Background(), db, Options{NumUsers: 3, NumListings: 5, DryRun: true, FastHash: true})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Users)
	assert.Equal(t, 5, summary.Listings)

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users)
}
