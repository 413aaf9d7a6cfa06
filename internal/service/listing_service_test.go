package service

import (
	"context"
	"strings"
	"testing"

	"classifieds/internal/access"
	"classifieds/internal/events"
	"classifieds/internal/media"
	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type listingFixture struct {
	db       *gorm.DB
	svc      *ListingService
	store    *testutil.MemoryStore
	recorder *events.Recorder
}

func newListingFixture(t *testing.T, autoApprove bool) *listingFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := testutil.NewMemoryStore()
	recorder := &events.Recorder{}
	svc := NewListingService(
		repository.NewListingRepository(db),
		repository.NewCategoryRepository(db),
		media.NewProcessor(store, 1, false),
		recorder,
		ListingPolicy{AutoApprove: autoApprove, MaxImages: models.MaxListingImages},
	)
	return &listingFixture{db: db, svc: svc, store: store, recorder: recorder}
}

func validListingInput() ListingInput {
	return ListingInput{
		Title:       strPtr("Road bike"),
		Description: strPtr("Carbon frame, 56cm"),
		Price:       strPtr("450.00"),
		Phone:       strPtr("+1 555-0101"),
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestListingService_CreateWithImages(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)

	in := validListingInput()
	in.Images = pngUploads(t, 3)

	listing, err := f.svc.Create(context.Background(), access.FromUser(alice), in)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, listing.AuthorID)
	assert.Equal(t, models.ListingStatusActive, listing.Status)
	assert.True(t, listing.IsModerated)
	require.Len(t, listing.Images, 3)
	for i, img := range listing.Images {
		assert.Equal(t, i, img.Order)
		assert.True(t, f.store.Has(img.Image))
	}
	assert.Equal(t, []string{events.SubjectListingCreated}, f.recorder.Subjects())
}

func TestListingService_CreateRespectsModerationPolicy(t *testing.T) {
	f := newListingFixture(t, false)
	alice := testutil.CreateUser(t, f.db, "alice", false)

	listing, err := f.svc.Create(context.Background(), access.FromUser(alice), validListingInput())
	require.NoError(t, err)
	assert.False(t, listing.IsModerated)

	public, total, err := f.svc.ListPublic(context.Background(), repository.ListingFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, public)
}

func TestListingService_CreateSixImagesPersistsNothing(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)

	in := validListingInput()
	in.Images = pngUploads(t, 6)

	_, err := f.svc.Create(context.Background(), access.FromUser(alice), in)
	assertValidationError(t, err)
	assert.Zero(t, countRows(t, f.db, &models.Listing{}))
	assert.Zero(t, countRows(t, f.db, &models.ListingImage{}))
	assert.Zero(t, f.store.Len())
}

func TestListingService_CreateValidation(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)
	actor := access.FromUser(alice)
	missing := uint(999)

	tests := []struct {
		name   string
		mutate func(*ListingInput)
	}{
		{"missing title", func(in *ListingInput) { in.Title = nil }},
		{"blank description", func(in *ListingInput) { in.Description = strPtr("  ") }},
		{"title too long", func(in *ListingInput) { in.Title = strPtr(strings.Repeat("a", 201)) }},
		{"negative price", func(in *ListingInput) { in.Price = strPtr("-1") }},
		{"three decimals", func(in *ListingInput) { in.Price = strPtr("1.005") }},
		{"too many digits", func(in *ListingInput) { in.Price = strPtr("123456789.00") }},
		{"not a number", func(in *ListingInput) { in.Price = strPtr("cheap") }},
		{"missing phone", func(in *ListingInput) { in.Phone = nil }},
		{"bad status", func(in *ListingInput) { in.Status = strPtr("sold") }},
		{"unknown category", func(in *ListingInput) { in.Category = &CategoryRef{ID: &missing} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validListingInput()
			tt.mutate(&in)
			_, err := f.svc.Create(context.Background(), actor, in)
			assertValidationError(t, err)
		})
	}
	assert.Zero(t, countRows(t, f.db, &models.Listing{}))
}

func TestListingService_BlockedUserCannotCreate(t *testing.T) {
	f := newListingFixture(t, true)
	bob := testutil.CreateUser(t, f.db, "bob", false)
	actor := access.FromUser(bob)
	actor.IsBlocked = true

	_, err := f.svc.Create(context.Background(), actor, validListingInput())
	assertForbiddenError(t, err)

	_, err = f.svc.Create(context.Background(), nil, validListingInput())
	assertUnauthorizedError(t, err)
}

func TestListingService_UpdateReplacesImagesInOrder(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)
	actor := access.FromUser(alice)
	ctx := context.Background()

	in := validListingInput()
	in.Images = pngUploads(t, 3)
	created, err := f.svc.Create(ctx, actor, in)
	require.NoError(t, err)
	oldURLs := []string{created.Images[0].Image, created.Images[1].Image, created.Images[2].Image}

	updated, err := f.svc.Update(ctx, actor, created.ID, ListingInput{
		Title:         strPtr("Road bike, price drop"),
		Images:        pngUploads(t, 2),
		ReplaceImages: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Road bike, price drop", updated.Title)
	assert.Equal(t, "Carbon frame, 56cm", updated.Description)
	require.Len(t, updated.Images, 2)
	assert.Equal(t, 0, updated.Images[0].Order)
	assert.Equal(t, 1, updated.Images[1].Order)
	assert.EqualValues(t, 2, countRows(t, f.db, &models.ListingImage{}))

	for _, u := range oldURLs {
		assert.False(t, f.store.Has(u), "old blob %s should be removed", u)
	}
	assert.Equal(t, 2, f.store.Len())
}

func TestListingService_UpdateWithoutImagesKeepsThem(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)
	listing := testutil.CreateListing(t, f.db, alice, "Desk", testutil.WithImages("/media/a.jpg"))

	updated, err := f.svc.Update(context.Background(), access.FromUser(alice), listing.ID, ListingInput{
		Status:   strPtr("inactive"),
		Category: &CategoryRef{},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusInactive, updated.Status)
	assert.Nil(t, updated.CategoryID)
	require.Len(t, updated.Images, 1)
}

func TestListingService_UpdatePermissions(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)
	bob := testutil.CreateUser(t, f.db, "bob", false)
	admin := testutil.CreateUser(t, f.db, "admin", true)
	listing := testutil.CreateListing(t, f.db, bob, "Lamp")
	ctx := context.Background()

	_, err := f.svc.Update(ctx, access.FromUser(alice), listing.ID, ListingInput{Title: strPtr("mine now")})
	assertForbiddenError(t, err)

	blockedBob := access.FromUser(bob)
	blockedBob.IsBlocked = true
	_, err = f.svc.Update(ctx, blockedBob, listing.ID, ListingInput{Title: strPtr("changed")})
	assertForbiddenError(t, err)

	var unchanged models.Listing
	require.NoError(t, f.db.First(&unchanged, listing.ID).Error)
	assert.Equal(t, "Lamp", unchanged.Title)

	updated, err := f.svc.Update(ctx, access.FromUser(admin), listing.ID, ListingInput{Title: strPtr("Lamp (edited)")})
	require.NoError(t, err)
	assert.Equal(t, "Lamp (edited)", updated.Title)

	_, err = f.svc.Update(ctx, access.FromUser(bob), 404, ListingInput{Title: strPtr("x")})
	assertNotFoundError(t, err)

	_, err = f.svc.Update(ctx, access.FromUser(bob), listing.ID, ListingInput{Images: pngUploads(t, 6), ReplaceImages: true})
	assertValidationError(t, err)
}

func TestListingService_DeleteRemovesImagesAndBlobs(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)
	bob := testutil.CreateUser(t, f.db, "bob", false)
	ctx := context.Background()

	in := validListingInput()
	in.Images = pngUploads(t, 2)
	listing, err := f.svc.Create(ctx, access.FromUser(alice), in)
	require.NoError(t, err)

	err = f.svc.Delete(ctx, access.FromUser(bob), listing.ID)
	assertForbiddenError(t, err)

	require.NoError(t, f.svc.Delete(ctx, access.FromUser(alice), listing.ID))
	assert.Zero(t, countRows(t, f.db, &models.ListingImage{}))
	assert.Zero(t, f.store.Len())

	err = f.svc.Delete(ctx, access.FromUser(alice), listing.ID)
	assertNotFoundError(t, err)
}

func TestListingService_GetHidesNonPublicFromStrangers(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)
	bob := testutil.CreateUser(t, f.db, "bob", false)
	admin := testutil.CreateUser(t, f.db, "admin", true)
	pending := testutil.CreateListing(t, f.db, alice, "Pending", testutil.WithStatus(models.ListingStatusActive, false))
	ctx := context.Background()

	_, err := f.svc.Get(ctx, nil, pending.ID)
	assertNotFoundError(t, err)
	_, err = f.svc.Get(ctx, access.FromUser(bob), pending.ID)
	assertNotFoundError(t, err)

	got, err := f.svc.Get(ctx, access.FromUser(alice), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pending", got.Title)

	_, err = f.svc.Get(ctx, access.FromUser(admin), pending.ID)
	require.NoError(t, err)
}

func TestListingService_ListPublicIgnoresAdminOnlyOptions(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)
	bob := testutil.CreateUser(t, f.db, "bob", false)
	testutil.CreateListing(t, f.db, alice, "Visible")
	testutil.CreateListing(t, f.db, bob, "Hidden", testutil.WithStatus(models.ListingStatusInactive, false))

	listings, total, err := f.svc.ListPublic(context.Background(), repository.ListingFilter{
		Status:       models.ListingStatusInactive,
		Search:       "bob",
		SearchAuthor: true,
		Ordering:     "status",
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, listings)

	listings, total, err = f.svc.ListPublic(context.Background(), repository.ListingFilter{Ordering: "status"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Visible", listings[0].Title)
}

func TestListingService_SearchAndMine(t *testing.T) {
	f := newListingFixture(t, true)
	alice := testutil.CreateUser(t, f.db, "alice", false)
	testutil.CreateListing(t, f.db, alice, "Vintage camera")
	testutil.CreateListing(t, f.db, alice, "Camera bag", testutil.WithStatus(models.ListingStatusInactive, true))
	ctx := context.Background()

	_, _, err := f.svc.Search(ctx, "   ", repository.Page{})
	assertValidationError(t, err)

	listings, total, err := f.svc.Search(ctx, "CAMERA", repository.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Vintage camera", listings[0].Title)

	mine, total, err := f.svc.Mine(ctx, access.FromUser(alice), repository.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, mine, 2)
}
