//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"classifieds/internal/config"
	"classifieds/internal/database"
	"classifieds/internal/models"
	"classifieds/internal/testutil"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var pgDB *gorm.DB

// TestMain starts a disposable PostgreSQL container and applies the SQL migrations.
func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}
	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=classifieds",
			"POSTGRES_PASSWORD=classifieds",
			"POSTGRES_DB=postgres",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start PostgreSQL: %s", err)
	}
	_ = resource.Expire(300)

	cfg := &config.Config{
		Env:          "test",
		DBDriver:     "postgres",
		DBHost:       "localhost",
		DBPort:       resource.GetPort("5432/tcp"),
		DBUser:       "classifieds",
		DBPassword:   "classifieds",
		DBName:       "classifieds_it",
		DBSchemaMode: database.SchemaModeSQL,
	}

	pool.MaxWait = 2 * time.Minute
	if err := pool.Retry(func() error {
		return database.EnsureDatabase(context.Background(), cfg)
	}); err != nil {
		log.Fatalf("Could not prepare database: %s", err)
	}

	pgDB, err = database.Connect(cfg)
	if err != nil {
		log.Fatalf("Could not connect: %s", err)
	}

	code := m.Run()

	_ = database.Close()
	if err := pool.Purge(resource); err != nil {
		log.Printf("Could not purge PostgreSQL: %s", err)
	}
	os.Exit(code)
}

func truncate(t *testing.T) {
	t.Helper()
	require.NoError(t, pgDB.Exec("TRUNCATE listing_images, listings, categories, users RESTART IDENTITY CASCADE").Error)
}

func TestPostgres_ListingSearchAndFilters(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, pgDB, "alice", false)
	bikes := testutil.CreateCategory(t, pgDB, "Bikes")
	testutil.CreateListing(t, pgDB, alice, "Vintage BICYCLE", testutil.WithPrice("120.50"), testutil.WithCategory(bikes.ID))
	testutil.CreateListing(t, pgDB, alice, "Sofa", testutil.WithPrice("80"))
	testutil.CreateListing(t, pgDB, alice, "Kids bicycle", testutil.WithStatus(models.ListingStatusInactive, true))

	repo := NewListingRepository(pgDB)
	listings, total, err := repo.List(ctx, ListingFilter{PublicOnly: true, Search: "bicycle", Page: Page{Limit: 10}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []string{"Vintage BICYCLE"}, titles(listings))

	listings, _, err = repo.List(ctx, ListingFilter{
		PublicOnly: true,
		PriceMin:   decimalPtr("100"),
		Ordering:   "-price",
		Page:       Page{Limit: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Vintage BICYCLE"}, titles(listings))
	assert.Equal(t, "120.50", listings[0].Price.StringFixed(2))
}

func TestPostgres_CategoryDeleteNullsListings(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, pgDB, "alice", false)
	bikes := testutil.CreateCategory(t, pgDB, "Bikes")
	listing := testutil.CreateListing(t, pgDB, alice, "Bike", testutil.WithCategory(bikes.ID))

	require.NoError(t, NewCategoryRepository(pgDB).Delete(ctx, bikes.ID))

	got, err := NewListingRepository(pgDB).GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
}

func TestPostgres_Stats(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, pgDB, "alice", false)
	bob := testutil.CreateUser(t, pgDB, "bob", false)
	testutil.CreateUser(t, pgDB, "carol", false)
	for i := 0; i < 3; i++ {
		testutil.CreateListing(t, pgDB, alice, fmt.Sprintf("A%d", i))
	}
	testutil.CreateListing(t, pgDB, bob, "B0", testutil.WithCreatedAt(time.Now().AddDate(0, 0, -30)))

	stats := NewStatsRepository(pgDB)
	recent, err := stats.CountListingsSince(ctx, time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.EqualValues(t, 3, recent)

	top, err := stats.TopAuthors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "alice", top[0].Username)
	assert.EqualValues(t, 3, top[0].ListingsCount)
}
