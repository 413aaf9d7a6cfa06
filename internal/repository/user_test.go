package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"classifieds/internal/cache"
	"classifieds/internal/models"
	"classifieds/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestUserRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	tests := []struct {
		name          string
		userID        uint
		mockBehavior  func()
		expectedUser  *models.User
		expectedError string
	}{
		{
			name:   "Success",
			userID: 1,
			mockBehavior: func() {
				rows := sqlmock.NewRows([]string{"id", "username", "email"}).
					AddRow(1, "alice", "alice@example.com")
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(1, 1).
					WillReturnRows(rows)
			},
			expectedUser: &models.User{ID: 1, Username: "alice", Email: "alice@example.com"},
		},
		{
			name:   "Not Found",
			userID: 99,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(99, 1).
					WillReturnError(gorm.ErrRecordNotFound)
			},
			expectedError: models.CodeNotFound,
		},
		{
			name:   "Database Failure",
			userID: 2,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(2, 1).
					WillReturnError(errors.New("connection reset"))
			},
			expectedError: models.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()
			user, err := repo.GetByID(ctx, tt.userID)

			if tt.expectedError != "" {
				assert.True(t, models.IsCode(err, tt.expectedError), "got %v", err)
			} else if assert.NotNil(t, user) {
				assert.Equal(t, tt.expectedUser.Username, user.Username)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_CreateDuplicateIsValidationError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_username" (SQLSTATE 23505)`))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.User{Username: "alice", Email: "alice@example.com", Password: "x"})
	assert.True(t, models.IsCode(err, models.CodeValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_LookupsReturnNilWhenMissing(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	testutil.CreateUser(t, db, "alice", false)

	u, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.NotEmpty(t, u.Password)

	u, err = repo.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)
}

func TestUserRepository_UpdateFieldsKeepsPassword(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", false)

	require.NoError(t, repo.UpdateFields(ctx, alice.ID, map[string]any{"email": "new@example.com"}))

	var stored models.User
	require.NoError(t, db.First(&stored, alice.ID).Error)
	assert.Equal(t, "new@example.com", stored.Email)
	assert.Equal(t, alice.Password, stored.Password)

	err := repo.UpdateFields(ctx, 9999, map[string]any{"email": "x@example.com"})
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestUserRepository_UpdateFieldsDuplicateEmail(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	alice := testutil.CreateUser(t, db, "alice", false)
	testutil.CreateUser(t, db, "bob", false)

	err := repo.UpdateFields(context.Background(), alice.ID, map[string]any{"email": "bob@example.com"})
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestUserRepository_BulkSetBlockedSkipsStaff(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice", false)
	bob := testutil.CreateUser(t, db, "bob", false)
	admin := testutil.CreateUser(t, db, "admin", true)

	updated, err := repo.BulkSetBlocked(ctx, []uint{alice.ID, bob.ID, admin.ID, 404}, true)
	require.NoError(t, err)
	assert.Equal(t, []uint{alice.ID, bob.ID}, updated)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, admin.ID).Error)
	assert.False(t, reloaded.IsBlocked)

	updated, err = repo.BulkSetBlocked(ctx, []uint{alice.ID, bob.ID}, false)
	require.NoError(t, err)
	assert.Len(t, updated, 2)

	updated, err = repo.BulkSetBlocked(ctx, nil, true)
	require.NoError(t, err)
	assert.Empty(t, updated)
}

func TestUserRepository_SetBlockedInvalidatesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	bob := testutil.CreateUser(t, db, "bob", false)

	u, err := repo.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, u.IsBlocked)
	assert.True(t, mr.Exists(cache.UserKey(bob.ID)))

	require.NoError(t, repo.SetBlocked(ctx, bob.ID, true))
	assert.False(t, mr.Exists(cache.UserKey(bob.ID)))

	u, err = repo.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, u.IsBlocked)
}

func TestUserRepository_ListSearchAndOrdering(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	testutil.CreateUser(t, db, "carol", false)
	testutil.CreateUser(t, db, "alice", false)
	testutil.CreateUser(t, db, "bob_100%", false)

	users, total, err := repo.List(ctx, UserFilter{Ordering: "username"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, users, 3)
	assert.Equal(t, []string{"alice", "bob_100%", "carol"}, []string{users[0].Username, users[1].Username, users[2].Username})

	users, total, err = repo.List(ctx, UserFilter{Search: "ALI"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "alice", users[0].Username)

	// Wildcards in the term match literally.
	users, total, err = repo.List(ctx, UserFilter{Search: "0%"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "bob_100%", users[0].Username)

	users, _, err = repo.List(ctx, UserFilter{Ordering: "username", Page: Page{Limit: 1, Offset: 1}})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob_100%", users[0].Username)
}

func TestUserRepository_CountActiveListings(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	alice := testutil.CreateUser(t, db, "alice", false)

	testutil.CreateListing(t, db, alice, "Bike")
	testutil.CreateListing(t, db, alice, "Pending", testutil.WithStatus(models.ListingStatusActive, false))
	testutil.CreateListing(t, db, alice, "Old", testutil.WithStatus(models.ListingStatusInactive, true))

	n, err := repo.CountActiveListings(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestUserRepository_ListStaff(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	testutil.CreateUser(t, db, "zed", true)
	testutil.CreateUser(t, db, "alice", false)
	testutil.CreateUser(t, db, "amy", true)

	staff, err := repo.ListStaff(context.Background())
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, "amy", staff[0].Username)
	assert.Equal(t, "zed", staff[1].Username)
}
