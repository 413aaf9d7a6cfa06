package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"classifieds/internal/auth"
	"classifieds/internal/media"
	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

func newIssuer(rdb *redis.Client) *auth.TokenIssuer {
	return auth.NewTokenIssuer(testSecret, 15*time.Minute, 24*time.Hour, rdb)
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        testutil.DefaultPassword,
		PasswordConfirm: testutil.DefaultPassword,
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
		repo   func(*userRepoStub)
	}{
		{name: "missing username", mutate: func(in *RegisterInput) { in.Username = "" }},
		{name: "password mismatch", mutate: func(in *RegisterInput) { in.PasswordConfirm = "Other!Pass1" }},
		{name: "weak password", mutate: func(in *RegisterInput) { in.Password, in.PasswordConfirm = "short", "short" }},
		{name: "bad username", mutate: func(in *RegisterInput) { in.Username = "has space" }},
		{name: "bad email", mutate: func(in *RegisterInput) { in.Email = "not-an-email" }},
		{name: "phone too long", mutate: func(in *RegisterInput) { in.Phone = strings.Repeat("1", 21) }},
		{
			name: "duplicate username",
			repo: func(r *userRepoStub) {
				r.getByUsernameFn = func(context.Context, string) (*models.User, error) { return &models.User{ID: 1}, nil }
			},
		},
		{
			name: "duplicate email",
			repo: func(r *userRepoStub) {
				r.getByEmailFn = func(context.Context, string) (*models.User, error) { return &models.User{ID: 1}, nil }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := noopUserRepo()
			created := false
			repo.createFn = func(context.Context, *models.User) error {
				created = true
				return nil
			}
			if tt.repo != nil {
				tt.repo(repo)
			}
			in := validRegistration()
			if tt.mutate != nil {
				tt.mutate(&in)
			}

			svc := NewAuthService(repo, newIssuer(nil), nil).WithHashCost(bcrypt.MinCost)
			_, err := svc.Register(context.Background(), in)
			assertValidationError(t, err)
			assert.False(t, created)
		})
	}
}

func TestAuthService_Register_AliceGetsTokenPair(t *testing.T) {
	db := testutil.NewTestDB(t)
	issuer := newIssuer(nil)
	svc := NewAuthService(repository.NewUserRepository(db), issuer, nil).WithHashCost(bcrypt.MinCost)
	ctx := context.Background()

	res, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	assert.NotEmpty(t, res.Tokens.Access)
	assert.NotEmpty(t, res.Tokens.Refresh)
	assert.NotZero(t, res.User.ID)
	assert.False(t, res.User.IsBlocked)
	assert.False(t, res.User.IsStaff)
	assert.NotEqual(t, testutil.DefaultPassword, res.User.Password)

	claims, err := issuer.Parse(ctx, res.Tokens.Access, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	_, err = svc.Register(ctx, validRegistration())
	assertValidationError(t, err)
}

func TestAuthService_Register_PhotoRemovedWhenCreateFails(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemoryStore()
	repo := noopUserRepo()
	repo.createFn = func(context.Context, *models.User) error {
		return models.NewInternalError(errors.New("insert failed"))
	}

	svc := NewAuthService(repo, newIssuer(nil), media.NewProcessor(store, 1, true)).WithHashCost(bcrypt.MinCost)
	in := validRegistration()
	photo := pngUpload(t, "me.png")
	in.Photo = &photo

	_, err := svc.Register(context.Background(), in)
	require.Error(t, err)
	assert.Zero(t, store.Len())
	assert.Len(t, store.Deleted(), 1)
}

func TestAuthService_Register_StoresPhoto(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemoryStore()
	svc := NewAuthService(noopUserRepo(), newIssuer(nil), media.NewProcessor(store, 1, true)).WithHashCost(bcrypt.MinCost)
	in := validRegistration()
	photo := pngUpload(t, "me.png")
	in.Photo = &photo

	res, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.User.ProfilePhoto, "/media/"+ProfilePhotoPrefix+"/"))
	assert.True(t, store.Has(res.User.ProfilePhoto))
	assert.Equal(t, 1, store.Len(), "profile photos are stored without a WebP variant")
}

func TestAuthService_Login(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "alice", false)
	bob := testutil.CreateUser(t, db, "bob", false)
	require.NoError(t, db.Model(bob).Update("is_blocked", true).Error)

	svc := NewAuthService(repository.NewUserRepository(db), newIssuer(nil), nil)
	ctx := context.Background()

	_, err := svc.Login(ctx, "", testutil.DefaultPassword)
	assertValidationError(t, err)

	_, err = svc.Login(ctx, "nobody", testutil.DefaultPassword)
	assertUnauthorizedError(t, err)

	_, err = svc.Login(ctx, "alice", "Wrong!Pass1")
	assertUnauthorizedError(t, err)

	_, err = svc.Login(ctx, "bob", testutil.DefaultPassword)
	assertForbiddenError(t, err)

	res, err := svc.Login(ctx, "alice", testutil.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Username)
	assert.NotEmpty(t, res.Tokens.Access)
}

func TestAuthService_RefreshLogoutAuthenticate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := testutil.NewTestDB(t)
	alice := testutil.CreateUser(t, db, "alice", false)
	issuer := newIssuer(rdb)
	svc := NewAuthService(repository.NewUserRepository(db), issuer, nil)
	ctx := context.Background()

	pair, err := issuer.IssuePair(alice)
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, pair.Access)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)

	_, err = svc.Authenticate(ctx, pair.Refresh)
	assertUnauthorizedError(t, err)

	_, err = svc.Refresh(ctx, pair.Access)
	assertUnauthorizedError(t, err)

	access, err := svc.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	_, err = issuer.Parse(ctx, access, auth.TokenTypeAccess)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.Refresh))
	_, err = svc.Refresh(ctx, pair.Refresh)
	assertUnauthorizedError(t, err)

	err = svc.Logout(ctx, "")
	assertValidationError(t, err)
}
