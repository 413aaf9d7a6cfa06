package service

import (
	"context"
	"errors"
	"testing"

	"classifieds/internal/media"
	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code, appErr.Message)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeValidation)
}

func assertForbiddenError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeForbidden)
}

func assertNotFoundError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeNotFound)
}

func assertUnauthorizedError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeUnauthorized)
}

func strPtr(s string) *string { return &s }

func pngUpload(t *testing.T, name string) media.Upload {
	t.Helper()
	return media.Upload{Filename: name, ContentType: "image/png", Content: testutil.TinyPNG(t, 8, 6)}
}

func pngUploads(t *testing.T, n int) []media.Upload {
	t.Helper()
	out := make([]media.Upload, n)
	for i := range out {
		out[i] = pngUpload(t, "photo.png")
	}
	return out
}

// userRepoStub lets each test override only the calls it cares about.
type userRepoStub struct {
	getByIDFn             func(context.Context, uint) (*models.User, error)
	getByEmailFn          func(context.Context, string) (*models.User, error)
	getByUsernameFn       func(context.Context, string) (*models.User, error)
	createFn              func(context.Context, *models.User) error
	updateFieldsFn        func(context.Context, uint, map[string]any) error
	setBlockedFn          func(context.Context, uint, bool) error
	setStaffFn            func(context.Context, uint, bool) error
	bulkSetBlockedFn      func(context.Context, []uint, bool) ([]uint, error)
	listFn                func(context.Context, repository.UserFilter) ([]models.User, int64, error)
	listStaffFn           func(context.Context) ([]models.User, error)
	countActiveListingsFn func(context.Context, uint) (int64, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	return s.updateFieldsFn(ctx, id, fields)
}
func (s *userRepoStub) SetBlocked(ctx context.Context, id uint, blocked bool) error {
	return s.setBlockedFn(ctx, id, blocked)
}
func (s *userRepoStub) SetStaff(ctx context.Context, id uint, staff bool) error {
	return s.setStaffFn(ctx, id, staff)
}
func (s *userRepoStub) BulkSetBlocked(ctx context.Context, ids []uint, blocked bool) ([]uint, error) {
	return s.bulkSetBlockedFn(ctx, ids, blocked)
}
func (s *userRepoStub) List(ctx context.Context, filter repository.UserFilter) ([]models.User, int64, error) {
	return s.listFn(ctx, filter)
}
func (s *userRepoStub) ListStaff(ctx context.Context) ([]models.User, error) {
	return s.listStaffFn(ctx)
}
func (s *userRepoStub) CountActiveListings(ctx context.Context, userID uint) (int64, error) {
	return s.countActiveListingsFn(ctx, userID)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn:             func(context.Context, uint) (*models.User, error) { return &models.User{}, nil },
		getByEmailFn:          func(context.Context, string) (*models.User, error) { return nil, nil },
		getByUsernameFn:       func(context.Context, string) (*models.User, error) { return nil, nil },
		createFn:              func(context.Context, *models.User) error { return nil },
		updateFieldsFn:        func(context.Context, uint, map[string]any) error { return nil },
		setBlockedFn:          func(context.Context, uint, bool) error { return nil },
		setStaffFn:            func(context.Context, uint, bool) error { return nil },
		bulkSetBlockedFn:      func(context.Context, []uint, bool) ([]uint, error) { return nil, nil },
		listFn:                func(context.Context, repository.UserFilter) ([]models.User, int64, error) { return nil, 0, nil },
		listStaffFn:           func(context.Context) ([]models.User, error) { return nil, nil },
		countActiveListingsFn: func(context.Context, uint) (int64, error) { return 0, nil },
	}
}
