package repository

import (
	"context"
	"errors"

	"classifieds/internal/cache"
	"classifieds/internal/models"

	"gorm.io/gorm"
)

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Search   string
	Ordering string
	Page     Page
}

var userOrderings = map[string]string{
	"created_at":  "users.created_at ASC",
	"-created_at": "users.created_at DESC",
	"username":    "users.username ASC",
	"-username":   "users.username DESC",
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	SetBlocked(ctx context.Context, id uint, blocked bool) error
	SetStaff(ctx context.Context, id uint, staff bool) error
	BulkSetBlocked(ctx context.Context, ids []uint, blocked bool) ([]uint, error)
	List(ctx context.Context, filter UserFilter) ([]models.User, int64, error)
	ListStaff(ctx context.Context) ([]models.User, error)
	CountActiveListings(ctx context.Context, userID uint) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID is served from the cache. Cached copies carry no password hash.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	key := cache.UserKey(id)

	err := cache.Aside(ctx, key, &user, cache.UserTTL, func() error {
		if err := readDB(r.db).WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := readDB(r.db).WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("A user with that username or email already exists.")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// UpdateFields writes only the named columns so a cached, hash-less user can
// never overwrite the stored password.
func (r *userRepository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return models.NewValidationError("A user with that username or email already exists.")
		}
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

func (r *userRepository) SetBlocked(ctx context.Context, id uint, blocked bool) error {
	return r.UpdateFields(ctx, id, map[string]any{"is_blocked": blocked})
}

func (r *userRepository) SetStaff(ctx context.Context, id uint, staff bool) error {
	return r.UpdateFields(ctx, id, map[string]any{"is_staff": staff})
}

// BulkSetBlocked flips the block flag for every existing id and returns the
// ids it changed. Staff accounts are never blocked.
func (r *userRepository) BulkSetBlocked(ctx context.Context, ids []uint, blocked bool) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var updated []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.User{}).Where("id IN ?", ids)
		if blocked {
			q = q.Where("is_staff = ?", false)
		}
		if err := q.Order("id").Pluck("id", &updated).Error; err != nil {
			return err
		}
		if len(updated) == 0 {
			return nil
		}
		return tx.Model(&models.User{}).Where("id IN ?", updated).Update("is_blocked", blocked).Error
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	cache.InvalidateUsers(ctx, updated)
	return updated, nil
}

func (r *userRepository) applyFilter(q *gorm.DB, filter UserFilter) *gorm.DB {
	if filter.Search != "" {
		p := likePattern(filter.Search)
		q = q.Where(`(LOWER(users.username) LIKE ? ESCAPE '\' OR LOWER(users.email) LIKE ? ESCAPE '\' OR LOWER(COALESCE(users.phone, '')) LIKE ? ESCAPE '\')`, p, p, p)
	}
	return q
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]models.User, int64, error) {
	db := readDB(r.db).WithContext(ctx)
	page := filter.Page.Normalize()

	var total int64
	if err := r.applyFilter(db.Model(&models.User{}), filter).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	order, ok := userOrderings[filter.Ordering]
	if !ok {
		order = userOrderings["-created_at"]
	}

	var users []models.User
	if err := r.applyFilter(db.Model(&models.User{}), filter).
		Order(order).Order("users.id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&users).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return users, total, nil
}

func (r *userRepository) ListStaff(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := readDB(r.db).WithContext(ctx).Where("is_staff = ?", true).Order("username ASC").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// CountActiveListings counts the user's listings with status active.
func (r *userRepository) CountActiveListings(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Listing{}).
		Where("author_id = ? AND status = ?", userID, models.ListingStatusActive).
		Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}
