package service

import (
	"context"
	"strings"

	"classifieds/internal/media"
	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/storage"
	"classifieds/internal/validation"
)

// Profile is a user together with the number of listings they have on offer.
type Profile struct {
	User                *models.User
	ActiveListingsCount int64
}

// UpdateProfileInput carries the editable profile fields. Nil means unchanged.
type UpdateProfileInput struct {
	Username *string
	Email    *string
	Phone    *string
	Photo    *media.Upload
}

type UserService struct {
	userRepo repository.UserRepository
	images   *media.Processor
}

func NewUserService(userRepo repository.UserRepository, images *media.Processor) *UserService {
	return &UserService{userRepo: userRepo, images: images}
}

func (s *UserService) GetProfile(ctx context.Context, userID uint) (*Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.userRepo.CountActiveListings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, ActiveListingsCount: count}, nil
}

// applyProfileFields validates the provided fields and returns the column set to write.
func applyProfileFields(in UpdateProfileInput) (map[string]any, error) {
	fields := map[string]any{}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := validation.ValidateUsername(username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		fields["username"] = username
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := validation.ValidateEmail(email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		fields["email"] = email
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if phone == "" {
			fields["phone"] = nil
		} else {
			if err := validation.ValidatePhone(phone); err != nil {
				return nil, models.NewValidationError(err.Error())
			}
			fields["phone"] = phone
		}
	}
	return fields, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in UpdateProfileInput) (*Profile, error) {
	current, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields, err := applyProfileFields(in)
	if err != nil {
		return nil, err
	}

	var newPhoto []string
	if in.Photo != nil {
		if s.images == nil {
			return nil, models.NewValidationError("Profile photos are not accepted")
		}
		stored, err := s.images.JPEGOnly().Save(ctx, ProfilePhotoPrefix, *in.Photo)
		if err != nil {
			return nil, err
		}
		fields["profile_photo"] = stored.URL
		newPhoto = media.URLs([]media.Stored{*stored})
	}

	if err := s.userRepo.UpdateFields(ctx, userID, fields); err != nil {
		if len(newPhoto) > 0 {
			storage.DeleteAll(context.WithoutCancel(ctx), s.images.Store(), newPhoto)
		}
		return nil, err
	}
	if len(newPhoto) > 0 && current.ProfilePhoto != "" {
		storage.DeleteAll(ctx, s.images.Store(), []string{current.ProfilePhoto})
	}

	return s.GetProfile(ctx, userID)
}

// ListUsers is the admin user listing.
func (s *UserService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]models.User, int64, error) {
	return s.userRepo.List(ctx, filter)
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// SetStaffByUsername promotes or demotes an account.
func (s *UserService) SetStaffByUsername(ctx context.Context, username string, staff bool) (*models.User, error) {
	user, err := s.ResolveUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.SetStaff(ctx, user.ID, staff); err != nil {
		return nil, err
	}
	user.IsStaff = staff
	return user, nil
}

func (s *UserService) ListStaff(ctx context.Context) ([]models.User, error) {
	return s.userRepo.ListStaff(ctx)
}

// ResolveUsername returns the user named username or NotFound.
func (s *UserService) ResolveUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", username)
	}
	return user, nil
}
