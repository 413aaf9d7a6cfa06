// Package service holds the business rules that sit between HTTP handlers and repositories.
package service

import (
	"context"
	"errors"
	"strings"

	"classifieds/internal/auth"
	"classifieds/internal/media"
	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/storage"
	"classifieds/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// ProfilePhotoPrefix is the object-key prefix for profile photos.
const ProfilePhotoPrefix = "profile_photos"

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Username        string
	Email           string
	Phone           string
	Password        string
	PasswordConfirm string
	Photo           *media.Upload
}

// AuthResult is returned by a successful registration or login.
type AuthResult struct {
	User   *models.User
	Tokens *auth.TokenPair
}

// AuthService handles registration, login and token lifecycle.
type AuthService struct {
	users    repository.UserRepository
	tokens   *auth.TokenIssuer
	images   *media.Processor
	hashCost int
}

// NewAuthService returns a new AuthService. images may be nil when
// profile photos are not accepted.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenIssuer, images *media.Processor) *AuthService {
	return &AuthService{users: users, tokens: tokens, images: images, hashCost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.hashCost = cost
	return s
}

// Register creates an account and issues its first token pair.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email, and password are required")
	}
	if in.Password != in.PasswordConfirm {
		return nil, models.NewValidationError("Password fields didn't match.")
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	var phone *string
	if in.Phone != "" {
		if err := validation.ValidatePhone(in.Phone); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		phone = &in.Phone
	}

	existing, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewValidationError("A user with that username already exists.")
	}
	existing, err = s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewValidationError("A user with this email already exists.")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Phone:    phone,
		Password: string(hashed),
	}

	var photo []string
	if in.Photo != nil {
		if s.images == nil {
			return nil, models.NewValidationError("Profile photos are not accepted")
		}
		stored, err := s.images.JPEGOnly().Save(ctx, ProfilePhotoPrefix, *in.Photo)
		if err != nil {
			return nil, err
		}
		user.ProfilePhoto = stored.URL
		photo = media.URLs([]media.Stored{*stored})
	}

	if err := s.users.Create(ctx, user); err != nil {
		if len(photo) > 0 {
			storage.DeleteAll(context.WithoutCancel(ctx), s.images.Store(), photo)
		}
		return nil, err
	}

	tokens, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Login checks credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return nil, models.NewValidationError("Please provide both username and password")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if user.IsBlocked {
		return nil, models.NewForbiddenError("User is blocked")
	}

	tokens, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.parse(ctx, refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return "", err
	}
	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return access, nil
}

// Logout revokes a refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(ctx, refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Authenticate resolves an access token to its user.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.parse(ctx, accessToken, auth.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return s.userFromClaims(ctx, claims)
}

func (s *AuthService) parse(ctx context.Context, token, wantType string) (*auth.Claims, error) {
	if token == "" {
		return nil, models.NewValidationError("Token is required")
	}
	claims, err := s.tokens.Parse(ctx, token, wantType)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrRevokedToken):
		return nil, models.NewUnauthorizedError("Token is blacklisted")
	case errors.Is(err, auth.ErrInvalidToken):
		return nil, models.NewUnauthorizedError("Token is invalid or expired")
	default:
		return nil, models.NewInternalError(err)
	}
	return claims, nil
}

func (s *AuthService) userFromClaims(ctx context.Context, claims *auth.Claims) (*models.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, models.NewUnauthorizedError("Token is invalid or expired")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("User not found")
		}
		return nil, err
	}
	return user, nil
}
