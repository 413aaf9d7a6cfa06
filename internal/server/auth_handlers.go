package server

import (
	"strings"

	"classifieds/internal/media"
	"classifieds/internal/models"
	"classifieds/internal/service"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
	Phone           string `json:"phone" form:"phone"`
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm"`
}

// Register handles POST /api/auth/register. It accepts JSON or multipart form
// data; the latter may carry a profile_photo file.
func (s *Server) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	in := service.RegisterInput{
		Username:        strings.TrimSpace(req.Username),
		Email:           strings.TrimSpace(req.Email),
		Phone:           strings.TrimSpace(req.Phone),
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	}
	if isMultipart(c) {
		photo, err := optionalFormFile(c, "profile_photo")
		if err != nil {
			return respondError(c, err)
		}
		in.Photo = photo
	}

	res, err := s.authService.Register(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(AuthResponse{
		User:   ProfileResponse{User: res.User},
		Tokens: res.Tokens,
	})
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	res, err := s.authService.Login(c.UserContext(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		return respondError(c, err)
	}

	profile, err := s.userService.GetProfile(c.UserContext(), res.User.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(AuthResponse{User: toProfileResponse(profile), Tokens: res.Tokens})
}

type refreshRequest struct {
	Refresh string `json:"refresh" form:"refresh"`
}

// RefreshToken handles POST /api/auth/token/refresh
func (s *Server) RefreshToken(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	access, err := s.authService.Refresh(c.UserContext(), strings.TrimSpace(req.Refresh))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"access": access})
}

// Logout handles POST /api/auth/logout by revoking the refresh token.
func (s *Server) Logout(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.authService.Logout(c.UserContext(), strings.TrimSpace(req.Refresh)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Successfully logged out"})
}

// GetProfile handles GET /api/auth/profile
func (s *Server) GetProfile(c *fiber.Ctx) error {
	profile, err := s.userService.GetProfile(c.UserContext(), actorFrom(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toProfileResponse(profile))
}

// UpdateProfile handles PUT and PATCH /api/auth/profile. Absent fields are left unchanged.
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var in service.UpdateProfileInput

	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
		in.Username = formValue(form, "username")
		in.Email = formValue(form, "email")
		in.Phone = formValue(form, "phone")
		photo, err := optionalFormFile(c, "profile_photo")
		if err != nil {
			return respondError(c, err)
		}
		in.Photo = photo
	} else {
		var req struct {
			Username *string `json:"username"`
			Email    *string `json:"email"`
			Phone    *string `json:"phone"`
		}
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
		in.Username, in.Email, in.Phone = req.Username, req.Email, req.Phone
	}

	profile, err := s.userService.UpdateProfile(c.UserContext(), actorFrom(c).ID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toProfileResponse(profile))
}

// optionalFormFile reads the named multipart file, or returns nil when absent.
func optionalFormFile(c *fiber.Ctx, name string) (*media.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, models.NewValidationError("Invalid request body")
	}
	files := form.File[name]
	if len(files) == 0 {
		return nil, nil
	}
	upload, err := readUpload(files[0])
	if err != nil {
		return nil, err
	}
	return &upload, nil
}
