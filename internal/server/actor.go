package server

import (
	"errors"

	"classifieds/internal/access"
	"classifieds/internal/middleware"
	"classifieds/internal/models"

	"github.com/gofiber/fiber/v2"
)

const actorLocalKey = "actor"

// IdentifyActor resolves an optional Bearer access token into the request's
// actor. Anonymous requests pass through; a presented but invalid token is
// rejected so clients notice expired credentials.
func (s *Server) IdentifyActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := middleware.BearerToken(c)
		if errors.Is(err, middleware.ErrNoCredentials) {
			return c.Next()
		}
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid authorization header format"))
		}

		user, err := s.authService.Authenticate(c.UserContext(), token)
		if err != nil {
			return models.RespondWithError(c, models.StatusFor(err), err)
		}

		c.Locals("userID", user.ID)
		c.Locals(actorLocalKey, access.FromUser(user))
		c.SetUserContext(middleware.WithUserID(c.UserContext(), user.ID))
		return c.Next()
	}
}

// BlockedUserGate refuses writes from blocked users outside the admin surface.
func (s *Server) BlockedUserGate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := access.Gate(c.Method(), c.Path(), actorFrom(c)); err != nil {
			return models.RespondWithError(c, models.StatusFor(err), err)
		}
		return c.Next()
	}
}

// AuthRequired rejects anonymous requests. It must run after IdentifyActor.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if actorFrom(c) == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication credentials were not provided."))
		}
		return c.Next()
	}
}

// AdminRequired rejects non-staff users with 403.
// Must be placed after AuthRequired so that the actor is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := access.AdminOnly(actorFrom(c)); err != nil {
			return models.RespondWithError(c, models.StatusFor(err), err)
		}
		return c.Next()
	}
}

// actorFrom returns the identified caller, or nil for anonymous requests.
func actorFrom(c *fiber.Ctx) *access.Actor {
	actor, _ := c.Locals(actorLocalKey).(*access.Actor)
	return actor
}
