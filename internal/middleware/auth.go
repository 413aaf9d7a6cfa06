package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrNoCredentials means the request carried no Authorization header.
	ErrNoCredentials = errors.New("authentication credentials were not provided")
	// ErrMalformedHeader means the Authorization header is not "Bearer <token>".
	ErrMalformedHeader = errors.New("invalid authorization header format")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) (string, error) {
	authHeader := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authHeader == "" {
		return "", ErrNoCredentials
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMalformedHeader
	}
	return parts[1], nil
}
