package server

import (
	"strings"

	"classifieds/internal/models"
	"classifieds/internal/repository"

	"github.com/gofiber/fiber/v2"
)

type bulkRequest struct {
	Action string `json:"action"`
	IDs    []uint `json:"ids"`
}

// AdminStats handles GET /api/admin/stats
func (s *Server) AdminStats(c *fiber.Ctx) error {
	stats, err := s.statsService.Compute(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// AdminListListings handles GET /api/admin/listings. Unlike the public view it
// shows every status and searches author usernames too.
func (s *Server) AdminListListings(c *fiber.Ctx) error {
	filter, err := parseListingFilter(c)
	if err != nil {
		return respondError(c, err)
	}

	listings, total, err := s.moderationService.ListListings(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newPage(toListingDetails(listings), total, filter.Page))
}

// AdminGetListing handles GET /api/admin/listings/:id
func (s *Server) AdminGetListing(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	listing, err := s.moderationService.GetListing(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toListingDetail(listing))
}

// AdminModerateListing handles POST /api/admin/listings/:id/moderate with {"action": ...}.
func (s *Server) AdminModerateListing(c *fiber.Ctx) error {
	var req struct {
		Action string `json:"action" form:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	return s.moderate(c, strings.TrimSpace(req.Action))
}

// AdminModerateAs binds one moderation action to a route, for the
// approve, reject and delete shortcuts.
func (s *Server) AdminModerateAs(action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return s.moderate(c, action)
	}
}

func (s *Server) moderate(c *fiber.Ctx, action string) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}

	listing, err := s.moderationService.Moderate(c.UserContext(), actorFrom(c), id, action)
	if err != nil {
		return respondError(c, err)
	}
	if listing == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(toListingDetail(listing))
}

// AdminBulkListings handles POST /api/admin/listings/bulk with {"action", "ids"}.
func (s *Server) AdminBulkListings(c *fiber.Ctx) error {
	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	n, err := s.moderationService.BulkListings(c.UserContext(), actorFrom(c), req.Action, req.IDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(BulkResponse{Action: req.Action, Updated: n})
}

// AdminListUsers handles GET /api/admin/users
func (s *Server) AdminListUsers(c *fiber.Ctx) error {
	filter := repository.UserFilter{
		Search:   strings.TrimSpace(c.Query("search", c.Query("q"))),
		Ordering: strings.TrimSpace(c.Query("ordering")),
		Page:     parsePagination(c, repository.DefaultPageSize),
	}

	users, total, err := s.moderationService.ListUsers(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newPage(users, total, filter.Page))
}

// AdminGetUser handles GET /api/admin/users/:id
func (s *Server) AdminGetUser(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	user, err := s.moderationService.GetUser(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// AdminBlockUser handles POST /api/admin/users/:id/block. The optional body
// {"is_blocked": false} unblocks instead.
func (s *Server) AdminBlockUser(c *fiber.Ctx) error {
	req := struct {
		IsBlocked *bool `json:"is_blocked"`
	}{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}
	blocked := req.IsBlocked == nil || *req.IsBlocked
	return s.setBlocked(c, blocked)
}

// AdminUnblockUser handles POST /api/admin/users/:id/unblock
func (s *Server) AdminUnblockUser(c *fiber.Ctx) error {
	return s.setBlocked(c, false)
}

func (s *Server) setBlocked(c *fiber.Ctx, blocked bool) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	user, err := s.moderationService.SetUserBlocked(c.UserContext(), actorFrom(c), id, blocked)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// AdminBulkUsers handles POST /api/admin/users/bulk with {"action": "block"|"unblock", "ids"}.
func (s *Server) AdminBulkUsers(c *fiber.Ctx) error {
	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	n, err := s.moderationService.BulkUsers(c.UserContext(), actorFrom(c), req.Action, req.IDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(BulkResponse{Action: req.Action, Updated: n})
}

