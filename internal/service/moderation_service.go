package service

import (
	"context"
	"maps"

	"classifieds/internal/access"
	"classifieds/internal/events"
	"classifieds/internal/models"
	"classifieds/internal/observability"
	"classifieds/internal/repository"
	"classifieds/internal/storage"
)

// Moderation actions on a single listing.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionDelete  = "delete"
)

// Bulk-only actions.
const (
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionBlock      = "block"
	ActionUnblock    = "unblock"
)

var bulkListingUpdates = map[string]map[string]any{
	ActionApprove:    {"is_moderated": true, "status": models.ListingStatusActive},
	ActionReject:     {"is_moderated": false, "status": models.ListingStatusInactive},
	ActionActivate:   {"status": models.ListingStatusActive},
	ActionDeactivate: {"status": models.ListingStatusInactive},
}

// ModerationService provides the staff-only state transitions on listings and users.
type ModerationService struct {
	listings  repository.ListingRepository
	users     repository.UserRepository
	store     storage.Store
	publisher events.Publisher
}

// NewModerationService returns a new ModerationService. store may be nil, in
// which case deleted listings leave their blobs behind.
func NewModerationService(listings repository.ListingRepository, users repository.UserRepository, store storage.Store, publisher events.Publisher) *ModerationService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ModerationService{listings: listings, users: users, store: store, publisher: publisher}
}

func actorID(actor *access.Actor) uint {
	if actor == nil {
		return 0
	}
	return actor.ID
}

// ListListings is the staff listing view: every status, search also over author usernames.
func (s *ModerationService) ListListings(ctx context.Context, filter repository.ListingFilter) ([]models.Listing, int64, error) {
	filter.PublicOnly = false
	filter.SearchAuthor = true
	if !repository.ValidListingOrdering(filter.Ordering) {
		filter.Ordering = repository.DefaultListingOrdering
	}
	return s.listings.List(ctx, filter)
}

func (s *ModerationService) GetListing(ctx context.Context, id uint) (*models.Listing, error) {
	return s.listings.GetByID(ctx, id)
}

// Moderate applies approve, reject or delete to one listing. A deleted listing
// yields (nil, nil). Repeating an action leaves the listing unchanged.
func (s *ModerationService) Moderate(ctx context.Context, actor *access.Actor, id uint, action string) (*models.Listing, error) {
	if _, err := s.listings.GetByID(ctx, id); err != nil {
		return nil, err
	}

	switch action {
	case ActionApprove, ActionReject:
		if err := s.listings.UpdateFields(ctx, id, maps.Clone(bulkListingUpdates[action])); err != nil {
			return nil, err
		}
	case ActionDelete:
		removed, err := s.listings.Delete(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.store != nil {
			storage.DeleteAll(ctx, s.store, imageURLs(removed))
		}
		observability.ModerationActions.WithLabelValues(action, "listing").Inc()
		events.Emit(ctx, s.publisher, events.SubjectListingDeleted, id, actorID(actor), action)
		return nil, nil
	default:
		return nil, models.NewValidationError("Invalid action")
	}

	observability.ModerationActions.WithLabelValues(action, "listing").Inc()
	events.Emit(ctx, s.publisher, events.SubjectListingModerated, id, actorID(actor), action)
	return s.listings.GetByID(ctx, id)
}

// BulkListings applies one action to every listing in ids and returns the
// number of listings changed. Unknown ids are ignored.
func (s *ModerationService) BulkListings(ctx context.Context, actor *access.Actor, action string, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, models.NewValidationError("No items selected")
	}
	fields, ok := bulkListingUpdates[action]
	if !ok {
		return 0, models.NewValidationError("Invalid action")
	}

	updated, err := s.listings.BulkUpdate(ctx, ids, maps.Clone(fields))
	if err != nil {
		return 0, err
	}

	observability.ModerationActions.WithLabelValues(action, "listings_bulk").Inc()
	for _, id := range updated {
		events.Emit(ctx, s.publisher, events.SubjectListingModerated, id, actorID(actor), action)
	}
	return int64(len(updated)), nil
}

// ListUsers and GetUser back the staff user views.
func (s *ModerationService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]models.User, int64, error) {
	return s.users.List(ctx, filter)
}

func (s *ModerationService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// SetUserBlocked blocks or unblocks a non-staff user.
func (s *ModerationService) SetUserBlocked(ctx context.Context, actor *access.Actor, userID uint, blocked bool) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsStaff {
		return nil, models.NewValidationError("Cannot block admin users")
	}
	if err := s.users.SetBlocked(ctx, userID, blocked); err != nil {
		return nil, err
	}

	action, subject := ActionBlock, events.SubjectUserBlocked
	if !blocked {
		action, subject = ActionUnblock, events.SubjectUserUnblocked
	}
	observability.ModerationActions.WithLabelValues(action, "user").Inc()
	events.Emit(ctx, s.publisher, subject, userID, actorID(actor), action)

	return s.users.GetByID(ctx, userID)
}

// BulkUsers blocks or unblocks every user in ids. Staff accounts are skipped when blocking.
func (s *ModerationService) BulkUsers(ctx context.Context, actor *access.Actor, action string, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, models.NewValidationError("No items selected")
	}

	var (
		blocked bool
		subject string
	)
	switch action {
	case ActionBlock:
		blocked, subject = true, events.SubjectUserBlocked
	case ActionUnblock:
		blocked, subject = false, events.SubjectUserUnblocked
	default:
		return 0, models.NewValidationError("Invalid action")
	}

	updated, err := s.users.BulkSetBlocked(ctx, ids, blocked)
	if err != nil {
		return 0, err
	}

	observability.ModerationActions.WithLabelValues(action, "users_bulk").Inc()
	for _, id := range updated {
		events.Emit(ctx, s.publisher, subject, id, actorID(actor), action)
	}
	return int64(len(updated)), nil
}
