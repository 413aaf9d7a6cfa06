// Package access decides whether an actor may read or write a resource.
// Every check returns nil when allowed or a *models.AppError describing the refusal.
package access

import (
	"net/http"
	"strings"

	"classifieds/internal/models"
)

// BlockedMessage is returned to blocked users attempting a write.
const BlockedMessage = "Your account has been blocked. You cannot perform this action."

// Actor is the authenticated caller. A nil *Actor is anonymous.
type Actor struct {
	ID        uint
	Username  string
	IsStaff   bool
	IsBlocked bool
}

// FromUser builds an Actor from a persisted user.
func FromUser(u *models.User) *Actor {
	if u == nil {
		return nil
	}
	return &Actor{ID: u.ID, Username: u.Username, IsStaff: u.IsStaff, IsBlocked: u.IsBlocked}
}

// IsStaffMember reports whether a is an authenticated staff member.
func (a *Actor) IsStaffMember() bool {
	return a != nil && a.IsStaff
}

// IsMutating reports whether an HTTP method changes state.
func IsMutating(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// NotBlocked allows a write only for an authenticated, unblocked actor.
func NotBlocked(actor *Actor) error {
	if actor == nil {
		return models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	if actor.IsBlocked {
		return models.NewForbiddenError(BlockedMessage)
	}
	return nil
}

// OwnerOrAdmin allows reads to anyone and writes to staff or the resource author.
func OwnerOrAdmin(actor *Actor, authorID uint, write bool) error {
	if !write {
		return nil
	}
	if actor == nil {
		return models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	if actor.IsStaff || actor.ID == authorID {
		return nil
	}
	return models.NewForbiddenError("You do not have permission to perform this action.")
}

// AdminOnly allows staff only.
func AdminOnly(actor *Actor) error {
	if actor == nil {
		return models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	if !actor.IsStaff {
		return models.NewForbiddenError("You do not have permission to perform this action.")
	}
	return nil
}

// Gate is the request-level check applied before routing. Blocked users may
// still read, and the admin surface is exempt so staff tooling keeps working.
func Gate(method, path string, actor *Actor) error {
	if actor == nil || !IsMutating(method) || strings.HasPrefix(path, "/api/admin/") {
		return nil
	}
	return NotBlocked(actor)
}

// CanView reports whether actor may see a listing that is not public.
func CanView(actor *Actor, l *models.Listing) bool {
	if l.IsPublic() {
		return true
	}
	return actor != nil && (actor.IsStaff || actor.ID == l.AuthorID)
}
