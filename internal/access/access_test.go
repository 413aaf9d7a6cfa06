package access

import (
	"testing"

	"classifieds/internal/models"

	"github.com/stretchr/testify/assert"
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if code == "" {
		assert.NoError(t, err)
		return
	}
	assert.True(t, models.IsCode(err, code), "expected %s, got %v", code, err)
}

func TestOwnerOrAdmin(t *testing.T) {
	owner := &Actor{ID: 1}
	other := &Actor{ID: 2}
	staff := &Actor{ID: 3, IsStaff: true}

	tests := []struct {
		name  string
		actor *Actor
		write bool
		code  string
	}{
		{"anonymous read", nil, false, ""},
		{"other read", other, false, ""},
		{"owner write", owner, true, ""},
		{"staff write", staff, true, ""},
		{"other write", other, true, models.CodeForbidden},
		{"anonymous write", nil, true, models.CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCode(t, OwnerOrAdmin(tt.actor, 1, tt.write), tt.code)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	assertCode(t, AdminOnly(nil), models.CodeUnauthorized)
	assertCode(t, AdminOnly(&Actor{ID: 1}), models.CodeForbidden)
	assertCode(t, AdminOnly(&Actor{ID: 1, IsStaff: true}), "")
}

func TestNotBlocked(t *testing.T) {
	assertCode(t, NotBlocked(nil), models.CodeUnauthorized)
	assertCode(t, NotBlocked(&Actor{ID: 1}), "")

	err := NotBlocked(&Actor{ID: 1, IsBlocked: true})
	assertCode(t, err, models.CodeForbidden)
	assert.EqualError(t, err, BlockedMessage)
}

func TestGate(t *testing.T) {
	blocked := &Actor{ID: 9, IsBlocked: true}

	tests := []struct {
		name   string
		method string
		path   string
		actor  *Actor
		code   string
	}{
		{"anonymous write passes to route auth", "POST", "/api/listings", nil, ""},
		{"blocked read allowed", "GET", "/api/listings", blocked, ""},
		{"blocked create refused", "POST", "/api/listings", blocked, models.CodeForbidden},
		{"blocked patch refused", "PATCH", "/api/listings/4", blocked, models.CodeForbidden},
		{"blocked delete refused", "delete", "/api/listings/4", blocked, models.CodeForbidden},
		{"admin surface exempt", "POST", "/api/admin/users/9/unblock", blocked, ""},
		{"unblocked write allowed", "PUT", "/api/auth/profile", &Actor{ID: 2}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCode(t, Gate(tt.method, tt.path, tt.actor), tt.code)
		})
	}
}

func TestCanView(t *testing.T) {
	public := &models.Listing{AuthorID: 1, Status: models.ListingStatusActive, IsModerated: true}
	pending := &models.Listing{AuthorID: 1, Status: models.ListingStatusActive}

	assert.True(t, CanView(nil, public))
	assert.False(t, CanView(nil, pending))
	assert.False(t, CanView(&Actor{ID: 2}, pending))
	assert.True(t, CanView(&Actor{ID: 1}, pending))
	assert.True(t, CanView(&Actor{ID: 5, IsStaff: true}, pending))
}

func TestFromUserAndIsMutating(t *testing.T) {
	assert.Nil(t, FromUser(nil))
	a := FromUser(&models.User{ID: 4, Username: "bob", IsBlocked: true})
	assert.Equal(t, &Actor{ID: 4, Username: "bob", IsBlocked: true}, a)
	assert.False(t, a.IsStaffMember())

	assert.True(t, IsMutating("post"))
	assert.False(t, IsMutating("GET"))
	assert.False(t, IsMutating("OPTIONS"))
}
