// Package models contains data structures for the application's domain models.
package models

import "time"

// User is a marketplace account. Accounts are never hard-deleted.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Phone        *string   `gorm:"size:20" json:"phone"`
	ProfilePhoto string    `gorm:"size:500" json:"profile_photo"`
	Password     string    `gorm:"not null" json:"-"`
	IsStaff      bool      `gorm:"not null;index" json:"is_staff"`
	IsBlocked    bool      `gorm:"not null;index" json:"is_blocked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// PublicUser is the subset of a user shown next to their listings.
type PublicUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// Public returns the public projection of u.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}
