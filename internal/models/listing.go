package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListingStatus is the owner-controlled visibility of a listing.
type ListingStatus string

const (
	// ListingStatusActive marks a listing as offered.
	ListingStatusActive ListingStatus = "active"
	// ListingStatusInactive marks a listing as withdrawn or rejected.
	ListingStatusInactive ListingStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s ListingStatus) Valid() bool {
	return s == ListingStatusActive || s == ListingStatusInactive
}

// MaxListingImages is the hard cap on images per listing.
const MaxListingImages = 5

// Listing is an item offered for sale.
type Listing struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Title       string          `gorm:"size:200;not null" json:"title"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null;index" json:"price"`
	AuthorID    uint            `gorm:"not null;index" json:"author_id"`
	Author      User            `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author"`
	CategoryID  *uint           `gorm:"index" json:"category_id"`
	Category    *Category       `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Phone       string          `gorm:"size:20;not null" json:"phone"`
	Status      ListingStatus   `gorm:"type:varchar(20);not null;index;index:idx_listings_status_moderated,priority:1" json:"status"`
	IsModerated bool            `gorm:"not null;index:idx_listings_status_moderated,priority:2" json:"is_moderated"`
	Images      []ListingImage  `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE" json:"images"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Listing) TableName() string {
	return "listings"
}

// BeforeCreate normalizes caller-supplied timestamps to UTC. SQLite compares
// them as text, so mixed offsets would break created_at range filters.
func (l *Listing) BeforeCreate(*gorm.DB) error {
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return nil
}

// IsPublic reports whether the listing is visible to anonymous readers.
func (l *Listing) IsPublic() bool {
	return l.Status == ListingStatusActive && l.IsModerated
}

// PrimaryImage returns the URL of the first image, or nil when there are none.
func (l *Listing) PrimaryImage() *string {
	if len(l.Images) == 0 {
		return nil
	}
	url := l.Images[0].Image
	return &url
}

// ListingImage is one ordered photo attached to a listing.
type ListingImage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ListingID uint      `gorm:"not null;index" json:"-"`
	Image     string    `gorm:"size:500;not null" json:"image"`
	ImageWebP string    `gorm:"column:image_webp;size:500" json:"image_webp,omitempty"`
	Order     int       `gorm:"column:sort_order;not null" json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ListingImage) TableName() string {
	return "listing_images"
}
