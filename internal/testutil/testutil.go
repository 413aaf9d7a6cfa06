// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"classifieds/internal/database"
	"classifieds/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DefaultPassword is the plaintext password of every fixture user.
const DefaultPassword = "Str0ng!Pass"

var dbCounter atomic.Int64

// NewTestDB returns an isolated, migrated in-memory SQLite database.
// Each call gets its own shared-cache database so every connection sees the same data.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "?", "_", "#", "_", "&", "_", "=", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=1", name, dbCounter.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

var (
	hashOnce sync.Once
	hashed   string
)

// PasswordHash returns a low-cost bcrypt hash of DefaultPassword.
func PasswordHash() string {
	hashOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		hashed = string(h)
	})
	return hashed
}

// CreateUser inserts a user named username.
func CreateUser(t *testing.T, db *gorm.DB, username string, staff bool) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: PasswordHash(),
		IsStaff:  staff,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// CreateCategory inserts a category with a slug derived from name.
func CreateCategory(t *testing.T, db *gorm.DB, name string) *models.Category {
	t.Helper()
	c := &models.Category{Name: name, Slug: strings.ToLower(strings.ReplaceAll(name, " ", "-"))}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return c
}

// ListingOpt customizes CreateListing.
type ListingOpt func(*models.Listing)

// WithStatus sets the status and moderation flag.
func WithStatus(status models.ListingStatus, moderated bool) ListingOpt {
	return func(l *models.Listing) {
		l.Status = status
		l.IsModerated = moderated
	}
}

// WithPrice sets the price from a string such as "19.99".
func WithPrice(price string) ListingOpt {
	return func(l *models.Listing) { l.Price = decimal.RequireFromString(price) }
}

// WithCategory attaches a category.
func WithCategory(id uint) ListingOpt {
	return func(l *models.Listing) { l.CategoryID = &id }
}

// WithCreatedAt backdates the listing.
func WithCreatedAt(at time.Time) ListingOpt {
	return func(l *models.Listing) { l.CreatedAt = at }
}

// WithImages attaches image rows with the given URLs in order.
func WithImages(urls ...string) ListingOpt {
	return func(l *models.Listing) {
		for i, u := range urls {
			l.Images = append(l.Images, models.ListingImage{Image: u, Order: i})
		}
	}
}

// CreateListing inserts a public (active, moderated) listing unless opts say otherwise.
func CreateListing(t *testing.T, db *gorm.DB, author *models.User, title string, opts ...ListingOpt) *models.Listing {
	t.Helper()
	l := &models.Listing{
		Title:       title,
		Description: title + " description",
		Price:       decimal.RequireFromString("10.00"),
		AuthorID:    author.ID,
		Phone:       "5550101",
		Status:      models.ListingStatusActive,
		IsModerated: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := db.Omit("Author", "Category").Create(l).Error; err != nil {
		t.Fatalf("create listing %s: %v", title, err)
	}
	return l
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// MemoryStore is an in-memory storage.Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	FailPut bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores data and returns "/media/<key>".
func (s *MemoryStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPut {
		return "", fmt.Errorf("memory store: put disabled")
	}
	url := "/media/" + strings.TrimPrefix(key, "/")
	s.objects[url] = append([]byte(nil), data...)
	return url, nil
}

// Delete removes url.
func (s *MemoryStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, url)
	s.deleted = append(s.deleted, url)
	return nil
}

// Has reports whether url is stored.
func (s *MemoryStore) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[url]
	return ok
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Deleted returns every URL passed to Delete.
func (s *MemoryStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}
