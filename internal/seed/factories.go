package seed

import (
	"fmt"
	"strings"
	"time"

	"classifieds/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every generated user.
const DefaultPassword = "Seed!Pass1"

// Factory builds users and listings with fake but plausible content.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	hash  string
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a Factory bound to db. A zero opts.RandSeed seeds from the clock.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	cost := bcrypt.DefaultCost
	if opts.FastHash {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	return &Factory{db: db, opts: opts, faker: gofakeit.New(seed), hash: string(hash), nextID: 1000}, nil
}

// BuildUser returns an unsaved user. The n suffix keeps usernames unique within a run.
func (f *Factory) BuildUser(n int) *models.User {
	username := fmt.Sprintf("%s%d", strings.ToLower(f.faker.Username()), n)
	phone := f.faker.Phone()
	return &models.User{
		Username: username,
		Email:    username + "@example.com",
		Phone:    &phone,
		Password: f.hash,
	}
}

// BuildListing returns an unsaved listing by author. When categories is not
// empty one of them is picked at random; some listings stay uncategorized.
func (f *Factory) BuildListing(author *models.User, categories []models.Category) *models.Listing {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 60
	}
	age := time.Duration(f.faker.Number(0, maxDays*24*60)) * time.Minute

	l := &models.Listing{
		Title:       f.faker.ProductName(),
		Description: f.faker.Paragraph(1, 3, 12, "\n"),
		Price:       decimal.NewFromFloat(f.faker.Price(1, 2500)).Round(2),
		AuthorID:    author.ID,
		Phone:       f.faker.Phone(),
		Status:      models.ListingStatusActive,
		IsModerated: true,
		CreatedAt:   time.Now().UTC().Add(-age),
	}
	if author.Phone != nil {
		l.Phone = *author.Phone
	}

	// Roughly one in five listings is inactive and one in ten awaits moderation.
	switch n := f.faker.Number(1, 10); {
	case n <= 2:
		l.Status = models.ListingStatusInactive
	case n == 3:
		l.IsModerated = false
	}

	if len(categories) > 0 && f.faker.Number(1, 10) > 1 {
		c := categories[f.faker.Number(0, len(categories)-1)]
		id := c.ID
		l.CategoryID = &id
	}
	return l
}

// CreateUsers persists count generated users.
func (f *Factory) CreateUsers(count int) ([]models.User, error) {
	users := make([]models.User, count)
	for i := range users {
		users[i] = *f.BuildUser(i + 1)
	}
	if count == 0 {
		return users, nil
	}
	if f.opts.DryRun {
		for i := range users {
			f.nextID++
			users[i].ID = f.nextID
		}
		return users, nil
	}
	if err := f.db.CreateInBatches(&users, 100).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// CreateListings persists count listings spread over authors.
func (f *Factory) CreateListings(authors []models.User, categories []models.Category, count int) ([]models.Listing, error) {
	if len(authors) == 0 || count == 0 {
		return nil, nil
	}
	listings := make([]models.Listing, count)
	for i := range listings {
		author := &authors[f.faker.Number(0, len(authors)-1)]
		listings[i] = *f.BuildListing(author, categories)
	}
	if f.opts.DryRun {
		for i := range listings {
			f.nextID++
			listings[i].ID = f.nextID
		}
		return listings, nil
	}
	if err := f.db.Omit("Author", "Category", "Images").CreateInBatches(&listings, 100).Error; err != nil {
		return nil, err
	}
	return listings, nil
}
