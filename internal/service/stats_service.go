package service

import (
	"context"
	"time"

	"classifieds/internal/models"
	"classifieds/internal/repository"

	"golang.org/x/sync/errgroup"
)

const (
	topAuthorsLimit = 10
	recentWindow    = 7 * 24 * time.Hour
)

// AdminStats is the admin dashboard payload.
type AdminStats struct {
	TotalUsers        int64                     `json:"total_users"`
	TotalListings     int64                     `json:"total_listings"`
	ActiveListings    int64                     `json:"active_listings"`
	InactiveListings  int64                     `json:"inactive_listings"`
	ListingsLast7Days int64                     `json:"listings_last_7_days"`
	ActiveUsers       int64                     `json:"active_users"`
	UserActivity      []repository.UserActivity `json:"user_activity"`
}

// StatsService computes the admin aggregates fresh on every call.
type StatsService struct {
	repo repository.StatsRepository
	now  func() time.Time
}

func NewStatsService(repo repository.StatsRepository) *StatsService {
	return &StatsService{repo: repo, now: time.Now}
}

func (s *StatsService) Compute(ctx context.Context) (*AdminStats, error) {
	var stats AdminStats
	since := s.now().UTC().Add(-recentWindow)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalUsers, err = s.repo.CountUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalListings, err = s.repo.CountListings(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveListings, err = s.repo.CountListings(gctx, models.ListingStatusActive)
		return err
	})
	g.Go(func() (err error) {
		stats.InactiveListings, err = s.repo.CountListings(gctx, models.ListingStatusInactive)
		return err
	})
	g.Go(func() (err error) {
		stats.ListingsLast7Days, err = s.repo.CountListingsSince(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveUsers, err = s.repo.CountAuthors(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.UserActivity, err = s.repo.TopAuthors(gctx, topAuthorsLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if stats.UserActivity == nil {
		stats.UserActivity = []repository.UserActivity{}
	}
	return &stats, nil
}
