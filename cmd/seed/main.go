// Command seed fills the database with built-in categories and demo data.
package main

import (
	"context"
	"flag"
	"log"

	"classifieds/internal/config"
	"classifieds/internal/database"
	"classifieds/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numListings := flag.Int("listings", 100, "Number of listings to create")
	maxDays := flag.Int("max-days", 60, "Spread listing timestamps over this many days")
	shouldClean := flag.Bool("clean", false, "Remove existing listings and non-staff users first")
	dryRun := flag.Bool("dry-run", false, "Generate data without writing it")
	fast := flag.Bool("fast", false, "Hash the demo password at minimum bcrypt cost")
	randSeed := flag.Int64("seed", 0, "Random seed (0 uses the clock)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	summary, err := seed.Seed(context.Background(), db, seed.Options{
		NumUsers:    *numUsers,
		NumListings: *numListings,
		MaxDays:     *maxDays,
		Clean:       *shouldClean,
		DryRun:      *dryRun,
		FastHash:    *fast,
		RandSeed:    *randSeed,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d categories, %d users, %d listings", summary.Categories, summary.Users, summary.Listings)
	log.Printf("Every demo user has the password: %s", seed.DefaultPassword)
}
