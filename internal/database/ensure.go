package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"classifieds/internal/config"
	"classifieds/internal/middleware"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// EnsureDatabase creates the configured PostgreSQL database when it does not
// exist yet. It connects through the "postgres" maintenance database. SQLite
// needs no preparation.
func EnsureDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.DBDriver == "sqlite" {
		return nil
	}

	maintenance := *cfg
	maintenance.DBName = "postgres"
	sqlDB, err := sql.Open("pgx", PostgresDSN(&maintenance, cfg.DBHost, cfg.DBPort))
	if err != nil {
		return fmt.Errorf("open maintenance database: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping maintenance database: %w", err)
	}

	created, err := ensureDatabase(ctx, sqlDB, cfg.DBName)
	if err != nil {
		return err
	}
	if created {
		middleware.Logger.Info("database created", slog.String("name", cfg.DBName))
	}
	return nil
}

func ensureDatabase(ctx context.Context, db *sql.DB, name string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("DB_NAME is empty")
	}

	var exists bool
	if err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check database %q: %w", name, err)
	}
	if exists {
		return false, nil
	}

	// CREATE DATABASE takes no bind parameters.
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return false, fmt.Errorf("create database %q: %w", name, err)
	}
	return true, nil
}
