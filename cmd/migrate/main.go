// Command migrate runs schema operations for the backend.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"classifieds/internal/config"
	"classifieds/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type connector func(cfg *config.Config) (*gorm.DB, error)

func connectFromConfig(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func versionArg(raw string) (int, error) {
	version, err := strconv.Atoi(raw)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("invalid version %q", raw)
	}
	return version, nil
}

func newRootCmd(load func() (*config.Config, error), connect connector) *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Create, migrate and inspect the classifieds database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			c, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = c
			return nil
		},
	}

	// withDB wraps subcommands that need a live connection.
	withDB := func(fn func(cmd *cobra.Command, db *gorm.DB, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			db, err := connect(cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer func() { _ = sqlDB.Close() }()
			}
			return fn(cmd, db, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "ensure",
			Short: "Create the database if it does not exist",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := database.EnsureDatabase(cmd.Context(), cfg); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "database %q is present\n", cfg.DBName)
				return nil
			},
		},
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending SQL migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *gorm.DB, _ []string) error {
				if err := database.RunMigrations(cmd.Context(), db); err != nil {
					return fmt.Errorf("sql migrations failed: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "sql migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "auto",
			Short: "Run GORM AutoMigrate (development only)",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *gorm.DB, _ []string) error {
				cfg.DBSchemaMode = database.SchemaModeAuto
				if err := database.ApplySchema(cmd.Context(), db, cfg); err != nil {
					return fmt.Errorf("auto schema apply failed: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "automigrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the schema policy and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *gorm.DB, _ []string) error {
				status, err := database.GetSchemaStatus(cmd.Context(), db, cfg)
				if err != nil {
					return fmt.Errorf("schema status failed: %w", err)
				}
				printStatus(cmd.OutOrStdout(), status)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down <version>",
			Short: "Roll back one applied migration",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, db *gorm.DB, args []string) error {
				version, err := versionArg(args[0])
				if err != nil {
					return err
				}
				if err := database.RollbackMigration(cmd.Context(), db, version); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rolled back migration %d\n", version)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Mark a dirty migration clean after repairing the schema by hand",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, db *gorm.DB, args []string) error {
				version, err := versionArg(args[0])
				if err != nil {
					return err
				}
				if err := database.ForceMigration(cmd.Context(), db, version); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "migration %d marked clean\n", version)
				return nil
			}),
		},
	)
	return root
}

func printStatus(out io.Writer, status *database.SchemaStatus) {
	_, _ = fmt.Fprintf(out, "mode=%s env=%s run_sql=%t run_auto=%t applied=%d pending=%d\n",
		status.Mode, status.Environment, status.WillRunSQL, status.WillRunAutoMigrate,
		len(status.AppliedVersions), len(status.PendingMigrations))
	for _, m := range status.PendingMigrations {
		_, _ = fmt.Fprintf(out, "pending: %s\n", m.String())
	}
	if status.Drift != nil {
		_, _ = fmt.Fprintf(out, "drift: %v\n", status.Drift)
	}
}

func main() {
	if err := newRootCmd(config.LoadConfig, connectFromConfig).ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
