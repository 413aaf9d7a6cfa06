package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"classifieds/internal/middleware"

	"gorm.io/gorm"
)

// ErrDirtyMigration means a migration started but its outcome was never recorded.
// Nothing else runs until the schema is repaired and the version is forced clean.
var ErrDirtyMigration = errors.New("dirty migration")

// MigrationLog is one row of the applied-migration ledger.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64;not null;default:''"`
	Dirty     bool      `gorm:"not null;default:false"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (MigrationLog) TableName() string {
	return "migration_logs"
}

type ledger struct {
	db *gorm.DB
}

func newLedger(db *gorm.DB) *ledger {
	return &ledger{db: db}
}

// ensure creates the ledger table, or adds the columns an older ledger lacks.
func (l *ledger) ensure(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&MigrationLog{}); err != nil {
		return fmt.Errorf("prepare migration ledger: %w", err)
	}
	return nil
}

// entries returns the ledger in version order. A missing table reads as empty.
func (l *ledger) entries(ctx context.Context) ([]MigrationLog, error) {
	var rows []MigrationLog
	if err := l.db.WithContext(ctx).Order("version ASC").Find(&rows).Error; err != nil {
		if isMissingTableError(err) {
			return []MigrationLog{}, nil
		}
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	return rows, nil
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "no such table")
}

// apply records m as dirty, then runs its script and clears the flag in one
// transaction. When the transaction fails the schema is untouched, so the
// marker is dropped again; only a crash mid-script leaves it behind.
func (l *ledger) apply(ctx context.Context, m Migration) error {
	db := l.db.WithContext(ctx)
	entry := MigrationLog{Version: m.Version, Name: m.Name, Checksum: m.Checksum(), Dirty: true}
	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("record migration %s: %w", m.String(), err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.UpScript).Error; err != nil {
			return err
		}
		return tx.Model(&MigrationLog{}).Where("version = ?", m.Version).Update("dirty", false).Error
	})
	if err != nil {
		_ = db.Delete(&MigrationLog{}, m.Version).Error
		return fmt.Errorf("apply migration %s: %w", m.String(), err)
	}
	middleware.Logger.Info("Migration applied", slog.String("migration", m.String()))
	return nil
}

// revert runs the down script and removes the ledger row, with the same dirty
// bracketing as apply.
func (l *ledger) revert(ctx context.Context, m Migration) error {
	db := l.db.WithContext(ctx)
	if err := db.Model(&MigrationLog{}).Where("version = ?", m.Version).Update("dirty", true).Error; err != nil {
		return fmt.Errorf("mark migration %s: %w", m.String(), err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return err
		}
		return tx.Delete(&MigrationLog{}, m.Version).Error
	})
	if err != nil {
		_ = db.Model(&MigrationLog{}).Where("version = ?", m.Version).Update("dirty", false).Error
		return fmt.Errorf("roll back migration %s: %w", m.String(), err)
	}
	middleware.Logger.Info("Migration rolled back", slog.String("migration", m.String()))
	return nil
}

// verify refuses a ledger that disagrees with the embedded scripts: a dirty
// row, a version the code does not know, or an applied script edited since.
func verify(entries []MigrationLog, registered []Migration) error {
	known := make(map[int]Migration, len(registered))
	for _, m := range registered {
		known[m.Version] = m
	}

	var unknown, edited []string
	for _, e := range entries {
		label := fmt.Sprintf("%06d_%s", e.Version, e.Name)
		if e.Dirty {
			return fmt.Errorf("%w: %s did not finish; repair the schema, then run `migrate force %d`",
				ErrDirtyMigration, label, e.Version)
		}
		m, ok := known[e.Version]
		if !ok {
			unknown = append(unknown, label)
			continue
		}
		// Rows written before checksums were tracked carry none.
		if e.Checksum != "" && e.Checksum != m.Checksum() {
			edited = append(edited, label)
		}
	}

	var errs []error
	if len(unknown) > 0 {
		errs = append(errs, fmt.Errorf("migration_logs has versions unknown to this build: %s",
			strings.Join(unknown, ", ")))
	}
	if len(edited) > 0 {
		errs = append(errs, fmt.Errorf("applied migrations were edited afterwards: %s",
			strings.Join(edited, ", ")))
	}
	return errors.Join(errs...)
}

// pending returns the registered migrations missing from entries, in order.
func pending(entries []MigrationLog, registered []Migration) []Migration {
	var out []Migration
	for _, m := range registered {
		if !slices.ContainsFunc(entries, func(e MigrationLog) bool { return e.Version == m.Version }) {
			out = append(out, m)
		}
	}
	return out
}

// RunMigrations applies every embedded migration the ledger has not seen.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	return runMigrations(ctx, db, migrations)
}

func runMigrations(ctx context.Context, db *gorm.DB, registered []Migration) error {
	l := newLedger(db)
	if err := l.ensure(ctx); err != nil {
		return err
	}
	entries, err := l.entries(ctx)
	if err != nil {
		return err
	}
	if err := verify(entries, registered); err != nil {
		return err
	}

	todo := pending(entries, registered)
	if len(todo) == 0 {
		middleware.Logger.Debug("Schema is up to date", slog.Int("applied", len(entries)))
		return nil
	}
	for _, m := range todo {
		if err := l.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// RollbackMigration reverts one applied migration by version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}
	return rollback(ctx, db, *m)
}

func rollback(ctx context.Context, db *gorm.DB, m Migration) error {
	l := newLedger(db)
	entries, err := l.entries(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(entries, func(e MigrationLog) bool { return e.Version == m.Version })
	if idx < 0 {
		return fmt.Errorf("migration %s has not been applied", m.String())
	}
	if entries[idx].Dirty {
		return fmt.Errorf("%w: %s; force it before rolling back", ErrDirtyMigration, m.String())
	}
	return l.revert(ctx, m)
}

// ForceMigration clears the dirty flag on version once the schema has been
// repaired by hand.
func ForceMigration(ctx context.Context, db *gorm.DB, version int) error {
	res := db.WithContext(ctx).Model(&MigrationLog{}).Where("version = ?", version).Update("dirty", false)
	if res.Error != nil {
		return fmt.Errorf("force migration %d: %w", version, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("migration %d is not in the ledger", version)
	}
	middleware.Logger.Warn("Migration forced clean", slog.Int("version", version))
	return nil
}
