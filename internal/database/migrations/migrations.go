// Package migrations tracks and applies versioned schema changes with GORM.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Migration is one versioned schema change. Versions sort lexically.
type Migration struct {
	Version     string
	Description string
	Up          func(tx *gorm.DB) error
	Down        func(tx *gorm.DB) error
}

// appliedMigration is the bookkeeping row written per applied version.
type appliedMigration struct {
	Version     string    `gorm:"primaryKey;size:32"`
	Description string    `gorm:"not null;size:255"`
	AppliedAt   time.Time `gorm:"not null"`
}

func (appliedMigration) TableName() string {
	return "schema_migrations"
}

// Status reports whether one known migration has been applied.
type Status struct {
	Version     string     `json:"version"`
	Description string     `json:"description"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
}

// Migrator applies and rolls back a fixed, ordered set of migrations.
type Migrator struct {
	db         *gorm.DB
	logger     *slog.Logger
	migrations []Migration
}

// NewMigrator creates a Migrator for migrations, ordered by version.
func NewMigrator(db *gorm.DB, logger *slog.Logger, migrations ...Migration) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return &Migrator{db: db, logger: logger.With(slog.String("component", "migrations")), migrations: sorted}
}

// Status lists every known migration in version order.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(m.migrations))
	for _, mig := range m.migrations {
		s := Status{Version: mig.Version, Description: mig.Description}
		if row, ok := applied[mig.Version]; ok {
			at := row.AppliedAt
			s.Applied = true
			s.AppliedAt = &at
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// Up applies every pending migration, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		m.logger.InfoContext(ctx, "applying migration",
			slog.String("version", mig.Version),
			slog.String("description", mig.Description),
		)
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mig.Up(tx); err != nil {
				return err
			}
			return tx.Create(&appliedMigration{
				Version:     mig.Version,
				Description: mig.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", mig.Version, err)
		}
		count++
	}

	if count > 0 {
		m.logger.InfoContext(ctx, "schema up to date", slog.Int("applied", count))
	}
	return nil
}

// Down rolls back the newest applied migration. It does nothing when no
// migration is applied.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	var last appliedMigration
	err := m.db.WithContext(ctx).Order("version DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m.logger.InfoContext(ctx, "no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading last migration: %w", err)
	}

	idx := slices.IndexFunc(m.migrations, func(mig Migration) bool { return mig.Version == last.Version })
	if idx < 0 {
		return fmt.Errorf("migration %s is applied but unknown to this build", last.Version)
	}
	mig := m.migrations[idx]
	if mig.Down == nil {
		return fmt.Errorf("migration %s cannot be rolled back", mig.Version)
	}

	m.logger.InfoContext(ctx, "rolling back migration", slog.String("version", mig.Version))
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mig.Down(tx); err != nil {
			return err
		}
		return tx.Delete(&appliedMigration{}, "version = ?", mig.Version).Error
	})
	if err != nil {
		return fmt.Errorf("rolling back migration %s: %w", mig.Version, err)
	}
	return nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&appliedMigration{}); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]appliedMigration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	var rows []appliedMigration
	if err := m.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	out := make(map[string]appliedMigration, len(rows))
	for _, row := range rows {
		out[row.Version] = row
	}
	return out, nil
}
