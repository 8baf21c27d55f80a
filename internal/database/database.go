// Package database provides database connection management and migrations.
// It supports SQLite, PostgreSQL, and MySQL through GORM.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/basshelal/hls2vod/internal/config"
	"github.com/basshelal/hls2vod/internal/database/migrations"
)

// DB wraps a GORM database connection with additional functionality.
type DB struct {
	*gorm.DB
	cfg    config.DatabaseConfig
	logger *slog.Logger
}

// Options tunes a connection. A nil *Options means prepared statements on.
type Options struct {
	PrepareStmt bool
}

// sqlitePragmas are set through the DSN so that every pooled connection,
// not only the first, runs with them.
var sqlitePragmas = []string{
	"busy_timeout(30000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// New opens the configured database. The connection is verified by GORM;
// the schema is not touched until Migrate.
func New(cfg config.DatabaseConfig, log *slog.Logger, opts *Options) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	prepare := opts == nil || opts.PrepareStmt

	dialector, err := getDialector(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(cfg.LogLevel, log),
		SkipDefaultTransaction: true,
		PrepareStmt:            prepare,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}

	pool, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	open, idle := poolLimits(cfg)
	pool.SetMaxOpenConns(open)
	pool.SetMaxIdleConns(idle)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	log.Info("database connected", slog.String("driver", cfg.Driver), slog.Int("max_open_conns", open))
	return &DB{DB: gdb, cfg: cfg, logger: log}, nil
}

// poolLimits returns the open and idle connection caps. SQLite gets a single
// connection: it has one writer at a time and an in-memory database only
// exists per connection.
func poolLimits(cfg config.DatabaseConfig) (open, idle int) {
	if cfg.Driver == "sqlite" {
		return 1, 1
	}
	return cfg.MaxOpenConns, cfg.MaxIdleConns
}

func getDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		sep := "?"
		if strings.Contains(cfg.DSN, "?") {
			sep = "&"
		}
		return sqlite.Open(cfg.DSN + sep + "_pragma=" + strings.Join(sqlitePragmas, "&_pragma=")), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Schema returns a migrator over every migration known to this build.
func (db *DB) Schema() *migrations.Migrator {
	return migrations.NewMigrator(db.DB, db.logger, migrations.AllMigrations()...)
}

// Migrate applies every pending schema migration.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.Schema().Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Driver returns the database driver name.
func (db *DB) Driver() string {
	return db.cfg.Driver
}
