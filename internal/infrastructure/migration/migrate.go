// Package migration applies the versioned schema of the activity journal.
// The SQL files are embedded per dialect under migrations/<dialect>.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed migrations
var migrations embed.FS

// Migrator handles journal migrations using golang-migrate. It owns its own
// connection, so closing it leaves the application's pool untouched.
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// New creates a Migrator for the configured database driver
func New(cfg *config.DatabaseConfig, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialect, driver, err := openDriver(cfg)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrations, "migrations/"+dialect)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &Migrator{
		migrate: m,
		logger:  logger.With(zap.String("dialect", dialect)),
	}, nil
}

func openDriver(cfg *config.DatabaseConfig) (string, database.Driver, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := sql.Open("pgx", cfg.DSN())
		if err != nil {
			return "", nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
		if err != nil {
			_ = db.Close()
			return "", nil, fmt.Errorf("failed to create postgres driver: %w", err)
		}
		return "postgres", driver, nil
	case "sqlite", "":
		db, err := sql.Open("sqlite3", cfg.SQLitePath())
		if err != nil {
			return "", nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			_ = db.Close()
			return "", nil, fmt.Errorf("failed to create sqlite driver: %w", err)
		}
		return "sqlite", driver, nil
	default:
		return "", nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Apply brings the journal schema up to date and releases the connection
func Apply(cfg *config.DatabaseConfig, logger *zap.Logger) error {
	m, err := New(cfg, logger)
	if err != nil {
		return err
	}
	upErr := m.Up()
	if err := m.Close(); err != nil && upErr == nil {
		return err
	}
	return upErr
}

// Up runs all pending migrations
func (m *Migrator) Up() error {
	m.logger.Info("Running migrations up")

	err := m.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info("Migrations completed",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Down rolls back all migrations
func (m *Migrator) Down() error {
	m.logger.Info("Running migrations down")

	err := m.migrate.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	m.logger.Info("All migrations rolled back")
	return nil
}

// Steps applies n migrations (positive = up, negative = down)
func (m *Migrator) Steps(n int) error {
	m.logger.Info("Running migration steps", zap.Int("steps", n))

	err := m.migrate.Steps(n)
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration steps failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info("Migration steps completed",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Version returns the current migration version, zero before the first one
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Force sets the migration version without running migrations.
// It is meant for clearing a dirty state after a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing migration version", zap.Int("version", version))

	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}

	m.logger.Info("Migration version forced", zap.Int("version", version))
	return nil
}

// Close releases the source and the migrator's database connection
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}
