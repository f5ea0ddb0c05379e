package postgres

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending schema migration shipped with the binary.
func (s *Store) Migrate(logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}
	driver, err := migratepgx.WithInstance(s.db, &migratepgx.Config{})
	if err != nil {
		return errors.Wrap(err, "create migrate driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return errors.Wrap(err, "create migrate instance")
	}

	logger.Info("running migrations up")
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "migration up failed")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return errors.Wrap(err, "read migration version")
	}
	logger.Info("migrations completed", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
