package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Migrate brings the schema up to date.
func Migrate(driver, dsn string) error {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	version, dirty, _ := m.Version()
	log.WithFields(log.Fields{"driver": driver, "version": version, "dirty": dirty}).Debug("Schema migrated")
	return nil
}

// Rollback reverts the last applied migration.
func Rollback(driver, dsn string) error {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func newMigrate(driver, dsn string) (*migrate.Migrate, error) {
	var url string
	switch driver {
	case DriverSQLite:
		url = "sqlite://" + dsn
	case DriverPostgres:
		url = dsn
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	src, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate) {
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		log.WithFields(log.Fields{"source": srcErr, "database": dbErr}).Warn("Closing migrator failed")
	}
}
