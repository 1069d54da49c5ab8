package migrations

import (
	"errors"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Folder names per database type.
const (
	PostgresPath = "postgres"
	MySQLPath    = "mysql"
	SQLitePath   = "sqllite3"
)

func newMigrate(migrationsPath string, dbURL string) (*migrate.Migrate, error) {
	sub, err := fs.Sub(FS, migrationsPath)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", source, dbURL)
}

// Up applies all pending migrations. An up to date schema is not an error.
func Up(migrationsPath string, dbURL string) error {
	m, err := newMigrate(migrationsPath, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Down rolls back the given number of migrations.
func Down(migrationsPath string, dbURL string, steps int) error {
	m, err := newMigrate(migrationsPath, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version reports the applied schema version and whether the last migration failed half way.
func Version(migrationsPath string, dbURL string) (uint, bool, error) {
	m, err := newMigrate(migrationsPath, dbURL)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
