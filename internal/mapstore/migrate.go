package mapstore

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/copilot/internal/monitoring"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// DevMode switches migrations from the embedded filesystem to the local
// one on disk, so edits to internal/mapstore/migrations are picked up
// without a rebuild.
var DevMode = false

func migrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/mapstore/migrations"), nil
	}
	return fs.Sub(embeddedMigrations, "migrations")
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// newMigrate builds a migrate.Migrate bound to this store's open connection.
// The returned instance must not be Close()d: the sqlite driver's Close
// would close the underlying *sql.DB, which the Store owns separately.
func (s *Store) newMigrate() (*migrate.Migrate, error) {
	migFS, err := migrationsFS()
	if err != nil {
		return nil, fmt.Errorf("mapstore: migrations filesystem: %w", err)
	}

	sourceDriver, err := iofs.New(migFS, ".")
	if err != nil {
		return nil, fmt.Errorf("mapstore: iofs source driver: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("mapstore: sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("mapstore: migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateUp applies all pending migrations and is a no-op if the schema is
// already current.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("mapstore: migrate up: %w", err)
	}
	return nil
}

// schemaVersion reports the applied migration version, 0 if none.
func (s *Store) schemaVersion() (uint, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, err
	}
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("mapstore: schema at version %d is dirty", version)
	}
	return version, nil
}
