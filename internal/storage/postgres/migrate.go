package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/cory-johannsen/planeta/migrations"
)

// MigrationStatus reports the schema version after a migration run.
type MigrationStatus struct {
	Version  uint
	Dirty    bool
	NoChange bool
}

// Migrate applies the embedded migrations to the database at dsn. steps > 0
// limits the number applied; up selects the direction.
//
// Precondition: dsn must be a postgres:// URL.
// Postcondition: Returns the resulting schema version or an error. A run with
// nothing to apply is not an error and sets NoChange.
func Migrate(dsn string, up bool, steps int) (MigrationStatus, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch {
	case steps > 0 && up:
		err = m.Steps(steps)
	case steps > 0:
		err = m.Steps(-steps)
	case up:
		err = m.Up()
	default:
		err = m.Down()
	}

	var st MigrationStatus
	if errors.Is(err, migrate.ErrNoChange) {
		st.NoChange = true
	} else if err != nil {
		return MigrationStatus{}, fmt.Errorf("migration failed: %w", err)
	}

	st.Version, st.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return st, fmt.Errorf("reading schema version: %w", err)
	}
	return st, nil
}
