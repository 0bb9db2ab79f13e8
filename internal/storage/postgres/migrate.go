package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MigrationResult reports the schema version after Migrate.
type MigrationResult struct {
	Version uint
	Dirty   bool
	// Changed is false when the schema was already at the requested version.
	Changed bool
}

// Migrate applies the migrations in dir to the database at dsn. steps limits
// how many migrations are applied; 0 applies all of them.
//
// Precondition: dir must contain golang-migrate *.up.sql/*.down.sql files.
// Postcondition: Returns the resulting version or a non-nil error.
func Migrate(dsn, dir string, direction Direction, steps int) (MigrationResult, error) {
	if direction != Up && direction != Down {
		return MigrationResult{}, fmt.Errorf("invalid direction %q: must be %q or %q", direction, Up, Down)
	}
	if steps < 0 {
		return MigrationResult{}, fmt.Errorf("steps must be >= 0, got %d", steps)
	}
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch {
	case direction == Up && steps > 0:
		err = m.Steps(steps)
	case direction == Up:
		err = m.Up()
	case steps > 0:
		err = m.Steps(-steps)
	default:
		err = m.Down()
	}

	var res MigrationResult
	switch {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return MigrationResult{}, fmt.Errorf("migrating %s: %w", direction, err)
	default:
		res.Changed = true
	}

	res.Version, res.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{}, fmt.Errorf("reading schema version: %w", err)
	}
	return res, nil
}
