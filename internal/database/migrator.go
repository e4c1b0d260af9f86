// Package database opens the sqlite store and migrates it.
package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Pragmas every connection is opened with. Times are written in sqlite's own
// format so range comparisons on DATETIME columns sort correctly.
const dsnParams = "_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000&_time_format=sqlite"

// Open connects to the sqlite file at path (or ":memory:").
func Open(path string) (*sqlx.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	dbx, err := sqlx.Open("sqlite", path+sep+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %s", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is its own database.
		dbx.SetMaxOpenConns(1)
	}

	return dbx, nil
}

// RunMigrations performs all migrations in the given filesystem.
func RunMigrations(dbx *sqlx.DB, fs fs.FS, dirName string) error {
	d, err := iofs.New(fs, dirName)
	if err != nil {
		return fmt.Errorf("error creating migrations source: %s", err)
	}
	i, err := sqlite.WithInstance(dbx.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("error creating sqlite instance for migration: %s", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", d, "sqlite3", i)
	if err != nil {
		return fmt.Errorf("error creating migrator: %s", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error migrating: %s", err)
	}
	slog.Info("migrated")

	return nil
}
